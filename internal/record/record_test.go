package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContact_LegacyTypes(t *testing.T) {
	types := []ContactType{{ID: "person"}, {ID: "clinic"}}

	testCases := []struct {
		name string
		doc  *Doc
		want bool
	}{
		{"nil doc", nil, false},
		{"empty doc", &Doc{}, false},
		{"configured legacy type", &Doc{Type: "person"}, true},
		{"unconfigured legacy type", &Doc{Type: "district_hospital"}, false},
		{"data record", &Doc{Type: TypeDataRecord}, false},
		{"generic contact, configured", &Doc{Type: TypeContact, ContactType: "clinic"}, true},
		{"generic contact, unconfigured", &Doc{Type: TypeContact, ContactType: "other thing"}, false},
		{"non-contact type with contact_type", &Doc{Type: "thing", ContactType: "person"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.doc.IsContact(types))
		})
	}
}

func TestSubjectIDs(t *testing.T) {
	doc := &Doc{ID: "id", PatientID: "patient"}
	assert.Equal(t, []string{"id", "patient"}, doc.SubjectIDs())

	doc = &Doc{ID: "id", PatientID: "patient", PlaceID: "place"}
	assert.Equal(t, []string{"id", "patient", "place"}, doc.SubjectIDs())

	assert.Empty(t, (&Doc{}).SubjectIDs())
	assert.Nil(t, (*Doc)(nil).SubjectIDs())
}

func TestSubjectID_PatientBeforePlace(t *testing.T) {
	doc := &Doc{Type: TypeDataRecord, Fields: map[string]any{"patient_id": "p", "place_id": "pl"}}
	assert.Equal(t, "p", doc.SubjectID())

	doc = &Doc{Type: TypeDataRecord, Fields: map[string]any{"place_id": "pl"}}
	assert.Equal(t, "pl", doc.SubjectID())

	doc = &Doc{Type: TypeDataRecord, Fields: map[string]any{"patient_id": 42}}
	assert.Equal(t, "", doc.SubjectID(), "non-string field values are ignored")
}

func TestValidSubmission(t *testing.T) {
	assert.False(t, (&Doc{Type: TypeDataRecord}).ValidSubmission(), "no form")
	assert.False(t, (&Doc{Type: "person", Form: "f"}).ValidSubmission(), "not a report")
	assert.False(t, (&Doc{Type: TypeDataRecord, Form: "f"}).ValidSubmission(), "no sender")
	assert.True(t, (&Doc{Type: TypeDataRecord, Form: "f", From: "+123"}).ValidSubmission())
	assert.True(t, (&Doc{Type: TypeDataRecord, Form: "f", Contact: &Doc{ID: "c"}}).ValidSubmission())
}

func TestNextRev(t *testing.T) {
	assert.Equal(t, "1", NextRev(""))
	assert.Equal(t, "2", NextRev("1"))
	assert.Equal(t, "4", NextRev("3-abc"), "couch-style revs only use the generation")
	assert.Equal(t, "1", NextRev("garbage"))
}
