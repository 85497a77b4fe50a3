package record

// ContactType describes one configured contact type. The id set defaults to
// the hardcoded hierarchy (person, clinic, health_center, district_hospital)
// when the configuration does not override it.
type ContactType struct {
	ID string `json:"id"`
}

// DefaultContactTypes is the hardcoded place/person hierarchy used when no
// contact_types are configured.
var DefaultContactTypes = []ContactType{
	{ID: "district_hospital"},
	{ID: "health_center"},
	{ID: "clinic"},
	{ID: "person"},
}

// IsContact reports whether doc is a contact of one of the given types.
//
// Two document shapes qualify: legacy docs whose type is itself a configured
// contact type id, and generic docs with type "contact" whose contact_type
// is configured.
func (d *Doc) IsContact(types []ContactType) bool {
	if d == nil {
		return false
	}
	id := d.Type
	if d.Type == TypeContact {
		id = d.ContactType
	}
	for _, t := range types {
		if t.ID == id {
			return true
		}
	}
	return false
}

// SubjectIDs collects every identifier a registration could reference this
// contact by: its own id plus any patient/place alternate ids.
func (d *Doc) SubjectIDs() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, 0, 3)
	if d.ID != "" {
		ids = append(ids, d.ID)
	}
	if d.PatientID != "" {
		ids = append(ids, d.PatientID)
	}
	if d.PlaceID != "" {
		ids = append(ids, d.PlaceID)
	}
	return ids
}

// SubjectID returns the identifier a report uses to reference its subject
// contact: fields.patient_id, falling back to fields.place_id.
func (d *Doc) SubjectID() string {
	if s := d.FieldString("patient_id"); s != "" {
		return s
	}
	return d.FieldString("place_id")
}

// ValidSubmission reports whether a report is attributable: it has a form
// and a known reporting contact or sender. Unattributable submissions are
// never matched by form-driven transitions.
func (d *Doc) ValidSubmission() bool {
	if d == nil || d.Type != TypeDataRecord || d.Form == "" {
		return false
	}
	return d.Contact != nil || d.From != ""
}
