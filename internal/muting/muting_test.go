package muting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/store"
)

func openTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "muting.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestIsMutedInLineage(t *testing.T) {
	mutedAt := ts("2024-03-01T10:00:00Z")
	replicated := ts("2024-03-02T10:00:00Z")
	earlier := ts("2024-02-01T10:00:00Z")

	person := func(parent *record.Doc) *record.Doc {
		return &record.Doc{ID: "p", Type: "person", Parent: parent}
	}

	t.Run("no parents", func(t *testing.T) {
		assert.False(t, IsMutedInLineage(person(nil), &replicated))
		assert.False(t, IsMutedInLineage(nil, &replicated))
	})

	t.Run("unmuted lineage", func(t *testing.T) {
		doc := person(&record.Doc{ID: "clinic", Parent: &record.Doc{ID: "hc"}})
		assert.False(t, IsMutedInLineage(doc, &replicated))
	})

	t.Run("ancestor muted before replication", func(t *testing.T) {
		doc := person(&record.Doc{ID: "clinic", Muted: &mutedAt})
		assert.True(t, IsMutedInLineage(doc, &replicated))
	})

	t.Run("ancestor muted after replication", func(t *testing.T) {
		doc := person(&record.Doc{ID: "clinic", Muted: &mutedAt})
		assert.False(t, IsMutedInLineage(doc, &earlier))
	})

	t.Run("grandparent muted", func(t *testing.T) {
		doc := person(&record.Doc{ID: "clinic", Parent: &record.Doc{ID: "hc", Muted: &mutedAt}})
		assert.True(t, IsMutedInLineage(doc, &replicated))
	})

	t.Run("unknown replication date counts any muted ancestor", func(t *testing.T) {
		doc := person(&record.Doc{ID: "clinic", Muted: &mutedAt})
		assert.True(t, IsMutedInLineage(doc, nil))
	})

	t.Run("own mute state is ignored", func(t *testing.T) {
		doc := person(nil)
		doc.Muted = &mutedAt
		assert.False(t, IsMutedInLineage(doc, &replicated))
	})
}

func TestUpdateRegistrations_CascadeAndIdempotency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	reg := &record.Doc{ID: "reg-1", Type: record.TypeDataRecord, Form: "pregnancy",
		Fields: map[string]any{"patient_id": "12345"}}
	other := &record.Doc{ID: "reg-2", Type: record.TypeDataRecord, Form: "pregnancy",
		Fields: map[string]any{"patient_id": "67890"}}
	require.NoError(t, s.Put(ctx, reg))
	require.NoError(t, s.Put(ctx, other))

	at := ts("2024-03-01T10:00:00Z")
	require.NoError(t, UpdateRegistrations(ctx, s, []string{"contact", "12345"}, &at))

	got, err := s.Get(ctx, "reg-1")
	require.NoError(t, err)
	require.NotNil(t, got.Muted)
	assert.True(t, got.Muted.Equal(at))
	assert.Equal(t, "2", got.Rev)

	unrelated, err := s.Get(ctx, "reg-2")
	require.NoError(t, err)
	assert.Nil(t, unrelated.Muted, "registrations for other subjects are untouched")

	// Replaying the cascade must not write anything.
	require.NoError(t, UpdateRegistrations(ctx, s, []string{"contact", "12345"}, &at))
	got, err = s.Get(ctx, "reg-1")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Rev, "no-op cascade leaves the revision alone")

	// Unmute flows back through the same path.
	require.NoError(t, UpdateRegistrations(ctx, s, []string{"12345"}, nil))
	got, err = s.Get(ctx, "reg-1")
	require.NoError(t, err)
	assert.Nil(t, got.Muted)
}

func TestUpdateMuteState_FullCascade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	contact := &record.Doc{ID: "contact", Type: "person", PatientID: "12345"}
	reg := &record.Doc{ID: "reg", Type: record.TypeDataRecord, Form: "pregnancy",
		Fields: map[string]any{"patient_id": "12345"}}
	require.NoError(t, s.Put(ctx, contact))
	require.NoError(t, s.Put(ctx, reg))

	at := ts("2024-03-01T10:00:00Z")
	reportID := "report-1"
	require.NoError(t, UpdateMuteState(ctx, s, contact, true, &reportID, at))

	gotContact, err := s.Get(ctx, "contact")
	require.NoError(t, err)
	require.NotNil(t, gotContact.Muted)

	gotReg, err := s.Get(ctx, "reg")
	require.NoError(t, err)
	require.NotNil(t, gotReg.Muted)

	info, err := s.GetInfo(ctx, "contact")
	require.NoError(t, err)
	require.Len(t, info.MutingHistory, 1)
	assert.True(t, info.MutingHistory[0].Muted)
	require.NotNil(t, info.MutingHistory[0].ReportID)
	assert.Equal(t, "report-1", *info.MutingHistory[0].ReportID)

	// Unmute reverses contact, registrations and appends history.
	unmuteID := "report-2"
	require.NoError(t, UpdateMuteState(ctx, s, contact, false, &unmuteID, at.Add(time.Hour)))

	gotContact, err = s.Get(ctx, "contact")
	require.NoError(t, err)
	assert.Nil(t, gotContact.Muted)

	gotReg, err = s.Get(ctx, "reg")
	require.NoError(t, err)
	assert.Nil(t, gotReg.Muted)

	info, err = s.GetInfo(ctx, "contact")
	require.NoError(t, err)
	require.Len(t, info.MutingHistory, 2)
	assert.False(t, info.MutingHistory[1].Muted)
}

func TestGetContact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	contact := &record.Doc{ID: "contact", Type: "person", PatientID: "12345"}
	require.NoError(t, s.Put(ctx, contact))

	report := &record.Doc{ID: "report", Type: record.TypeDataRecord, Form: "mute",
		Fields: map[string]any{"patient_id": "12345"}}

	got, err := GetContact(ctx, s, report)
	require.NoError(t, err)
	assert.Equal(t, "contact", got.ID)

	t.Run("unknown subject", func(t *testing.T) {
		missing := &record.Doc{ID: "r2", Type: record.TypeDataRecord, Form: "mute",
			Fields: map[string]any{"patient_id": "nope"}}
		_, err := GetContact(ctx, s, missing)
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("no subject at all", func(t *testing.T) {
		bare := &record.Doc{ID: "r3", Type: record.TypeDataRecord, Form: "mute"}
		_, err := GetContact(ctx, s, bare)
		assert.True(t, store.IsNotFound(err))
	})
}
