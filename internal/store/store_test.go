package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchw/sentry/internal/record"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sentry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := &record.Doc{ID: "contact-1", Type: "person", PatientID: "12345", Phone: "+256700000001"}
	require.NoError(t, s.Put(ctx, doc))
	assert.Equal(t, "1", doc.Rev, "first put bumps to generation 1")

	got, err := s.Get(ctx, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, "contact-1", got.ID)
	assert.Equal(t, "person", got.Type)
	assert.Equal(t, "12345", got.PatientID)
	assert.Equal(t, "1", got.Rev)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestPut_RevisionConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := &record.Doc{ID: "doc", Type: "person"}
	require.NoError(t, s.Put(ctx, doc))

	stale := &record.Doc{ID: "doc", Type: "person", Rev: ""}
	err := s.Put(ctx, stale)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	// The winning copy can keep writing.
	require.NoError(t, s.Put(ctx, doc))
	assert.Equal(t, "2", doc.Rev)
}

func TestQuery_RegistrationsBySubject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	reg1 := &record.Doc{ID: "reg-1", Type: record.TypeDataRecord, Form: "pregnancy",
		Fields: map[string]any{"patient_id": "12345"}}
	reg2 := &record.Doc{ID: "reg-2", Type: record.TypeDataRecord, Form: "pregnancy",
		Fields: map[string]any{"patient_id": "99999"}}
	contact := &record.Doc{ID: "contact-1", Type: "person", PatientID: "12345"}

	require.NoError(t, s.Put(ctx, reg1))
	require.NoError(t, s.Put(ctx, reg2))
	require.NoError(t, s.Put(ctx, contact))

	docs, err := s.Query(ctx, ViewRegistrationsBySubject, []string{"contact-1", "12345"})
	require.NoError(t, err)
	require.Len(t, docs, 1, "contacts must not come back from the registrations view")
	assert.Equal(t, "reg-1", docs[0].ID)

	docs, err = s.Query(ctx, ViewContactsBySubject, []string{"12345"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "contact-1", docs[0].ID)
}

func TestQuery_TasksDue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := &record.Doc{ID: "due", Type: record.TypeDataRecord, Form: "f", Tasks: []record.Task{
		{State: record.TaskStateScheduled, Due: &past, Messages: []record.Message{{Message: "hi"}}},
	}}
	notDue := &record.Doc{ID: "not-due", Type: record.TypeDataRecord, Form: "f", Tasks: []record.Task{
		{State: record.TaskStateScheduled, Due: &future, Messages: []record.Message{{Message: "later"}}},
	}}
	require.NoError(t, s.Put(ctx, due))
	require.NoError(t, s.Put(ctx, notDue))

	docs, err := s.Query(ctx, ViewTasksDue, []string{unixKey(time.Now())})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "due", docs[0].ID)
}

func TestChanges_FeedOrderAndResume(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := &record.Doc{ID: "a", Type: "person"}
	b := &record.Doc{ID: "b", Type: "person"}
	require.NoError(t, s.Put(ctx, a))
	require.NoError(t, s.Put(ctx, b))
	require.NoError(t, s.Put(ctx, a)) // second write, second feed entry

	changes, last, err := s.Changes(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, []string{"a", "b", "a"}, []string{changes[0].ID, changes[1].ID, changes[2].ID})
	assert.Equal(t, int64(3), last)

	// Resume from the middle of the feed.
	changes, last, err = s.Changes(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "a", changes[0].ID)
	assert.Equal(t, "2", changes[0].Doc.Rev, "feed delivers the current revision")
	assert.Equal(t, int64(3), last)

	// Drained feed returns the since value unchanged.
	changes, last, err = s.Changes(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, int64(3), last)
}

func TestInfoSidecar(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := &record.Doc{ID: "c", Type: "person"}
	require.NoError(t, s.Put(ctx, doc))

	info, err := s.GetInfo(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, info.InitialReplicationDate, "first put stamps the replication date")
	first := *info.InitialReplicationDate

	// A second write must not move the initial replication date.
	require.NoError(t, s.Put(ctx, doc))
	info, err = s.GetInfo(ctx, "c")
	require.NoError(t, err)
	assert.True(t, info.InitialReplicationDate.Equal(first))

	// Muting history round-trips through the sidecar.
	reportID := "report-1"
	info.MutingHistory = append(info.MutingHistory, record.MutingHistoryEntry{
		Muted: true, Date: time.Now().UTC(), ReportID: &reportID,
	})
	require.NoError(t, s.PutInfo(ctx, "c", info))

	got, err := s.GetInfo(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got.MutingHistory, 1)
	assert.True(t, got.MutingHistory[0].Muted)
	require.NotNil(t, got.MutingHistory[0].ReportID)
	assert.Equal(t, "report-1", *got.MutingHistory[0].ReportID)

	// Unknown documents get an empty sidecar, not an error.
	info, err = s.GetInfo(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, info.InitialReplicationDate)
}

func TestBulkUpdate_AllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := &record.Doc{ID: "a", Type: "person"}
	require.NoError(t, s.Put(ctx, a))

	stale := &record.Doc{ID: "a", Type: "person", Rev: ""} // conflict
	fresh := &record.Doc{ID: "b", Type: "person"}

	err := s.BulkUpdate(ctx, []*record.Doc{fresh, stale})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "", fresh.Rev, "failed bulk update leaves revisions untouched")

	_, err = s.Get(ctx, "b")
	assert.True(t, IsNotFound(err), "failed bulk update writes nothing")

	require.NoError(t, s.BulkUpdate(ctx, []*record.Doc{fresh}))
	assert.Equal(t, "1", fresh.Rev)
}

func unixKey(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
