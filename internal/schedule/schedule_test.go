package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/store"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func at(hour, min, sec int) time.Time {
	return time.Date(2024, 3, 15, hour, min, sec, 0, time.UTC)
}

func TestSendable(t *testing.T) {
	s := New(nil, 8, 18)

	tests := []struct {
		hour int
		want bool
	}{
		{0, false},
		{7, false},
		{8, true},
		{12, true},
		{18, true},
		{19, false},
		{23, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, s.Sendable(at(tc.hour, 30, 0)), "hour %d", tc.hour)
	}

	open := New(nil, 0, 23)
	assert.True(t, open.Sendable(at(0, 0, 0)))
	assert.True(t, open.Sendable(at(23, 59, 59)))
}

func TestNextBoundary(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{at(12, 3, 10), at(12, 5, 0)},
		{at(12, 5, 0), at(12, 10, 0)},
		{at(12, 4, 59), at(12, 5, 0)},
		{at(12, 59, 1), at(13, 0, 0)},
	}
	for _, tc := range tests {
		got := NextBoundary(tc.now, DefaultInterval)
		assert.Equal(t, tc.want, got, "from %s", tc.now)
		assert.True(t, got.After(tc.now), "boundary is strictly after now")
	}
}

func TestRunCycle_SeriesOrder(t *testing.T) {
	var order []string
	mk := func(name string) Job {
		return Job{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return nil
		}}
	}

	s := New([]Job{mk("a"), mk("b"), mk("c")}, 0, 23)
	s.now = fixedClock(at(12, 0, 0))

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRunCycle_WindowGating(t *testing.T) {
	var ran []string
	jobs := []Job{
		{Name: "always", Kind: JobEveryCycle, Run: func(context.Context) error {
			ran = append(ran, "always")
			return nil
		}},
		{Name: "gated", Kind: JobWindowGated, Run: func(context.Context) error {
			ran = append(ran, "gated")
			return nil
		}},
	}

	s := New(jobs, 8, 18)

	s.now = fixedClock(at(6, 0, 0))
	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, []string{"always"}, ran, "gated job skipped before the window opens")

	ran = nil
	s.now = fixedClock(at(12, 0, 0))
	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, []string{"always", "gated"}, ran)

	ran = nil
	s.now = fixedClock(at(19, 0, 0))
	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, []string{"always"}, ran, "gated job skipped after the window closes")
}

func TestRunCycle_FailureDoesNotStopSiblings(t *testing.T) {
	boom := errors.New("queue unavailable")
	var ran []string
	jobs := []Job{
		{Name: "first", Run: func(context.Context) error {
			ran = append(ran, "first")
			return boom
		}},
		{Name: "second", Run: func(context.Context) error {
			ran = append(ran, "second")
			return nil
		}},
	}

	s := New(jobs, 0, 23)
	s.now = fixedClock(at(12, 0, 0))

	err := s.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := New(nil, 0, 23)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDueTasks(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	now := at(12, 0, 0)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	doc := &record.Doc{
		ID:   "doc1",
		Type: record.TypeDataRecord,
		Form: "pregnancy",
		From: "+111",
		Tasks: []record.Task{
			{State: record.TaskStateScheduled, Due: &past,
				Messages: []record.Message{{UUID: "m1", To: "+111", Message: "reminder"}}},
			{State: record.TaskStateScheduled, Due: &future,
				Messages: []record.Message{{UUID: "m2", To: "+111", Message: "later"}}},
		},
	}
	require.NoError(t, st.Put(ctx, doc))

	job := DueTasks(st, fixedClock(now))
	require.NoError(t, job.Run(ctx))

	got, err := st.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Rev)
	assert.Equal(t, record.TaskStatePending, got.Tasks[0].State, "past-due task promoted")
	assert.Equal(t, record.TaskStateScheduled, got.Tasks[1].State, "future task untouched")

	// Replay: the future task is still scheduled but not yet due,
	// so nothing changes.
	require.NoError(t, job.Run(ctx))
	got, err = st.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Rev)

	// Advance past the second due time and the remaining task promotes.
	late := DueTasks(st, fixedClock(future.Add(time.Minute)))
	require.NoError(t, late.Run(ctx))
	got, err = st.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "3", got.Rev)
	assert.Equal(t, record.TaskStatePending, got.Tasks[1].State)
}

func TestDueTasks_EmptyStoreIsQuiet(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	job := DueTasks(st, fixedClock(at(12, 0, 0)))
	assert.NoError(t, job.Run(context.Background()))
}
