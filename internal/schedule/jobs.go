package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/store"
)

// DueTasks returns the job that promotes scheduled outgoing messages whose
// due time has passed to pending. Window-gated: outside the sendable window
// due messages stay scheduled and are picked up by the next in-window cycle.
//
// Promotion is idempotent. The due-tasks view only returns documents still
// carrying scheduled tasks, and promoting an already-pending task is a no-op,
// so a crash after a partial bulk write just means a smaller batch next time.
func DueTasks(st store.Store, now func() time.Time) Job {
	return Job{
		Name: "due_tasks",
		Kind: JobWindowGated,
		Run: func(ctx context.Context) error {
			cutoff := now()
			key := strconv.FormatInt(cutoff.Unix(), 10)

			docs, err := st.Query(ctx, store.ViewTasksDue, []string{key})
			if err != nil {
				return fmt.Errorf("load due tasks: %w", err)
			}

			var changed []*record.Doc
			promoted := 0
			for _, doc := range docs {
				if n := promoteDue(doc, cutoff); n > 0 {
					changed = append(changed, doc)
					promoted += n
				}
			}
			if len(changed) == 0 {
				return nil
			}

			if err := st.BulkUpdate(ctx, changed); err != nil {
				return fmt.Errorf("promote due tasks: %w", err)
			}
			slog.Info("due tasks promoted", "docs", len(changed), "tasks", promoted)
			return nil
		},
	}
}

// promoteDue flips every scheduled task due at or before cutoff to pending
// and reports how many it flipped.
func promoteDue(doc *record.Doc, cutoff time.Time) int {
	n := 0
	for i := range doc.Tasks {
		task := &doc.Tasks[i]
		if task.State != record.TaskStateScheduled {
			continue
		}
		if task.Due == nil || task.Due.After(cutoff) {
			continue
		}
		task.State = record.TaskStatePending
		n++
	}
	return n
}
