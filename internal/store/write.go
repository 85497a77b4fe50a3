package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openchw/sentry/internal/record"
)

// Put persists one document and emits a change feed entry.
// The document's revision is bumped in place on success.
func (s *SQLite) Put(ctx context.Context, doc *record.Doc) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return putTx(ctx, tx, doc)
	})
}

// BulkUpdate persists several documents in a single transaction. Revisions
// are bumped in place on success; on error no document is written and no
// revision is changed.
func (s *SQLite) BulkUpdate(ctx context.Context, docs []*record.Doc) error {
	if len(docs) == 0 {
		return nil
	}
	revs := make([]string, len(docs))
	for i, d := range docs {
		revs[i] = d.Rev
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, d := range docs {
			if err := putTx(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Roll back in-memory revision bumps to match the store.
		for i, d := range docs {
			d.Rev = revs[i]
		}
		return err
	}
	return nil
}

// PutInfo persists the metadata sidecar for a document.
func (s *SQLite) PutInfo(ctx context.Context, id string, info *record.ChangeInfo) error {
	body, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal info %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO infos (doc_id, body) VALUES (?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET body = excluded.body
	`, id, string(body))
	if err != nil {
		return fmt.Errorf("put info %s: %w", id, err)
	}
	return nil
}

// inTx runs fn inside a transaction, committing on success.
func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// putTx writes one document inside an open transaction: revision check,
// body upsert, index maintenance, change feed entry, and a lazily created
// info sidecar stamping the initial replication date.
func putTx(ctx context.Context, tx *sql.Tx, doc *record.Doc) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("put: document missing id")
	}

	var stored string
	err := tx.QueryRowContext(ctx, `SELECT rev FROM docs WHERE id = ?`, doc.ID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// New document.
	case err != nil:
		return fmt.Errorf("read rev for %s: %w", doc.ID, err)
	case stored != doc.Rev:
		return &ConflictError{ID: doc.ID, Rev: doc.Rev}
	}

	doc.Rev = record.NextRev(doc.Rev)

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc %s: %w", doc.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO docs (id, rev, type, body) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET rev = excluded.rev, type = excluded.type, body = excluded.body
	`, doc.ID, doc.Rev, doc.Type, string(body))
	if err != nil {
		return fmt.Errorf("write doc %s: %w", doc.ID, err)
	}

	if err := reindexTx(ctx, tx, doc); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO changes (doc_id) VALUES (?)`, doc.ID); err != nil {
		return fmt.Errorf("append change for %s: %w", doc.ID, err)
	}

	// First write stamps the initial replication date; later writes leave
	// the sidecar alone.
	info := record.ChangeInfo{InitialReplicationDate: ptrTime(time.Now().UTC())}
	infoBody, err := json.Marshal(&info)
	if err != nil {
		return fmt.Errorf("marshal info %s: %w", doc.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO infos (doc_id, body) VALUES (?, ?)
		ON CONFLICT(doc_id) DO NOTHING
	`, doc.ID, string(infoBody))
	if err != nil {
		return fmt.Errorf("write info %s: %w", doc.ID, err)
	}

	return nil
}

// reindexTx rebuilds the subject and task-schedule index rows for a doc.
func reindexTx(ctx context.Context, tx *sql.Tx, doc *record.Doc) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear subjects for %s: %w", doc.ID, err)
	}
	for _, subject := range subjectRows(doc) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (doc_id, subject_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, doc.ID, subject)
		if err != nil {
			return fmt.Errorf("index subject %s/%s: %w", doc.ID, subject, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_schedule WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear task schedule for %s: %w", doc.ID, err)
	}
	for _, task := range doc.Tasks {
		if task.State != record.TaskStateScheduled || task.Due == nil {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_schedule (doc_id, due, state) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, doc.ID, task.Due.Unix(), task.State)
		if err != nil {
			return fmt.Errorf("index task for %s: %w", doc.ID, err)
		}
	}
	return nil
}

// subjectRows lists the identifiers a document should be findable by.
// Contacts index their own id and alternate ids; reports index the subject
// fields linking them to their contact.
func subjectRows(doc *record.Doc) []string {
	if doc.Type == record.TypeDataRecord {
		var ids []string
		if s := doc.FieldString("patient_id"); s != "" {
			ids = append(ids, s)
		}
		if s := doc.FieldString("place_id"); s != "" {
			ids = append(ids, s)
		}
		return ids
	}
	return doc.SubjectIDs()
}

func ptrTime(t time.Time) *time.Time { return &t }
