package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openchw/sentry/internal/record"
)

// Get fetches a document by id.
func (s *SQLite) Get(ctx context.Context, id string) (*record.Doc, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM docs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return unmarshalDoc(id, body)
}

// GetInfo fetches the metadata sidecar for a document. Missing sidecars
// yield an empty ChangeInfo.
func (s *SQLite) GetInfo(ctx context.Context, id string) (*record.ChangeInfo, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM infos WHERE doc_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return &record.ChangeInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get info %s: %w", id, err)
	}
	var info record.ChangeInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		return nil, fmt.Errorf("unmarshal info %s: %w", id, err)
	}
	return &info, nil
}

// Query runs a named view with the given keys.
func (s *SQLite) Query(ctx context.Context, view View, keys []string) ([]*record.Doc, error) {
	switch view {
	case ViewContactsBySubject:
		return s.bySubject(ctx, keys, false)
	case ViewRegistrationsBySubject:
		return s.bySubject(ctx, keys, true)
	case ViewTasksDue:
		return s.tasksDue(ctx, keys)
	default:
		return nil, fmt.Errorf("unknown view: %s", view)
	}
}

// bySubject resolves documents by subject identifier, restricted to either
// data records (registrations) or everything else (contacts).
func (s *SQLite) bySubject(ctx context.Context, keys []string, dataRecords bool) ([]*record.Doc, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	op := "!="
	if dataRecords {
		op = "="
	}
	query := fmt.Sprintf(`
		SELECT d.id, d.body
		FROM docs d
		JOIN subjects s ON s.doc_id = d.id
		WHERE d.type %s 'data_record' AND s.subject_id IN (%s)
		GROUP BY d.id
		ORDER BY d.id
	`, op, placeholders(len(keys)))

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	return s.queryDocs(ctx, query, args...)
}

// tasksDue resolves documents carrying scheduled tasks due at or before the
// unix-seconds key.
func (s *SQLite) tasksDue(ctx context.Context, keys []string) ([]*record.Doc, error) {
	if len(keys) != 1 {
		return nil, fmt.Errorf("tasks_due expects exactly one key, got %d", len(keys))
	}
	query := `
		SELECT d.id, d.body
		FROM docs d
		JOIN task_schedule t ON t.doc_id = d.id
		WHERE t.state = 'scheduled' AND t.due <= ?
		GROUP BY d.id
		ORDER BY d.id
	`
	return s.queryDocs(ctx, query, keys[0])
}

func (s *SQLite) queryDocs(ctx context.Context, query string, args ...any) ([]*record.Doc, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query docs: %w", err)
	}
	defer rows.Close()

	var docs []*record.Doc
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan doc row: %w", err)
		}
		doc, err := unmarshalDoc(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doc rows: %w", err)
	}
	return docs, nil
}

func unmarshalDoc(id, body string) (*record.Doc, error) {
	var doc record.Doc
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal doc %s: %w", id, err)
	}
	return &doc, nil
}

// placeholders builds "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
