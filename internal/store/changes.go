package store

import (
	"context"
	"fmt"

	"github.com/openchw/sentry/internal/record"
)

// Changes reads up to limit feed entries with seq strictly greater than
// since. Each entry carries the document at its current revision plus the
// metadata sidecar. Entries whose document has since been deleted are
// skipped but still advance the returned seq.
func (s *SQLite) Changes(ctx context.Context, since int64, limit int) ([]record.Change, int64, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, doc_id FROM changes WHERE seq > ? ORDER BY seq LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, since, fmt.Errorf("read changes: %w", err)
	}
	defer rows.Close()

	type entry struct {
		seq int64
		id  string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.seq, &e.id); err != nil {
			return nil, since, fmt.Errorf("scan change row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, since, fmt.Errorf("iterate change rows: %w", err)
	}

	last := since
	changes := make([]record.Change, 0, len(entries))
	for _, e := range entries {
		last = e.seq

		doc, err := s.Get(ctx, e.id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, since, err
		}

		info, err := s.GetInfo(ctx, e.id)
		if err != nil {
			return nil, since, err
		}

		changes = append(changes, record.Change{
			ID:   e.id,
			Seq:  e.seq,
			Doc:  doc,
			Info: *info,
		})
	}

	return changes, last, nil
}
