// Package store provides the document store adapter: the contract the
// transition pipeline consumes, and a SQLite-backed implementation suitable
// for a single-host deployment. The pipeline never assumes more than this
// contract; swapping in a remote document store only requires another
// implementation of Store.
package store

import (
	"context"

	"github.com/openchw/sentry/internal/record"
)

// View names the canned queries the pipeline needs. Views keep the query
// surface explicit instead of leaking SQL into business code.
type View string

const (
	// ViewContactsBySubject finds contact documents by any of their
	// subject identifiers (own id, patient_id, place_id).
	ViewContactsBySubject View = "contacts_by_subject"

	// ViewRegistrationsBySubject finds data_record documents whose
	// subject fields reference any of the given identifiers.
	ViewRegistrationsBySubject View = "registrations_by_subject"

	// ViewTasksDue finds documents carrying scheduled tasks whose due
	// time is at or before the given unix-seconds key.
	ViewTasksDue View = "tasks_due"
)

// Store is the document store contract consumed by the pipeline.
//
// Every method is a potential suspension point; callers hold no locks across
// these calls beyond the per-document single-writer discipline documented on
// the runner.
type Store interface {
	// Get fetches a document by id. Returns a NotFoundError when absent.
	Get(ctx context.Context, id string) (*record.Doc, error)

	// Put persists a document, bumping its revision in place. Returns a
	// ConflictError if the stored revision no longer matches doc.Rev.
	// Every successful Put emits one entry on the changes feed.
	Put(ctx context.Context, doc *record.Doc) error

	// BulkUpdate persists several documents in one transaction. All-or-
	// nothing within this store; callers must not rely on cross-call
	// atomicity (see the muting cascade notes).
	BulkUpdate(ctx context.Context, docs []*record.Doc) error

	// Query runs a named view with the given keys.
	Query(ctx context.Context, view View, keys []string) ([]*record.Doc, error)

	// GetInfo fetches the metadata sidecar for a document. A document
	// without a sidecar yields an empty ChangeInfo, not an error.
	GetInfo(ctx context.Context, id string) (*record.ChangeInfo, error)

	// PutInfo persists the metadata sidecar for a document.
	PutInfo(ctx context.Context, id string, info *record.ChangeInfo) error

	// Changes returns up to limit feed entries with seq strictly greater
	// than since, in seq order, plus the last seq returned (or since when
	// the feed is drained).
	Changes(ctx context.Context, since int64, limit int) ([]record.Change, int64, error)
}
