package transition

import "github.com/openchw/sentry/internal/record"

// The idempotency ledger lives on the document itself, so its consistency
// follows from the same single-writer-per-revision discipline as every
// other field. Entries are append-only: modules are recorded, never erased.

// HasRun reports whether the named module already produced its effects for
// the document's current revision. Redelivery of a saved revision is a
// no-op for that module.
func HasRun(doc *record.Doc, name string) bool {
	if doc == nil || doc.Transitions == nil {
		return false
	}
	entry, ok := doc.Transitions[name]
	return ok && entry.OK && entry.LastRev == doc.Rev
}

// MarkRan stamps the ledger with the revision the document will carry after
// the runner's save. Stamping the upcoming revision is what makes the
// redelivered post-save change recognisable as already processed.
func MarkRan(doc *record.Doc, name string) {
	if doc.Transitions == nil {
		doc.Transitions = make(map[string]record.TransitionLog)
	}
	doc.Transitions[name] = record.TransitionLog{
		OK:      true,
		LastRev: record.NextRev(doc.Rev),
	}
}
