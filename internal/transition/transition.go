// Package transition is the change-processing core: an ordered set of
// business-rule modules applied to every relevant document change, with
// per-module idempotency and a single persist per cycle.
package transition

import (
	"context"

	"github.com/openchw/sentry/internal/record"
)

// Transition is one business-rule module reacting to document changes.
//
// Filter must be a pure predicate: no side effects, no store reads. OnMatch
// may read the store and write *other* documents (cascades), but must never
// write the primary document — it mutates it in memory and reports whether
// a save is needed.
type Transition interface {
	// Name identifies the module in the idempotency ledger and in logs.
	Name() string

	// Filter reports whether this change is relevant to the module.
	// It must return false for nil documents and documents missing the
	// fields the module needs.
	Filter(doc *record.Doc, info record.ChangeInfo) bool

	// OnMatch applies the module to the change. The returned bool means
	// "the primary document was mutated and needs a save". An error
	// aborts the whole cycle for this document.
	OnMatch(ctx context.Context, change record.Change) (bool, error)
}

// Registry is the explicit, ordered, immutable list of transitions the
// runner consults. Order is registration order and never changes after
// construction; there is no ambient global lookup.
type Registry struct {
	transitions []Transition
}

// NewRegistry builds a registry. The slice is copied to protect the order
// invariant from later mutation by the caller.
func NewRegistry(transitions ...Transition) *Registry {
	copied := make([]Transition, len(transitions))
	copy(copied, transitions)
	return &Registry{transitions: copied}
}

// Len reports the number of registered transitions.
func (r *Registry) Len() int {
	return len(r.transitions)
}

// each visits every transition in registration order.
func (r *Registry) each(fn func(t Transition) error) error {
	for _, t := range r.transitions {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}
