package transition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/store"
)

// Runner consumes one change at a time and applies every matching
// transition to it, in registration order, persisting the result exactly
// once per cycle.
//
// Concurrency model: one change is fully processed before its save; no two
// modules ever race on the same document's in-memory state. Distinct
// documents may be processed by independent runners concurrently — nothing
// here assumes a global order across documents.
type Runner struct {
	store    store.Store
	registry *Registry
}

// NewRunner creates a runner over the given store and registry.
func NewRunner(st store.Store, registry *Registry) *Runner {
	return &Runner{store: st, registry: registry}
}

// Process applies every matching transition to the change and persists the
// document once if any module mutated it. The persisted ledger covers every
// module that ran, including modules whose effects landed on other documents
// only — otherwise the feed's redelivery of the saved revision would run
// their side effects a second time.
//
// Failure semantics: the first OnMatch error aborts the cycle — remaining
// modules do not run, nothing is persisted, and the error surfaces to the
// feed consumer, which owns retry policy. Mutations staged by earlier
// modules stay in memory only; the ledger makes the retry safe for modules
// that complete on a later attempt.
func (r *Runner) Process(ctx context.Context, change record.Change) error {
	doc := change.Doc
	if doc == nil {
		return fmt.Errorf("change %s carries no document", change.ID)
	}

	var ran []string
	var mutated bool
	err := r.registry.each(func(t Transition) error {
		if HasRun(doc, t.Name()) {
			slog.Debug("transition already ran for this revision",
				"transition", t.Name(),
				"doc", doc.ID,
				"rev", doc.Rev,
			)
			return nil
		}
		if !t.Filter(doc, change.Info) {
			return nil
		}

		slog.Debug("transition matched",
			"transition", t.Name(),
			"doc", doc.ID,
			"seq", change.Seq,
		)

		changed, err := t.OnMatch(ctx, change)
		if err != nil {
			slog.Error("transition failed",
				"transition", t.Name(),
				"doc", doc.ID,
				"seq", change.Seq,
				"error", err,
			)
			return fmt.Errorf("transition %s on %s: %w", t.Name(), doc.ID, err)
		}
		ran = append(ran, t.Name())
		if changed {
			mutated = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !mutated {
		return nil
	}

	// Stamp the ledger before the save so the entries travel with the
	// document revision they describe.
	for _, name := range ran {
		MarkRan(doc, name)
	}

	if err := r.store.Put(ctx, doc); err != nil {
		return fmt.Errorf("persist %s: %w", doc.ID, err)
	}

	slog.Info("change processed",
		"doc", doc.ID,
		"rev", doc.Rev,
		"transitions", ran,
	)
	return nil
}
