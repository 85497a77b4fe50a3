// Package harness provides a conformance framework for the transition
// pipeline: YAML scenarios seed a fresh store, write documents through the
// real feed consumer, and assert on the resulting state, with golden
// snapshots of the final documents.
//
// Every scenario runs against the real pipeline — the same store, runner,
// and transitions production uses — with a frozen clock so timestamps in
// snapshots are stable across runs.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/store"
	"github.com/openchw/sentry/internal/testutil"
	"github.com/openchw/sentry/internal/transition"
)

// scenarioEpoch is the frozen decision clock every scenario runs at.
var scenarioEpoch = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// Result is the final state of a scenario run.
type Result struct {
	Scenario string

	// Processed counts feed entries handled, including redeliveries of the
	// pipeline's own writes.
	Processed int

	// Docs and Infos hold the final state of every document the scenario
	// touched, keyed by id.
	Docs  map[string]*record.Doc
	Infos map[string]*record.ChangeInfo

	ids []string // insertion order, deduplicated
}

func (r *Result) track(id string) {
	if _, ok := r.Docs[id]; ok {
		return
	}
	r.Docs[id] = nil
	r.ids = append(r.ids, id)
}

// Run executes a scenario against a fresh in-memory store and returns the
// final state. Each scenario is fully isolated; the frozen clock makes the
// run reproducible.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	settings, err := decodeSettings(scenario.Settings)
	if err != nil {
		return nil, fmt.Errorf("scenario settings: %w", err)
	}

	clock := testutil.NewClock(scenarioEpoch)

	var transitions []transition.Transition
	if settings.Muting != nil {
		muting, err := transition.NewMuting(st, settings)
		if err != nil {
			return nil, fmt.Errorf("scenario settings: %w", err)
		}
		transitions = append(transitions, muting.WithClock(clock.Now))
	}

	runner := transition.NewRunner(st, transition.NewRegistry(transitions...))
	consumer := transition.NewConsumer(st, runner, 0)

	ctx := context.Background()
	result := &Result{
		Scenario: scenario.Name,
		Docs:     make(map[string]*record.Doc),
		Infos:    make(map[string]*record.ChangeInfo),
	}

	for i, raw := range scenario.Seed {
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
		if err := st.Put(ctx, doc); err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
		result.track(doc.ID)
	}

	// Seed documents flow through the pipeline too: a seeded contact in a
	// muted lineage is processed before the first step runs.
	n, err := consumer.Drain(ctx)
	if err != nil {
		return nil, fmt.Errorf("drain after seed: %w", err)
	}
	result.Processed += n

	for i, raw := range scenario.Steps {
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := st.Put(ctx, doc); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.track(doc.ID)

		n, err := consumer.Drain(ctx)
		if err != nil {
			return nil, fmt.Errorf("drain after step %d: %w", i, err)
		}
		result.Processed += n
	}

	for _, id := range result.ids {
		doc, err := st.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("final state of %s: %w", id, err)
		}
		info, err := st.GetInfo(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("final info of %s: %w", id, err)
		}
		result.Docs[id] = doc
		result.Infos[id] = info
	}

	return result, nil
}
