package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/openchw/sentry/internal/record"
)

// Snapshot is the golden representation of a scenario's final state: one
// normalized entry per touched document, in id order.
//
// Normalization keeps snapshots stable: message uuids and replication dates
// are dropped, timestamps render in UTC RFC 3339. Everything else a
// transition can change — mute state, tasks, errors, history, the ledger —
// is captured.
type Snapshot struct {
	Scenario string     `json:"scenario"`
	Docs     []DocState `json:"docs"`
}

// DocState is one document's normalized final state.
type DocState struct {
	ID      string   `json:"id"`
	Rev     string   `json:"rev"`
	Muted   string   `json:"muted,omitempty"`
	Tasks   []string `json:"tasks,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	History []string `json:"history,omitempty"`
	Ran     []string `json:"ran,omitempty"`
}

// BuildSnapshot converts a run result into its golden representation.
func BuildSnapshot(result *Result) Snapshot {
	ids := make([]string, 0, len(result.Docs))
	for id := range result.Docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snapshot := Snapshot{Scenario: result.Scenario}
	for _, id := range ids {
		snapshot.Docs = append(snapshot.Docs, docState(result.Docs[id], result.Infos[id]))
	}
	return snapshot
}

func docState(doc *record.Doc, info *record.ChangeInfo) DocState {
	state := DocState{ID: doc.ID, Rev: doc.Rev}

	if doc.Muted != nil {
		state.Muted = doc.Muted.UTC().Format(time.RFC3339)
	}
	for _, task := range doc.Tasks {
		for _, msg := range task.Messages {
			state.Tasks = append(state.Tasks,
				fmt.Sprintf("%s to=%s: %s", task.State, msg.To, msg.Message))
		}
	}
	for _, e := range doc.Errors {
		state.Errors = append(state.Errors, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	if info != nil {
		for _, entry := range info.MutingHistory {
			event := "unmuted"
			if entry.Muted {
				event = "muted"
			}
			origin := "from lineage"
			if entry.ReportID != nil {
				origin = "report=" + *entry.ReportID
			}
			state.History = append(state.History,
				fmt.Sprintf("%s at %s %s", event, entry.Date.UTC().Format(time.RFC3339), origin))
		}
	}
	for name := range doc.Transitions {
		state.Ran = append(state.Ran, name)
	}
	sort.Strings(state.Ran)

	return state
}

// RunWithGolden executes a scenario, evaluates its assertions, and compares
// the final state against the golden file testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}

	for _, failure := range EvaluateAssertions(result, scenario.Assertions) {
		t.Error(failure)
	}

	data, err := json.MarshalIndent(BuildSnapshot(result), "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}
