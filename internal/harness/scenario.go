package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openchw/sentry/internal/config"
	"github.com/openchw/sentry/internal/record"
)

// Scenario defines a pipeline conformance scenario: settings, documents to
// seed, documents written while the pipeline runs, and assertions on the
// final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// snapshot file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Settings is the pipeline configuration, in the same shape the CUE
	// settings decode to.
	Settings map[string]any `yaml:"settings"`

	// Seed contains documents present in the store before the pipeline
	// starts. Their feed entries are drained before any step runs.
	Seed []map[string]any `yaml:"seed,omitempty"`

	// Steps contains documents written one at a time while the pipeline
	// runs; the feed is drained after each write, so every step observes
	// the effects of the previous ones.
	Steps []map[string]any `yaml:"steps"`

	// Assertions validate the final document state.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one aspect of a document after the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "muted": the document carries a mute timestamp
	// - "unmuted": the document carries no mute timestamp
	// - "task_message": some task on the document carries this message
	// - "error_code": some error on the document carries this code
	// - "history_count": the document's muting history has this length
	Type string `yaml:"type"`

	// Doc is the document id the assertion targets.
	Doc string `yaml:"doc"`

	// Message is the expected message content (task_message).
	Message string `yaml:"message,omitempty"`

	// Code is the expected error code (error_code).
	Code string `yaml:"code,omitempty"`

	// Count is the expected history length (history_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertMuted        = "muted"
	AssertUnmuted      = "unmuted"
	AssertTaskMessage  = "task_message"
	AssertErrorCode    = "error_code"
	AssertHistoryCount = "history_count"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error if
// the file doesn't exist, is malformed, contains unknown fields (typos), or
// is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, raw := range s.Seed {
		if _, ok := raw["id"].(string); !ok {
			return fmt.Errorf("seed[%d]: id is required", i)
		}
	}
	for i, raw := range s.Steps {
		if _, ok := raw["id"].(string); !ok {
			return fmt.Errorf("steps[%d]: id is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Doc == "" {
		return fmt.Errorf("assertions[%d]: doc is required", index)
	}

	switch a.Type {
	case AssertMuted, AssertUnmuted:
	case AssertTaskMessage:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for task_message", index)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
	case AssertHistoryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// decodeSettings converts the scenario's settings block into pipeline
// settings, through JSON so both shapes share one field vocabulary.
func decodeSettings(raw map[string]any) (*config.Settings, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var settings config.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// decodeDoc converts a scenario document block into a record.Doc.
func decodeDoc(raw map[string]any) (*record.Doc, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode doc: %w", err)
	}
	var doc record.Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode doc: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("doc has no id")
	}
	return &doc, nil
}
