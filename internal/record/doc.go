package record

import "time"

// TypeDataRecord is the document type for incoming reports (registrations,
// mute/unmute submissions, and any other form-driven record).
const TypeDataRecord = "data_record"

// TypeContact is the generic contact document type. Hardcoded contact
// variants ("person", "clinic", ...) predate it; both shapes are supported
// and resolved against the configured contact types.
const TypeContact = "contact"

// TaskStatePending marks an outgoing message ready to be picked up by the
// gateway. Messages generated by transitions start in this state.
const TaskStatePending = "pending"

// TaskStateScheduled marks an outgoing message gated on a due timestamp.
// The scheduler promotes these to pending once due.
const TaskStateScheduled = "scheduled"

// Doc is one document borrowed from the store for the duration of a single
// change cycle. Transitions mutate it in memory; the runner persists it
// exactly once per cycle.
//
// The parent chain is embedded the way the store hydrates it: each parent
// carries enough of its own state (id, muted, parent) for lineage checks
// without further reads.
type Doc struct {
	ID          string `json:"id"`
	Rev         string `json:"rev,omitempty"`
	Type        string `json:"type"`
	ContactType string `json:"contact_type,omitempty"`

	// Report-only fields.
	Form   string         `json:"form,omitempty"`
	From   string         `json:"from,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`

	// Contact is the reporting contact for reports (sender), or nil.
	Contact *Doc `json:"contact,omitempty"`

	// Parent is the next ancestor in the lineage, or nil for roots.
	Parent *Doc `json:"parent,omitempty"`

	// Alternate subject identifiers linking registrations to this contact.
	PatientID string `json:"patient_id,omitempty"`
	PlaceID   string `json:"place_id,omitempty"`

	Phone string `json:"phone,omitempty"`

	// Muted is the muted-since timestamp; nil means not muted.
	Muted *time.Time `json:"muted,omitempty"`

	Errors []Error `json:"errors,omitempty"`
	Tasks  []Task  `json:"tasks,omitempty"`

	// Transitions is the per-module idempotency ledger. Entries are only
	// ever added or overwritten, never removed.
	Transitions map[string]TransitionLog `json:"transitions,omitempty"`

	ReportedDate *time.Time `json:"reported_date,omitempty"`
}

// Error is a recoverable business error recorded on the document itself.
// Business errors are data: they never abort the processing cycle.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task is an outgoing-message descriptor appended by transitions.
type Task struct {
	State    string     `json:"state"`
	Due      *time.Time `json:"due,omitempty"`
	Messages []Message  `json:"messages"`
}

// Message is a single outgoing message within a task.
type Message struct {
	UUID    string `json:"uuid"`
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

// TransitionLog is one idempotency ledger entry: whether the named module
// completed for this document, and the revision it produced.
type TransitionLog struct {
	OK      bool   `json:"ok"`
	LastRev string `json:"last_rev"`
}

// MutingHistoryEntry records one mute or unmute decision for a contact.
// ReportID is nil when the decision was propagated from the lineage rather
// than caused by a report.
type MutingHistoryEntry struct {
	Muted    bool      `json:"muted"`
	Date     time.Time `json:"date"`
	ReportID *string   `json:"report_id,omitempty"`
}

// HasErrors reports whether any business errors are recorded on the doc.
func (d *Doc) HasErrors() bool {
	return d != nil && len(d.Errors) > 0
}

// FieldString returns a string field value, or "" when absent or not a string.
func (d *Doc) FieldString(name string) string {
	if d == nil || d.Fields == nil {
		return ""
	}
	s, _ := d.Fields[name].(string)
	return s
}
