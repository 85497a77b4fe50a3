// Package messages resolves configured message templates and records their
// output on documents. Templates are keyed by event type and carry one
// content string per locale; resolution picks the best locale match against
// the configured default.
package messages

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/openchw/sentry/internal/record"
)

// DefaultLocale is used when a template carries several locales and the
// caller does not ask for a specific one.
const DefaultLocale = "en"

// RecipientReportingUnit addresses the unit that submitted the report: the
// reporting contact's phone, falling back to the raw sender. Templates
// default to it unless they override the recipient.
const RecipientReportingUnit = "reporting_unit"

// Template is one configured message, keyed by event type.
type Template struct {
	EventType string      `json:"event_type"`
	Recipient string      `json:"recipient,omitempty"`
	Messages  []Localized `json:"message"`
}

// Localized is one translation of a template's content.
type Localized struct {
	Locale  string `json:"locale"`
	Content string `json:"content"`
}

// Find returns the template for the given event type, or false when the
// configuration does not define one.
func Find(templates []Template, eventType string) (Template, bool) {
	for _, t := range templates {
		if t.EventType == eventType {
			return t, true
		}
	}
	return Template{}, false
}

// Content resolves the template's content for the requested locale. With
// several candidate locales the best match wins; with no usable match the
// first entry is the fallback, so a single-locale template always resolves.
func (t Template) Content(locale string) string {
	if len(t.Messages) == 0 {
		return ""
	}
	if locale == "" {
		locale = DefaultLocale
	}

	tags := make([]language.Tag, len(t.Messages))
	for i, m := range t.Messages {
		tags[i] = language.Make(m.Locale)
	}
	matcher := language.NewMatcher(tags)
	_, index, _ := matcher.Match(language.Make(locale))
	return t.Messages[index].Content
}

// RecipientPhone resolves a template recipient against the report being
// answered. Anything that is not an explicit phone number resolves as the
// reporting unit.
func RecipientPhone(doc *record.Doc, recipient string) string {
	if recipient != "" && recipient != RecipientReportingUnit {
		return recipient
	}
	if doc == nil {
		return ""
	}
	if doc.Contact != nil && doc.Contact.Phone != "" {
		return doc.Contact.Phone
	}
	return doc.From
}

// AddError records a business error on the document. Errors are data, not
// failures; they never abort the processing cycle.
func AddError(doc *record.Doc, code, message string) {
	doc.Errors = append(doc.Errors, record.Error{Code: code, Message: message})
}

// AddTask appends a pending outgoing message to the document.
func AddTask(doc *record.Doc, to, message string) {
	doc.Tasks = append(doc.Tasks, record.Task{
		State: record.TaskStatePending,
		Messages: []record.Message{{
			UUID:    uuid.NewString(),
			To:      to,
			Message: message,
		}},
	})
}

// AddScheduledTask appends an outgoing message gated on a due time. The
// scheduler promotes it to pending once the due time passes.
func AddScheduledTask(doc *record.Doc, to, message string, due time.Time) {
	doc.Tasks = append(doc.Tasks, record.Task{
		State: record.TaskStateScheduled,
		Due:   &due,
		Messages: []record.Message{{
			UUID:    uuid.NewString(),
			To:      to,
			Message: message,
		}},
	})
}
