package transition

import (
	"context"
	"time"

	"github.com/openchw/sentry/internal/config"
	"github.com/openchw/sentry/internal/messages"
	"github.com/openchw/sentry/internal/muting"
	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/store"
	"github.com/openchw/sentry/internal/validation"
)

// MutingName is the muting transition's ledger key.
const MutingName = "muting"

// Muting event types, matched against configured message templates.
const (
	EventMute            = "mute"
	EventUnmute          = "unmute"
	EventAlreadyMuted    = "already_muted"
	EventAlreadyUnmuted  = "already_unmuted"
	EventContactNotFound = "contact_not_found"
)

// Muting mutes and unmutes contacts, cascading to their registrations.
//
// Two ways in: a mute/unmute report targeting a contact, or a contact that
// replicated into an already-muted lineage and needs the ancestor's state
// propagated down.
type Muting struct {
	contactTypes []record.ContactType
	cfg          config.MutingConfig
	rules        *validation.Compiled
	store        store.Store

	// now is the decision clock; injectable for tests.
	now func() time.Time
}

// NewMuting validates the configuration and builds the transition.
// A missing muting block or empty mute_forms is a fatal startup error.
func NewMuting(st store.Store, settings *config.Settings) (*Muting, error) {
	if settings == nil || settings.Muting == nil {
		return nil, config.NewError("muting transition enabled but not configured")
	}
	cfg := *settings.Muting
	if len(cfg.MuteForms) == 0 {
		return nil, config.NewError("muting requires a non-empty mute_forms list")
	}

	rules, err := validation.Compile(cfg.Validations)
	if err != nil {
		return nil, config.NewError("muting validations: %v", err)
	}

	return &Muting{
		contactTypes: settings.ContactTypes,
		cfg:          cfg,
		rules:        rules,
		store:        st,
		now:          time.Now,
	}, nil
}

// WithClock overrides the decision clock. The harness injects a frozen
// clock so mute timestamps are stable across runs.
func (m *Muting) WithClock(now func() time.Time) *Muting {
	m.now = now
	return m
}

// Name implements Transition.
func (m *Muting) Name() string { return MutingName }

// Filter implements Transition.
//
// Contacts match when they are unmuted, have never had a mute decision of
// their own, and sit in a lineage that was muted at or before they reached
// the store. A contact with any muting history was already decided — it is
// never re-matched, even if its lineage is muted.
//
// Reports match when they reference a subject, use a configured mute or
// unmute form, and are attributable submissions.
func (m *Muting) Filter(doc *record.Doc, info record.ChangeInfo) bool {
	if doc == nil {
		return false
	}

	if doc.IsContact(m.contactTypes) {
		return doc.Muted == nil &&
			len(info.MutingHistory) == 0 &&
			muting.IsMutedInLineage(doc, info.InitialReplicationDate)
	}

	if doc.Type != record.TypeDataRecord {
		return false
	}
	if doc.SubjectID() == "" {
		return false
	}
	if !m.isMuteForm(doc.Form) && !m.isUnmuteForm(doc.Form) {
		return false
	}
	return doc.ValidSubmission()
}

// OnMatch implements Transition.
func (m *Muting) OnMatch(ctx context.Context, change record.Change) (bool, error) {
	doc := change.Doc

	if doc.Type == record.TypeDataRecord && m.rules.Len() > 0 {
		if failed := m.validate(doc); failed {
			// Validation failure is a recorded business error; the
			// contact is never loaded and the report is processed.
			return true, nil
		}
	}

	if doc.IsContact(m.contactTypes) {
		return m.muteFromLineage(ctx, doc)
	}
	return m.processReport(ctx, change)
}

// validate runs the configured rules, recording an error and an outgoing
// message per failure. Returns true when any rule failed.
func (m *Muting) validate(doc *record.Doc) bool {
	failures := m.rules.Validate(doc, messages.DefaultLocale)
	if len(failures) == 0 {
		return false
	}

	phone := messages.RecipientPhone(doc, messages.RecipientReportingUnit)
	for _, f := range failures {
		messages.AddError(doc, f.Property, f.Message)
		if phone != "" {
			messages.AddTask(doc, phone, f.Message)
		}
	}
	return true
}

// muteFromLineage propagates an ancestor's mute state onto a contact that
// replicated into a muted lineage: flag the contact, cascade to every
// registration sharing its subject ids, then record a history entry with no
// originating report. Each step's failure propagates unmodified; the runner
// retries the whole change.
func (m *Muting) muteFromLineage(ctx context.Context, doc *record.Doc) (bool, error) {
	at := m.now()
	muting.UpdateContact(doc, &at)

	if err := muting.UpdateRegistrations(ctx, m.store, doc.SubjectIDs(), &at); err != nil {
		return false, err
	}
	if err := muting.UpdateMutingHistory(ctx, m.store, doc, nil, true, at); err != nil {
		return false, err
	}
	return true, nil
}

// processReport handles a mute/unmute form submission.
func (m *Muting) processReport(ctx context.Context, change record.Change) (bool, error) {
	doc := change.Doc

	contact, err := muting.GetContact(ctx, m.store, doc)
	if store.IsNotFound(err) {
		// A missing contact is a business error on the report, not a
		// system failure: record it and report the change processed.
		m.respond(doc, EventContactNotFound, true)
		return true, nil
	}
	if err != nil {
		return false, err
	}

	mute := m.isMuteForm(doc.Form)
	if mute == (contact.Muted != nil) {
		if mute {
			m.respond(doc, EventAlreadyMuted, false)
		} else {
			m.respond(doc, EventAlreadyUnmuted, false)
		}
		return true, nil
	}

	reportID := change.ID
	if reportID == "" {
		reportID = doc.ID
	}
	if err := muting.UpdateMuteState(ctx, m.store, contact, mute, &reportID, m.now()); err != nil {
		// No message or error is recorded: the cycle aborts and the
		// feed consumer decides whether to retry.
		return false, err
	}

	if mute {
		m.respond(doc, EventMute, false)
	} else {
		m.respond(doc, EventUnmute, false)
	}
	return true, nil
}

// defaultErrorMessages backs events that must leave a structured error on
// the report even when no message template is configured for them.
var defaultErrorMessages = map[string]string{
	EventContactNotFound: "Contact was not found",
}

// respond appends the configured message for the event to the report's
// tasks, and optionally mirrors it into the report's errors. The outgoing
// message is template-dependent; the error entry is not — a report must
// never be marked processed without a trace of its business error.
func (m *Muting) respond(doc *record.Doc, eventType string, alsoError bool) {
	var content, recipient string
	if tmpl, ok := messages.Find(m.cfg.Messages, eventType); ok {
		content = tmpl.Content(messages.DefaultLocale)
		recipient = tmpl.Recipient
	}

	if alsoError {
		msg := content
		if msg == "" {
			msg = defaultErrorMessages[eventType]
		}
		messages.AddError(doc, eventType, msg)
	}
	if content == "" {
		return
	}
	if to := messages.RecipientPhone(doc, recipient); to != "" {
		messages.AddTask(doc, to, content)
	}
}

func (m *Muting) isMuteForm(form string) bool {
	return containsForm(m.cfg.MuteForms, form)
}

func (m *Muting) isUnmuteForm(form string) bool {
	return containsForm(m.cfg.UnmuteForms, form)
}

func containsForm(forms []string, form string) bool {
	if form == "" {
		return false
	}
	for _, f := range forms {
		if f == form {
			return true
		}
	}
	return false
}
