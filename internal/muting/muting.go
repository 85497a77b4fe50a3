// Package muting owns mute-state bookkeeping: lineage checks, the cascade
// from a contact to its registrations, and mute-history entries. The muting
// transition orchestrates these; nothing here decides whether to mute.
//
// The cascade is best-effort across documents: the contact write, the
// registration writes and the history append are separate store operations.
// A crash between them can leave registrations behind the contact, which is
// why every step is idempotent and safe to replay.
package muting

import (
	"context"
	"fmt"
	"time"

	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/store"
)

// IsMutedInLineage walks the embedded parent chain and reports whether some
// ancestor became muted at or before the contact reached the store. With no
// replication date available any muted ancestor counts.
//
// The document's own mute state is deliberately ignored: the caller decides
// what a muted ancestor means for this document.
func IsMutedInLineage(doc *record.Doc, replicatedAt *time.Time) bool {
	if doc == nil {
		return false
	}
	for parent := doc.Parent; parent != nil; parent = parent.Parent {
		if parent.Muted == nil {
			continue
		}
		if replicatedAt == nil || !parent.Muted.After(*replicatedAt) {
			return true
		}
	}
	return false
}

// UpdateContact flips the in-memory mute flag on a contact. A nil timestamp
// clears it. The caller owns persisting the document.
func UpdateContact(doc *record.Doc, at *time.Time) {
	doc.Muted = at
}

// UpdateRegistrations cascades mute state to every registration referencing
// one of the subject ids. A nil timestamp unmutes. Registrations already in
// the target state are skipped, so replaying a cascade is a no-op.
func UpdateRegistrations(ctx context.Context, st store.Store, subjectIDs []string, at *time.Time) error {
	if len(subjectIDs) == 0 {
		return nil
	}

	registrations, err := st.Query(ctx, store.ViewRegistrationsBySubject, subjectIDs)
	if err != nil {
		return fmt.Errorf("load registrations for %v: %w", subjectIDs, err)
	}

	var changed []*record.Doc
	for _, reg := range registrations {
		if sameMuteState(reg.Muted, at) {
			continue
		}
		reg.Muted = at
		changed = append(changed, reg)
	}
	if len(changed) == 0 {
		return nil
	}

	if err := st.BulkUpdate(ctx, changed); err != nil {
		return fmt.Errorf("update registrations for %v: %w", subjectIDs, err)
	}
	return nil
}

// UpdateMutingHistory appends one mute/unmute decision to the contact's
// metadata sidecar. A nil reportID records a lineage-propagated decision
// with no originating report.
func UpdateMutingHistory(ctx context.Context, st store.Store, doc *record.Doc, reportID *string, muted bool, at time.Time) error {
	info, err := st.GetInfo(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("load info for %s: %w", doc.ID, err)
	}

	info.MutingHistory = append(info.MutingHistory, record.MutingHistoryEntry{
		Muted:    muted,
		Date:     at,
		ReportID: reportID,
	})

	if err := st.PutInfo(ctx, doc.ID, info); err != nil {
		return fmt.Errorf("update muting history for %s: %w", doc.ID, err)
	}
	return nil
}

// UpdateMuteState flips a contact's mute state and runs the full cascade:
// the contact is persisted first, then its registrations, then the history
// entry — so history only ever reflects a cascade that completed.
func UpdateMuteState(ctx context.Context, st store.Store, contact *record.Doc, muted bool, reportID *string, at time.Time) error {
	var stamp *time.Time
	if muted {
		stamp = &at
	}

	UpdateContact(contact, stamp)
	if err := st.Put(ctx, contact); err != nil {
		return fmt.Errorf("update contact %s: %w", contact.ID, err)
	}

	if err := UpdateRegistrations(ctx, st, contact.SubjectIDs(), stamp); err != nil {
		return err
	}

	return UpdateMutingHistory(ctx, st, contact, reportID, muted, at)
}

// GetContact resolves the contact a report refers to by subject id.
// A report without a subject, or a subject nothing matches, yields a
// NotFoundError; the transition records that as a business error.
func GetContact(ctx context.Context, st store.Store, report *record.Doc) (*record.Doc, error) {
	subject := report.SubjectID()
	if subject == "" {
		return nil, &store.NotFoundError{ID: report.ID}
	}

	contacts, err := st.Query(ctx, store.ViewContactsBySubject, []string{subject})
	if err != nil {
		return nil, fmt.Errorf("load contact %q: %w", subject, err)
	}
	if len(contacts) == 0 {
		return nil, &store.NotFoundError{ID: subject}
	}
	return contacts[0], nil
}

func sameMuteState(a, b *time.Time) bool {
	return (a == nil) == (b == nil)
}
