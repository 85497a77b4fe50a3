package record

import "time"

// Change is one delivered notification from the document store's feed.
// Changes are ephemeral: they are never persisted independently of the doc.
type Change struct {
	// ID is the changed document's id.
	ID string `json:"id"`

	// Seq is the feed sequence number; strictly increasing per store.
	Seq int64 `json:"seq"`

	// Doc is the document at the revision the change was emitted for.
	Doc *Doc `json:"doc"`

	// Info carries store-computed metadata not derivable from Doc alone.
	Info ChangeInfo `json:"info"`
}

// ChangeInfo is the sidecar metadata the store tracks per document.
type ChangeInfo struct {
	// InitialReplicationDate is when the document first reached the store.
	// Lineage mute checks compare ancestor mute timestamps against it.
	InitialReplicationDate *time.Time `json:"initial_replication_date,omitempty"`

	// MutingHistory lists every mute/unmute decision already taken for
	// this document. A contact with history is never re-matched by the
	// lineage branch of the muting filter.
	MutingHistory []MutingHistoryEntry `json:"muting_history,omitempty"`
}
