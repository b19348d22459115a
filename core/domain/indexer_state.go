package domain

import "time"

// =============================================================================
// Index state reporting
// =============================================================================

// IndexState is the host-visible snapshot of the indexer, emitted on enable,
// per list completion, and on finish.
type IndexState struct {
	IndexingSupported     bool  `json:"indexing_supported"`
	MailIndexEnabled      bool  `json:"mail_index_enabled"`
	Progress              int   `json:"progress"` // 0-100; 0 means idle
	CurrentIndexTimestamp int64 `json:"current_index_timestamp"`
	IndexedMailCount      int64 `json:"indexed_mail_count"`
}

// EventType identifies a realtime event pushed to subscribed clients.
type EventType string

const (
	EventIndexState     EventType = "index.state"
	EventIndexStarted   EventType = "index.started"
	EventIndexCompleted EventType = "index.completed"
	EventIndexCancelled EventType = "index.cancelled"
	EventIndexFailed    EventType = "index.failed"
)

// RealtimeEvent is one server-push frame.
type RealtimeEvent struct {
	Type      EventType   `json:"type"`
	Seq       int64       `json:"seq"` // ordering guarantee for clients
	UserID    string      `json:"-"`   // delivery target, excluded from JSON
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
