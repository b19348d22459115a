package out

import (
	"context"
	"time"

	"indexer_server/core/domain"
)

// AttributeValue pairs an attribute tag with a lazy producer for its text.
// Producers run only when the core actually tokenizes, so untouched
// attributes (e.g. an unreferenced body) cost nothing.
type AttributeValue struct {
	Attribute domain.AttributeID
	Value     func() string
}

// IndexCore - the low-level indexer: attribute tokenization, posting-list
// encryption, and storage-layer write batching. The mail indexer drives it;
// it owns the cryptography and the write gate.
type IndexCore interface {
	// CreateIndexEntries tokenizes the attribute values of one mail into a
	// token -> postings mapping. Pure CPU work; time is accumulated into the
	// indexing counter.
	CreateIndexEntries(mail *domain.Mail, attrs []AttributeValue) map[string][]domain.SearchIndexEntry

	// EncryptSearchIndexEntries encrypts a mail's entries under the database
	// key and appends them (plus the mail's element-data row) to the
	// in-flight update.
	EncryptSearchIndexEntries(id domain.IDTuple, ownerGroup string, entries map[string][]domain.SearchIndexEntry, update *domain.IndexUpdate)

	// ProcessDeleted marks the instance's postings and element row for
	// removal in the update.
	ProcessDeleted(ctx context.Context, event domain.EntityUpdate, update *domain.IndexUpdate) error

	// WriteIndexUpdate atomically persists one update.
	WriteIndexUpdate(ctx context.Context, update *domain.IndexUpdate) error

	// EncInstanceID derives the deterministic encrypted store key for a mail
	// instance ID (the ElementDataOS key).
	EncInstanceID(id domain.ElementID) string

	// ==========================================================================
	// Write gate - single-slot mutual exclusion between backfill and event
	// draining. AcquireWriteGate blocks until the slot is free or ctx ends;
	// ReleaseWriteGate reopens it and lets queued drains proceed.
	// ==========================================================================
	AcquireWriteGate(ctx context.Context) error
	ReleaseWriteGate()

	// ==========================================================================
	// Counters / capability
	// ==========================================================================
	AddDownloadingTime(d time.Duration)
	AddMailCount(n int)
	Stats() IndexCoreStats
	PrintStatus()
	IndexingSupported() bool
}

// IndexCoreStats is a point-in-time view of the core's counters.
type IndexCoreStats struct {
	IndexingTime    time.Duration `json:"indexing_time"`
	DownloadingTime time.Duration `json:"downloading_time"`
	StorageTime     time.Duration `json:"storage_time"`
	MailCount       int64         `json:"mail_count"`
	WriteCount      int64         `json:"write_count"`
}
