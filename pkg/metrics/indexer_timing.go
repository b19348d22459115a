// Package metrics provides timing counters for the indexing pipeline.
package metrics

import (
	"sync/atomic"
	"time"
)

// =============================================================================
// Indexing Timing Counters
// =============================================================================

// IndexTimer accumulates the time spent in the two halves of the indexing
// pipeline (CPU-side tokenization vs. network-side entity downloads) and the
// number of mails pushed through it. All counters are atomic; the timer is
// shared between the backfill engine and the event applier.
type IndexTimer struct {
	indexingNanos    atomic.Int64
	downloadingNanos atomic.Int64
	storageNanos     atomic.Int64
	mailCount        atomic.Int64
	writeCount       atomic.Int64
}

// NewIndexTimer creates a zeroed timer.
func NewIndexTimer() *IndexTimer {
	return &IndexTimer{}
}

// AddIndexing accumulates tokenization/encryption time.
func (t *IndexTimer) AddIndexing(d time.Duration) {
	t.indexingNanos.Add(int64(d))
}

// AddDownloading accumulates entity download time.
func (t *IndexTimer) AddDownloading(d time.Duration) {
	t.downloadingNanos.Add(int64(d))
}

// AddStorage accumulates index write time.
func (t *IndexTimer) AddStorage(d time.Duration) {
	t.storageNanos.Add(int64(d))
}

// AddMails adds to the processed-mail counter.
func (t *IndexTimer) AddMails(n int) {
	t.mailCount.Add(int64(n))
}

// AddWrite counts one committed index update.
func (t *IndexTimer) AddWrite() {
	t.writeCount.Add(1)
}

// TimeIndexing runs fn and accounts its wall time as indexing time.
func (t *IndexTimer) TimeIndexing(fn func()) {
	start := time.Now()
	fn()
	t.AddIndexing(time.Since(start))
}

// Snapshot returns the current counter values.
func (t *IndexTimer) Snapshot() IndexTimerStats {
	return IndexTimerStats{
		IndexingTime:    time.Duration(t.indexingNanos.Load()),
		DownloadingTime: time.Duration(t.downloadingNanos.Load()),
		StorageTime:     time.Duration(t.storageNanos.Load()),
		MailCount:       t.mailCount.Load(),
		WriteCount:      t.writeCount.Load(),
	}
}

// Reset zeroes all counters.
func (t *IndexTimer) Reset() {
	t.indexingNanos.Store(0)
	t.downloadingNanos.Store(0)
	t.storageNanos.Store(0)
	t.mailCount.Store(0)
	t.writeCount.Store(0)
}

// IndexTimerStats holds a point-in-time view of the counters.
type IndexTimerStats struct {
	IndexingTime    time.Duration `json:"indexing_time"`
	DownloadingTime time.Duration `json:"downloading_time"`
	StorageTime     time.Duration `json:"storage_time"`
	MailCount       int64         `json:"mail_count"`
	WriteCount      int64         `json:"write_count"`
}
