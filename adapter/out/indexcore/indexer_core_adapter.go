// Package indexcore implements the low-level indexer: attribute
// tokenization, posting-list encryption, and storage-layer write batching.
package indexcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
	"indexer_server/pkg/crypto"
	"indexer_server/pkg/logger"
	"indexer_server/pkg/metrics"
)

// =============================================================================
// CoreAdapter - out.IndexCore over Postgres + AES-GCM
// =============================================================================

// CoreAdapter owns the database key and the posting store. Every key and
// posting payload is encrypted before it reaches a SQL parameter.
type CoreAdapter struct {
	db        *sqlx.DB
	encryptor *crypto.Encryptor
	timer     *metrics.IndexTimer
	supported bool

	// writeGate is the single-slot mutual exclusion between backfill and
	// event draining. Full channel = gate held.
	writeGate chan struct{}
}

// NewCoreAdapter creates the default index core. db may only be nil in tests
// that never commit an update.
func NewCoreAdapter(db *sqlx.DB, encryptor *crypto.Encryptor) *CoreAdapter {
	return &CoreAdapter{
		db:        db,
		encryptor: encryptor,
		timer:     metrics.NewIndexTimer(),
		supported: true,
		writeGate: make(chan struct{}, 1),
	}
}

// =============================================================================
// Tokenization
// =============================================================================

// CreateIndexEntries tokenizes one mail's attribute values into a token ->
// postings mapping. Value producers run lazily; the spent wall time counts as
// indexing time.
func (a *CoreAdapter) CreateIndexEntries(mail *domain.Mail, attrs []out.AttributeValue) map[string][]domain.SearchIndexEntry {
	start := time.Now()
	defer func() { a.timer.AddIndexing(time.Since(start)) }()

	id := mail.IDTuple()
	entries := make(map[string][]domain.SearchIndexEntry)

	for _, attr := range attrs {
		tokens := splitTokens(attr.Value())
		if len(tokens) == 0 {
			continue
		}

		// One posting per (token, attribute), carrying all positions.
		positions := make(map[string][]int)
		for pos, token := range tokens {
			positions[token] = append(positions[token], pos)
		}

		for token, pos := range positions {
			entries[token] = append(entries[token], domain.SearchIndexEntry{
				ID:        id,
				Attribute: attr.Attribute,
				Positions: pos,
			})
		}
	}

	return entries
}

// =============================================================================
// Encryption
// =============================================================================

// EncryptSearchIndexEntries encrypts a mail's postings under the database key
// and appends them, plus the mail's element-data row, to the update.
func (a *CoreAdapter) EncryptSearchIndexEntries(id domain.IDTuple, ownerGroup string, entries map[string][]domain.SearchIndexEntry, update *domain.IndexUpdate) {
	start := time.Now()
	defer func() { a.timer.AddIndexing(time.Since(start)) }()

	encInstanceID := a.EncInstanceID(id.ElementID)

	for token, postings := range entries {
		keyB64 := a.encryptor.IndexKeyB64(token)
		for _, posting := range postings {
			payload, err := json.Marshal(posting)
			if err != nil {
				logger.WithError(err).Error("[CoreAdapter.EncryptSearchIndexEntries] posting marshal failed")
				continue
			}
			ciphertext, err := a.encryptor.Encrypt(payload)
			if err != nil {
				logger.WithError(err).Error("[CoreAdapter.EncryptSearchIndexEntries] posting encryption failed")
				continue
			}
			update.Create = append(update.Create, domain.EncSearchIndexEntry{
				KeyB64:        keyB64,
				EncInstanceID: encInstanceID,
				Entry:         ciphertext,
			})
		}
	}

	encListID, err := a.encryptor.Encrypt([]byte(id.ListID))
	if err != nil {
		logger.WithError(err).Error("[CoreAdapter.EncryptSearchIndexEntries] list encryption failed")
		return
	}
	update.Element = append(update.Element, domain.ElementData{
		EncInstanceID: encInstanceID,
		EncListID:     encListID,
		OwnerGroup:    ownerGroup,
	})
}

// ProcessDeleted marks the instance's postings and element row for removal.
func (a *CoreAdapter) ProcessDeleted(ctx context.Context, event domain.EntityUpdate, update *domain.IndexUpdate) error {
	update.Delete = append(update.Delete, a.EncInstanceID(event.InstanceID))
	return nil
}

// EncInstanceID derives the deterministic encrypted store key for an
// instance ID.
func (a *CoreAdapter) EncInstanceID(id domain.ElementID) string {
	return a.encryptor.IndexKeyB64(strconv.FormatInt(id, 10))
}

// =============================================================================
// Persistence
// =============================================================================

// WriteIndexUpdate atomically persists one update: posting inserts, element
// upserts, list-pointer moves, and deletions in a single transaction.
func (a *CoreAdapter) WriteIndexUpdate(ctx context.Context, update *domain.IndexUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	start := time.Now()
	defer func() {
		a.timer.AddStorage(time.Since(start))
		a.timer.AddWrite()
	}()

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range update.Create {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_index (key_b64, enc_instance_id, group_id, entry)
			VALUES ($1, $2, $3, $4)
		`, entry.KeyB64, entry.EncInstanceID, update.GroupID, entry.Entry); err != nil {
			return fmt.Errorf("failed to insert posting: %w", err)
		}
	}

	for _, elem := range update.Element {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO element_data (enc_instance_id, enc_list_id, owner_group)
			VALUES ($1, $2, $3)
			ON CONFLICT (enc_instance_id)
			DO UPDATE SET enc_list_id = EXCLUDED.enc_list_id
		`, elem.EncInstanceID, elem.EncListID, elem.OwnerGroup); err != nil {
			return fmt.Errorf("failed to upsert element data: %w", err)
		}
	}

	for _, move := range update.Move {
		encListID, err := a.encryptor.Encrypt([]byte(move.NewListID))
		if err != nil {
			return fmt.Errorf("failed to encrypt moved list: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE element_data SET enc_list_id = $2 WHERE enc_instance_id = $1
		`, move.EncInstanceID, encListID); err != nil {
			return fmt.Errorf("failed to apply move: %w", err)
		}
	}

	for _, encInstanceID := range update.Delete {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM search_index WHERE enc_instance_id = $1
		`, encInstanceID); err != nil {
			return fmt.Errorf("failed to delete postings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM element_data WHERE enc_instance_id = $1
		`, encInstanceID); err != nil {
			return fmt.Errorf("failed to delete element data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index update: %w", err)
	}
	return nil
}

// =============================================================================
// Write gate
// =============================================================================

// AcquireWriteGate blocks until the single write slot is free or ctx ends.
func (a *CoreAdapter) AcquireWriteGate(ctx context.Context) error {
	select {
	case a.writeGate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseWriteGate reopens the gate; a queued drain proceeds.
func (a *CoreAdapter) ReleaseWriteGate() {
	select {
	case <-a.writeGate:
	default:
		// Release without acquire is a programming error; tolerate it
		// rather than blocking the pipeline.
		logger.Warn("[CoreAdapter.ReleaseWriteGate] released an open gate")
	}
}

// =============================================================================
// Counters / capability
// =============================================================================

func (a *CoreAdapter) AddDownloadingTime(d time.Duration) { a.timer.AddDownloading(d) }
func (a *CoreAdapter) AddMailCount(n int)                 { a.timer.AddMails(n) }

func (a *CoreAdapter) Stats() out.IndexCoreStats {
	s := a.timer.Snapshot()
	return out.IndexCoreStats{
		IndexingTime:    s.IndexingTime,
		DownloadingTime: s.DownloadingTime,
		StorageTime:     s.StorageTime,
		MailCount:       s.MailCount,
		WriteCount:      s.WriteCount,
	}
}

// PrintStatus logs the counter snapshot.
func (a *CoreAdapter) PrintStatus() {
	s := a.timer.Snapshot()
	logger.Info("[CoreAdapter] indexed %d mails in %d writes (indexing %v, downloading %v, storage %v)",
		s.MailCount, s.WriteCount, s.IndexingTime, s.DownloadingTime, s.StorageTime)
}

// IndexingSupported reports whether this runtime can index at all.
func (a *CoreAdapter) IndexingSupported() bool {
	return a.supported
}

// EnsureSchema creates the posting tables.
func (a *CoreAdapter) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS search_index (
			id              BIGSERIAL PRIMARY KEY,
			key_b64         TEXT  NOT NULL,
			enc_instance_id TEXT  NOT NULL,
			group_id        TEXT  NOT NULL,
			entry           BYTEA NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_search_index_key ON search_index (key_b64);
		CREATE INDEX IF NOT EXISTS idx_search_index_instance ON search_index (enc_instance_id);

		CREATE TABLE IF NOT EXISTS element_data (
			enc_instance_id TEXT PRIMARY KEY,
			enc_list_id     BYTEA NOT NULL,
			owner_group     TEXT  NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure index schema: %w", err)
	}
	return nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.IndexCore = (*CoreAdapter)(nil)

// WipePostings truncates the posting store. The disable flow does not call it:
// ObjectStore.WipeAll truncates the posting tables along with its own.
func (a *CoreAdapter) WipePostings(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, `TRUNCATE search_index, element_data`); err != nil {
		return fmt.Errorf("failed to wipe postings: %w", err)
	}
	a.timer.Reset()
	return nil
}
