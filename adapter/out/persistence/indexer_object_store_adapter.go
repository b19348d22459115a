package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
)

var _ out.ObjectStore = (*ObjectStoreAdapter)(nil)

// =============================================================================
// ObjectStoreAdapter - transactional facade over the named object stores
// =============================================================================
//
// MetaDataOS, GroupDataOS and ElementDataOS map to three Postgres tables.
// Every port method is one transaction; multi-key reads and writes inside a
// method see and leave a consistent snapshot.

const (
	metaKeyIndexingEnabled = "mailIndexingEnabled"
	metaKeyExcludedListIDs = "excludedListIds"
)

type ObjectStoreAdapter struct {
	db *sqlx.DB
}

func NewObjectStoreAdapter(db *sqlx.DB) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{db: db}
}

// EnsureSchema creates the object-store tables.
func (a *ObjectStoreAdapter) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS meta_data (
			key   TEXT PRIMARY KEY,
			value JSONB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS group_data (
			group_id        TEXT PRIMARY KEY,
			index_timestamp BIGINT NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure object store schema: %w", err)
	}
	return nil
}

// =============================================================================
// MetaDataOS
// =============================================================================

// ReadEnabled reads mailIndexingEnabled and excludedListIds in one snapshot.
func (a *ObjectStoreAdapter) ReadEnabled(ctx context.Context) (bool, []domain.ListID, error) {
	tx, err := a.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin read: %w", err)
	}
	defer tx.Rollback()

	var enabled bool
	if err := a.readMeta(ctx, tx, metaKeyIndexingEnabled, &enabled); err != nil {
		return false, nil, err
	}

	var excluded []domain.ListID
	if err := a.readMeta(ctx, tx, metaKeyExcludedListIDs, &excluded); err != nil {
		return false, nil, err
	}

	return enabled, excluded, tx.Commit()
}

// WriteEnabled writes both meta keys atomically.
func (a *ObjectStoreAdapter) WriteEnabled(ctx context.Context, enabled bool, excludedListIDs []domain.ListID) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin write: %w", err)
	}
	defer tx.Rollback()

	if err := a.writeMeta(ctx, tx, metaKeyIndexingEnabled, enabled); err != nil {
		return err
	}
	if excludedListIDs == nil {
		excludedListIDs = []domain.ListID{}
	}
	if err := a.writeMeta(ctx, tx, metaKeyExcludedListIDs, excludedListIDs); err != nil {
		return err
	}

	return tx.Commit()
}

func (a *ObjectStoreAdapter) readMeta(ctx context.Context, tx *sqlx.Tx, key string, dest any) error {
	var raw []byte
	err := tx.GetContext(ctx, &raw, `SELECT value FROM meta_data WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode meta %s: %w", key, err)
	}
	return nil
}

func (a *ObjectStoreAdapter) writeMeta(ctx context.Context, tx *sqlx.Tx, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode meta %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta_data (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, raw); err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// GroupDataOS
// =============================================================================

type groupDataEntity struct {
	GroupID        string `db:"group_id"`
	IndexTimestamp int64  `db:"index_timestamp"`
}

// ReadGroup returns the group's cursor, or nil when the group has no row.
func (a *ObjectStoreAdapter) ReadGroup(ctx context.Context, groupID string) (*domain.GroupData, error) {
	var entity groupDataEntity
	err := a.db.GetContext(ctx, &entity, `SELECT group_id, index_timestamp FROM group_data WHERE group_id = $1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read group data: %w", err)
	}
	return &domain.GroupData{GroupID: entity.GroupID, IndexTimestamp: entity.IndexTimestamp}, nil
}

func (a *ObjectStoreAdapter) WriteGroup(ctx context.Context, data *domain.GroupData) error {
	if _, err := a.db.ExecContext(ctx, `
		INSERT INTO group_data (group_id, index_timestamp) VALUES ($1, $2)
		ON CONFLICT (group_id) DO UPDATE SET index_timestamp = EXCLUDED.index_timestamp
	`, data.GroupID, data.IndexTimestamp); err != nil {
		return fmt.Errorf("failed to write group data: %w", err)
	}
	return nil
}

// =============================================================================
// ElementDataOS
// =============================================================================
//
// The element_data table is written by the index core's WriteIndexUpdate;
// this adapter only serves the read-side check used by move handling.

type elementDataEntity struct {
	EncInstanceID string `db:"enc_instance_id"`
	EncListID     []byte `db:"enc_list_id"`
	OwnerGroup    string `db:"owner_group"`
}

// ReadElement returns the element row, or nil when the instance was never
// indexed.
func (a *ObjectStoreAdapter) ReadElement(ctx context.Context, encInstanceID string) (*domain.ElementData, error) {
	var entity elementDataEntity
	err := a.db.GetContext(ctx, &entity, `
		SELECT enc_instance_id, enc_list_id, owner_group FROM element_data WHERE enc_instance_id = $1
	`, encInstanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read element data: %w", err)
	}
	return &domain.ElementData{
		EncInstanceID: entity.EncInstanceID,
		EncListID:     entity.EncListID,
		OwnerGroup:    entity.OwnerGroup,
	}, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// WipeAll deletes all indexer-owned state in one transaction.
func (a *ObjectStoreAdapter) WipeAll(ctx context.Context) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin wipe: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE meta_data, group_data, element_data, search_index`); err != nil {
		return fmt.Errorf("failed to wipe object stores: %w", err)
	}

	return tx.Commit()
}
