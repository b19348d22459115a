package out

import (
	"context"

	"indexer_server/core/domain"
)

// ObjectStore - the transactional facade over the named object stores
// (MetaDataOS, GroupDataOS, ElementDataOS). Every method runs as one ACID
// transaction; a store transaction is scoped to a single read-or-commit and
// released on completion.
type ObjectStore interface {
	// ==========================================================================
	// MetaDataOS
	// ==========================================================================

	// ReadEnabled reads mailIndexingEnabled and excludedListIds together.
	ReadEnabled(ctx context.Context) (enabled bool, excludedListIDs []domain.ListID, err error)

	// WriteEnabled writes both atomically.
	WriteEnabled(ctx context.Context, enabled bool, excludedListIDs []domain.ListID) error

	// ==========================================================================
	// GroupDataOS
	// ==========================================================================

	// ReadGroup returns the group's progress cursor, or nil when the group
	// has no row yet.
	ReadGroup(ctx context.Context, groupID string) (*domain.GroupData, error)

	WriteGroup(ctx context.Context, data *domain.GroupData) error

	// ==========================================================================
	// ElementDataOS
	// ==========================================================================

	// ReadElement returns the element row for an encrypted instance ID, or
	// nil when the instance was never indexed.
	ReadElement(ctx context.Context, encInstanceID string) (*domain.ElementData, error)

	// ==========================================================================
	// Lifecycle
	// ==========================================================================

	// WipeAll deletes all indexer-owned state in one transaction. Used by
	// disable; the next enable rebuilds from scratch.
	WipeAll(ctx context.Context) error
}
