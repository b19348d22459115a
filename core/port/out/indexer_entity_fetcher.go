package out

import (
	"context"

	"indexer_server/core/domain"
)

// EntityFetcher - range and by-id loads over the remote mail store.
//
// Errors surface as apperr codes: NOT_FOUND when a record vanished,
// NOT_AUTHORIZED when permission changed, EXTERNAL_ERROR for transport
// failures. Network timeouts are the fetcher's own responsibility and arrive
// here as EXTERNAL_ERROR, like other transport failures.
type EntityFetcher interface {
	// Aggregation roots
	LoadMailboxGroupRoot(ctx context.Context, groupID string) (*domain.MailboxGroupRoot, error)
	LoadMailbox(ctx context.Context, mailboxID string) (*domain.Mailbox, error)

	// Folder tree
	LoadFolders(ctx context.Context, folderListID domain.ListID) ([]*domain.MailFolder, error)

	// Mail records
	LoadMail(ctx context.Context, id domain.IDTuple) (*domain.Mail, error)
	LoadMailBody(ctx context.Context, bodyID string) (*domain.MailBody, error)
	LoadFile(ctx context.Context, ref domain.IDTuple) (*domain.File, error)

	// LoadMailRange returns up to count mails from listID with element IDs
	// strictly older than startID when reverse is true (descending walk).
	LoadMailRange(ctx context.Context, listID domain.ListID, startID domain.ElementID, count int, reverse bool) ([]*domain.Mail, error)
}
