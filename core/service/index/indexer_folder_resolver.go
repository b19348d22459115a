package index

import (
	"context"
	"fmt"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
	"indexer_server/pkg/apperr"
)

// =============================================================================
// FolderResolver - mailbox folder tree -> indexable mail-list IDs
// =============================================================================

type FolderResolver struct {
	fetcher out.EntityFetcher
}

func NewFolderResolver(fetcher out.EntityFetcher) *FolderResolver {
	return &FolderResolver{fetcher: fetcher}
}

// LoadMailListIDs enumerates the mailbox's non-excluded mail-list IDs: the
// system folders in traversal order, each followed by its subfolder lists,
// recursively. Excluded lists are dropped at every level.
func (r *FolderResolver) LoadMailListIDs(ctx context.Context, mailbox *domain.Mailbox, excluded []domain.ListID) ([]domain.ListID, error) {
	return r.collectListIDs(ctx, mailbox.SystemFolders, excluded)
}

func (r *FolderResolver) collectListIDs(ctx context.Context, folderListID domain.ListID, excluded []domain.ListID) ([]domain.ListID, error) {
	if folderListID == "" {
		return nil, nil
	}

	folders, err := r.fetcher.LoadFolders(ctx, folderListID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folders of %s: %w", folderListID, err)
	}

	var listIDs []domain.ListID
	for _, folder := range folders {
		if !containsList(excluded, folder.Mails) {
			listIDs = append(listIDs, folder.Mails)
		}

		subIDs, err := r.collectListIDs(ctx, folder.SubFolders, excluded)
		if err != nil {
			return nil, err
		}
		listIDs = append(listIDs, subIDs...)
	}

	return listIDs, nil
}

// SpamFolder locates the unique system folder with the spam type for a mail
// group. Indexing preconditions are violated when it is absent.
func (r *FolderResolver) SpamFolder(ctx context.Context, groupID string) (*domain.MailFolder, error) {
	mailbox, err := r.LoadMailbox(ctx, groupID)
	if err != nil {
		return nil, err
	}

	folders, err := r.fetcher.LoadFolders(ctx, mailbox.SystemFolders)
	if err != nil {
		return nil, fmt.Errorf("failed to load system folders of group %s: %w", groupID, err)
	}

	for _, folder := range folders {
		if folder.FolderType == domain.FolderTypeSpam {
			return folder, nil
		}
	}

	return nil, apperr.PreconditionFailed(fmt.Sprintf("group %s has no spam folder", groupID))
}

// LoadMailbox resolves a mail group to its mailbox through the group root.
func (r *FolderResolver) LoadMailbox(ctx context.Context, groupID string) (*domain.Mailbox, error) {
	root, err := r.fetcher.LoadMailboxGroupRoot(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group root of %s: %w", groupID, err)
	}

	mailbox, err := r.fetcher.LoadMailbox(ctx, root.MailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mailbox %s: %w", root.MailboxID, err)
	}

	return mailbox, nil
}

func containsList(lists []domain.ListID, id domain.ListID) bool {
	for _, l := range lists {
		if l == id {
			return true
		}
	}
	return false
}
