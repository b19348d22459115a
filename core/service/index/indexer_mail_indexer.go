package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
	"indexer_server/pkg/apperr"
	"indexer_server/pkg/generatedid"
	"indexer_server/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// MailIndexer - incremental encrypted full-text index of the mail store
// =============================================================================

const (
	// InitialMailIndexIntervalDays is the default cutoff horizon for the
	// initial backfill kicked off by Enable.
	InitialMailIndexIntervalDays = 28

	// MailIndexBatchSize is the page size of the historical range walk.
	MailIndexBatchSize = 500

	// MailFetchConcurrency bounds in-flight body/attachment fetches per page.
	MailFetchConcurrency = 5
)

// MailIndexer implements in.MailIndexService; the compliance check lives in
// the bootstrap wiring to keep this package free of the inbound port import.
type MailIndexer struct {
	fetcher   out.EntityFetcher
	store     out.ObjectStore
	core      out.IndexCore
	bodies    out.BodyCache    // optional
	realtime  out.RealtimePort // optional
	resolver  *FolderResolver
	tokenizer *MailTokenizer

	// Lifecycle state. All durable state lives in the object store; this is
	// the single long-lived owner of the in-memory flags.
	mu              sync.Mutex
	enabled         bool
	user            *domain.User
	excludedListIDs []domain.ListID

	currentIndexTimestamp atomic.Int64
	progress              atomic.Int32
	cancelled             atomic.Bool

	// backfillMu serializes backfills; conflicting triggers wait their turn.
	backfillMu      sync.Mutex
	backfillRunning atomic.Bool
}

func NewMailIndexer(
	fetcher out.EntityFetcher,
	store out.ObjectStore,
	core out.IndexCore,
	bodies out.BodyCache,
	realtime out.RealtimePort,
) *MailIndexer {
	return &MailIndexer{
		fetcher:   fetcher,
		store:     store,
		core:      core,
		bodies:    bodies,
		realtime:  realtime,
		resolver:  NewFolderResolver(fetcher),
		tokenizer: NewMailTokenizer(core),
	}
}

// =============================================================================
// Lifecycle (C7)
// =============================================================================

// Init restores the in-memory flags from the object store after a restart.
func (s *MailIndexer) Init(ctx context.Context, user *domain.User) error {
	enabled, excluded, err := s.store.ReadEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index metadata: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.enabled = enabled
	s.excludedListIDs = excluded
	s.mu.Unlock()

	if enabled {
		if err := s.refreshCurrentIndexTimestamp(ctx, user); err != nil {
			return err
		}
	}

	logger.Info("[MailIndexer.Init] enabled=%v, excluded=%d lists", enabled, len(excluded))
	return nil
}

// Enable turns indexing on for the user. Already-enabled calls only reload
// the excluded-list set. The initial backfill is kicked off without awaiting.
func (s *MailIndexer) Enable(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	alreadyEnabled := s.enabled
	s.mu.Unlock()

	if alreadyEnabled {
		_, excluded, err := s.store.ReadEnabled(ctx)
		if err != nil {
			return fmt.Errorf("failed to reload excluded lists: %w", err)
		}
		s.mu.Lock()
		s.user = user
		s.excludedListIDs = excluded
		s.mu.Unlock()
		return nil
	}

	// Exclude every group's spam list before the first posting is written.
	var excluded []domain.ListID
	for _, groupID := range user.MailGroupIDs() {
		spam, err := s.resolver.SpamFolder(ctx, groupID)
		if err != nil {
			return fmt.Errorf("enable failed for group %s: %w", groupID, err)
		}
		excluded = append(excluded, spam.Mails)
	}

	if err := s.store.WriteEnabled(ctx, true, excluded); err != nil {
		return fmt.Errorf("failed to persist index metadata: %w", err)
	}

	s.mu.Lock()
	s.enabled = true
	s.user = user
	s.excludedListIDs = excluded
	s.mu.Unlock()

	endTs := generatedid.StartOfDayShifted(time.Now(), -InitialMailIndexIntervalDays).UnixMilli()
	logger.Info("[MailIndexer.Enable] user=%s, groups=%d, backfill to %d", user.ID, len(user.Memberships), endTs)

	go func() {
		if err := s.IndexMailboxes(context.Background(), user, endTs); err != nil {
			logger.WithError(err).Error("[MailIndexer.Enable] initial backfill failed")
		}
	}()

	return nil
}

// Disable cancels any running backfill, clears in-memory state, and deletes
// all indexer-owned storage. The next enable rebuilds from scratch.
func (s *MailIndexer) Disable(ctx context.Context) error {
	s.Cancel()

	// Wait out a running backfill so the wipe does not race its commits.
	s.backfillMu.Lock()
	defer s.backfillMu.Unlock()

	if err := s.store.WipeAll(ctx); err != nil {
		return fmt.Errorf("failed to wipe index storage: %w", err)
	}
	if s.bodies != nil {
		if err := s.bodies.Purge(ctx); err != nil {
			logger.WithError(err).Warn("[MailIndexer.Disable] body cache purge failed")
		}
	}

	s.mu.Lock()
	s.enabled = false
	s.excludedListIDs = nil
	s.mu.Unlock()
	s.currentIndexTimestamp.Store(domain.NothingIndexed)
	s.progress.Store(0)

	logger.Info("[MailIndexer.Disable] index deleted")
	return nil
}

// Cancel requests cooperative cancellation. The backfill observes the flag at
// its checkpoints and unwinds with the cancellation sentinel.
func (s *MailIndexer) Cancel() {
	s.cancelled.Store(true)
}

// BackfillRunning reports whether a backfill currently holds the run slot.
// A failed run drops this before its error surfaces, so observers never see
// a permanently rejected state.
func (s *MailIndexer) BackfillRunning() bool {
	return s.backfillRunning.Load()
}

// State returns the host-visible snapshot.
func (s *MailIndexer) State(ctx context.Context) domain.IndexState {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()

	return domain.IndexState{
		IndexingSupported:     s.core.IndexingSupported(),
		MailIndexEnabled:      enabled,
		Progress:              int(s.progress.Load()),
		CurrentIndexTimestamp: s.currentIndexTimestamp.Load(),
		IndexedMailCount:      s.core.Stats().MailCount,
	}
}

// =============================================================================
// Backfill engine (C5)
// =============================================================================

// IndexMailboxes brings every mail group's indexTimestamp at least as old as
// endTimestamp. Groups and lists are walked sequentially; only the per-mail
// body/attachment fetches fan out.
func (s *MailIndexer) IndexMailboxes(ctx context.Context, user *domain.User, endTimestamp int64) (err error) {
	s.mu.Lock()
	enabled := s.enabled
	excluded := s.excludedListIDs
	s.mu.Unlock()

	if !enabled {
		return nil
	}

	s.backfillMu.Lock()
	defer s.backfillMu.Unlock()

	s.cancelled.Store(false)
	s.backfillRunning.Store(true)
	s.emitProgress(ctx, user, 1)

	// Block event-driven drains from interleaving with backfill writes.
	if err := s.core.AcquireWriteGate(ctx); err != nil {
		s.backfillRunning.Store(false)
		return err
	}

	defer func() {
		// Every path: reopen the gate, recompute the visible horizon, emit
		// the terminal progress.
		s.core.ReleaseWriteGate()
		if refreshErr := s.refreshCurrentIndexTimestamp(context.WithoutCancel(ctx), user); refreshErr != nil {
			logger.WithError(refreshErr).Warn("[MailIndexer.IndexMailboxes] failed to refresh index timestamp")
		}
		s.emitProgress(ctx, user, 0)

		if apperr.IsCancelled(err) {
			// Graceful stop: the lifecycle resolves cleanly and the cursor
			// stays where the last clean group completion left it.
			logger.Info("[MailIndexer.IndexMailboxes] cancelled")
			err = nil
			return
		}
		if err != nil {
			// Drop the in-flight run marker so later observers do not see a
			// rejected state, then let the error reach the job layer.
			s.backfillRunning.Store(false)
		}
	}()
	defer s.backfillRunning.Store(false)

	start := time.Now()
	logger.Info("[MailIndexer.IndexMailboxes] user=%s, endTimestamp=%d", user.ID, endTimestamp)

	for _, groupID := range user.MailGroupIDs() {
		if err := s.indexMailboxGroup(ctx, groupID, endTimestamp, excluded, user); err != nil {
			return err
		}
	}

	s.core.PrintStatus()
	logger.WithDuration(time.Since(start)).Info("[MailIndexer.IndexMailboxes] completed")
	return nil
}

func (s *MailIndexer) indexMailboxGroup(ctx context.Context, groupID string, endTimestamp int64, excluded []domain.ListID, user *domain.User) error {
	mailbox, err := s.resolver.LoadMailbox(ctx, groupID)
	if err != nil {
		return err
	}

	listIDs, err := s.resolver.LoadMailListIDs(ctx, mailbox, excluded)
	if err != nil {
		return err
	}

	groupData, err := s.store.ReadGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to read group data of %s: %w", groupID, err)
	}
	if groupData == nil {
		groupData = &domain.GroupData{GroupID: groupID, IndexTimestamp: domain.NothingIndexed}
	}

	// A group whose cursor already reaches the requested horizon is left
	// untouched: the cursor only ever moves downward.
	if groupData.IndexTimestamp == domain.FullIndexed ||
		(groupData.IndexTimestamp >= 2 && groupData.IndexTimestamp <= endTimestamp) {
		logger.Debug("[MailIndexer.indexMailboxGroup] group %s already indexed past %d", groupID, endTimestamp)
		return nil
	}

	var startID domain.ElementID
	if groupData.IndexTimestamp == domain.NothingIndexed {
		startID = generatedid.MaxID
	} else {
		startID = generatedid.TimestampToID(groupData.IndexTimestamp)
	}
	endID := generatedid.TimestampToID(endTimestamp)

	fullyDrained := true
	for i, listID := range listIDs {
		drained, err := s.indexMailList(ctx, groupID, listID, startID, endID, user)
		if err != nil {
			return err
		}
		if !drained {
			fullyDrained = false
		}
		if i+1 < len(listIDs) {
			// The final list completion is covered by the terminal emission.
			s.emitListProgress(ctx, user, i+1, len(listIDs))
		}
	}

	newTimestamp := endTimestamp
	if fullyDrained {
		newTimestamp = domain.FullIndexed
	}
	if err := s.store.WriteGroup(ctx, &domain.GroupData{GroupID: groupID, IndexTimestamp: newTimestamp}); err != nil {
		return fmt.Errorf("failed to write group data of %s: %w", groupID, err)
	}

	logger.Info("[MailIndexer.indexMailboxGroup] group=%s, lists=%d, indexTimestamp=%d", groupID, len(listIDs), newTimestamp)
	return nil
}

// indexMailList walks one mail list backwards from startID in pages of
// MailIndexBatchSize and commits one index update per page. It returns
// fullyDrained=true iff the list ran out of mail before reaching endID.
func (s *MailIndexer) indexMailList(ctx context.Context, groupID string, listID domain.ListID, startID, endID domain.ElementID, user *domain.User) (bool, error) {
	if s.cancelled.Load() {
		return false, apperr.ErrCancelled
	}

	downloadStart := time.Now()
	mails, err := s.fetcher.LoadMailRange(ctx, listID, startID, MailIndexBatchSize, true)
	if err != nil {
		return false, fmt.Errorf("failed to load mail range of %s: %w", listID, err)
	}

	// Keep only mail newer than the cutoff.
	filtered := make([]*domain.Mail, 0, len(mails))
	for _, m := range mails {
		if m.ID > endID {
			filtered = append(filtered, m)
		}
	}

	triples, err := s.fetchMailDetails(ctx, filtered)
	if err != nil {
		return false, err
	}
	s.core.AddDownloadingTime(time.Since(downloadStart))
	s.core.AddMailCount(len(triples))

	update := domain.NewIndexUpdate(groupID)
	for _, triple := range triples {
		entries := s.tokenizer.CreateMailEntries(triple.mail, triple.body, triple.files)
		s.core.EncryptSearchIndexEntries(triple.mail.IDTuple(), triple.mail.OwnerGroup, entries, update)
	}

	if err := s.core.WriteIndexUpdate(ctx, update); err != nil {
		return false, fmt.Errorf("failed to write index update for %s: %w", listID, err)
	}

	if len(mails) == MailIndexBatchSize {
		// The raw page was full, so older mail may remain. Continue from the
		// last raw ID - not the last filtered one - so an all-excluded page
		// cannot stall the walk.
		return s.indexMailList(ctx, groupID, listID, mails[len(mails)-1].ID, endID, user)
	}

	return len(filtered) == len(mails), nil
}

// mailTriple is one assembled (mail, body, attachments) unit.
type mailTriple struct {
	mail  *domain.Mail
	body  *domain.MailBody
	files []*domain.File
}

// fetchMailDetails loads bodies and attachment names for a page, at most
// MailFetchConcurrency fetches in flight. Order of the result follows the
// input. Mails whose details vanished are skipped with a log line.
func (s *MailIndexer) fetchMailDetails(ctx context.Context, mails []*domain.Mail) ([]mailTriple, error) {
	if len(mails) == 0 {
		return nil, nil
	}

	slots := make([]*mailTriple, len(mails))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MailFetchConcurrency)

	interrupted := false
	for i, mail := range mails {
		if s.cancelled.Load() {
			// Stop submitting; in-flight fetches drain below.
			interrupted = true
			break
		}

		i, mail := i, mail
		g.Go(func() error {
			body, files, err := s.loadMailDetails(gctx, mail)
			if err != nil {
				if apperr.IsNotFound(err) || apperr.IsNotAuthorized(err) {
					logger.Warn("[MailIndexer.fetchMailDetails] skipping mail %d/%s: %v", mail.ID, mail.ListID, err)
					return nil
				}
				return err
			}
			slots[i] = &mailTriple{mail: mail, body: body, files: files}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if interrupted {
		return nil, apperr.ErrCancelled
	}

	triples := make([]mailTriple, 0, len(mails))
	for _, t := range slots {
		if t != nil {
			triples = append(triples, *t)
		}
	}
	return triples, nil
}

// loadMailDetails resolves a mail's body (through the cache when present)
// and its attachment names.
func (s *MailIndexer) loadMailDetails(ctx context.Context, mail *domain.Mail) (*domain.MailBody, []*domain.File, error) {
	var body *domain.MailBody
	if mail.BodyID != "" {
		if s.bodies != nil {
			cached, err := s.bodies.GetBody(ctx, mail.BodyID)
			if err != nil {
				logger.WithError(err).Debug("[MailIndexer.loadMailDetails] body cache read failed")
			} else {
				body = cached
			}
		}
		if body == nil {
			loaded, err := s.fetcher.LoadMailBody(ctx, mail.BodyID)
			if err != nil {
				return nil, nil, err
			}
			body = loaded
			if s.bodies != nil {
				if err := s.bodies.SaveBody(ctx, body); err != nil {
					logger.WithError(err).Debug("[MailIndexer.loadMailDetails] body cache write failed")
				}
			}
		}
	}

	files := make([]*domain.File, 0, len(mail.Attachments))
	for _, ref := range mail.Attachments {
		file, err := s.fetcher.LoadFile(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, file)
	}

	return body, files, nil
}

// =============================================================================
// Event applier (C6)
// =============================================================================

// ProcessEntityEvents translates one ordered entity-update batch into index
// mutations and commits them as a single update. A no-op while indexing is
// disabled.
func (s *MailIndexer) ProcessEntityEvents(ctx context.Context, batch *domain.EventBatch) error {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()

	if !enabled {
		return nil
	}

	// Event drains wait while a backfill holds the gate.
	if err := s.core.AcquireWriteGate(ctx); err != nil {
		return err
	}
	defer s.core.ReleaseWriteGate()

	update := domain.NewIndexUpdate(batch.GroupID)

	for _, event := range batch.Events {
		switch event.Operation {
		case domain.OpCreate:
			if batch.HasOperation(domain.OpDelete, event.InstanceID) {
				// CREATE+DELETE on one instance is a folder move.
				if err := s.processMove(ctx, event, update); err != nil {
					return err
				}
			} else if err := s.indexNewMail(ctx, event, update); err != nil {
				return err
			}

		case domain.OpUpdate:
			if err := s.processUpdate(ctx, event, update); err != nil {
				return err
			}

		case domain.OpDelete:
			if !batch.HasOperation(domain.OpCreate, event.InstanceID) {
				// The create half of a move handles the move instead.
				if err := s.core.ProcessDeleted(ctx, event, update); err != nil {
					return err
				}
			}
		}
	}

	if err := s.core.WriteIndexUpdate(ctx, update); err != nil {
		return fmt.Errorf("failed to write index update for batch %s: %w", batch.BatchID, err)
	}

	logger.Debug("[MailIndexer.ProcessEntityEvents] batch=%s, events=%d", batch.BatchID, len(batch.Events))
	return nil
}

// indexNewMail loads and tokenizes a newly created mail into the update.
// Vanished or unauthorized records are dropped with a log line.
func (s *MailIndexer) indexNewMail(ctx context.Context, event domain.EntityUpdate, update *domain.IndexUpdate) error {
	mail, err := s.fetcher.LoadMail(ctx, domain.IDTuple{ListID: event.ListID, ElementID: event.InstanceID})
	if err != nil {
		if apperr.IsNotFound(err) || apperr.IsNotAuthorized(err) {
			logger.Info("[MailIndexer.indexNewMail] mail %d/%s gone: %v", event.InstanceID, event.ListID, err)
			return nil
		}
		return err
	}

	if s.isExcluded(mail.ListID) {
		return nil
	}

	downloadStart := time.Now()
	body, files, err := s.loadMailDetails(ctx, mail)
	if err != nil {
		if apperr.IsNotFound(err) || apperr.IsNotAuthorized(err) {
			logger.Info("[MailIndexer.indexNewMail] details of mail %d gone: %v", event.InstanceID, err)
			return nil
		}
		return err
	}
	s.core.AddDownloadingTime(time.Since(downloadStart))
	s.core.AddMailCount(1)

	entries := s.tokenizer.CreateMailEntries(mail, body, files)
	s.core.EncryptSearchIndexEntries(mail.IDTuple(), mail.OwnerGroup, entries, update)
	return nil
}

// processUpdate rewrites a draft in place: drop the old postings and re-index
// the current version into the same update. Non-draft updates are ignored;
// their indexed attributes are immutable.
func (s *MailIndexer) processUpdate(ctx context.Context, event domain.EntityUpdate, update *domain.IndexUpdate) error {
	mail, err := s.fetcher.LoadMail(ctx, domain.IDTuple{ListID: event.ListID, ElementID: event.InstanceID})
	if err != nil {
		if apperr.IsNotFound(err) {
			logger.Info("[MailIndexer.processUpdate] mail %d/%s gone", event.InstanceID, event.ListID)
			return nil
		}
		return err
	}

	if mail.State != domain.MailStateDraft {
		return nil
	}

	if err := s.core.ProcessDeleted(ctx, event, update); err != nil {
		return err
	}
	return s.indexNewMail(ctx, event, update)
}

// processMove handles a CREATE whose DELETE half is in the same batch.
func (s *MailIndexer) processMove(ctx context.Context, event domain.EntityUpdate, update *domain.IndexUpdate) error {
	encID := s.core.EncInstanceID(event.InstanceID)

	elem, err := s.store.ReadElement(ctx, encID)
	if err != nil {
		return fmt.Errorf("failed to read element data: %w", err)
	}

	if elem == nil {
		// Moved before it was ever indexed; index it fresh in its new list.
		return s.indexNewMail(ctx, event, update)
	}

	if s.isExcluded(event.ListID) {
		// Moved into an excluded list (spam): the postings go away.
		return s.core.ProcessDeleted(ctx, event, update)
	}

	// Postings stay; only the list pointer updates.
	update.Move = append(update.Move, domain.MoveRef{EncInstanceID: encID, NewListID: event.ListID})
	return nil
}

// =============================================================================
// Progress / helpers
// =============================================================================

func (s *MailIndexer) isExcluded(listID domain.ListID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsList(s.excludedListIDs, listID)
}

// refreshCurrentIndexTimestamp recomputes the visible horizon as the maximum
// over the per-group cursors: the most-lagging group bounds progress.
func (s *MailIndexer) refreshCurrentIndexTimestamp(ctx context.Context, user *domain.User) error {
	current := domain.NothingIndexed
	for _, groupID := range user.MailGroupIDs() {
		groupData, err := s.store.ReadGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to read group data of %s: %w", groupID, err)
		}
		ts := domain.NothingIndexed
		if groupData != nil {
			ts = groupData.IndexTimestamp
		}
		if ts > current {
			current = ts
		}
	}
	s.currentIndexTimestamp.Store(current)
	return nil
}

func (s *MailIndexer) emitProgress(ctx context.Context, user *domain.User, progress int) {
	s.progress.Store(int32(progress))
	s.pushState(ctx, user)
}

// emitListProgress maps per-list completion onto 1..99.
func (s *MailIndexer) emitListProgress(ctx context.Context, user *domain.User, done, total int) {
	if total == 0 {
		return
	}
	p := 1 + (98*done)/total
	if p > 99 {
		p = 99
	}
	s.progress.Store(int32(p))
	s.pushState(ctx, user)
}

func (s *MailIndexer) pushState(ctx context.Context, user *domain.User) {
	if s.realtime == nil || user == nil {
		return
	}
	state := s.State(ctx)
	if err := s.realtime.Push(ctx, user.ID, &domain.RealtimeEvent{
		Type:      domain.EventIndexState,
		Timestamp: time.Now(),
		Data:      &state,
	}); err != nil {
		logger.WithError(err).Debug("[MailIndexer.pushState] push failed")
	}
}
