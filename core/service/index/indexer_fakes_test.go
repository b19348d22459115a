package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
	"indexer_server/pkg/apperr"
)

// =============================================================================
// In-memory fakes of the outbound ports
// =============================================================================

type fakeFetcher struct {
	mu       sync.Mutex
	roots    map[string]*domain.MailboxGroupRoot
	boxes    map[string]*domain.Mailbox
	folders  map[domain.ListID][]*domain.MailFolder
	mails    map[domain.ListID][]*domain.Mail
	bodies   map[string]*domain.MailBody
	files    map[domain.IDTuple]*domain.File
	rangeLog []domain.ElementID // startID of every range load
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		roots:   make(map[string]*domain.MailboxGroupRoot),
		boxes:   make(map[string]*domain.Mailbox),
		folders: make(map[domain.ListID][]*domain.MailFolder),
		mails:   make(map[domain.ListID][]*domain.Mail),
		bodies:  make(map[string]*domain.MailBody),
		files:   make(map[domain.IDTuple]*domain.File),
	}
}

// addGroup wires a group with an inbox and a spam folder and returns their
// mail-list IDs.
func (f *fakeFetcher) addGroup(groupID string) (inbox, spam domain.ListID) {
	mailboxID := "mailbox-" + groupID
	systemFolders := domain.ListID("folders-" + groupID)
	inbox = domain.ListID("inbox-" + groupID)
	spam = domain.ListID("spam-" + groupID)

	f.roots[groupID] = &domain.MailboxGroupRoot{GroupID: groupID, MailboxID: mailboxID}
	f.boxes[mailboxID] = &domain.Mailbox{ID: mailboxID, SystemFolders: systemFolders}
	f.folders[systemFolders] = []*domain.MailFolder{
		{ID: "f-inbox-" + groupID, FolderType: domain.FolderTypeInbox, Mails: inbox},
		{ID: "f-spam-" + groupID, FolderType: domain.FolderTypeSpam, Mails: spam},
	}
	f.mails[inbox] = nil
	f.mails[spam] = nil
	return inbox, spam
}

func (f *fakeFetcher) addMail(mail *domain.Mail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mails[mail.ListID] = append(f.mails[mail.ListID], mail)
	if mail.BodyID != "" {
		if _, ok := f.bodies[mail.BodyID]; !ok {
			f.bodies[mail.BodyID] = &domain.MailBody{ID: mail.BodyID, Text: "body of " + strconv.FormatInt(mail.ID, 10)}
		}
	}
}

func (f *fakeFetcher) LoadMailboxGroupRoot(ctx context.Context, groupID string) (*domain.MailboxGroupRoot, error) {
	if root, ok := f.roots[groupID]; ok {
		return root, nil
	}
	return nil, apperr.NotFound("group root")
}

func (f *fakeFetcher) LoadMailbox(ctx context.Context, mailboxID string) (*domain.Mailbox, error) {
	if box, ok := f.boxes[mailboxID]; ok {
		return box, nil
	}
	return nil, apperr.NotFound("mailbox")
}

func (f *fakeFetcher) LoadFolders(ctx context.Context, folderListID domain.ListID) ([]*domain.MailFolder, error) {
	return f.folders[folderListID], nil
}

func (f *fakeFetcher) LoadMail(ctx context.Context, id domain.IDTuple) (*domain.Mail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mails[id.ListID] {
		if m.ID == id.ElementID {
			return m, nil
		}
	}
	return nil, apperr.NotFound("mail")
}

func (f *fakeFetcher) LoadMailBody(ctx context.Context, bodyID string) (*domain.MailBody, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if body, ok := f.bodies[bodyID]; ok {
		return body, nil
	}
	return nil, apperr.NotFound("mail body")
}

func (f *fakeFetcher) LoadFile(ctx context.Context, ref domain.IDTuple) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[ref]; ok {
		return file, nil
	}
	return nil, apperr.NotFound("file")
}

func (f *fakeFetcher) LoadMailRange(ctx context.Context, listID domain.ListID, startID domain.ElementID, count int, reverse bool) ([]*domain.Mail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeLog = append(f.rangeLog, startID)

	mails := make([]*domain.Mail, 0, len(f.mails[listID]))
	for _, m := range f.mails[listID] {
		if m.ID < startID {
			mails = append(mails, m)
		}
	}
	sort.Slice(mails, func(i, j int) bool { return mails[i].ID > mails[j].ID })
	if len(mails) > count {
		mails = mails[:count]
	}
	return mails, nil
}

func (f *fakeFetcher) rangeLoads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rangeLog)
}

// =============================================================================

type fakeStore struct {
	mu         sync.Mutex
	enabled    bool
	excluded   []domain.ListID
	groups     map[string]*domain.GroupData
	elements   map[string]*domain.ElementData
	groupHist  map[string][]int64 // every written cursor per group
	wipedCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:    make(map[string]*domain.GroupData),
		elements:  make(map[string]*domain.ElementData),
		groupHist: make(map[string][]int64),
	}
}

func (s *fakeStore) ReadEnabled(ctx context.Context) (bool, []domain.ListID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, append([]domain.ListID(nil), s.excluded...), nil
}

func (s *fakeStore) WriteEnabled(ctx context.Context, enabled bool, excluded []domain.ListID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.excluded = append([]domain.ListID(nil), excluded...)
	return nil
}

func (s *fakeStore) ReadGroup(ctx context.Context, groupID string) (*domain.GroupData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[groupID]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) WriteGroup(ctx context.Context, data *domain.GroupData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *data
	s.groups[data.GroupID] = &cp
	s.groupHist[data.GroupID] = append(s.groupHist[data.GroupID], data.IndexTimestamp)
	return nil
}

func (s *fakeStore) ReadElement(ctx context.Context, encInstanceID string) (*domain.ElementData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.elements[encInstanceID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) WipeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.excluded = nil
	s.groups = make(map[string]*domain.GroupData)
	s.elements = make(map[string]*domain.ElementData)
	s.wipedCount++
	return nil
}

// =============================================================================

// fakeCore tokenizes on whitespace and "encrypts" with reversible markers so
// assertions can read committed updates. Committed element rows and deletions
// are applied to the backing store, mirroring the real write path.
type fakeCore struct {
	mu       sync.Mutex
	store    *fakeStore
	gate     chan struct{}
	commits  []*domain.IndexUpdate
	onCommit func(update *domain.IndexUpdate)

	mailCount   int64
	downloading time.Duration
	supported   bool
}

func newFakeCore(store *fakeStore) *fakeCore {
	return &fakeCore{store: store, gate: make(chan struct{}, 1), supported: true}
}

func (c *fakeCore) CreateIndexEntries(mail *domain.Mail, attrs []out.AttributeValue) map[string][]domain.SearchIndexEntry {
	entries := make(map[string][]domain.SearchIndexEntry)
	for _, attr := range attrs {
		for pos, token := range strings.Fields(strings.ToLower(attr.Value())) {
			entries[token] = append(entries[token], domain.SearchIndexEntry{
				ID:        mail.IDTuple(),
				Attribute: attr.Attribute,
				Positions: []int{pos},
			})
		}
	}
	return entries
}

func (c *fakeCore) EncryptSearchIndexEntries(id domain.IDTuple, ownerGroup string, entries map[string][]domain.SearchIndexEntry, update *domain.IndexUpdate) {
	encID := c.EncInstanceID(id.ElementID)
	tokens := make([]string, 0, len(entries))
	for token := range entries {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		for _, posting := range entries[token] {
			update.Create = append(update.Create, domain.EncSearchIndexEntry{
				KeyB64:        token,
				EncInstanceID: encID,
				Entry:         []byte(fmt.Sprintf("%s@%d:%v", token, posting.Attribute, posting.Positions)),
			})
		}
	}
	update.Element = append(update.Element, domain.ElementData{
		EncInstanceID: encID,
		EncListID:     []byte(id.ListID),
		OwnerGroup:    ownerGroup,
	})
}

func (c *fakeCore) ProcessDeleted(ctx context.Context, event domain.EntityUpdate, update *domain.IndexUpdate) error {
	update.Delete = append(update.Delete, c.EncInstanceID(event.InstanceID))
	return nil
}

func (c *fakeCore) WriteIndexUpdate(ctx context.Context, update *domain.IndexUpdate) error {
	c.mu.Lock()
	cp := *update
	cp.Create = append([]domain.EncSearchIndexEntry(nil), update.Create...)
	cp.Element = append([]domain.ElementData(nil), update.Element...)
	cp.Move = append([]domain.MoveRef(nil), update.Move...)
	cp.Delete = append([]string(nil), update.Delete...)
	c.commits = append(c.commits, &cp)
	hook := c.onCommit
	c.mu.Unlock()

	// Apply element rows, moves, and deletes to the backing store.
	c.store.mu.Lock()
	for _, elem := range cp.Element {
		e := elem
		c.store.elements[elem.EncInstanceID] = &e
	}
	for _, move := range cp.Move {
		if e, ok := c.store.elements[move.EncInstanceID]; ok {
			e.EncListID = []byte(move.NewListID)
		}
	}
	for _, encID := range cp.Delete {
		delete(c.store.elements, encID)
	}
	c.store.mu.Unlock()

	if hook != nil {
		hook(&cp)
	}
	return nil
}

func (c *fakeCore) EncInstanceID(id domain.ElementID) string {
	return "enc-" + strconv.FormatInt(id, 10)
}

func (c *fakeCore) AcquireWriteGate(ctx context.Context) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeCore) ReleaseWriteGate() {
	select {
	case <-c.gate:
	default:
	}
}

func (c *fakeCore) AddDownloadingTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloading += d
}

func (c *fakeCore) AddMailCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mailCount += int64(n)
}

func (c *fakeCore) Stats() out.IndexCoreStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return out.IndexCoreStats{MailCount: c.mailCount, DownloadingTime: c.downloading}
}

func (c *fakeCore) PrintStatus()            {}
func (c *fakeCore) IndexingSupported() bool { return c.supported }

func (c *fakeCore) committed() []*domain.IndexUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.IndexUpdate(nil), c.commits...)
}

// nonEmptyCommits filters out committed updates that carried nothing.
func (c *fakeCore) nonEmptyCommits() []*domain.IndexUpdate {
	var out []*domain.IndexUpdate
	for _, u := range c.committed() {
		if !u.IsEmpty() {
			out = append(out, u)
		}
	}
	return out
}

// =============================================================================

type fakeRealtime struct {
	mu     sync.Mutex
	events []*domain.RealtimeEvent
}

func (r *fakeRealtime) Subscribe(userID string) <-chan *domain.RealtimeEvent { return nil }
func (r *fakeRealtime) Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent) {
}
func (r *fakeRealtime) ConnectedCount() int { return 0 }

func (r *fakeRealtime) Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRealtime) progressValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, ev := range r.events {
		if state, ok := ev.Data.(*domain.IndexState); ok {
			out = append(out, state.Progress)
		}
	}
	return out
}
