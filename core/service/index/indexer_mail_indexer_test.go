package index

import (
	"context"
	"reflect"
	"testing"
	"time"

	"indexer_server/core/domain"
	"indexer_server/pkg/generatedid"
)

// =============================================================================
// Test harness
// =============================================================================

type testEnv struct {
	fetcher  *fakeFetcher
	store    *fakeStore
	core     *fakeCore
	realtime *fakeRealtime
	indexer  *MailIndexer
	user     *domain.User
}

func newTestEnv(t *testing.T, groupIDs ...string) *testEnv {
	t.Helper()

	fetcher := newFakeFetcher()
	store := newFakeStore()
	core := newFakeCore(store)
	realtime := &fakeRealtime{}

	memberships := make([]domain.GroupMembership, 0, len(groupIDs))
	for _, g := range groupIDs {
		fetcher.addGroup(g)
		memberships = append(memberships, domain.GroupMembership{GroupID: g})
	}

	return &testEnv{
		fetcher:  fetcher,
		store:    store,
		core:     core,
		realtime: realtime,
		indexer:  NewMailIndexer(fetcher, store, core, nil, realtime),
		user:     &domain.User{ID: "user-1", Memberships: memberships},
	}
}

// enable turns indexing on synchronously: persisted flags plus in-memory
// state, without the background backfill Enable would kick off.
func (e *testEnv) enable(t *testing.T, excluded ...domain.ListID) {
	t.Helper()
	if err := e.store.WriteEnabled(context.Background(), true, excluded); err != nil {
		t.Fatal(err)
	}
	if err := e.indexer.Init(context.Background(), e.user); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) spamList(groupID string) domain.ListID {
	return domain.ListID("spam-" + groupID)
}

func (e *testEnv) inboxList(groupID string) domain.ListID {
	return domain.ListID("inbox-" + groupID)
}

// mailAt creates a mail whose element ID embeds the given creation time.
func mailAt(listID domain.ListID, ts time.Time, subject string) *domain.Mail {
	return &domain.Mail{
		ListID:       listID,
		ID:           generatedid.TimeToID(ts),
		Subject:      subject,
		Sender:       domain.MailAddress{Name: "Sender", Address: "sender@example.com"},
		State:        domain.MailStateReceived,
		OwnerGroup:   "group-1",
		ReceivedDate: ts.UnixMilli(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================
// Seed scenarios
// =============================================================================

// Fresh enable on an empty mailbox: the group ends FULL_INDEXED and the
// progress sequence is exactly [1, 0].
func TestEnable_EmptyMailbox(t *testing.T) {
	env := newTestEnv(t, "group-1")
	ctx := context.Background()

	if err := env.indexer.Enable(ctx, env.user); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	waitFor(t, "backfill completion", func() bool {
		g, _ := env.store.ReadGroup(ctx, "group-1")
		return g != nil
	})

	g, _ := env.store.ReadGroup(ctx, "group-1")
	if g.IndexTimestamp != domain.FullIndexed {
		t.Errorf("indexTimestamp = %d, want FullIndexed", g.IndexTimestamp)
	}

	waitFor(t, "terminal progress", func() bool {
		vals := env.realtime.progressValues()
		return len(vals) >= 2 && vals[len(vals)-1] == 0
	})
	if got := env.realtime.progressValues(); !reflect.DeepEqual(got, []int{1, 0}) {
		t.Errorf("progress sequence = %v, want [1 0]", got)
	}

	// The spam list was excluded at enable time.
	_, excluded, _ := env.store.ReadEnabled(ctx)
	if !reflect.DeepEqual(excluded, []domain.ListID{env.spamList("group-1")}) {
		t.Errorf("excluded lists = %v", excluded)
	}
}

// Enable on a group without a spam folder must reject.
func TestEnable_MissingSpamFolder(t *testing.T) {
	env := newTestEnv(t, "group-1")
	// Drop the spam folder.
	sys := env.fetcher.boxes["mailbox-group-1"].SystemFolders
	env.fetcher.folders[sys] = env.fetcher.folders[sys][:1]

	if err := env.indexer.Enable(context.Background(), env.user); err == nil {
		t.Fatal("Enable() succeeded without a spam folder")
	}

	if enabled, _, _ := env.store.ReadEnabled(context.Background()); enabled {
		t.Error("enable persisted despite precondition failure")
	}
}

// Already-enabled Enable only reloads the excluded-list set.
func TestEnable_Idempotent(t *testing.T) {
	env := newTestEnv(t, "group-1")
	env.enable(t, "other-spam")

	if err := env.indexer.Enable(context.Background(), env.user); err != nil {
		t.Fatal(err)
	}

	// No backfill was started: no group data written.
	time.Sleep(20 * time.Millisecond)
	if g, _ := env.store.ReadGroup(context.Background(), "group-1"); g != nil {
		t.Error("second enable must not start a backfill")
	}

	if !env.indexer.isExcluded("other-spam") {
		t.Error("excluded lists not reloaded")
	}
}

// Backfill pagination: 1,100 mails over 40 days with a 28-day cutoff walks
// three pages, commits three updates, and leaves the cursor at the cutoff.
func TestBackfill_Pagination(t *testing.T) {
	env := newTestEnv(t, "group-1")
	env.enable(t, env.spamList("group-1"))

	now := time.Now()
	inbox := env.inboxList("group-1")
	total := 1100
	span := 40 * 24 * time.Hour
	for i := 0; i < total; i++ {
		ts := now.Add(-time.Duration(int64(span) / int64(total) * int64(i)))
		env.fetcher.addMail(mailAt(inbox, ts, "mail"))
	}

	endTs := generatedid.StartOfDayShifted(now, -28).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, endTs); err != nil {
		t.Fatalf("IndexMailboxes() error = %v", err)
	}

	if loads := env.fetcher.rangeLoads(); loads < 3 {
		t.Errorf("range loads = %d, want >= 3", loads)
	}
	if commits := env.core.committed(); len(commits) != 3 {
		t.Errorf("commits = %d, want 3", len(commits))
	}

	g, _ := env.store.ReadGroup(context.Background(), "group-1")
	if g.IndexTimestamp != endTs {
		t.Errorf("indexTimestamp = %d, want cutoff %d", g.IndexTimestamp, endTs)
	}

	// Only mail newer than the cutoff was indexed.
	indexed := 0
	for _, u := range env.core.committed() {
		indexed += len(u.Element)
	}
	cutoff := generatedid.TimestampToID(endTs)
	want := 0
	for _, m := range env.fetcher.mails[inbox] {
		if m.ID > cutoff {
			want++
		}
	}
	if indexed != want {
		t.Errorf("indexed %d mails, want %d", indexed, want)
	}
}

// A short list that exhausts before the cutoff ends FULL_INDEXED.
func TestBackfill_ShortListFullyDrained(t *testing.T) {
	env := newTestEnv(t, "group-1")
	env.enable(t, env.spamList("group-1"))

	now := time.Now()
	inbox := env.inboxList("group-1")
	for i := 0; i < 5; i++ {
		env.fetcher.addMail(mailAt(inbox, now.Add(-time.Duration(i)*time.Hour), "recent"))
	}

	endTs := generatedid.StartOfDayShifted(now, -28).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, endTs); err != nil {
		t.Fatal(err)
	}

	g, _ := env.store.ReadGroup(context.Background(), "group-1")
	if g.IndexTimestamp != domain.FullIndexed {
		t.Errorf("indexTimestamp = %d, want FullIndexed", g.IndexTimestamp)
	}
}

// Cancel after the first page commit: exactly one update is durable, the
// cursor is untouched, and the next backfill restarts from the original
// start ID.
func TestBackfill_CancelMidWalk(t *testing.T) {
	env := newTestEnv(t, "group-1")
	env.enable(t, env.spamList("group-1"))

	now := time.Now()
	inbox := env.inboxList("group-1")
	for i := 0; i < MailIndexBatchSize+100; i++ {
		env.fetcher.addMail(mailAt(inbox, now.Add(-time.Duration(i)*time.Minute), "mail"))
	}

	env.core.onCommit = func(*domain.IndexUpdate) {
		env.indexer.Cancel()
	}

	endTs := generatedid.StartOfDayShifted(now, -28).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, endTs); err != nil {
		t.Fatalf("cancelled backfill must resolve cleanly, got %v", err)
	}

	if commits := env.core.committed(); len(commits) != 1 {
		t.Fatalf("commits = %d, want exactly 1", len(commits))
	}
	if g, _ := env.store.ReadGroup(context.Background(), "group-1"); g != nil {
		t.Error("indexTimestamp advanced despite cancellation")
	}

	// The next backfill starts over from the unbounded horizon.
	env.core.onCommit = nil
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, endTs); err != nil {
		t.Fatal(err)
	}
	if env.fetcher.rangeLog[1] != generatedid.MaxID {
		t.Errorf("resume startID = %d, want MaxID", env.fetcher.rangeLog[1])
	}
	if g, _ := env.store.ReadGroup(context.Background(), "group-1"); g == nil || g.IndexTimestamp != domain.FullIndexed {
		t.Error("second backfill did not complete")
	}
}

// Disabled indexer: backfill is a no-op.
func TestBackfill_DisabledNoop(t *testing.T) {
	env := newTestEnv(t, "group-1")

	if err := env.indexer.IndexMailboxes(context.Background(), env.user, 0); err != nil {
		t.Fatal(err)
	}
	if len(env.core.committed()) != 0 || env.fetcher.rangeLoads() != 0 {
		t.Error("disabled backfill touched the store")
	}
}

// =============================================================================
// Event applier scenarios
// =============================================================================

func entityEvent(op domain.OperationType, listID domain.ListID, id domain.ElementID) domain.EntityUpdate {
	return domain.EntityUpdate{ListID: listID, InstanceID: id, Operation: op}
}

// A mail created in the spam list produces an empty update and no element
// row.
func TestEvents_ExcludedListCreate(t *testing.T) {
	env := newTestEnv(t, "group-1")
	spam := env.spamList("group-1")
	env.enable(t, spam)

	mail := mailAt(spam, time.Now(), "spam mail")
	env.fetcher.addMail(mail)

	batch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpCreate, spam, mail.ID)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	commits := env.core.committed()
	if len(commits) != 1 || !commits[0].IsEmpty() {
		t.Errorf("expected one empty commit, got %+v", commits)
	}
	if len(env.store.elements) != 0 {
		t.Error("element data written for excluded mail")
	}
}

// A draft UPDATE rewrites: one deletion plus a fresh index of the current
// version.
func TestEvents_DraftUpdate(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	env.enable(t, env.spamList("group-1"))

	draft := mailAt(inbox, time.Now(), "new subject")
	draft.State = domain.MailStateDraft
	env.fetcher.addMail(draft)

	batch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpUpdate, inbox, draft.ID)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	commits := env.core.committed()
	if len(commits) != 1 {
		t.Fatalf("commits = %d", len(commits))
	}
	u := commits[0]
	if len(u.Delete) != 1 || u.Delete[0] != env.core.EncInstanceID(draft.ID) {
		t.Errorf("Delete = %v", u.Delete)
	}
	// The re-index carries the new subject only.
	subjectTokens := map[string]bool{}
	for _, e := range u.Create {
		subjectTokens[e.KeyB64] = true
	}
	if !subjectTokens["new"] || !subjectTokens["subject"] {
		t.Errorf("re-index postings missing new subject: %v", subjectTokens)
	}
}

// Non-draft UPDATEs are ignored.
func TestEvents_NonDraftUpdateIgnored(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	env.enable(t, env.spamList("group-1"))

	mail := mailAt(inbox, time.Now(), "received mail")
	env.fetcher.addMail(mail)

	batch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpUpdate, inbox, mail.ID)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	if u := env.core.committed()[0]; !u.IsEmpty() {
		t.Errorf("non-draft update produced mutations: %+v", u)
	}
}

// CREATE+DELETE on an indexed instance is a move: exactly one move entry,
// zero new postings.
func TestEvents_MovePreservation(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	env.enable(t, env.spamList("group-1"))

	mail := mailAt(inbox, time.Now(), "movable mail")
	env.fetcher.addMail(mail)

	// Index it first so element data exists.
	createBatch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpCreate, inbox, mail.ID)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), createBatch); err != nil {
		t.Fatal(err)
	}

	archive := domain.ListID("archive-group-1")
	moveBatch := &domain.EventBatch{
		BatchID: "b2",
		GroupID: "group-1",
		Events: []domain.EntityUpdate{
			entityEvent(domain.OpDelete, inbox, mail.ID),
			entityEvent(domain.OpCreate, archive, mail.ID),
		},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), moveBatch); err != nil {
		t.Fatal(err)
	}

	u := env.core.committed()[1]
	if len(u.Move) != 1 || u.Move[0].NewListID != archive {
		t.Errorf("Move = %v, want one entry to %s", u.Move, archive)
	}
	if len(u.Create) != 0 {
		t.Errorf("move produced %d new postings", len(u.Create))
	}
	if len(u.Delete) != 0 {
		t.Errorf("move produced deletions: %v", u.Delete)
	}
}

// A move into an excluded list drops the postings instead.
func TestEvents_MoveToSpam(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	spam := env.spamList("group-1")
	env.enable(t, spam)

	mail := mailAt(inbox, time.Now(), "soon spam")
	env.fetcher.addMail(mail)

	createBatch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpCreate, inbox, mail.ID)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), createBatch); err != nil {
		t.Fatal(err)
	}

	moveBatch := &domain.EventBatch{
		BatchID: "b2",
		GroupID: "group-1",
		Events: []domain.EntityUpdate{
			entityEvent(domain.OpDelete, inbox, mail.ID),
			entityEvent(domain.OpCreate, spam, mail.ID),
		},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), moveBatch); err != nil {
		t.Fatal(err)
	}

	u := env.core.committed()[1]
	if len(u.Move) != 0 {
		t.Errorf("move entry emitted for spam target: %v", u.Move)
	}
	if len(u.Delete) != 1 || u.Delete[0] != env.core.EncInstanceID(mail.ID) {
		t.Errorf("Delete = %v", u.Delete)
	}
}

// A move of a never-indexed instance falls back to the new-mail path.
func TestEvents_MoveBeforeIndexed(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	env.enable(t, env.spamList("group-1"))

	mail := mailAt(inbox, time.Now(), "unseen mail")
	env.fetcher.addMail(mail)

	moveBatch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events: []domain.EntityUpdate{
			entityEvent(domain.OpDelete, "old-list", mail.ID),
			entityEvent(domain.OpCreate, inbox, mail.ID),
		},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), moveBatch); err != nil {
		t.Fatal(err)
	}

	u := env.core.committed()[0]
	if len(u.Move) != 0 {
		t.Errorf("unexpected move for never-indexed instance: %v", u.Move)
	}
	if len(u.Create) == 0 || len(u.Element) != 1 {
		t.Errorf("fallback new-mail path did not index: %+v", u)
	}
}

// A plain DELETE (no create half) removes the instance.
func TestEvents_PlainDelete(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	env.enable(t, env.spamList("group-1"))

	batch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpDelete, inbox, 424242)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	u := env.core.committed()[0]
	if len(u.Delete) != 1 || u.Delete[0] != env.core.EncInstanceID(424242) {
		t.Errorf("Delete = %v", u.Delete)
	}
}

// A CREATE whose mail vanished is swallowed.
func TestEvents_VanishedMailSkipped(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	env.enable(t, env.spamList("group-1"))

	batch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpCreate, inbox, 999)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatalf("NotFound must be swallowed, got %v", err)
	}
	if !env.core.committed()[0].IsEmpty() {
		t.Error("vanished mail produced postings")
	}
}

// Disabled indexer ignores event batches entirely.
func TestEvents_DisabledNoop(t *testing.T) {
	env := newTestEnv(t, "group-1")

	batch := &domain.EventBatch{BatchID: "b1", GroupID: "group-1"}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
	if len(env.core.committed()) != 0 {
		t.Error("disabled applier committed an update")
	}
}

// =============================================================================
// Property tests
// =============================================================================

// Idempotence: applying the same batch twice yields equal update contents.
func TestProperty_EventApplierIdempotent(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	env.enable(t, env.spamList("group-1"))

	a := mailAt(inbox, time.Now(), "first mail")
	b := mailAt(inbox, time.Now().Add(-time.Minute), "second mail")
	env.fetcher.addMail(a)
	env.fetcher.addMail(b)

	batch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events: []domain.EntityUpdate{
			entityEvent(domain.OpCreate, inbox, a.ID),
			entityEvent(domain.OpCreate, inbox, b.ID),
		},
	}

	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	commits := env.core.committed()
	if len(commits) != 2 {
		t.Fatalf("commits = %d", len(commits))
	}
	if !reflect.DeepEqual(commits[0], commits[1]) {
		t.Errorf("applier not idempotent:\nfirst  %+v\nsecond %+v", commits[0], commits[1])
	}
}

// Exclusion: no posting is ever produced for a mail in an excluded list,
// through either path.
func TestProperty_Exclusion(t *testing.T) {
	env := newTestEnv(t, "group-1")
	inbox := env.inboxList("group-1")
	spam := env.spamList("group-1")
	env.enable(t, spam)

	now := time.Now()
	good := mailAt(inbox, now, "good mail")
	bad := mailAt(spam, now.Add(-time.Second), "bad mail")
	env.fetcher.addMail(good)
	env.fetcher.addMail(bad)

	endTs := generatedid.StartOfDayShifted(now, -28).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, endTs); err != nil {
		t.Fatal(err)
	}

	batch := &domain.EventBatch{
		BatchID: "b1",
		GroupID: "group-1",
		Events:  []domain.EntityUpdate{entityEvent(domain.OpCreate, spam, bad.ID)},
	}
	if err := env.indexer.ProcessEntityEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	badEnc := env.core.EncInstanceID(bad.ID)
	for _, u := range env.core.committed() {
		for _, e := range u.Create {
			if e.EncInstanceID == badEnc {
				t.Fatal("posting written for excluded mail")
			}
		}
		for _, el := range u.Element {
			if el.EncInstanceID == badEnc {
				t.Fatal("element data written for excluded mail")
			}
		}
	}
}

// Timestamp monotonicity: the cursor never moves to a newer horizon.
func TestProperty_TimestampMonotonic(t *testing.T) {
	env := newTestEnv(t, "group-1")
	env.enable(t, env.spamList("group-1"))

	now := time.Now()
	inbox := env.inboxList("group-1")
	// Mail spread over 60 days so the first pass stays cutoff-bounded.
	for i := 0; i < 60; i++ {
		env.fetcher.addMail(mailAt(inbox, now.Add(-time.Duration(i)*24*time.Hour), "old mail"))
	}

	oldCutoff := generatedid.StartOfDayShifted(now, -28).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, oldCutoff); err != nil {
		t.Fatal(err)
	}

	// Attempt a backfill to a NEWER horizon: the cursor must not move up.
	newerCutoff := generatedid.StartOfDayShifted(now, -7).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, newerCutoff); err != nil {
		t.Fatal(err)
	}

	g, _ := env.store.ReadGroup(context.Background(), "group-1")
	if g.IndexTimestamp != oldCutoff {
		t.Errorf("cursor moved from %d to %d", oldCutoff, g.IndexTimestamp)
	}

	// Every write in history was monotone (sentinels as +inf).
	prev := int64(-1)
	for _, ts := range env.store.groupHist["group-1"] {
		if prev >= 2 && ts >= 2 && ts > prev {
			t.Errorf("cursor history not monotone: %v", env.store.groupHist["group-1"])
		}
		prev = ts
	}
}

// Visible progress floor: the current index timestamp is the maximum over
// per-group cursors.
func TestProperty_VisibleProgressFloor(t *testing.T) {
	env := newTestEnv(t, "group-1", "group-2")
	env.enable(t, env.spamList("group-1"), env.spamList("group-2"))

	now := time.Now()
	ts40 := generatedid.StartOfDayShifted(now, -40).UnixMilli()
	env.store.WriteGroup(context.Background(), &domain.GroupData{GroupID: "group-1", IndexTimestamp: domain.FullIndexed})
	env.store.WriteGroup(context.Background(), &domain.GroupData{GroupID: "group-2", IndexTimestamp: ts40})

	// Both groups already reach the horizon; the run only refreshes the
	// visible timestamp.
	endTs := generatedid.StartOfDayShifted(now, -28).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, endTs); err != nil {
		t.Fatal(err)
	}

	if got := env.indexer.State(context.Background()).CurrentIndexTimestamp; got != ts40 {
		t.Errorf("currentIndexTimestamp = %d, want max cursor %d", got, ts40)
	}
}

// Cancellation safety: updates committed before the cancel stay durable;
// nothing after the cancel point is committed.
func TestProperty_CancellationSafety(t *testing.T) {
	env := newTestEnv(t, "group-1")
	env.enable(t, env.spamList("group-1"))

	now := time.Now()
	inbox := env.inboxList("group-1")
	for i := 0; i < 3*MailIndexBatchSize; i++ {
		env.fetcher.addMail(mailAt(inbox, now.Add(-time.Duration(i)*time.Minute), "mail"))
	}

	commits := 0
	env.core.onCommit = func(*domain.IndexUpdate) {
		commits++
		if commits == 2 {
			env.indexer.Cancel()
		}
	}

	endTs := generatedid.StartOfDayShifted(now, -28).UnixMilli()
	if err := env.indexer.IndexMailboxes(context.Background(), env.user, endTs); err != nil {
		t.Fatal(err)
	}

	if got := len(env.core.committed()); got != 2 {
		t.Errorf("durable commits = %d, want exactly the 2 pre-cancel pages", got)
	}
	if g, _ := env.store.ReadGroup(context.Background(), "group-1"); g != nil {
		t.Error("cursor advanced on a cancelled run")
	}
}

// Disable wipes everything and the next enable starts from scratch.
func TestDisable_WipesState(t *testing.T) {
	env := newTestEnv(t, "group-1")
	ctx := context.Background()

	if err := env.indexer.Enable(ctx, env.user); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "backfill completion", func() bool {
		g, _ := env.store.ReadGroup(ctx, "group-1")
		return g != nil
	})

	if err := env.indexer.Disable(ctx); err != nil {
		t.Fatal(err)
	}

	if env.store.wipedCount != 1 {
		t.Errorf("wipes = %d", env.store.wipedCount)
	}
	state := env.indexer.State(ctx)
	if state.MailIndexEnabled {
		t.Error("still enabled after disable")
	}
	if state.CurrentIndexTimestamp != domain.NothingIndexed {
		t.Errorf("currentIndexTimestamp = %d after disable", state.CurrentIndexTimestamp)
	}
	if g, _ := env.store.ReadGroup(ctx, "group-1"); g != nil {
		t.Error("group data survived the wipe")
	}
}
