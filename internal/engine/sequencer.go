package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"token_sync/internal/domain"
	"token_sync/internal/event"
	"token_sync/internal/highlight"
	"token_sync/internal/infra"
	"token_sync/internal/storage"
)

var (
	// ErrStopped is returned by Submit once the loop has exited.
	ErrStopped = errors.New("sequencer stopped")
	// ErrNotRunning is returned to readers before the initial bulk load.
	ErrNotRunning = errors.New("sequencer not running")
	// ErrInboxFull is returned by TrySubmit when the inbox has no room.
	ErrInboxFull = errors.New("sequencer inbox full")
)

// State is the lifecycle state of the sequencer.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "uninitialized"
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithJournal appends every accepted event to j before it is applied.
func WithJournal(j Journal) Option { return func(s *Sequencer) { s.journal = j } }

// WithSnapshots enables state dumps after a recovered panic.
func WithSnapshots(sm *storage.SnapshotManager) Option {
	return func(s *Sequencer) { s.snapshots = sm }
}

// WithClock replaces the wall clock used for flash timestamps and sweeps.
func WithClock(c Clock) Option { return func(s *Sequencer) { s.clock = c } }

// WithRecorder wires a metrics recorder.
func WithRecorder(r Recorder) Option { return func(s *Sequencer) { s.metrics = r } }

// WithChangeHandler registers the change notification callback.
func WithChangeHandler(h ChangeHandler) Option { return func(s *Sequencer) { s.onChange = h } }

// WithSweepInterval sets the flash sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// Sequencer is the single writer of the token store and the flash tracker.
// Producers enqueue events; Run applies them one at a time.
type Sequencer struct {
	inbox   chan event.Event
	state   State
	nextSeq uint64
	store   *storage.TokenStore
	tracker *highlight.Tracker

	journal   Journal
	snapshots *storage.SnapshotManager
	source    FeedSource
	clock     Clock
	metrics   Recorder
	onChange  ChangeHandler

	sweepInterval time.Duration
	sweepReq      chan struct{}
	done          chan struct{}
	runOnce       sync.Once
	replaying     bool

	mu sync.RWMutex // Guards store, tracker, state and nextSeq for external reads
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, store *storage.TokenStore, tracker *highlight.Tracker, opts ...Option) *Sequencer {
	if inboxSize <= 0 {
		inboxSize = 1024
	}
	if store == nil {
		store = storage.NewTokenStore(0)
	}
	if tracker == nil {
		tracker = highlight.NewTracker(0)
	}
	s := &Sequencer{
		inbox:         make(chan event.Event, inboxSize),
		nextSeq:       1,
		store:         store,
		tracker:       tracker,
		clock:         SystemClock{},
		metrics:       nopRecorder{},
		sweepInterval: highlight.DefaultSweepInterval,
		sweepReq:      make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach subscribes the sequencer to a feed source. Events are enqueued
// without blocking the producer; when the inbox is full they are dropped.
// The returned function detaches the source.
func (s *Sequencer) Attach(src FeedSource) (detach func()) {
	s.mu.Lock()
	s.source = src
	running := s.state == StateRunning
	s.mu.Unlock()

	unsubscribe := src.Subscribe(func(ev event.Event) {
		if err := s.TrySubmit(ev); err != nil {
			slog.Warn("FEED_EVENT_DROPPED",
				slog.String("type", ev.GetType().String()),
				slog.Any("error", err))
			s.metrics.UpdateDropped(DropInboxFull)
		}
	})

	// A late attach still needs to learn the current membership.
	if running {
		s.publishIDs(domain.Categories)
	}

	return func() {
		unsubscribe()
		s.mu.Lock()
		if s.source == src {
			s.source = nil
		}
		s.mu.Unlock()
	}
}

// Submit enqueues ev, blocking until there is room, ctx ends or the loop stops.
func (s *Sequencer) Submit(ctx context.Context, ev event.Event) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}

	select {
	case s.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// TrySubmit enqueues ev without blocking.
func (s *Sequencer) TrySubmit(ev event.Event) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}

	select {
	case s.inbox <- ev:
		return nil
	default:
		return ErrInboxFull
	}
}

// Done is closed when Run has returned.
func (s *Sequencer) Done() <-chan struct{} { return s.done }

// Run starts the main event loop and the flash sweep task. It returns when
// ctx is cancelled. Run must be called at most once.
func (s *Sequencer) Run(ctx context.Context) {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		slog.Warn("Sequencer.Run called twice; ignoring")
		return
	}

	slog.Info("Sequencer started (single writer)",
		slog.Int("inbox", cap(s.inbox)),
		slog.Duration("sweep_interval", s.sweepInterval))

	sched := infra.NewScheduler(ctx)
	sched.Every("flash_sweep", s.sweepInterval, s.requestSweep)

	defer func() {
		sched.Stop()
		close(s.done)
		slog.Info("Sequencer stopped", slog.Uint64("last_seq", s.lastSeq()))
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			s.safeProcess(ev)
			s.metrics.InboxDepth(len(s.inbox))
		case <-s.sweepReq:
			s.sweep()
		}
	}
}

// requestSweep asks the loop to sweep. Pending requests coalesce.
func (s *Sequencer) requestSweep() {
	select {
	case s.sweepReq <- struct{}{}:
	default:
	}
}

func (s *Sequencer) sweep() {
	s.mu.Lock()
	removed := s.tracker.Sweep(s.clock.Now())
	seq := s.nextSeq - 1
	s.mu.Unlock()

	s.metrics.FlashesSwept(removed)
	if removed > 0 && s.onChange != nil {
		s.onChange(Change{Seq: seq, Kind: ChangeFlashesExpired})
	}
}

// safeProcess keeps the loop alive across a panic in dispatch and leaves a
// state dump behind for post-mortem.
func (s *Sequencer) safeProcess(ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED",
				slog.Any("panic", r),
				slog.String("type", ev.GetType().String()),
				slog.Uint64("seq", ev.GetSeq()))
			s.DumpState()
		}
	}()
	s.processEvent(ev)
}

func (s *Sequencer) processEvent(ev event.Event) {
	start := time.Now()

	// 1. Lifecycle gate
	if ev.GetType() != event.EvBulkLoad && s.State() != StateRunning {
		slog.Debug("Event dropped before initial load", slog.String("type", ev.GetType().String()))
		s.metrics.UpdateDropped(DropNotRunning)
		return
	}

	// 2. Sequence check
	ev.Stamp(s.nextSeq, event.FromTime(s.clock.Now()))
	if !s.validateSequence(ev.GetSeq()) {
		s.metrics.UpdateDropped(DropStaleSequence)
		return
	}

	// 3. Journal
	if s.journal != nil && !s.replaying {
		if err := s.journal.Append(context.Background(), ev); err != nil {
			slog.Error("JOURNAL_APPEND_FAILED", slog.Uint64("seq", ev.GetSeq()), slog.Any("error", err))
		}
	}

	// 4. Dispatch
	change, touched := s.dispatch(ev)

	// 5. Publish outside the lock
	if len(touched) > 0 {
		s.publishIDs(touched)
	}
	if change != nil && s.onChange != nil {
		s.onChange(*change)
	}

	s.metrics.EventProcessed(ev.GetType(), time.Since(start))
}

// validateSequence reports whether an event with seq should be applied.
// Older events are duplicates; gaps fast-forward.
func (s *Sequencer) validateSequence(seq uint64) bool {
	expected := s.nextSeq
	if seq == expected {
		return true
	}

	if seq < expected {
		slog.Warn("SEQUENCE_DUPLICATE_IGNORED", slog.Uint64("expected", expected), slog.Uint64("got", seq))
		return false
	}

	slog.Warn("SEQUENCE_GAP_TOLERATED",
		slog.Uint64("expected", expected),
		slog.Uint64("got", seq),
		slog.Uint64("gap", seq-expected))
	return true
}

func (s *Sequencer) dispatch(ev event.Event) (*Change, []domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq = ev.GetSeq() + 1

	switch e := ev.(type) {
	case *event.BulkLoadEvent:
		return s.handleBulkLoad(e)
	case *event.PriceUpdateEvent:
		return s.handlePriceUpdate(e), nil
	case *event.BatchUpdateEvent:
		return s.handleBatchUpdate(e), nil
	case *event.NewTokenEvent:
		return s.handleNewToken(e)
	case *event.TokenRemovedEvent:
		return s.handleTokenRemoved(e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
		return nil, nil
	}
}

func (s *Sequencer) handleBulkLoad(e *event.BulkLoadEvent) (*Change, []domain.Category) {
	if s.state == StateRunning {
		slog.Info("Bulk load ignored, already running", slog.Uint64("seq", e.Seq))
		return nil, nil
	}

	s.store.Load(e.Categories)
	s.tracker.Restore(nil)
	s.state = StateRunning

	counts := s.store.Counts()
	slog.Info("Initial token set loaded",
		slog.Uint64("seq", e.Seq),
		slog.Int(string(domain.CategoryNewPairs), counts[domain.CategoryNewPairs]),
		slog.Int(string(domain.CategoryFinalStretch), counts[domain.CategoryFinalStretch]),
		slog.Int(string(domain.CategoryMigrated), counts[domain.CategoryMigrated]))
	s.metrics.StoreSize(counts)

	return &Change{Seq: e.Seq, Kind: ChangeLoaded}, domain.Categories
}

func (s *Sequencer) handlePriceUpdate(e *event.PriceUpdateEvent) *Change {
	c, ok := s.applyRecord(e.Update, PathSingle)
	if !ok {
		return nil
	}
	return &Change{Seq: e.Seq, Kind: ChangeUpdated, Category: c, TokenIDs: []string{e.Update.ID}}
}

// handleBatchUpdate applies records in order. A failing record does not
// affect the others.
func (s *Sequencer) handleBatchUpdate(e *event.BatchUpdateEvent) *Change {
	var ids []string
	seen := make(map[string]struct{}, len(e.Updates))
	categories := make(map[domain.Category]struct{}, 1)
	var last domain.Category

	for _, u := range e.Updates {
		c, ok := s.applyRecord(u, PathBatch)
		if !ok {
			continue
		}
		categories[c] = struct{}{}
		last = c
		if _, dup := seen[u.ID]; !dup {
			seen[u.ID] = struct{}{}
			ids = append(ids, u.ID)
		}
	}

	if len(ids) == 0 {
		return nil
	}
	change := &Change{Seq: e.Seq, Kind: ChangeUpdated, TokenIDs: ids}
	if len(categories) == 1 {
		change.Category = last
	}
	return change
}

// applyRecord runs one update against the store. Not-found and unsupported
// records are dropped quietly.
func (s *Sequencer) applyRecord(u domain.UpdateRecord, path Path) (domain.Category, bool) {
	c, tok, ok := s.store.FindByID(u.ID)
	if !ok {
		slog.Debug("Update for unknown token dropped", slog.String("id", u.ID), slog.String("field", string(u.Field)))
		s.metrics.UpdateDropped(DropNotFound)
		return "", false
	}

	updated, err := ApplyUpdate(tok, u.Field, u.Value, path)
	if err != nil {
		var reason string
		switch {
		case errors.Is(err, domain.ErrUnsupportedField):
			reason = DropUnsupported
		case errors.Is(err, domain.ErrInvalidValue):
			reason = DropInvalidValue
		default:
			reason = DropApplyFailed
		}
		slog.Debug("Update dropped", slog.String("id", u.ID), slog.String("reason", reason), slog.Any("error", err))
		s.metrics.UpdateDropped(reason)
		return "", false
	}
	s.store.Replace(updated)

	if u.Direction == domain.DirectionUp || u.Direction == domain.DirectionDown {
		s.tracker.Record(u.ID, u.Field, u.Direction, s.clock.Now())
		s.metrics.FlashRecorded()
	}
	return c, true
}

func (s *Sequencer) handleNewToken(e *event.NewTokenEvent) (*Change, []domain.Category) {
	c := e.Category
	if c == "" {
		c = domain.InferCategory(e.Token)
	}
	if !c.Valid() {
		slog.Warn("New token with unknown category dropped", slog.String("id", e.Token.ID), slog.String("category", string(c)))
		s.metrics.UpdateDropped(DropUnknownCat)
		return nil, nil
	}
	if e.Token.ID == "" {
		slog.Warn("New token without id dropped", slog.Uint64("seq", e.Seq))
		s.metrics.UpdateDropped(DropInvalidValue)
		return nil, nil
	}

	res := s.store.Insert(c, e.Token)
	if !res.Inserted {
		slog.Debug("TOKEN_DUPLICATE_IGNORED", slog.String("id", e.Token.ID))
		s.metrics.UpdateDropped(DropDuplicate)
		return nil, nil
	}

	change := &Change{Seq: e.Seq, Kind: ChangeInserted, Category: c, TokenIDs: []string{e.Token.ID}}
	if res.Evicted != nil {
		s.tracker.ClearToken(res.Evicted.ID)
		s.metrics.TokenEvicted(c)
		change.Evicted = []string{res.Evicted.ID}
		slog.Info("Token evicted",
			slog.String("category", string(c)),
			slog.String("id", res.Evicted.ID))
	}
	s.metrics.StoreSize(s.store.Counts())
	return change, []domain.Category{c}
}

func (s *Sequencer) handleTokenRemoved(e *event.TokenRemovedEvent) (*Change, []domain.Category) {
	if !s.store.Remove(e.Category, e.TokenID) {
		slog.Debug("Remove for unknown token ignored",
			slog.String("category", string(e.Category)),
			slog.String("id", e.TokenID))
		s.metrics.UpdateDropped(DropNotFound)
		return nil, nil
	}
	s.tracker.ClearToken(e.TokenID)
	s.metrics.StoreSize(s.store.Counts())
	return &Change{Seq: e.Seq, Kind: ChangeRemoved, Category: e.Category, TokenIDs: []string{e.TokenID}},
		[]domain.Category{e.Category}
}

// publishIDs tells the feed source the current membership of categories.
func (s *Sequencer) publishIDs(categories []domain.Category) {
	s.mu.RLock()
	src := s.source
	ids := make(map[domain.Category][]string, len(categories))
	for _, c := range categories {
		ids[c] = s.store.IDs(c)
	}
	s.mu.RUnlock()

	if src == nil {
		return
	}
	for _, c := range categories {
		src.SetTokenIDs(c, ids[c])
	}
}

// Replay applies journaled events synchronously on a fresh sequencer. It must
// run before Run and does not write back to the journal.
func (s *Sequencer) Replay(ctx context.Context, j Journal) (int, error) {
	events, err := j.Load(ctx, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to load journal: %w", err)
	}

	slog.Info("Replaying journal", slog.Int("count", len(events)))

	s.replaying = true
	defer func() { s.replaying = false }()

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		s.safeProcess(ev)
	}

	slog.Info("Journal replayed", slog.Uint64("next_seq", s.nextSeq))
	return len(events), nil
}

// State returns the lifecycle state.
func (s *Sequencer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// NextSeq returns the sequence number the next event will receive.
func (s *Sequencer) NextSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

func (s *Sequencer) lastSeq() uint64 { return s.NextSeq() - 1 }

// Snapshot returns a consistent deep copy of the store and the live flashes.
func (s *Sequencer) Snapshot() *storage.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.CreateSnapshot(s.nextSeq-1, s.store, s.tracker.All())
}

// Tokens returns a copy of one category, or ErrNotRunning before the load.
func (s *Sequencer) Tokens(c domain.Category) ([]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRunning {
		return nil, ErrNotRunning
	}
	return s.store.Get(c), nil
}

// Token looks a token up across categories along with its live flashes.
func (s *Sequencer) Token(id string) (domain.Category, domain.Token, map[domain.Field]domain.Direction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, tok, ok := s.store.FindByID(id)
	if !ok {
		return "", domain.Token{}, nil, fmt.Errorf("%w: %s", domain.ErrTokenNotFound, id)
	}
	return c, tok, s.tracker.ForToken(id), nil
}

// Flash returns the direction of the live flash for (id, field).
func (s *Sequencer) Flash(id string, field domain.Field) (domain.Direction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.Get(id, field)
}

// Flashes returns every live flash.
func (s *Sequencer) Flashes() []domain.Flash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.All()
}

// Counts returns the number of tokens per category.
func (s *Sequencer) Counts() map[domain.Category]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Counts()
}

// DumpState writes the current state through the snapshot manager, for
// post-mortem.
func (s *Sequencer) DumpState() {
	if s.snapshots == nil {
		slog.Warn("No snapshot manager configured, state dump skipped")
		return
	}

	snap := s.Snapshot()
	path, err := s.snapshots.Save(snap)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
		return
	}
	slog.Info("Dumped internal state", slog.String("file", path))
}
