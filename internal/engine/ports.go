package engine

import (
	"context"
	"time"

	"token_sync/internal/domain"
	"token_sync/internal/event"
)

// FeedSource produces token events asynchronously. The engine subscribes to
// it and reports back the live ids per category so the source only targets
// tokens the engine has confirmed.
type FeedSource interface {
	// Subscribe registers fn for every emitted event. The returned function
	// removes the registration.
	Subscribe(fn func(event.Event)) (unsubscribe func())
	// Connect starts emitting. Calling it while connected is a no-op.
	Connect(ctx context.Context) error
	// Disconnect stops emitting. Calling it while disconnected is a no-op.
	Disconnect()
	// SetTokenIDs replaces the source's view of category membership.
	SetTokenIDs(c domain.Category, ids []string)
}

// Journal persists accepted events for later replay.
type Journal interface {
	Append(ctx context.Context, ev event.Event) error
	Load(ctx context.Context, fromSeq uint64) ([]event.Event, error)
}

// Recorder receives engine measurements. metrics.Collector implements it.
type Recorder interface {
	EventProcessed(t event.Type, d time.Duration)
	UpdateDropped(reason string)
	FlashRecorded()
	FlashesSwept(n int)
	TokenEvicted(c domain.Category)
	StoreSize(counts map[domain.Category]int)
	InboxDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) EventProcessed(event.Type, time.Duration) {}
func (nopRecorder) UpdateDropped(string)                     {}
func (nopRecorder) FlashRecorded()                           {}
func (nopRecorder) FlashesSwept(int)                         {}
func (nopRecorder) TokenEvicted(domain.Category)             {}
func (nopRecorder) StoreSize(map[domain.Category]int)        {}
func (nopRecorder) InboxDepth(int)                           {}

// Drop reasons reported to the Recorder.
const (
	DropNotFound      = "not_found"
	DropUnsupported   = "unsupported_field"
	DropInvalidValue  = "invalid_value"
	DropDuplicate     = "duplicate"
	DropUnknownCat    = "unknown_category"
	DropNotRunning    = "not_running"
	DropStaleSequence = "stale_sequence"
	DropInboxFull     = "inbox_full"
	DropApplyFailed   = "apply_failed"
)

// ChangeKind describes what an applied event did.
type ChangeKind string

const (
	ChangeLoaded         ChangeKind = "loaded"
	ChangeUpdated        ChangeKind = "updated"
	ChangeInserted       ChangeKind = "inserted"
	ChangeRemoved        ChangeKind = "removed"
	ChangeFlashesExpired ChangeKind = "flashes_expired"
)

// Change is published after each event that altered state.
type Change struct {
	Seq      uint64          `json:"seq"`
	Kind     ChangeKind      `json:"kind"`
	Category domain.Category `json:"category,omitempty"`
	TokenIDs []string        `json:"tokenIds,omitempty"`
	// Evicted lists ids dropped to respect the category capacity.
	Evicted []string `json:"evicted,omitempty"`
}

// ChangeHandler is invoked on the sequencer goroutine; it must not block.
type ChangeHandler func(Change)
