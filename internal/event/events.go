package event

import (
	"time"

	"token_sync/internal/domain"
)

// Type defines the type of event.
type Type uint16

const (
	EvBulkLoad Type = iota + 1
	EvPriceUpdate
	EvBatchUpdate
	EvNewToken
	EvTokenRemoved
)

func (t Type) String() string {
	switch t {
	case EvBulkLoad:
		return "bulk_load"
	case EvPriceUpdate:
		return "price_update"
	case EvBatchUpdate:
		return "batch_update"
	case EvNewToken:
		return "new_token"
	case EvTokenRemoved:
		return "token_removed"
	default:
		return "unknown"
	}
}

// TimeStamp represents Unix milliseconds.
type TimeStamp int64

// FromTime converts t to a TimeStamp.
func FromTime(t time.Time) TimeStamp { return TimeStamp(t.UnixMilli()) }

// Event is the interface for all sequencer events.
type Event interface {
	GetSeq() uint64
	GetTs() TimeStamp
	GetType() Type
	// Stamp assigns sequence and time to events the producer left unset.
	Stamp(seq uint64, ts TimeStamp)
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64    `json:"seq"`
	Ts  TimeStamp `json:"ts"`
}

func (e *BaseEvent) GetSeq() uint64   { return e.Seq }
func (e *BaseEvent) GetTs() TimeStamp { return e.Ts }

func (e *BaseEvent) Stamp(seq uint64, ts TimeStamp) {
	if e.Seq == 0 {
		e.Seq = seq
	}
	if e.Ts == 0 {
		e.Ts = ts
	}
}

// Unstamp clears sequence and time so the next engine assigns fresh ones.
func (e *BaseEvent) Unstamp() {
	e.Seq = 0
	e.Ts = 0
}

// BulkLoadEvent seeds the store with a full categorized token set.
type BulkLoadEvent struct {
	BaseEvent
	Categories map[domain.Category][]domain.Token `json:"categories"`
}

func (e *BulkLoadEvent) GetType() Type { return EvBulkLoad }

// PriceUpdateEvent carries a single update record.
type PriceUpdateEvent struct {
	BaseEvent
	Update domain.UpdateRecord `json:"update"`
}

func (e *PriceUpdateEvent) GetType() Type { return EvPriceUpdate }

// BatchUpdateEvent carries update records applied in array order.
type BatchUpdateEvent struct {
	BaseEvent
	Updates []domain.UpdateRecord `json:"updates"`
}

func (e *BatchUpdateEvent) GetType() Type { return EvBatchUpdate }

// NewTokenEvent announces a token. Category is the producer's decision;
// when empty the engine infers it from the token's shape.
type NewTokenEvent struct {
	BaseEvent
	Category domain.Category `json:"category,omitempty"`
	Token    domain.Token    `json:"token"`
}

func (e *NewTokenEvent) GetType() Type { return EvNewToken }

// TokenRemovedEvent removes a token from a category.
type TokenRemovedEvent struct {
	BaseEvent
	Category domain.Category `json:"category"`
	TokenID  string          `json:"tokenId"`
}

func (e *TokenRemovedEvent) GetType() Type { return EvTokenRemoved }
