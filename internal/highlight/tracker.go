// Package highlight keeps short-lived "recently changed" markers per token
// field. The tracker is owned by the sequencer loop and is not safe for
// concurrent use.
package highlight

import (
	"sort"
	"time"

	"token_sync/internal/domain"
)

const (
	// DefaultTTL is how long a flash stays visible before the sweep may drop it.
	DefaultTTL = 600 * time.Millisecond
	// DefaultSweepInterval is the cadence at which expired flashes are swept.
	DefaultSweepInterval = 200 * time.Millisecond
)

// Tracker stores at most one flash per (token, field).
type Tracker struct {
	ttl     time.Duration
	flashes map[domain.FlashKey]domain.Flash
}

// NewTracker creates a tracker. ttl <= 0 selects DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:     ttl,
		flashes: make(map[domain.FlashKey]domain.Flash),
	}
}

// TTL returns the configured lifetime.
func (t *Tracker) TTL() time.Duration { return t.ttl }

// Record upserts the flash for (id, field). Last writer wins.
func (t *Tracker) Record(id string, field domain.Field, dir domain.Direction, now time.Time) {
	t.flashes[domain.FlashKey{TokenID: id, Field: field}] = domain.Flash{
		TokenID:   id,
		Field:     field,
		Direction: dir,
		Timestamp: now,
	}
}

// Get returns the direction of the flash for (id, field), if any.
func (t *Tracker) Get(id string, field domain.Field) (domain.Direction, bool) {
	f, ok := t.flashes[domain.FlashKey{TokenID: id, Field: field}]
	if !ok {
		return domain.DirectionNone, false
	}
	return f.Direction, true
}

// Clear deletes the flash for (id, field).
func (t *Tracker) Clear(id string, field domain.Field) {
	delete(t.flashes, domain.FlashKey{TokenID: id, Field: field})
}

// ClearToken deletes every flash belonging to id.
func (t *Tracker) ClearToken(id string) int {
	n := 0
	for k := range t.flashes {
		if k.TokenID == id {
			delete(t.flashes, k)
			n++
		}
	}
	return n
}

// Sweep removes flashes older than the TTL and returns how many were removed.
// A flash exactly TTL old survives.
func (t *Tracker) Sweep(now time.Time) int {
	n := 0
	for k, f := range t.flashes {
		if now.Sub(f.Timestamp) > t.ttl {
			delete(t.flashes, k)
			n++
		}
	}
	return n
}

// ForToken returns the flashes of one token keyed by field.
func (t *Tracker) ForToken(id string) map[domain.Field]domain.Direction {
	out := make(map[domain.Field]domain.Direction)
	for k, f := range t.flashes {
		if k.TokenID == id {
			out[k.Field] = f.Direction
		}
	}
	return out
}

// All returns every flash ordered by timestamp, then key.
func (t *Tracker) All() []domain.Flash {
	out := make([]domain.Flash, 0, len(t.flashes))
	for _, f := range t.flashes {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		ki := domain.FlashKey{TokenID: out[i].TokenID, Field: out[i].Field}
		kj := domain.FlashKey{TokenID: out[j].TokenID, Field: out[j].Field}
		return ki.String() < kj.String()
	})
	return out
}

// Restore replaces the tracker contents, e.g. from a snapshot.
func (t *Tracker) Restore(flashes []domain.Flash) {
	t.flashes = make(map[domain.FlashKey]domain.Flash, len(flashes))
	for _, f := range flashes {
		t.flashes[domain.FlashKey{TokenID: f.TokenID, Field: f.Field}] = f
	}
}

// Len returns the number of live flashes.
func (t *Tracker) Len() int { return len(t.flashes) }
