// Package feed provides the event sources the engine subscribes to: a local
// simulator and an upstream websocket client.
package feed

import (
	"sort"
	"sync"

	"token_sync/internal/domain"
	"token_sync/internal/event"
)

// Recorder receives feed measurements. metrics.Collector implements it.
type Recorder interface {
	FeedMessage(t event.Type)
	FeedDecodeError()
}

type nopRecorder struct{}

func (nopRecorder) FeedMessage(event.Type) {}
func (nopRecorder) FeedDecodeError()       {}

// Hub fans events out to subscribers. Sources embed it.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]func(event.Event)
	nextID uint64
	rec    Recorder
}

// SetRecorder installs a feed recorder. Call before Connect.
func (h *Hub) SetRecorder(r Recorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rec = r
}

// Subscribe registers fn for every published event.
func (h *Hub) Subscribe(fn func(event.Event)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[uint64]func(event.Event))
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber in subscription order.
// Subscribers run on the publishing goroutine and must not block.
func (h *Hub) Publish(ev event.Event) {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(event.Event), len(ids))
	for i, id := range ids {
		fns[i] = h.subs[id]
	}
	rec := h.rec
	h.mu.RUnlock()

	if rec != nil {
		rec.FeedMessage(ev.GetType())
	}
	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) recorder() Recorder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.rec == nil {
		return nopRecorder{}
	}
	return h.rec
}

// membership is the source's view of which ids live in which category,
// as reported by the engine.
type membership struct {
	mu  sync.RWMutex
	ids map[domain.Category][]string
}

func (m *membership) set(c domain.Category, ids []string) {
	cp := make([]string, len(ids))
	copy(cp, ids)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = make(map[domain.Category][]string)
	}
	m.ids[c] = cp
}

func (m *membership) get(c domain.Category) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]string, len(m.ids[c]))
	copy(cp, m.ids[c])
	return cp
}

// all returns every id in category display order.
func (m *membership) all() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, c := range domain.Categories {
		out = append(out, m.ids[c]...)
	}
	return out
}
