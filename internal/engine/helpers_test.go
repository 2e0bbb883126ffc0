package engine

import (
	"context"
	"sync"
	"time"

	"token_sync/internal/domain"
	"token_sync/internal/event"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	mu        sync.Mutex
	handlers  map[int]func(event.Event)
	nextID    int
	published map[domain.Category][]string
	calls     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		handlers:  make(map[int]func(event.Event)),
		published: make(map[domain.Category][]string),
	}
}

func (f *fakeSource) Subscribe(fn func(event.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *fakeSource) Connect(context.Context) error { return nil }
func (f *fakeSource) Disconnect()                   {}

func (f *fakeSource) SetTokenIDs(c domain.Category, ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[c] = ids
	f.calls++
}

func (f *fakeSource) emit(ev event.Event) {
	f.mu.Lock()
	hs := make([]func(event.Event), 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeSource) ids(c domain.Category) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[c]
}

type countingRecorder struct {
	nopRecorder
	mu      sync.Mutex
	dropped map[string]int
	evicted int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{dropped: make(map[string]int)}
}

func (r *countingRecorder) UpdateDropped(reason string) {
	r.mu.Lock()
	r.dropped[reason]++
	r.mu.Unlock()
}

func (r *countingRecorder) TokenEvicted(domain.Category) {
	r.mu.Lock()
	r.evicted++
	r.mu.Unlock()
}

func (r *countingRecorder) drops(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[reason]
}

func seedEvent(tokens ...domain.Token) *event.BulkLoadEvent {
	set := make(map[domain.Category][]domain.Token)
	for _, t := range tokens {
		c := domain.InferCategory(t)
		set[c] = append(set[c], t)
	}
	return &event.BulkLoadEvent{Categories: set}
}

func priceUpdate(id string, f domain.Field, v float64, dir domain.Direction) *event.PriceUpdateEvent {
	return &event.PriceUpdateEvent{Update: domain.UpdateRecord{ID: id, Field: f, Value: v, Direction: dir}}
}
