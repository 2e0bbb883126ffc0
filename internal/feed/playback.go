package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"token_sync/internal/domain"
	"token_sync/internal/event"
)

// EventLog is a recorded event history, e.g. storage.Journal.
type EventLog interface {
	Load(ctx context.Context, fromSeq uint64) ([]event.Event, error)
}

// Playback re-emits a recorded journal with its original pacing, scaled by
// speed. The first bulk load of the recording is exposed through Seed and
// not re-emitted.
type Playback struct {
	Hub

	seed   *event.BulkLoadEvent
	events []event.Event
	speed  float64
	ids    membership

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LoadPlayback reads the whole log up front. speed <= 0 selects real time.
func LoadPlayback(ctx context.Context, log EventLog, speed float64) (*Playback, error) {
	recorded, err := log.Load(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load recording: %w", err)
	}
	if speed <= 0 {
		speed = 1
	}

	p := &Playback{speed: speed}
	for _, ev := range recorded {
		if bl, ok := ev.(*event.BulkLoadEvent); ok {
			if p.seed == nil {
				p.seed = bl
			}
			continue
		}
		p.events = append(p.events, ev)
	}
	if p.seed == nil {
		p.seed = &event.BulkLoadEvent{Categories: map[domain.Category][]domain.Token{}}
	}

	slog.Info("Playback loaded",
		slog.Int("events", len(p.events)),
		slog.Float64("speed", speed))
	return p, nil
}

// Seed returns the recorded initial load with its sequence cleared.
func (p *Playback) Seed() *event.BulkLoadEvent {
	p.seed.Unstamp()
	return p.seed
}

// Len returns the number of events that will be re-emitted.
func (p *Playback) Len() int { return len(p.events) }

// Connect starts the playback. It runs once; reconnecting after it
// finished is a no-op.
func (p *Playback) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return nil
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Disconnect stops the playback and waits for it.
func (p *Playback) Disconnect() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetTokenIDs records the membership. Recorded events already target the
// recorded ids, so it does not change what is emitted.
func (p *Playback) SetTokenIDs(c domain.Category, ids []string) {
	p.ids.set(c, ids)
}

func (p *Playback) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	prev := event.TimeStamp(0)
	if len(p.events) > 0 {
		prev = p.events[0].GetTs()
	}

	for i, ev := range p.events {
		if gap := ev.GetTs() - prev; gap > 0 {
			wait := time.Duration(float64(gap) * float64(time.Millisecond) / p.speed)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				slog.Info("Playback stopped", slog.Int("emitted", i))
				return
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		prev = ev.GetTs()

		if u, ok := ev.(interface{ Unstamp() }); ok {
			u.Unstamp()
		}
		p.Publish(ev)
	}
	slog.Info("Playback finished", slog.Int("emitted", len(p.events)))
}
