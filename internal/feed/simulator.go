package feed

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"token_sync/internal/domain"
	"token_sync/internal/event"
	"token_sync/internal/infra"
)

// SimulatorConfig tunes the simulated feed cadence.
type SimulatorConfig struct {
	Seed uint64

	FirstUpdate time.Duration
	UpdateMin   time.Duration
	UpdateMax   time.Duration
	BatchMin    int
	BatchMax    int

	FirstNewToken time.Duration
	NewTokenMin   time.Duration
	NewTokenMax   time.Duration
}

// SimulatorConfigFrom maps the feed section of the application config.
func SimulatorConfigFrom(cfg infra.FeedConfig) SimulatorConfig {
	return SimulatorConfig{
		Seed:          cfg.Seed,
		FirstUpdate:   50 * time.Millisecond,
		UpdateMin:     time.Duration(cfg.UpdateMinMS) * time.Millisecond,
		UpdateMax:     time.Duration(cfg.UpdateMaxMS) * time.Millisecond,
		BatchMin:      cfg.BatchMin,
		BatchMax:      cfg.BatchMax,
		FirstNewToken: time.Duration(cfg.FirstNewTokenSec) * time.Second,
		NewTokenMin:   time.Duration(cfg.NewTokenMinSec) * time.Second,
		NewTokenMax:   time.Duration(cfg.NewTokenMaxSec) * time.Second,
	}
}

// Simulator emits random updates against the ids the engine reported and
// announces a new token now and then.
type Simulator struct {
	Hub

	cfg SimulatorConfig
	gen *Generator
	ids membership

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.Mutex
	sched *infra.Scheduler
}

// NewSimulator creates a disconnected simulator. gen may be nil.
func NewSimulator(cfg SimulatorConfig, gen *Generator) *Simulator {
	if cfg.BatchMin <= 0 {
		cfg.BatchMin = 1
	}
	if cfg.BatchMax < cfg.BatchMin {
		cfg.BatchMax = cfg.BatchMin
	}
	if cfg.UpdateMax < cfg.UpdateMin {
		cfg.UpdateMax = cfg.UpdateMin
	}
	if cfg.NewTokenMax < cfg.NewTokenMin {
		cfg.NewTokenMax = cfg.NewTokenMin
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if gen == nil {
		gen = NewGenerator(seed)
	}
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], 1)

	return &Simulator{
		cfg: cfg,
		gen: gen,
		rng: rand.New(rand.NewChaCha8(key)),
	}
}

// Connect starts the update and new-token tasks.
func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return nil
	}

	s.sched = infra.NewScheduler(ctx)
	s.sched.Jittered("feed_updates",
		s.delays(s.cfg.FirstUpdate, s.cfg.UpdateMin, s.cfg.UpdateMax),
		s.emitUpdates)
	if s.cfg.NewTokenMax > 0 {
		s.sched.Jittered("feed_new_tokens",
			s.delays(s.cfg.FirstNewToken, s.cfg.NewTokenMin, s.cfg.NewTokenMax),
			s.emitNewToken)
	}

	slog.Info("Feed simulator connected",
		slog.Duration("update_min", s.cfg.UpdateMin),
		slog.Duration("update_max", s.cfg.UpdateMax))
	return nil
}

// Disconnect stops both tasks and waits for them.
func (s *Simulator) Disconnect() {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()

	if sched == nil {
		return
	}
	sched.Stop()
	slog.Info("Feed simulator disconnected")
}

// Connected reports whether the simulator is emitting.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil
}

// SetTokenIDs replaces the ids updates may target in category c.
func (s *Simulator) SetTokenIDs(c domain.Category, ids []string) {
	s.ids.set(c, ids)
}

// Generator returns the token generator, e.g. for the initial bulk load.
func (s *Simulator) Generator() *Generator { return s.gen }

// delays yields first, then a uniform draw in [lo, hi] on every call.
func (s *Simulator) delays(first, lo, hi time.Duration) func() time.Duration {
	used := false
	return func() time.Duration {
		if !used {
			used = true
			if first > 0 {
				return first
			}
		}
		return s.between(lo, hi)
	}
}

func (s *Simulator) between(lo, hi time.Duration) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	d := lo
	if hi > lo {
		d += time.Duration(s.rng.Int64N(int64(hi-lo) + 1))
	}
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

func (s *Simulator) emitUpdates() {
	ids := s.ids.all()
	if len(ids) == 0 {
		return
	}

	s.rngMu.Lock()
	n := s.cfg.BatchMin + s.rng.IntN(s.cfg.BatchMax-s.cfg.BatchMin+1)
	recs := make([]domain.UpdateRecord, n)
	for i := range recs {
		recs[i] = s.record(ids[s.rng.IntN(len(ids))])
	}
	s.rngMu.Unlock()

	if len(recs) == 1 {
		s.Publish(&event.PriceUpdateEvent{Update: recs[0]})
		return
	}
	s.Publish(&event.BatchUpdateEvent{Updates: recs})
}

// record draws one update. Callers hold rngMu.
func (s *Simulator) record(id string) domain.UpdateRecord {
	r := s.rng
	roll := r.Float64()
	switch {
	case roll < 0.4:
		v := (r.Float64() - 0.45) * 0.05
		return domain.UpdateRecord{ID: id, Field: domain.FieldMarketCap, Value: v, Direction: directionOf(v, 0)}
	case roll < 0.7:
		v := (r.Float64() - 0.5) * 100
		prev := (r.Float64() - 0.5) * 100
		return domain.UpdateRecord{ID: id, Field: domain.FieldPriceChange5m, Value: v, Direction: directionOf(v, prev)}
	case roll < 0.85:
		return domain.UpdateRecord{ID: id, Field: domain.FieldHolders, Value: float64(1 + r.IntN(5)), Direction: domain.DirectionUp}
	default:
		return domain.UpdateRecord{ID: id, Field: domain.FieldVolume, Value: float64(100 + r.IntN(1000)), Direction: domain.DirectionUp}
	}
}

func (s *Simulator) emitNewToken() {
	s.rngMu.Lock()
	c := domain.Categories[s.rng.IntN(len(domain.Categories))]
	s.rngMu.Unlock()

	t := s.gen.Token(c)
	slog.Debug("Feed simulator new token",
		slog.String("id", t.ID),
		slog.String("category", string(c)))
	s.Publish(&event.NewTokenEvent{Category: c, Token: t})
}

func directionOf(v, prev float64) domain.Direction {
	if v > prev {
		return domain.DirectionUp
	}
	return domain.DirectionDown
}
