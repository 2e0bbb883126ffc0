package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"token_sync/internal/api"
	"token_sync/internal/domain"
	"token_sync/internal/engine"
	"token_sync/internal/event"
	"token_sync/internal/feed"
	"token_sync/internal/highlight"
	"token_sync/internal/infra"
	"token_sync/internal/metrics"
	"token_sync/internal/query"
	"token_sync/internal/storage"
)

const rateLimitIdle = 10 * time.Minute

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Journal   *storage.Journal
	Snapshots *storage.SnapshotManager
	Metrics   *metrics.Collector

	unlock func()
}

// NewBootstrap creates a bootstrap for cfg.
func NewBootstrap(cfg *infra.Config) *Bootstrap {
	return &Bootstrap{Config: cfg}
}

// Initialize prepares the runtime directories, the journal, the snapshot
// manager and the metrics registry. The logger is installed by the caller.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	cfg := b.Config
	infra.SetVersion(cfg.App.Version)

	snapDir := cfg.Snapshot.Dir
	if snapDir == "" {
		snapDir = filepath.Join(infra.GetWorkspaceDir(), "snapshots")
	}
	snapDir = infra.ResolvePath(snapDir)
	if err := infra.EnsureDir(snapDir); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	b.Snapshots = storage.NewSnapshotManager(snapDir)

	if path := infra.ResolvePath(cfg.Journal.Path); path != "" {
		if path != ":memory:" {
			dir := filepath.Dir(path)
			if err := infra.EnsureDir(dir); err != nil {
				return fmt.Errorf("failed to create journal dir: %w", err)
			}
			// Single instance per journal file.
			unlock, err := infra.CreateLockFile(dir)
			if err != nil {
				return err
			}
			b.unlock = unlock
		}

		j, err := storage.OpenJournal(path)
		if err != nil {
			b.Close()
			return err
		}
		if last, err := j.LastSeq(ctx); err == nil && last > 0 {
			slog.Warn("Previous journal found, truncating", slog.Uint64("last_seq", last))
			if err := j.Truncate(ctx); err != nil {
				j.Close()
				b.Close()
				return err
			}
		}
		b.Journal = j
		slog.Info("Journal opened (WAL-mode)", slog.String("path", path))
	}

	b.Metrics = metrics.NewCollector("")
	return nil
}

// Close releases the journal and the instance lock.
func (b *Bootstrap) Close() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("Failed to close journal", slog.Any("err", err))
		}
		b.Journal = nil
	}
	if b.unlock != nil {
		b.unlock()
		b.unlock = nil
	}
}

// NewSequencer builds the engine from the configuration.
func (b *Bootstrap) NewSequencer(onChange engine.ChangeHandler) *engine.Sequencer {
	cfg := b.Config.Engine
	opts := []engine.Option{
		engine.WithSweepInterval(cfg.SweepInterval()),
	}
	if b.Journal != nil {
		opts = append(opts, engine.WithJournal(b.Journal))
	}
	if b.Snapshots != nil {
		opts = append(opts, engine.WithSnapshots(b.Snapshots))
	}
	if b.Metrics != nil {
		opts = append(opts, engine.WithRecorder(b.Metrics))
	}
	if onChange != nil {
		opts = append(opts, engine.WithChangeHandler(onChange))
	}

	return engine.NewSequencer(
		cfg.InboxSize,
		storage.NewTokenStore(cfg.CategoryCapacity),
		highlight.NewTracker(cfg.FlashTTL()),
		opts...,
	)
}

// Source is a feed the engine can attach to.
type Source interface {
	engine.FeedSource
	SetRecorder(r feed.Recorder)
}

// NewFeed builds the configured feed source. The generator is non-nil for
// the simulator and seeds the initial load.
func (b *Bootstrap) NewFeed(ctx context.Context) (Source, *feed.Generator, error) {
	cfg := b.Config.Feed
	var src Source
	var gen *feed.Generator

	switch cfg.Mode {
	case infra.FeedModeSimulator:
		gen = feed.NewGenerator(cfg.Seed)
		src = feed.NewSimulator(feed.SimulatorConfigFrom(cfg), gen)
	case infra.FeedModeWebSocket:
		breakerCfg := infra.CircuitBreakerConfig{
			Name:             "feed",
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		}
		if b.Metrics != nil {
			breakerCfg.OnStateChange = b.Metrics.BreakerStateChanged
		}
		src = feed.NewWebSocketSource(cfg.WSURL, infra.NewCircuitBreaker(breakerCfg))
	case infra.FeedModePlayback:
		path := infra.ResolvePath(cfg.PlaybackPath)
		if _, err := os.Stat(path); err != nil {
			return nil, nil, fmt.Errorf("playback recording not found: %w", err)
		}
		j, err := storage.OpenJournal(path)
		if err != nil {
			return nil, nil, err
		}
		defer j.Close()
		p, err := feed.LoadPlayback(ctx, j, cfg.PlaybackSpeed)
		if err != nil {
			return nil, nil, err
		}
		src = p
	default:
		return nil, nil, fmt.Errorf("unknown feed mode %q", cfg.Mode)
	}

	if b.Metrics != nil {
		src.SetRecorder(b.Metrics)
	}
	return src, gen, nil
}

// SeedEvent builds the initial bulk load: the seed file when one is
// configured, then the recording of a playback source, then the generator.
func (b *Bootstrap) SeedEvent(src Source, gen *feed.Generator) (*event.BulkLoadEvent, error) {
	if path := b.Config.Snapshot.SeedFile; path != "" {
		snap, err := storage.LoadSnapshotFile(infra.ResolvePath(path))
		if err != nil {
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
		return &event.BulkLoadEvent{Categories: snap.Categories}, nil
	}
	if p, ok := src.(*feed.Playback); ok {
		return p.Seed(), nil
	}
	if gen == nil {
		// Upstream feeds start empty and fill through new_token messages.
		return &event.BulkLoadEvent{Categories: map[domain.Category][]domain.Token{}}, nil
	}

	cfg := b.Config.Feed
	return gen.Bulk(map[domain.Category]int{
		domain.CategoryNewPairs:     cfg.InitialNewPairs,
		domain.CategoryFinalStretch: cfg.InitialFinalStretch,
		domain.CategoryMigrated:     cfg.InitialMigrated,
	}), nil
}

// Run wires the engine, the feed and the HTTP API and blocks until ctx is
// cancelled or a component fails.
func (b *Bootstrap) Run(ctx context.Context) error {
	cfg := b.Config
	if b.Metrics == nil {
		b.Metrics = metrics.NewCollector("")
	}

	stream := api.NewStream(b.Metrics)
	seq := b.NewSequencer(stream.Publish)

	src, gen, err := b.NewFeed(ctx)
	if err != nil {
		return err
	}
	seed, err := b.SeedEvent(src, gen)
	if err != nil {
		return err
	}

	svc := query.NewService(seq)
	limiter := api.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	router := api.NewRouter(api.Deps{
		Engine:   seq,
		Service:  svc,
		Stream:   stream,
		Limiter:  limiter,
		Metrics:  b.Metrics.Handler(),
		Recorder: b.Metrics,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	sched := infra.NewScheduler(gctx)
	detach := seq.Attach(src)

	g.Go(func() error {
		seq.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		src.Disconnect()
		detach()
		sched.Stop()
		stream.Close()
		return nil
	})

	startErr := b.start(gctx, seq, src, seed)
	if startErr == nil {
		g.Go(func() error {
			return api.Serve(gctx, cfg.HTTP.Addr, router)
		})

		sched.Every("rate_limit_cleanup", time.Minute, func() {
			if n := limiter.Cleanup(rateLimitIdle); n > 0 {
				slog.Debug("Rate limiter cleanup", slog.Int("removed", n))
			}
		})
		if cfg.Snapshot.IntervalSec > 0 {
			sched.Every("snapshot", time.Duration(cfg.Snapshot.IntervalSec)*time.Second, func() {
				b.saveSnapshot(seq)
			})
		}
		slog.Info("Token sync engine fully operational")
	} else {
		cancel()
	}

	err = g.Wait()
	<-seq.Done()

	if startErr != nil {
		return startErr
	}
	if cfg.Snapshot.IntervalSec > 0 {
		b.saveSnapshot(seq)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// start submits the initial load and connects the feed.
func (b *Bootstrap) start(ctx context.Context, seq *engine.Sequencer, src Source, seed *event.BulkLoadEvent) error {
	if err := seq.Submit(ctx, seed); err != nil {
		return fmt.Errorf("failed to submit initial load: %w", err)
	}
	if err := src.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect feed: %w", err)
	}
	slog.Info("Feed connected", slog.String("mode", b.Config.Feed.Mode))
	return nil
}

func (b *Bootstrap) saveSnapshot(seq *engine.Sequencer) {
	if b.Snapshots == nil || seq.State() != engine.StateRunning {
		return
	}
	if _, err := b.Snapshots.Save(seq.Snapshot()); err != nil {
		slog.Error("Failed to save snapshot", slog.Any("err", err))
		return
	}
	if err := b.Snapshots.Cleanup(b.Config.Snapshot.Keep); err != nil {
		slog.Warn("Snapshot cleanup failed", slog.Any("err", err))
	}
}

// Replay rebuilds engine state from the journal at path on a fresh
// sequencer and returns it with the number of events applied.
func Replay(ctx context.Context, path string, cfg infra.EngineConfig) (*engine.Sequencer, int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, 0, fmt.Errorf("journal not found: %w", err)
	}
	j, err := storage.OpenJournal(path)
	if err != nil {
		return nil, 0, err
	}
	defer j.Close()

	seq := engine.NewSequencer(
		cfg.InboxSize,
		storage.NewTokenStore(cfg.CategoryCapacity),
		highlight.NewTracker(cfg.FlashTTL()),
	)
	n, err := seq.Replay(ctx, j)
	if err != nil {
		return nil, n, err
	}
	return seq, n, nil
}
