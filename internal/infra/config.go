package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOKENSYNC_"

// Feed modes.
const (
	FeedModeSimulator = "simulator"
	FeedModeWebSocket = "websocket"
	FeedModePlayback  = "playback"
)

// Config holds every setting of the application.
// Values come from defaults, then the YAML file, then the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Engine   EngineConfig   `yaml:"engine"`
	Feed     FeedConfig     `yaml:"feed"`
	Journal  JournalConfig  `yaml:"journal"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig tunes the sequencer.
type EngineConfig struct {
	InboxSize        int `yaml:"inbox_size"`
	CategoryCapacity int `yaml:"category_capacity"`
	FlashTTLMS       int `yaml:"flash_ttl_ms"`
	SweepIntervalMS  int `yaml:"sweep_interval_ms"`
}

func (e EngineConfig) FlashTTL() time.Duration {
	return time.Duration(e.FlashTTLMS) * time.Millisecond
}

func (e EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalMS) * time.Millisecond
}

// FeedConfig selects and tunes the feed source.
type FeedConfig struct {
	Mode  string `yaml:"mode"`
	WSURL string `yaml:"ws_url"`

	// Simulator settings. Seed 0 picks a random seed.
	Seed             uint64 `yaml:"seed"`
	UpdateMinMS      int    `yaml:"update_min_ms"`
	UpdateMaxMS      int    `yaml:"update_max_ms"`
	BatchMin         int    `yaml:"batch_min"`
	BatchMax         int    `yaml:"batch_max"`
	NewTokenMinSec   int    `yaml:"new_token_min_sec"`
	NewTokenMaxSec   int    `yaml:"new_token_max_sec"`
	FirstNewTokenSec int    `yaml:"first_new_token_sec"`

	InitialNewPairs     int `yaml:"initial_new_pairs"`
	InitialFinalStretch int `yaml:"initial_final_stretch"`
	InitialMigrated     int `yaml:"initial_migrated"`

	// Playback settings: a recorded journal re-emitted at Speed x real time.
	PlaybackPath  string  `yaml:"playback_path"`
	PlaybackSpeed float64 `yaml:"playback_speed"`
}

// JournalConfig enables the SQLite event journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// SnapshotConfig controls state dumps and optional seeding.
type SnapshotConfig struct {
	Dir         string `yaml:"dir"`
	Keep        int    `yaml:"keep"`
	IntervalSec int    `yaml:"interval_sec"` // 0 disables periodic snapshots
	SeedFile    string `yaml:"seed_file"`    // Bulk load source instead of generated data
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr           string  `yaml:"addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	cfg := &Config{
		Engine: EngineConfig{
			InboxSize:        1024,
			CategoryCapacity: 50,
			FlashTTLMS:       600,
			SweepIntervalMS:  200,
		},
		Feed: FeedConfig{
			Mode:                FeedModeSimulator,
			UpdateMinMS:         10,
			UpdateMaxMS:         40,
			BatchMin:            2,
			BatchMax:            5,
			NewTokenMinSec:      10,
			NewTokenMaxSec:      30,
			FirstNewTokenSec:    15,
			InitialNewPairs:     15,
			InitialFinalStretch: 12,
			InitialMigrated:     20,
			PlaybackSpeed:       1,
		},
		Snapshot: SnapshotConfig{
			Keep: 5,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	cfg.App.Name = AppName
	cfg.App.Version = "dev"
	return cfg
}

// LoadConfig reads the YAML file at path on top of the defaults, loads a
// .env file if present and applies TOKENSYNC_* overrides. An empty path
// skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", slog.Any("error", err))
	}
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	e := c.Engine
	if e.InboxSize <= 0 {
		return fmt.Errorf("engine.inbox_size must be positive")
	}
	if e.CategoryCapacity <= 0 {
		return fmt.Errorf("engine.category_capacity must be positive")
	}
	if e.FlashTTLMS <= 0 || e.SweepIntervalMS <= 0 {
		return fmt.Errorf("engine flash ttl and sweep interval must be positive")
	}

	f := c.Feed
	switch f.Mode {
	case FeedModeSimulator:
		if f.UpdateMinMS <= 0 || f.UpdateMaxMS < f.UpdateMinMS {
			return fmt.Errorf("invalid feed update range %d-%dms", f.UpdateMinMS, f.UpdateMaxMS)
		}
		if f.BatchMin <= 0 || f.BatchMax < f.BatchMin {
			return fmt.Errorf("invalid feed batch range %d-%d", f.BatchMin, f.BatchMax)
		}
		if f.NewTokenMinSec <= 0 || f.NewTokenMaxSec < f.NewTokenMinSec {
			return fmt.Errorf("invalid new token range %d-%ds", f.NewTokenMinSec, f.NewTokenMaxSec)
		}
	case FeedModeWebSocket:
		if !strings.HasPrefix(f.WSURL, "ws://") && !strings.HasPrefix(f.WSURL, "wss://") {
			return fmt.Errorf("invalid feed WS URL: %q", f.WSURL)
		}
	case FeedModePlayback:
		if f.PlaybackPath == "" {
			return fmt.Errorf("feed.playback_path is required for playback")
		}
		if f.PlaybackSpeed <= 0 {
			return fmt.Errorf("feed.playback_speed must be positive")
		}
		if f.PlaybackPath == c.Journal.Path {
			return fmt.Errorf("feed.playback_path must differ from journal.path")
		}
	default:
		return fmt.Errorf("unknown feed mode %q", f.Mode)
	}

	if c.Snapshot.Keep < 0 || c.Snapshot.IntervalSec < 0 {
		return fmt.Errorf("snapshot keep and interval must not be negative")
	}
	if c.Snapshot.IntervalSec > 0 && c.Snapshot.Dir == "" {
		return fmt.Errorf("snapshot.dir is required for periodic snapshots")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("http rate limit must not be negative")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// overrideWithEnv applies TOKENSYNC_* variables. Environment wins over the file.
func overrideWithEnv(cfg *Config) error {
	str := map[string]*string{
		"FEED_MODE":          &cfg.Feed.Mode,
		"FEED_WS_URL":        &cfg.Feed.WSURL,
		"FEED_PLAYBACK_PATH": &cfg.Feed.PlaybackPath,
		"JOURNAL_PATH":       &cfg.Journal.Path,
		"SNAPSHOT_DIR":       &cfg.Snapshot.Dir,
		"SNAPSHOT_SEED_FILE": &cfg.Snapshot.SeedFile,
		"HTTP_ADDR":          &cfg.HTTP.Addr,
		"LOG_LEVEL":          &cfg.Logging.Level,
		"LOG_FORMAT":         &cfg.Logging.Format,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ENGINE_INBOX_SIZE":        &cfg.Engine.InboxSize,
		"ENGINE_CATEGORY_CAPACITY": &cfg.Engine.CategoryCapacity,
		"SNAPSHOT_INTERVAL_SEC":    &cfg.Snapshot.IntervalSec,
		"HTTP_RATE_LIMIT_BURST":    &cfg.HTTP.RateLimitBurst,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "FEED_SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sFEED_SEED: %w", EnvPrefix, err)
		}
		cfg.Feed.Seed = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "HTTP_RATE_LIMIT_RPS"); ok {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sHTTP_RATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		cfg.HTTP.RateLimitRPS = n
	}
	return nil
}
