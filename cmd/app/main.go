package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"token_sync/internal/app"
	"token_sync/internal/domain"
	"token_sync/internal/infra"
	"token_sync/internal/storage"
)

var (
	configPath string
	logLevel   string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "token-sync",
	Short: "Real-time token state synchronization engine",
	Long: `token-sync ingests a feed of token updates, applies them through a
single-writer sequencer and serves sortable, filterable views with
short-lived change highlights over HTTP and a websocket stream.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine, the feed and the HTTP API",
	RunE:  runServe,
}

var (
	replayJournal string
	replayOut     string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild state from an event journal and print a summary",
	Long: `replay applies every event of a journal to a fresh engine, offline.
The resulting state is printed and, with --out, saved as a snapshot file
that can later seed the server (snapshot.seed_file).`,
	RunE: runReplay,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	replayCmd.Flags().StringVarP(&replayJournal, "journal", "j", "", "journal database to replay (default: journal.path)")
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", "", "directory to write the rebuilt snapshot to")

	rootCmd.AddCommand(serveCmd, replayCmd)
}

// loadConfig resolves the config file and installs the logger.
func loadConfig() (*infra.Config, error) {
	path := configPath
	if path == "" {
		path = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if version != "dev" {
		cfg.App.Version = version
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := infra.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	infra.PrintBanner(cmd.OutOrStdout(), cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := app.NewBootstrap(cfg)
	if err := b.Initialize(ctx); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}
	defer b.Close()

	if err := b.Run(ctx); err != nil {
		return err
	}
	slog.Info("Shut down gracefully")
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := replayJournal
	if path == "" {
		path = infra.ResolvePath(cfg.Journal.Path)
	}
	if path == "" || path == ":memory:" {
		return fmt.Errorf("no journal to replay: pass --journal or set journal.path")
	}

	seq, n, err := app.Replay(cmd.Context(), path, cfg.Engine)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	counts := seq.Counts()
	fmt.Fprintf(out, "replayed %d events, last seq %d, state %s\n", n, seq.NextSeq()-1, seq.State())
	for _, c := range domain.Categories {
		fmt.Fprintf(out, "  %-14s %d tokens\n", c, counts[c])
	}

	if replayOut != "" {
		saved, err := storage.NewSnapshotManager(replayOut).Save(seq.Snapshot())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "snapshot written to %s\n", saved)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
