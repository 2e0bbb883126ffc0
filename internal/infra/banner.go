package infra

import (
	"fmt"
	"io"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner writes the startup banner. Simulated and recorded feeds are
// shown in green, live upstream feeds in yellow.
func PrintBanner(w io.Writer, cfg *Config) {
	feed := strings.ToUpper(cfg.Feed.Mode)
	color := ColorGreen
	source := "SYNTHETIC DATA"
	switch cfg.Feed.Mode {
	case FeedModeWebSocket:
		color = ColorYellow
		source = cfg.Feed.WSURL
	case FeedModePlayback:
		source = fmt.Sprintf("%s (x%g)", cfg.Feed.PlaybackPath, cfg.Feed.PlaybackSpeed)
	}

	journal := cfg.Journal.Path
	if journal == "" {
		journal = "disabled"
	}

	line := func(format string, args ...any) {
		fmt.Fprintf(w, "%s"+format+"%s\n", append(append([]any{color}, args...), ColorReset)...)
	}

	fmt.Fprintln(w)
	line("###########################################################")
	line("#                  token-sync engine                      #")
	line("#   FEED:    %-44s #", feed)
	line("#   SOURCE:  %-44s #", truncate(source, 44))
	line("#   HTTP:    %-44s #", cfg.HTTP.Addr)
	line("#   JOURNAL: %-44s #", truncate(journal, 44))
	line("#   VERSION: %-44s #", cfg.App.Version)
	line("###########################################################")
	fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
