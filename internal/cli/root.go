// Package cli defines the arcjournald command tree.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var verbose bool

// NewRootCommand creates the root command for arcjournald.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "arcjournald",
		Short:         "arcjournald - per-(player, arc) transaction journal service",
		Long:          "arcjournald persists per-player, per-arc progress as an append-only transaction log and derives game state by deterministic replay.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newReplayCheckCommand())

	return cmd
}

// newLogger builds the process logger. The --verbose flag forces debug;
// otherwise ARCJOURNAL_LOG_LEVEL selects the level, defaulting to info.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("ARCJOURNAL_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
