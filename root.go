package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/researchaccelerator-hub/song-tracker/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "song-tracker",
		Short:         "Track song uploads of YouTube creators and their view counts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "auto", "Log format (auto, console, json)")
	flags.String("store-driver", "sqlite", "Storage backend (memory, sqlite, postgres, dapr)")
	flags.String("store-dsn", "songtracker.db", "SQLite file path or PostgreSQL connection URL")
	flags.StringSlice("api-keys", nil, "YouTube Data API keys, in rotation order")
	flags.String("timezone", "Asia/Seoul", "Timezone of the schedule and weekly boundaries")
	flags.String("redis-url", "", "Redis URL of the ranking cache")
	flags.String("lock-dir", "", "Directory for job overlap locks")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newDaprCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newRankCommand(ctx))
	rootCmd.AddCommand(newCreatorsCommand(ctx))

	return rootCmd
}

// setupLogging configures the global zerolog logger. Console output is used
// on a terminal unless JSON is requested.
func setupLogging(cfg config.LogConfig, out io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	console := cfg.Format == "console"
	if cfg.Format == "auto" {
		if f, ok := out.(*os.File); ok {
			console = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}

	if console {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
