// Package cli implements the studyctl command tree.
package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studycompanion/studycompanion/internal/config"
)

// Execute runs studyctl with os.Args.
func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	cfg     *config.ToolConfig
	logger  *slog.Logger
	verbose bool
	dbURL   string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "studyctl",
		Short:        "Operate a Smart Study Companion deployment",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadTool()
			if err != nil {
				return err
			}
			a.cfg = cfg
			if a.dbURL == "" {
				a.dbURL = cfg.DatabaseURL
			}
			a.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, a.verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.dbURL, "database-url", "", "PostgreSQL URL (defaults to $DATABASE_URL)")

	cmd.AddCommand(migrateCmd(a))
	cmd.AddCommand(userCmd(a))
	cmd.AddCommand(summarizeCmd(a))
	return cmd
}

func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func (a *app) requireDatabase() error {
	if a.dbURL == "" {
		return errMissingDatabaseURL
	}
	return nil
}
