package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/studycompanion/studycompanion/internal/migrate"
	"github.com/studycompanion/studycompanion/migrations"
)

var errMissingDatabaseURL = errors.New("database URL required: set DATABASE_URL or --database-url")

func migrateCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	c.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRunner(cmd, func(r *migrate.Runner) error {
				n, err := r.Up(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRunner(cmd, func(r *migrate.Runner) error {
				m, err := r.Down(cmd.Context())
				if errors.Is(err, migrate.ErrNothingToRollback) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reverted %06d_%s\n", m.Version, m.Name)
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRunner(cmd, func(r *migrate.Runner) error {
				statuses, err := r.Status(cmd.Context())
				if err != nil {
					return err
				}
				return printStatus(cmd, statuses)
			})
		},
	})

	return c
}

func (a *app) withRunner(cmd *cobra.Command, fn func(r *migrate.Runner) error) error {
	if err := a.requireDatabase(); err != nil {
		return err
	}
	db, err := migrate.Open(cmd.Context(), a.dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := migrate.NewRunner(db, migrations.FS, a.logger)
	if err != nil {
		return err
	}
	return fn(runner)
}

func printStatus(cmd *cobra.Command, statuses []migrate.Status) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, applied)
	}
	return tw.Flush()
}
