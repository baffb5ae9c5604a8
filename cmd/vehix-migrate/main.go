// Package main is the entry point for the Vehix database migration tool.
// It manages the PostgreSQL and SQLite key store schemas. MongoDB needs no
// migrations; its indexes are created when the server connects.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/logging"
	"github.com/vehix/vehix-api/internal/repository/backend"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type cli struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "vehix-migrate",
		Short: "Manage the Vehix key store schema",
		Long: `Manage the Vehix key store schema.

Applies the embedded migrations to the configured PostgreSQL or SQLite
database and reports the current schema version.`,
		Example: `  vehix-migrate up
  vehix-migrate status --config /etc/vehix/config.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(c.newUpCmd())
	cmd.AddCommand(c.newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (c *cli) newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, closeFn, latest, logger, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			before, err := m.CurrentVersion(ctx)
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			if err := m.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			logger.Info().Int("from", before).Int("to", latest).Msg("migrations applied")
			if before == latest {
				fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (version %d)\n", latest)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated schema from version %d to %d\n", before, latest)
			return nil
		},
	}
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, closeFn, latest, _, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			current, err := m.CurrentVersion(ctx)
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Current version: %d\n", current)
			fmt.Fprintf(out, "Latest version:  %d\n", latest)
			if current < latest {
				fmt.Fprintf(out, "Pending:         %d\n", latest-current)
			}
			return nil
		},
	}
}

func (c *cli) open(ctx context.Context) (backend.Migrator, func() error, int, zerolog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, 0, zerolog.Nop(), fmt.Errorf("failed to read .env: %w", err)
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, 0, zerolog.Nop(), err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, 0, zerolog.Nop(), err
	}

	m, closeFn, latest, err := backend.OpenMigrator(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, 0, logger, err
	}
	return m, closeFn, latest, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Vehix Migration Tool")
			fmt.Fprintf(out, "Version: %s\n", Version)
			fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
			return nil
		},
	}
}
