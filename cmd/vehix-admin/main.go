// Package main is the entry point for the Vehix admin CLI.
// It manages API keys and provisions the bootstrap records.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vehix/vehix-api/internal/app"
	"github.com/vehix/vehix-api/internal/config"
	"github.com/vehix/vehix-api/internal/logging"
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

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "vehix-admin",
		Short: "Administer the Vehix API",
		Long: `Administer the Vehix API key store.

Issue and inspect API keys, change their state, and provision the frontend
key and the administrator account from configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(c.newKeyCmd())
	cmd.AddCommand(c.newBootstrapCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// open loads the configuration and connects to the stores.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return app.New(ctx, cfg, logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Vehix Admin CLI")
			fmt.Fprintf(out, "Version: %s\n", Version)
			fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
			return nil
		},
	}
}
