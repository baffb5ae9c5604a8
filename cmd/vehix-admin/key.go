package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/vehix/vehix-api/internal/domain"
	"github.com/vehix/vehix-api/internal/service"
)

func (c *cli) newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
	}

	cmd.AddCommand(c.newKeyIssueCmd())
	cmd.AddCommand(c.newKeyShowCmd())
	cmd.AddCommand(c.newKeyStateCmd("suspend", "Suspend an API key", (*service.KeyService).Suspend))
	cmd.AddCommand(c.newKeyStateCmd("activate", "Reactivate a suspended API key", (*service.KeyService).Activate))
	cmd.AddCommand(c.newKeyStateCmd("expire", "Expire an API key now", (*service.KeyService).Expire))

	return cmd
}

// ---------- key issue ----------

func (c *cli) newKeyIssueCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:     "issue",
		Short:   "Issue a public API key without email verification",
		Long:    "Issue a public API key. The key is shown once and cannot be retrieved again.",
		Example: "  vehix-admin key issue --email alice@example.com",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			issued, err := a.Keys.Issue(ctx, email)
			if err != nil {
				return fmt.Errorf("issue key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "API Key issued:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Key:     %s\n", issued.APIKey)
			fmt.Fprintf(out, "  User ID: %s\n", issued.UserID)
			fmt.Fprintf(out, "  Expires: %s\n", issued.ExpirationDate.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Owner email address (required)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// ---------- key show ----------

func (c *cli) newKeyShowCmd() *cobra.Command {
	var (
		id         string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an API key record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			key, err := a.Keys.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("get key: %w", err)
			}
			return printKey(cmd.OutOrStdout(), key, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Key record id (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the record as JSON")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func printKey(out io.Writer, key *domain.Key, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(key)
	}

	fmt.Fprintf(out, "User ID:       %s\n", key.UserID)
	fmt.Fprintf(out, "Username:      %s\n", key.Username)
	fmt.Fprintf(out, "Email:         %s\n", key.Email)
	fmt.Fprintf(out, "State:         %s\n", key.State)
	fmt.Fprintf(out, "Created:       %s\n", key.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Expires:       %s\n", key.ExpirationDate.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Usage:         %d\n", key.UsageCount)
	if key.LastResponseCode != "" {
		fmt.Fprintf(out, "Last response: %s\n", key.LastResponseCode)
	}
	return nil
}

// ---------- key suspend | activate | expire ----------

func (c *cli) newKeyStateCmd(use, short string, apply func(*service.KeyService, context.Context, string) error) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := apply(a.Keys, ctx, id); err != nil {
				return fmt.Errorf("%s key: %w", use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key %s: %s done\n", id, use)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Key record id (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
