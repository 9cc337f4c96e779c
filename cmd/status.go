package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/projview/projview/internal/output"
	"github.com/projview/projview/internal/tokenstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Long:  "Show the signed-in account, token validity, and tracker state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tenant, err := s.GetString(ctx, tokenstore.KeyTenant)
	if err != nil {
		return err
	}
	if tenant == "" {
		ui.Info("Not signed in.")
		return nil
	}

	name, err := s.GetString(ctx, tokenstore.KeyUserName)
	if err != nil {
		return err
	}
	if name == "" {
		name = "(unknown account)"
	}
	ui.Info("Signed in to %s as %s", output.Cyan(tenant), name)

	tok, err := s.GetToken(ctx, tokenstore.KeyAccessToken)
	if err != nil {
		return err
	}
	switch {
	case tok == nil:
		fmt.Fprintf(ui.Out, "  Session token: none (will refresh on next call)\n")
	case tok.Valid(time.Now()):
		fmt.Fprintf(ui.Out, "  Session token: valid until %s\n", tok.ExpiresAt.Local().Format(time.RFC822))
	default:
		fmt.Fprintf(ui.Out, "  Session token: expired (will refresh on next call)\n")
	}

	if lastTenant, lastUser, err := s.LastLogin(ctx); err == nil && lastTenant != "" {
		fmt.Fprintf(ui.Out, "  Last login:    %s (%s)\n", lastUser, lastTenant)
	}

	trackerTok, err := s.GetToken(ctx, tokenstore.KeyTrackerToken)
	if err != nil {
		return err
	}
	cloudID, err := s.GetString(ctx, tokenstore.KeyCloudID)
	if err != nil {
		return err
	}
	switch {
	case trackerTok == nil:
		fmt.Fprintf(ui.Out, "  Tracker:       not synced\n")
	case trackerTok.Valid(time.Now()):
		fmt.Fprintf(ui.Out, "  Tracker:       synced (cloud %s)\n", cloudID)
	default:
		fmt.Fprintf(ui.Out, "  Tracker:       token expired (cloud %s)\n", cloudID)
	}

	return nil
}
