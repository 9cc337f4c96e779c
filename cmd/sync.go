package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projview/projview/internal/output"
	"github.com/projview/projview/internal/tracker"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one tracker sync cycle",
	Long: `Run the issue tracker chain once: refresh the tracker token if
needed, resolve the cloud instance, and pull projects and issues. The
result is cached in the local database for the next listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncRun()
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func syncRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	ts := newTrackerSession(s)
	if ts == nil {
		return fmt.Errorf("tracker is not configured (set tracker.client_id and tracker.refresh_token)")
	}

	if dryRun {
		ui.DryRunMsg("Would run a tracker sync cycle")
		return nil
	}

	res, err := ts.Sync(context.Background())
	if err != nil {
		var stepErr *tracker.StepError
		if errors.As(err, &stepErr) {
			return fmt.Errorf("sync stopped at the %s step: %w", stepErr.Step, stepErr.Err)
		}
		return err
	}

	if res.TokenRefreshed {
		ui.VerboseLog("tracker token refreshed")
	}
	ui.Success("Synced %s: %d projects, %d issues",
		output.Cyan(res.CloudID), len(res.Projects), res.IssueCount)
	return nil
}
