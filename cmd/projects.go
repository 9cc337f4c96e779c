package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projview/projview/internal/aggregate"
	"github.com/projview/projview/internal/models"
	"github.com/projview/projview/internal/output"
	"github.com/projview/projview/internal/projects"
	"github.com/projview/projview/internal/tracker"
)

var (
	projectsStatuses  []string
	projectsSearch    string
	projectsAll       bool
	projectsHighlight int64
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Browse the project list",
	Long: `List projects from the backend, grouped by status and enriched with
issue counts from the tracker. By default only new and active projects
are shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectsListRun()
	},
}

var projectsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectsListRun()
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}
		return projectsDeleteRun(id)
	},
}

func init() {
	for _, c := range []*cobra.Command{projectsCmd, projectsListCmd} {
		c.Flags().StringSliceVar(&projectsStatuses, "status", nil, "Statuses to show (new, active, hold, end)")
		c.Flags().StringVar(&projectsSearch, "search", "", "Filter by name substring")
		c.Flags().BoolVar(&projectsAll, "all", false, "Show every status")
		c.Flags().Int64Var(&projectsHighlight, "highlight", 0, "Mark a project in the listing")
	}

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)
	rootCmd.AddCommand(projectsCmd)
}

// newController builds a controller for the signed-in session.
func newController(ctx context.Context) (*projects.Controller, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	session, err := currentSession(ctx, s)
	if err != nil {
		return nil, err
	}
	return projects.NewController(newBackendClient(session)), nil
}

func projectsListRun() error {
	ctx := context.Background()

	ctrl, err := newController(ctx)
	if err != nil {
		return err
	}

	if err := applyListFlags(ctrl); err != nil {
		return err
	}

	if err := ctrl.Load(ctx); err != nil {
		return loginHint(err)
	}

	// Issue counts come from the tracker, best-effort. A sync failure
	// degrades to unknown counts, never fails the listing.
	var merged []models.TrackerProject
	if s, err := getStore(); err == nil {
		if ts := newTrackerSession(s); ts != nil {
			res, err := ts.Sync(ctx)
			if err != nil {
				var stepErr *tracker.StepError
				if errors.As(err, &stepErr) {
					ui.VerboseLog("tracker sync failed at %s: %v", stepErr.Step, stepErr.Err)
				} else {
					ui.VerboseLog("tracker sync failed: %v", err)
				}
			} else {
				merged = res.Projects
			}
		}
	}

	renderProjects(ctrl, merged)
	return nil
}

func applyListFlags(ctrl *projects.Controller) error {
	ctrl.SetSearchTerm(projectsSearch)
	if projectsHighlight != 0 {
		ctrl.MarkHighlighted(projectsHighlight)
	}

	if projectsAll {
		for _, st := range models.StatusOrder {
			ctrl.EnsureStatusVisible(string(st))
		}
		return nil
	}
	if len(projectsStatuses) == 0 {
		return nil
	}

	// An explicit --status selection replaces the default entirely.
	for _, st := range ctrl.SelectedStatuses() {
		ctrl.ToggleStatus(st)
	}
	for _, raw := range projectsStatuses {
		st := models.ProjectStatus(strings.ToLower(raw))
		if !st.Known() {
			return fmt.Errorf("unknown status %q (valid: new, active, hold, end)", raw)
		}
		ctrl.EnsureStatusVisible(raw)
	}
	return nil
}

func renderProjects(ctrl *projects.Controller, merged []models.TrackerProject) {
	visible := ctrl.Visible()

	ui.Info("%s", output.HeaderText(ctrl.SelectedStatuses()))
	if len(visible) == 0 {
		ui.Info("No projects match.")
		return
	}

	highlightID, highlightOn := ctrl.Highlighted()

	table := ui.Table([]string{"ID", "Name", "Status", "Lead", "Issues", "Description"})
	for _, p := range visible {
		count, known := aggregate.IssueCount(merged, p.JiraProjectID)

		name := p.Name
		if highlightOn && p.ID == highlightID {
			name = output.Highlight(name)
		}

		table.Append([]string{
			strconv.FormatInt(p.ID, 10),
			name,
			output.StatusColor(p.Type),
			p.Lead,
			output.IssueCell(count, known),
			output.Truncate(p.Description, 60),
		})
	}
	table.Render()
}

func projectsDeleteRun(id int64) error {
	ctx := context.Background()

	ctrl, err := newController(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete project %d", id)
		return nil
	}

	if err := ctrl.Delete(ctx, id); err != nil {
		var fetchErr *projects.FetchError
		if errors.As(err, &fetchErr) {
			return fmt.Errorf("delete project %d failed (status %d); nothing was removed", id, fetchErr.Status)
		}
		return loginHint(err)
	}

	ui.Success("Deleted project %d", id)
	return nil
}
