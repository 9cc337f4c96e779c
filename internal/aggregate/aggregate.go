// Package aggregate merges tracker issues onto tracker projects. All
// functions are pure: same inputs, same outputs, no accumulation across
// calls.
package aggregate

import "github.com/projview/projview/internal/models"

// FilterIssues keeps the issues belonging to the tracked projects. The
// tracked set is fixed at configuration time; an empty set means every
// project is tracked.
func FilterIssues(issues []models.TrackerIssue, trackedProjects []string) []models.TrackerIssue {
	if len(trackedProjects) == 0 {
		out := make([]models.TrackerIssue, len(issues))
		copy(out, issues)
		return out
	}

	tracked := make(map[string]bool, len(trackedProjects))
	for _, id := range trackedProjects {
		tracked[id] = true
	}

	out := make([]models.TrackerIssue, 0, len(issues))
	for _, issue := range issues {
		if tracked[issue.ProjectID] {
			out = append(out, issue)
		}
	}
	return out
}

// MergeIntoProjects attaches each issue to its project by tracker project
// id. Issues with no matching project are dropped. Input slices are not
// mutated; issue order within a project follows the input order.
func MergeIntoProjects(issues []models.TrackerIssue, projects []models.TrackerProject) []models.TrackerProject {
	byProject := make(map[string][]models.TrackerIssue)
	for _, issue := range issues {
		byProject[issue.ProjectID] = append(byProject[issue.ProjectID], issue)
	}

	out := make([]models.TrackerProject, len(projects))
	for i, p := range projects {
		p.Issues = byProject[p.ID]
		out[i] = p
	}
	return out
}

// IssueCount looks up the issue count for a local project's linked
// tracker project. ok is false when the tracker project is unknown, which
// callers must render distinctly from a count of zero: zero means "no
// issues", not-ok means "tracker data unavailable".
func IssueCount(merged []models.TrackerProject, jiraProjectID string) (int, bool) {
	if jiraProjectID == "" {
		return 0, false
	}
	for _, p := range merged {
		if p.ID == jiraProjectID {
			return len(p.Issues), true
		}
	}
	return 0, false
}
