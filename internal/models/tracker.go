package models

// TrackerProject is a project as reported by the issue tracker. Issues is
// populated by the aggregator; the tracker API itself returns it empty.
type TrackerProject struct {
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Name   string         `json:"name"`
	Issues []TrackerIssue `json:"issues,omitempty"`
}

// TrackerIssue is a single issue from the tracker. Ephemeral: recomputed on
// every sync cycle, never persisted.
type TrackerIssue struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	ProjectID string `json:"projectId"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
}
