package models

import "strings"

// ProjectStatus represents the lifecycle stage of a project.
type ProjectStatus string

const (
	ProjectStatusNew    ProjectStatus = "new"
	ProjectStatusActive ProjectStatus = "active"
	ProjectStatusHold   ProjectStatus = "hold"
	ProjectStatusEnd    ProjectStatus = "end"
)

// StatusOrder is the fixed display order for project statuses. Sorting and
// the status filter both derive from it; it is not user-configurable.
var StatusOrder = []ProjectStatus{
	ProjectStatusNew,
	ProjectStatusActive,
	ProjectStatusHold,
	ProjectStatusEnd,
}

// Rank returns the sort position of a status within StatusOrder.
// Unknown statuses land in a terminal bucket after all known ones.
func (s ProjectStatus) Rank() int {
	for i, known := range StatusOrder {
		if s == known {
			return i
		}
	}
	return len(StatusOrder)
}

// Known reports whether the status is one of the four tracked stages.
func (s ProjectStatus) Known() bool {
	return s.Rank() < len(StatusOrder)
}

// Project represents a project record owned by the backend API. The client
// holds a read-through, locally mutable cache of these.
type Project struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Lead          string `json:"lead"`
	URL           string `json:"url,omitempty"`
	Description   string `json:"description,omitempty"`
	JiraProjectID string `json:"jiraProjectId,omitempty"`
}

// Status returns the project's type normalized to lowercase. The backend is
// not consistent about casing, so all comparisons go through this.
func (p *Project) Status() ProjectStatus {
	return ProjectStatus(strings.ToLower(p.Type))
}
