package projects

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/projview/projview/internal/models"
)

// Controller owns the canonical in-memory project list and the filter,
// sort, and highlight state derived views are computed from. It tolerates
// overlapping refreshes: each load carries a generation id and only the
// most recently issued load may write the cache, so a slow stale response
// can never overwrite a newer one.
type Controller struct {
	api API

	mu         sync.Mutex
	projects   []models.Project
	selected   map[models.ProjectStatus]bool
	searchTerm string

	highlightID     int64
	highlightActive bool

	loadGen uint64
}

// NewController creates a controller with the default status selection
// (new and active visible).
func NewController(api API) *Controller {
	return &Controller{
		api: api,
		selected: map[models.ProjectStatus]bool{
			models.ProjectStatusNew:    true,
			models.ProjectStatusActive: true,
		},
	}
}

// SortProjects returns a sorted copy: projects grouped by status in the
// fixed order new, active, hold, end (unknown statuses last), and by name
// case-insensitively within a group. The input is not mutated.
func SortProjects(ps []models.Project) []models.Project {
	out := make([]models.Project, len(ps))
	copy(out, ps)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Status().Rank(), out[j].Status().Rank()
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Filter derives the visible subset: status selected and name containing
// the search term, case-insensitively. Pure; the input is not mutated.
func Filter(ps []models.Project, selected map[models.ProjectStatus]bool, searchTerm string) []models.Project {
	term := strings.ToLower(searchTerm)
	out := make([]models.Project, 0, len(ps))
	for _, p := range ps {
		if !selected[p.Status()] {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Refresh fetches the project list and replaces the cache with the sorted
// result. On failure the cache keeps its previous contents and the error
// is returned for the caller to log. A response belonging to a
// superseded refresh is discarded.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.loadGen++
	gen := c.loadGen
	c.mu.Unlock()

	list, err := c.api.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.loadGen {
		// A newer refresh was issued while this one was in flight.
		return nil
	}
	if err != nil {
		return err
	}
	c.projects = SortProjects(list)
	return nil
}

// Load is Refresh under the name used at startup.
func (c *Controller) Load(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Delete removes a project from the backend, then from the cache. A
// failed delete leaves the cache untouched.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	if err := c.api.Delete(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.projects[:0:0]
	for _, p := range c.projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	c.projects = kept
	return nil
}

// Projects returns a copy of the cached, sorted list.
func (c *Controller) Projects() []models.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Project, len(c.projects))
	copy(out, c.projects)
	return out
}

// Visible returns the filtered view of the cache under the current
// status selection and search term.
func (c *Controller) Visible() []models.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Filter(c.projects, c.selected, c.searchTerm)
}

// ToggleStatus adds or removes a status from the selection. Deselecting
// every status is allowed and yields an empty visible set; that is a
// valid "show nothing" state, not an error.
func (c *Controller) ToggleStatus(status models.ProjectStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected[status] {
		delete(c.selected, status)
	} else {
		c.selected[status] = true
	}
}

// EnsureStatusVisible adds a project's status to the selection so a just
// created project cannot land in a hidden group. Unknown or empty
// statuses are ignored.
func (c *Controller) EnsureStatusVisible(status string) {
	st := models.ProjectStatus(strings.ToLower(status))
	if !st.Known() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected[st] = true
}

// SelectedStatuses returns the selection in the fixed status order.
func (c *Controller) SelectedStatuses() []models.ProjectStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ProjectStatus, 0, len(c.selected))
	for _, st := range models.StatusOrder {
		if c.selected[st] {
			out = append(out, st)
		}
	}
	return out
}

// SetSearchTerm sets the name filter.
func (c *Controller) SetSearchTerm(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchTerm = term
}

// MarkHighlighted marks a project for visual emphasis, superseding any
// previous mark.
func (c *Controller) MarkHighlighted(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highlightID = id
	c.highlightActive = true
}

// OpenDetails records that a project's details view was opened. Opening
// the highlighted project clears the highlight; opening any other leaves
// it in place.
func (c *Controller) OpenDetails(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.highlightID == id {
		c.highlightActive = false
	}
}

// Highlighted returns the currently highlighted project id, if any.
func (c *Controller) Highlighted() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.highlightActive {
		return 0, false
	}
	return c.highlightID, true
}
