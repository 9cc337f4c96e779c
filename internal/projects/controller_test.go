package projects

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projview/projview/internal/models"
)

// fakeAPI is a scriptable backend for controller tests.
type fakeAPI struct {
	mu        sync.Mutex
	listFn    func(ctx context.Context) ([]models.Project, error)
	deleteErr error
	deleted   []int64
}

func (f *fakeAPI) List(ctx context.Context) ([]models.Project, error) {
	f.mu.Lock()
	fn := f.listFn
	f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeAPI) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func staticList(ps []models.Project) func(context.Context) ([]models.Project, error) {
	return func(context.Context) ([]models.Project, error) { return ps, nil }
}

func TestSortProjects_GroupsByStatusThenName(t *testing.T) {
	in := []models.Project{
		{ID: 1, Name: "A", Type: "new"},
		{ID: 2, Name: "B", Type: "active"},
		{ID: 3, Name: "C", Type: "new"},
	}

	got := SortProjects(in)

	names := []string{got[0].Name, got[1].Name, got[2].Name}
	assert.Equal(t, []string{"A", "C", "B"}, names)
}

func TestSortProjects_CaseInsensitiveWithinGroup(t *testing.T) {
	in := []models.Project{
		{ID: 1, Name: "banana", Type: "Active"},
		{ID: 2, Name: "Apple", Type: "active"},
		{ID: 3, Name: "cherry", Type: "ACTIVE"},
	}

	got := SortProjects(in)

	assert.Equal(t, "Apple", got[0].Name)
	assert.Equal(t, "banana", got[1].Name)
	assert.Equal(t, "cherry", got[2].Name)
}

func TestSortProjects_UnknownStatusSortsLast(t *testing.T) {
	in := []models.Project{
		{ID: 1, Name: "weird", Type: "archived"},
		{ID: 2, Name: "done", Type: "end"},
		{ID: 3, Name: "fresh", Type: "new"},
	}

	got := SortProjects(in)

	assert.Equal(t, "fresh", got[0].Name)
	assert.Equal(t, "done", got[1].Name)
	assert.Equal(t, "weird", got[2].Name)
}

func TestSortProjects_DoesNotMutateInput(t *testing.T) {
	in := []models.Project{
		{ID: 1, Name: "z", Type: "end"},
		{ID: 2, Name: "a", Type: "new"},
	}
	_ = SortProjects(in)
	assert.Equal(t, "z", in[0].Name)
}

func TestFilter_IsPure(t *testing.T) {
	ps := []models.Project{
		{ID: 1, Name: "Website", Type: "new"},
		{ID: 2, Name: "Backend", Type: "hold"},
		{ID: 3, Name: "Mobile Web", Type: "active"},
	}
	selected := map[models.ProjectStatus]bool{
		models.ProjectStatusNew:    true,
		models.ProjectStatusActive: true,
	}

	first := Filter(ps, selected, "web")
	second := Filter(ps, selected, "web")

	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "Website", first[0].Name)
	assert.Equal(t, "Mobile Web", first[1].Name)
}

func TestRefresh_SortsIntoCache(t *testing.T) {
	api := &fakeAPI{listFn: staticList([]models.Project{
		{ID: 1, Name: "Paused", Type: "hold"},
		{ID: 2, Name: "Fresh", Type: "new"},
	})}
	c := NewController(api)

	require.NoError(t, c.Refresh(context.Background()))

	got := c.Projects()
	require.Len(t, got, 2)
	assert.Equal(t, "Fresh", got[0].Name)
	assert.Equal(t, "Paused", got[1].Name)
}

func TestRefresh_FailureKeepsPreviousList(t *testing.T) {
	api := &fakeAPI{listFn: staticList([]models.Project{
		{ID: 1, Name: "Kept", Type: "new"},
	})}
	c := NewController(api)
	require.NoError(t, c.Refresh(context.Background()))

	api.mu.Lock()
	api.listFn = func(context.Context) ([]models.Project, error) {
		return nil, &FetchError{Op: "list projects", Status: 500}
	}
	api.mu.Unlock()

	err := c.Refresh(context.Background())
	require.Error(t, err)

	got := c.Projects()
	require.Len(t, got, 1)
	assert.Equal(t, "Kept", got[0].Name)
}

func TestRefresh_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	api := &fakeAPI{}
	api.listFn = func(context.Context) ([]models.Project, error) {
		close(started)
		<-release
		return []models.Project{{ID: 1, Name: "Stale", Type: "new"}}, nil
	}
	c := NewController(api)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Refresh(context.Background()))
	}()
	<-started

	// A second refresh is issued while the first is still in flight and
	// completes with newer data.
	api.mu.Lock()
	api.listFn = staticList([]models.Project{{ID: 2, Name: "Current", Type: "new"}})
	api.mu.Unlock()
	require.NoError(t, c.Refresh(context.Background()))

	// Now the first (stale) response arrives; it must be dropped.
	close(release)
	wg.Wait()

	got := c.Projects()
	require.Len(t, got, 1)
	assert.Equal(t, "Current", got[0].Name)
}

func TestDelete_RemovesExactlyTarget(t *testing.T) {
	api := &fakeAPI{listFn: staticList([]models.Project{
		{ID: 1, Name: "One", Type: "new"},
		{ID: 2, Name: "Two", Type: "new"},
		{ID: 3, Name: "Three", Type: "active"},
	})}
	c := NewController(api)
	require.NoError(t, c.Refresh(context.Background()))

	require.NoError(t, c.Delete(context.Background(), 2))

	got := c.Projects()
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Equal(t, []int64{2}, api.deleted)
}

func TestDelete_FailureLeavesCacheUntouched(t *testing.T) {
	api := &fakeAPI{listFn: staticList([]models.Project{
		{ID: 1, Name: "One", Type: "new"},
		{ID: 2, Name: "Two", Type: "new"},
	})}
	c := NewController(api)
	require.NoError(t, c.Refresh(context.Background()))

	api.deleteErr = errors.New("backend said no")
	require.Error(t, c.Delete(context.Background(), 1))

	assert.Len(t, c.Projects(), 2)
}

func TestToggleStatus_Symmetric(t *testing.T) {
	c := NewController(&fakeAPI{})

	assert.Equal(t,
		[]models.ProjectStatus{models.ProjectStatusNew, models.ProjectStatusActive},
		c.SelectedStatuses())

	c.ToggleStatus(models.ProjectStatusHold)
	assert.Contains(t, c.SelectedStatuses(), models.ProjectStatusHold)

	c.ToggleStatus(models.ProjectStatusHold)
	assert.NotContains(t, c.SelectedStatuses(), models.ProjectStatusHold)
}

func TestToggleStatus_EmptySelectionIsValid(t *testing.T) {
	api := &fakeAPI{listFn: staticList([]models.Project{
		{ID: 1, Name: "One", Type: "new"},
	})}
	c := NewController(api)
	require.NoError(t, c.Refresh(context.Background()))

	c.ToggleStatus(models.ProjectStatusNew)
	c.ToggleStatus(models.ProjectStatusActive)

	assert.Empty(t, c.SelectedStatuses())
	assert.Empty(t, c.Visible())
}

func TestEnsureStatusVisible(t *testing.T) {
	c := NewController(&fakeAPI{})

	c.EnsureStatusVisible("Hold")
	assert.Contains(t, c.SelectedStatuses(), models.ProjectStatusHold)

	// Unknown statuses never enter the selection.
	c.EnsureStatusVisible("archived")
	c.EnsureStatusVisible("")
	assert.Len(t, c.SelectedStatuses(), 3)
}

func TestHighlightLifecycle(t *testing.T) {
	c := NewController(&fakeAPI{})

	_, active := c.Highlighted()
	assert.False(t, active)

	c.MarkHighlighted(7)
	id, active := c.Highlighted()
	assert.True(t, active)
	assert.Equal(t, int64(7), id)

	// Opening some other project's details leaves the highlight alone.
	c.OpenDetails(8)
	_, active = c.Highlighted()
	assert.True(t, active)

	// Opening the highlighted project's details clears it.
	c.OpenDetails(7)
	_, active = c.Highlighted()
	assert.False(t, active)

	// A later mark supersedes the previous target.
	c.MarkHighlighted(7)
	c.MarkHighlighted(9)
	id, active = c.Highlighted()
	assert.True(t, active)
	assert.Equal(t, int64(9), id)
}

func TestVisible_StatusAndSearch(t *testing.T) {
	api := &fakeAPI{listFn: staticList([]models.Project{
		{ID: 1, Name: "Storefront", Type: "new"},
		{ID: 2, Name: "Warehouse", Type: "hold"},
		{ID: 3, Name: "Store API", Type: "active"},
	})}
	c := NewController(api)
	require.NoError(t, c.Refresh(context.Background()))

	// Default selection hides hold.
	assert.Len(t, c.Visible(), 2)

	c.SetSearchTerm("store")
	visible := c.Visible()
	require.Len(t, visible, 2)

	c.SetSearchTerm("api")
	visible = c.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "Store API", visible[0].Name)
}
