package projects

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projview/projview/internal/models"
)

// fakeBackend serves the project REST API from an in-memory list.
type fakeBackend struct {
	srv *httptest.Server

	mu       sync.Mutex
	projects []models.Project

	wantToken string
	failList  bool
}

func newFakeBackend(t *testing.T, projects []models.Project) *fakeBackend {
	t.Helper()
	b := &fakeBackend{projects: projects, wantToken: "backend-token"}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.wantToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failList {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[`)
		for i, p := range b.projects {
			if i > 0 {
				fmt.Fprint(w, `,`)
			}
			fmt.Fprintf(w, `{"id":%d,"name":%q,"type":%q,"jiraProjectId":%q}`,
				p.ID, p.Name, p.Type, p.JiraProjectID)
		}
		fmt.Fprint(w, `]`)
	})
	mux.HandleFunc("/api/projects/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		var id int64
		fmt.Sscanf(r.URL.Path, "/api/projects/%d", &id)
		for i, p := range b.projects {
			if p.ID == id {
				b.projects = append(b.projects[:i], b.projects[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func staticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

func TestClient_ListSendsBearerToken(t *testing.T) {
	backend := newFakeBackend(t, []models.Project{
		{ID: 1, Name: "One", Type: "new"},
	})
	c := NewClient(backend.srv.URL, staticToken("backend-token"))

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "One", list[0].Name)
}

func TestClient_ListNon2xx(t *testing.T) {
	backend := newFakeBackend(t, nil)
	backend.failList = true
	c := NewClient(backend.srv.URL, staticToken("backend-token"))

	_, err := c.List(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)
}

func TestClient_ListRejectedToken(t *testing.T) {
	backend := newFakeBackend(t, nil)
	c := NewClient(backend.srv.URL, staticToken("wrong-token"))

	_, err := c.List(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusUnauthorized, fetchErr.Status)
}

func TestClient_TokenProviderError(t *testing.T) {
	wantErr := errors.New("not logged in")
	c := NewClient("http://unused", func(context.Context) (string, error) {
		return "", wantErr
	})

	_, err := c.List(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestClient_DeleteNotFound(t *testing.T) {
	backend := newFakeBackend(t, nil)
	c := NewClient(backend.srv.URL, staticToken("backend-token"))

	err := c.Delete(context.Background(), 42)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
}

// Full pass over the list lifecycle against a live fake backend: load,
// sort, filter, delete, reload.
func TestController_EndToEnd(t *testing.T) {
	backend := newFakeBackend(t, []models.Project{
		{ID: 1, Name: "Gamma", Type: "new"},
		{ID: 2, Name: "Beta", Type: "hold"},
		{ID: 3, Name: "Alpha", Type: "active"},
	})
	client := NewClient(backend.srv.URL, staticToken("backend-token"))
	ctrl := NewController(client)
	ctx := context.Background()

	require.NoError(t, ctrl.Load(ctx))

	// Cache is grouped by status in fixed order, names within groups.
	all := ctrl.Projects()
	require.Len(t, all, 3)
	assert.Equal(t, "Gamma", all[0].Name)
	assert.Equal(t, "Alpha", all[1].Name)
	assert.Equal(t, "Beta", all[2].Name)

	// Default selection (new, active) hides the hold project.
	visible := ctrl.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "Gamma", visible[0].Name)
	assert.Equal(t, "Alpha", visible[1].Name)

	require.NoError(t, ctrl.Delete(ctx, 1))
	assert.Len(t, ctrl.Projects(), 2)

	// The backend agrees after a refresh.
	require.NoError(t, ctrl.Refresh(ctx))
	all = ctrl.Projects()
	require.Len(t, all, 2)
	assert.Equal(t, "Alpha", all[0].Name)
}
