// Package projects owns the canonical in-memory project list and the
// backend API client that feeds it.
package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/projview/projview/internal/models"
)

// FetchError is a failed data call: a transport error or a non-2xx
// response. Callers log it and leave their local state unchanged; there
// is no automatic retry.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TokenProvider supplies a bearer token for a backend call, re-acquiring
// it first if the cached one has expired.
type TokenProvider func(ctx context.Context) (string, error)

// API is the backend surface the controller consumes.
type API interface {
	List(ctx context.Context) ([]models.Project, error)
	Delete(ctx context.Context, id int64) error
}

// Client talks to the backend project REST API with bearer auth.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	tokens TokenProvider
}

// NewClient creates a backend client. Every request asks the provider for
// a token, so expiry handling stays in one place.
func NewClient(baseURL string, tokens TokenProvider) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: http.DefaultClient,
		tokens:     tokens,
	}
}

// List fetches all projects.
func (c *Client) List(ctx context.Context) ([]models.Project, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/projects")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Op: "list projects", Status: resp.StatusCode}
	}

	var list []models.Project
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &FetchError{Op: "list projects", Err: err}
	}
	return list, nil
}

// Delete removes a project by id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/projects/%d", id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FetchError{Op: fmt.Sprintf("delete project %d", id), Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return nil, &FetchError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &FetchError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}
