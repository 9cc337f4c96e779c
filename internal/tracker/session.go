// Package tracker runs the issue-tracker side of a sync: its own OAuth
// token lifecycle, cloud instance resolution, and the project/issue
// listings that feed the aggregator. It is fully independent of the
// primary identity session; a failure here degrades issue counts and
// nothing else.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/projview/projview/internal/aggregate"
	"github.com/projview/projview/internal/models"
	"github.com/projview/projview/internal/tokenstore"
)

// Config holds the tracker OAuth and API settings.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// RefreshToken is the offline credential granted when the tracker
	// app was authorized.
	RefreshToken string
	// APIBaseURL is the tracker API gateway, e.g. "https://api.atlassian.com".
	APIBaseURL string
	// Projects limits aggregation to these tracker project ids. Empty
	// means all projects are relevant.
	Projects []string
}

// StepError marks which step of the sync chain failed. Later steps never
// run after a failure; the cycle is simply abandoned until the next run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("tracker sync %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// SyncResult is the outcome of one completed sync cycle.
type SyncResult struct {
	CloudID        string
	Projects       []models.TrackerProject
	IssueCount     int
	TokenRefreshed bool
}

// Session owns the tracker token namespace in the store and drives the
// sync chain. It never touches the primary session's keys.
type Session struct {
	cfg   Config
	store tokenstore.Store

	// HTTPClient is overridable in tests.
	HTTPClient *http.Client

	now func() time.Time
}

// NewSession creates a tracker session backed by the given store.
func NewSession(cfg Config, store tokenstore.Store) *Session {
	return &Session{
		cfg:        cfg,
		store:      store,
		HTTPClient: http.DefaultClient,
		now:        time.Now,
	}
}

// Sync runs one cycle of the tracker chain, strictly in order: token,
// cloud id, projects, issues, aggregation. Each step's output feeds the
// next, so the first failure aborts the remainder of the cycle.
func (s *Session) Sync(ctx context.Context) (*SyncResult, error) {
	token, refreshed, err := s.ensureToken(ctx)
	if err != nil {
		return nil, &StepError{Step: "token", Err: err}
	}

	cloudID, err := s.resolveCloudID(ctx, token)
	if err != nil {
		return nil, &StepError{Step: "cloud-id", Err: err}
	}

	projects, err := s.fetchProjects(ctx, token, cloudID)
	if err != nil {
		return nil, &StepError{Step: "projects", Err: err}
	}

	issues, err := s.fetchIssues(ctx, token, cloudID)
	if err != nil {
		return nil, &StepError{Step: "issues", Err: err}
	}

	relevant := aggregate.FilterIssues(issues, s.cfg.Projects)
	merged := aggregate.MergeIntoProjects(relevant, projects)

	slog.Debug("tracker sync complete",
		"cloudId", cloudID, "projects", len(merged), "issues", len(relevant))

	return &SyncResult{
		CloudID:        cloudID,
		Projects:       merged,
		IssueCount:     len(relevant),
		TokenRefreshed: refreshed,
	}, nil
}

// ensureToken returns a usable tracker access token, fetching a fresh one
// only when the cached token is absent or past its expiry.
func (s *Session) ensureToken(ctx context.Context) (string, bool, error) {
	cached, err := s.store.GetToken(ctx, tokenstore.KeyTrackerToken)
	if err != nil {
		return "", false, fmt.Errorf("load cached token: %w", err)
	}
	if cached.Valid(s.now()) {
		return cached.AccessToken, false, nil
	}

	cfg := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: s.cfg.TokenURL},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: s.cfg.RefreshToken}).Token()
	if err != nil {
		return "", false, fmt.Errorf("fetch token: %w", err)
	}

	err = s.store.SetToken(ctx, tokenstore.KeyTrackerToken, &models.Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry,
	})
	if err != nil {
		return "", false, fmt.Errorf("persist token: %w", err)
	}
	// The expiry is also kept as its own entry so other consumers of the
	// store can check it without decoding the token row.
	err = s.store.SetString(ctx, tokenstore.KeyTrackerExpiry,
		strconv.FormatInt(tok.Expiry.UnixMilli(), 10))
	if err != nil {
		return "", false, fmt.Errorf("persist expiry: %w", err)
	}

	return tok.AccessToken, true, nil
}

// resolveCloudID resolves the tracker's cloud/instance identifier and
// persists it alongside the token. All subsequent tracker calls are
// scoped by it.
func (s *Session) resolveCloudID(ctx context.Context, token string) (string, error) {
	var resources []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := s.getJSON(ctx, token, "/oauth/token/accessible-resources", &resources); err != nil {
		return "", err
	}
	if len(resources) == 0 {
		return "", fmt.Errorf("no accessible cloud instance")
	}

	cloudID := resources[0].ID
	if err := s.store.SetString(ctx, tokenstore.KeyCloudID, cloudID); err != nil {
		return "", fmt.Errorf("persist cloud id: %w", err)
	}
	return cloudID, nil
}

func (s *Session) fetchProjects(ctx context.Context, token, cloudID string) ([]models.TrackerProject, error) {
	var projects []models.TrackerProject
	path := fmt.Sprintf("/ex/jira/%s/rest/api/3/project", cloudID)
	if err := s.getJSON(ctx, token, path, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// searchResponse is the relevant subset of the tracker's issue search
// response.
type searchResponse struct {
	Issues []struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  struct {
				Name string `json:"name"`
			} `json:"status"`
			Project struct {
				ID string `json:"id"`
			} `json:"project"`
		} `json:"fields"`
	} `json:"issues"`
}

func (s *Session) fetchIssues(ctx context.Context, token, cloudID string) ([]models.TrackerIssue, error) {
	var resp searchResponse
	path := fmt.Sprintf("/ex/jira/%s/rest/api/3/search", cloudID)
	if err := s.getJSON(ctx, token, path, &resp); err != nil {
		return nil, err
	}

	issues := make([]models.TrackerIssue, 0, len(resp.Issues))
	for _, raw := range resp.Issues {
		issues = append(issues, models.TrackerIssue{
			ID:        raw.ID,
			Key:       raw.Key,
			ProjectID: raw.Fields.Project.ID,
			Summary:   raw.Fields.Summary,
			Status:    raw.Fields.Status.Name,
		})
	}
	return issues, nil
}

func (s *Session) getJSON(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
