package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/projview/projview/internal/models"
	"github.com/projview/projview/internal/tokenstore"
)

// TenantConfig holds the OAuth settings for one identity provider tenant.
type TenantConfig struct {
	Name        string
	ClientID    string
	AuthURL     string
	TokenURL    string
	RedirectURL string
	ProfileURL  string
}

// Consent performs the interactive portion of a login: it presents the
// authorization URL to the user and returns the resulting code. The real
// implementation opens a browser and listens on the redirect URL; tests
// substitute a fake.
type Consent interface {
	Authorize(ctx context.Context, authURL, state string) (code string, err error)
}

// LoginResult is the outcome of a successful interactive login.
type LoginResult struct {
	SessionID   string
	Account     string
	AccessToken string
}

// Session manages one tenant's token lifecycle: interactive login, silent
// refresh, cached-account lookup, and logout. Tokens are persisted to the
// store as a side effect; the Session is their only writer.
type Session struct {
	cfg     TenantConfig
	oauth   *oauth2.Config
	store   tokenstore.Store
	consent Consent

	// HTTPClient is used for the profile fetch and for the token
	// endpoint. Overridable in tests.
	HTTPClient *http.Client

	now func() time.Time
}

// NewSession creates a session bound to a single tenant. Initialize must
// be called before any other operation.
func NewSession(cfg TenantConfig, store tokenstore.Store, consent Consent) *Session {
	return &Session{
		cfg:        cfg,
		store:      store,
		consent:    consent,
		HTTPClient: http.DefaultClient,
		now:        time.Now,
	}
}

// Tenant returns the tenant this session is bound to.
func (s *Session) Tenant() string { return s.cfg.Name }

// Initialize validates the tenant configuration and prepares the OAuth
// client. A failure here is fatal for the tenant: it is surfaced to the
// caller and never retried.
func (s *Session) Initialize() error {
	switch {
	case s.cfg.Name == "":
		return fmt.Errorf("initialize tenant: name is empty")
	case s.cfg.ClientID == "":
		return fmt.Errorf("initialize tenant %s: client id is empty", s.cfg.Name)
	case s.cfg.AuthURL == "" || s.cfg.TokenURL == "":
		return fmt.Errorf("initialize tenant %s: endpoint URLs are empty", s.cfg.Name)
	}

	s.oauth = &oauth2.Config{
		ClientID:    s.cfg.ClientID,
		RedirectURL: s.cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.cfg.AuthURL,
			TokenURL: s.cfg.TokenURL,
		},
	}
	return nil
}

// Login runs the interactive consent flow, then immediately performs a
// silent token acquisition bound to the account it returned. On success
// the token and display name are persisted under the current-session keys
// and the tenant's cached account is updated. Callers must not retry a
// failed login automatically.
func (s *Session) Login(ctx context.Context, scopes []string) (*LoginResult, error) {
	if s.oauth == nil {
		return nil, &Error{Tenant: s.cfg.Name, Op: "login", Err: fmt.Errorf("session not initialized")}
	}

	cfg := *s.oauth
	cfg.Scopes = scopes

	state, err := randomState()
	if err != nil {
		return nil, &Error{Tenant: s.cfg.Name, Op: "login", Err: err}
	}
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	code, err := s.consent.Authorize(ctx, authURL, state)
	if err != nil {
		return nil, &Error{Tenant: s.cfg.Name, Op: "login", Err: err}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &Error{Tenant: s.cfg.Name, Op: "login", Err: err}
	}

	// Silent exchange for the same scopes, bound to the account the
	// consent flow returned. This is the token that gets persisted.
	tok, err = cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, &Error{Tenant: s.cfg.Name, Op: "login", Err: err}
	}

	account := s.fetchDisplayName(ctx, tok.AccessToken)

	if err := s.persistSession(ctx, tok, account); err != nil {
		return nil, err
	}

	id, err := s.store.RecordLogin(ctx, s.cfg.Name, account)
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	slog.Info("logged in", "tenant", s.cfg.Name, "account", account)
	return &LoginResult{SessionID: id, Account: account, AccessToken: tok.AccessToken}, nil
}

// RefreshSilently acquires a fresh access token for the first cached
// account of this tenant. With no cached account it is a no-op and
// returns an empty token: the state stays "not logged in" until an
// explicit Login. A refresh the provider rejects (consent revoked) ends
// the session: the cached account and session keys are cleared and an
// *Error is returned, so the user is signed out until the next Login.
func (s *Session) RefreshSilently(ctx context.Context, scopes []string) (string, error) {
	if s.oauth == nil {
		return "", &Error{Tenant: s.cfg.Name, Op: "refresh", Err: fmt.Errorf("session not initialized")}
	}

	refresh, err := s.store.GetString(ctx, tokenstore.AccountKey(s.cfg.Name))
	if err != nil {
		return "", fmt.Errorf("load cached account: %w", err)
	}
	if refresh == "" {
		return "", nil
	}

	cfg := *s.oauth
	cfg.Scopes = scopes

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		// A provider rejection means consent was revoked; the session is
		// over. A transport failure is transient and leaves state alone.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			if clearErr := s.Logout(ctx); clearErr != nil {
				slog.Warn("clear session after rejected refresh failed",
					"tenant", s.cfg.Name, "error", clearErr)
			} else {
				slog.Info("session ended: refresh rejected", "tenant", s.cfg.Name)
			}
		}
		return "", &Error{Tenant: s.cfg.Name, Op: "refresh", Err: err}
	}

	account, err := s.store.GetString(ctx, tokenstore.KeyUserName)
	if err != nil {
		return "", fmt.Errorf("load user name: %w", err)
	}
	if err := s.persistSession(ctx, tok, account); err != nil {
		return "", err
	}

	slog.Debug("token refreshed", "tenant", s.cfg.Name, "expires", tok.Expiry)
	return tok.AccessToken, nil
}

// BearerToken returns a token usable for an authenticated backend call.
// A stored token that is still valid is returned as is; an absent or
// expired one triggers a silent re-acquisition first. ErrNotLoggedIn is
// returned when there is nothing to refresh from.
func (s *Session) BearerToken(ctx context.Context, scopes []string) (string, error) {
	tok, err := s.store.GetToken(ctx, tokenstore.KeyAccessToken)
	if err != nil {
		return "", fmt.Errorf("load access token: %w", err)
	}
	if tok.Valid(s.now()) {
		return tok.AccessToken, nil
	}

	token, err := s.RefreshSilently(ctx, scopes)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

// CachedAccount reports whether this tenant has a cached account from a
// previous login.
func (s *Session) CachedAccount(ctx context.Context) (bool, error) {
	refresh, err := s.store.GetString(ctx, tokenstore.AccountKey(s.cfg.Name))
	if err != nil {
		return false, fmt.Errorf("load cached account: %w", err)
	}
	return refresh != "", nil
}

// Logout clears the current-session keys and this tenant's cached
// account. Tracker keys are owned by the tracker session and are left in
// place.
func (s *Session) Logout(ctx context.Context) error {
	return s.store.Clear(ctx,
		tokenstore.KeyAccessToken,
		tokenstore.KeyUserName,
		tokenstore.KeyTenant,
		tokenstore.AccountKey(s.cfg.Name),
	)
}

func (s *Session) persistSession(ctx context.Context, tok *oauth2.Token, account string) error {
	err := s.store.SetToken(ctx, tokenstore.KeyAccessToken, &models.Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry,
	})
	if err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := s.store.SetString(ctx, tokenstore.KeyUserName, account); err != nil {
		return fmt.Errorf("persist user name: %w", err)
	}
	if err := s.store.SetString(ctx, tokenstore.KeyTenant, s.cfg.Name); err != nil {
		return fmt.Errorf("persist tenant: %w", err)
	}
	if tok.RefreshToken != "" {
		if err := s.store.SetString(ctx, tokenstore.AccountKey(s.cfg.Name), tok.RefreshToken); err != nil {
			return fmt.Errorf("persist account: %w", err)
		}
	}
	return nil
}

// fetchDisplayName asks the provider's profile endpoint for the account's
// display name. Best-effort: a failure degrades to an empty name, it
// never fails the login.
func (s *Session) fetchDisplayName(ctx context.Context, accessToken string) string {
	if s.cfg.ProfileURL == "" {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ProfileURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		slog.Warn("profile fetch failed", "tenant", s.cfg.Name, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("profile fetch failed", "tenant", s.cfg.Name, "status", resp.StatusCode)
		return ""
	}

	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return ""
	}
	return profile.DisplayName
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
