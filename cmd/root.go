package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/projview/projview/internal/auth"
	"github.com/projview/projview/internal/output"
	"github.com/projview/projview/internal/projects"
	"github.com/projview/projview/internal/tokenstore"
	"github.com/projview/projview/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore tokenstore.Store

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "projview",
	Short: "Project dashboard - browse projects and their tracker issues",
	Long: `projview signs in to the project backend, keeps the session fresh,
and shows the project list enriched with issue counts pulled from the
issue tracker.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/projview/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "projview")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PROJVIEW")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "projview")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "projview.db"))
	viper.SetDefault("default_tenant", "nxt")
	viper.SetDefault("login.listen_addr", "127.0.0.1:53682")

	viper.SetDefault("backend.base_url", "http://localhost:8080")
	viper.SetDefault("backend.scopes", []string{"api.read", "api.write"})

	for _, tenant := range []string{"nxt", "tuke"} {
		viper.SetDefault("tenants."+tenant+".client_id", "")
		viper.SetDefault("tenants."+tenant+".auth_url", "")
		viper.SetDefault("tenants."+tenant+".token_url", "")
		viper.SetDefault("tenants."+tenant+".redirect_url", "http://127.0.0.1:53682/callback")
		viper.SetDefault("tenants."+tenant+".profile_url", "")
	}

	viper.SetDefault("tracker.client_id", "")
	viper.SetDefault("tracker.client_secret", "")
	viper.SetDefault("tracker.token_url", "https://auth.atlassian.com/oauth/token")
	viper.SetDefault("tracker.api_base_url", "https://api.atlassian.com")
	viper.SetDefault("tracker.refresh_token", "")
	viper.SetDefault("tracker.projects", []string{})

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store opens lazily so config/version commands run without a db.
}

// rootRun handles `projview` with no subcommand: show the project list
// when a session exists, otherwise usage.
func rootRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return cmd.Help()
	}

	ctx := context.Background()
	session, err := currentSession(ctx, s)
	if err != nil {
		return cmd.Help()
	}
	if cached, err := session.CachedAccount(ctx); err != nil || !cached {
		return cmd.Help()
	}

	return projectsListRun()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (tokenstore.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := tokenstore.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// tenantConfig assembles one tenant's OAuth settings from viper.
func tenantConfig(name string) auth.TenantConfig {
	prefix := "tenants." + name + "."
	return auth.TenantConfig{
		Name:        name,
		ClientID:    viper.GetString(prefix + "client_id"),
		AuthURL:     viper.GetString(prefix + "auth_url"),
		TokenURL:    viper.GetString(prefix + "token_url"),
		RedirectURL: viper.GetString(prefix + "redirect_url"),
		ProfileURL:  viper.GetString(prefix + "profile_url"),
	}
}

// newTenantSession builds an initialized session for a configured tenant.
func newTenantSession(name string, store tokenstore.Store) (*auth.Session, error) {
	consent := &auth.BrowserConsent{
		ListenAddr: viper.GetString("login.listen_addr"),
		Out:        ui.Out,
	}
	session := auth.NewSession(tenantConfig(name), store, consent)
	if err := session.Initialize(); err != nil {
		return nil, err
	}
	return session, nil
}

// currentSession returns a session for the tenant of the last login, or
// the configured default tenant when no login is recorded.
func currentSession(ctx context.Context, store tokenstore.Store) (*auth.Session, error) {
	tenant, err := store.GetString(ctx, tokenstore.KeyTenant)
	if err != nil {
		return nil, err
	}
	if tenant == "" {
		tenant = viper.GetString("default_tenant")
	}
	return newTenantSession(tenant, store)
}

// loginHint rewrites auth failures as a re-login instruction. A rejected
// refresh has already ended the session, so the only way forward is a new
// interactive login; retrying the failed call would loop.
func loginHint(err error) error {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return fmt.Errorf("session expired, run 'projview login' to sign in again")
	}
	if errors.Is(err, auth.ErrNotLoggedIn) {
		return fmt.Errorf("not signed in (run 'projview login' first)")
	}
	return err
}

// newBackendClient wires the backend API client to the session's token
// lifecycle.
func newBackendClient(session *auth.Session) *projects.Client {
	scopes := viper.GetStringSlice("backend.scopes")
	return projects.NewClient(viper.GetString("backend.base_url"), func(ctx context.Context) (string, error) {
		return session.BearerToken(ctx, scopes)
	})
}

// newTrackerSession builds the issue tracker session from config. It
// returns nil when the tracker is not configured; callers degrade to
// unknown issue counts.
func newTrackerSession(store tokenstore.Store) *tracker.Session {
	cfg := tracker.Config{
		ClientID:     viper.GetString("tracker.client_id"),
		ClientSecret: viper.GetString("tracker.client_secret"),
		TokenURL:     viper.GetString("tracker.token_url"),
		RefreshToken: viper.GetString("tracker.refresh_token"),
		APIBaseURL:   viper.GetString("tracker.api_base_url"),
		Projects:     viper.GetStringSlice("tracker.projects"),
	}
	if cfg.ClientID == "" || cfg.RefreshToken == "" {
		return nil
	}
	return tracker.NewSession(cfg, store)
}
