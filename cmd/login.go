package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/projview/projview/internal/output"
)

var loginTenant string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to a tenant",
	Long: `Sign in interactively: opens the tenant's consent page in a browser
and waits for the redirect. On success the session is persisted, so later
commands run without re-authenticating until the token expires.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return loginRun()
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of the current session",
	Long: `Clear the current session and the tenant's cached account. The
issue tracker's own session is unaffected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return logoutRun()
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginTenant, "tenant", "", "Tenant to sign in to (default from config)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func loginRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tenant := loginTenant
	if tenant == "" {
		tenant = viper.GetString("default_tenant")
	}

	session, err := newTenantSession(tenant, s)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would sign in to tenant %s", tenant)
		return nil
	}

	res, err := session.Login(ctx, viper.GetStringSlice("backend.scopes"))
	if err != nil {
		return err
	}

	account := res.Account
	if account == "" {
		account = "(unknown account)"
	}
	ui.Success("Signed in to %s as %s", output.Cyan(tenant), account)

	// Kick the tracker session so issue counts are warm for the first
	// listing. Best-effort: the tracker is independent of the login.
	if ts := newTrackerSession(s); ts != nil {
		if _, err := ts.Sync(ctx); err != nil {
			ui.VerboseLog("tracker sync after login failed: %v", err)
		}
	}
	return nil
}

func logoutRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	session, err := currentSession(ctx, s)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would sign out of tenant %s", session.Tenant())
		return nil
	}

	if err := session.Logout(ctx); err != nil {
		return err
	}
	ui.Success("Signed out of %s", session.Tenant())
	return nil
}
