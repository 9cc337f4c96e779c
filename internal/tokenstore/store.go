package tokenstore

import (
	"context"

	"github.com/projview/projview/internal/models"
)

// Storage keys. The two session components share one store but write
// disjoint keys, so there is no cross-provider interference.
const (
	KeyAccessToken   = "accessToken"
	KeyUserName      = "userName"
	KeyTenant        = "tenant"
	KeyTrackerToken  = "accessTokenJira"
	KeyTrackerExpiry = "accessTokenJiraExpiration"
	KeyCloudID       = "cloudId"
)

// AccountKey returns the storage key for a tenant's cached account
// (refresh credential). One entry per tenant, written at login.
func AccountKey(tenant string) string {
	return "account:" + tenant
}

// Store is durable key-value storage for tokens and session strings. It
// does not validate token content and makes no network calls; expiry
// comparison is the caller's responsibility.
type Store interface {
	GetToken(ctx context.Context, key string) (*models.Token, error)
	SetToken(ctx context.Context, key string, tok *models.Token) error
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	Clear(ctx context.Context, keys ...string) error

	// RecordLogin appends a login audit entry and returns its id.
	RecordLogin(ctx context.Context, tenant, userName string) (string, error)
	// LastLogin returns the tenant and user of the most recent login,
	// or empty strings when no login has been recorded.
	LastLogin(ctx context.Context) (tenant, userName string, err error)

	Migrate(ctx context.Context) error
	Close() error
}
