// Package auth drives the OAuth lifecycle for the primary identity
// provider. The provider is configured with two tenants; each tenant gets
// its own Session instance, so which tenant a call targets is always
// explicit and never derived from ambient state.
package auth

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn is returned by operations that require an authenticated
// primary session when none exists.
var ErrNotLoggedIn = errors.New("not logged in")

// Error is an authentication failure: a rejected login or silent refresh.
// It is user-facing and forces a re-login; callers must not retry
// automatically.
type Error struct {
	Tenant string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth %s (tenant %s): %v", e.Op, e.Tenant, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
