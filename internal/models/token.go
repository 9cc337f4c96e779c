package models

import "time"

// Token is a bearer access token with its expiry, one per identity
// provider. A token is usable only while now < ExpiresAt; an absent or
// expired token forces a fresh acquisition before any authenticated call.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still authenticate a call at now.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}
