// Package auth provides connection authenticators and the token stores
// they read credentials from.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoToken is returned by a TokenStore when no token is stored under the
// requested key.
var ErrNoToken = errors.New("no token stored")

// AuthError represents an authentication failure raised by an authenticator.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication error: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError checks if the error is an authentication error.
func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// Token is an access token with an optional refresh token.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the token has a known expiry at or before now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Redacted returns the access token with everything but the last four
// characters masked.
func (t Token) Redacted() string {
	return redact(t.AccessToken)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// TokenSource supplies the token for an outgoing request.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// TokenStore persists tokens under a key, typically a profile name.
type TokenStore interface {
	Load(ctx context.Context, key string) (Token, error)
	Save(ctx context.Context, key string, tok Token) error
	Delete(ctx context.Context, key string) error
}

// StaticTokenSource always returns the same access token.
type StaticTokenSource string

// Token implements TokenSource.
func (s StaticTokenSource) Token(context.Context) (Token, error) {
	if s == "" {
		return Token{}, ErrNoToken
	}
	return Token{AccessToken: string(s)}, nil
}

// StoreSource reads the token for Key from Store on every request.
type StoreSource struct {
	Store TokenStore
	Key   string
}

// Token implements TokenSource.
func (s StoreSource) Token(ctx context.Context) (Token, error) {
	return s.Store.Load(ctx, s.Key)
}
