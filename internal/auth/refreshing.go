package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/debug"
)

// DefaultRefreshPath is the endpoint refresh tokens are exchanged at.
const DefaultRefreshPath = "/auth/refresh"

// Refreshing sends the stored bearer token and, when the API answers 401,
// exchanges the refresh token for a new one and replays the request once.
//
// Concurrent refreshes for the same key are coalesced. A request that failed
// with a token another goroutine has already replaced is replayed with the
// stored token without refreshing again.
type Refreshing struct {
	Store       TokenStore
	Key         string
	RefreshPath string
	Now         func() time.Time

	group singleflight.Group
}

var _ connection.Authenticator = (*Refreshing)(nil)

// NewRefreshing creates a Refreshing authenticator for the token stored
// under key.
func NewRefreshing(store TokenStore, key string) *Refreshing {
	return &Refreshing{Store: store, Key: key, RefreshPath: DefaultRefreshPath, Now: time.Now}
}

// InterceptRequest implements connection.Authenticator.
func (a *Refreshing) InterceptRequest(ctx context.Context, req connection.Request) (connection.Request, error) {
	tok, err := a.Store.Load(ctx, a.Key)
	if err != nil {
		return connection.Request{}, tokenError(err)
	}
	return withBearer(req, tok.AccessToken), nil
}

// OnResponse implements connection.Authenticator.
func (a *Refreshing) OnResponse(ctx context.Context, req connection.Request, resp *connection.Response, conn connection.Invoker) (*connection.Response, error) {
	if resp == nil || resp.Status != http.StatusUnauthorized {
		return nil, nil
	}

	// The shared refresh outlives a cancelled first caller.
	stale := bearerToken(req)
	refreshCtx := context.WithoutCancel(ctx)
	v, err, shared := a.group.Do(a.Key, func() (any, error) {
		return a.refresh(refreshCtx, stale, conn)
	})
	if err != nil {
		return nil, err
	}
	tok := v.(Token)
	if debug.IsEnabled(ctx) {
		slog.Debug("replaying request with refreshed token", "type", req.Type, "path", req.Path, "shared", shared)
	}

	// The replay goes straight to the transport; this chain still runs the
	// remaining stages on its response.
	replay := withBearer(req.Clone(), tok.AccessToken)
	replay.Authenticators = nil
	replay.ResponseInterceptors = nil
	return conn.Invoke(ctx, replay)
}

func (a *Refreshing) refresh(ctx context.Context, stale string, conn connection.Invoker) (Token, error) {
	current, err := a.Store.Load(ctx, a.Key)
	if err != nil {
		return Token{}, tokenError(err)
	}
	if current.AccessToken != "" && current.AccessToken != stale {
		return current, nil
	}
	if current.RefreshToken == "" {
		return Token{}, &AuthError{Reason: "access token rejected and no refresh token stored"}
	}

	path := a.RefreshPath
	if path == "" {
		path = DefaultRefreshPath
	}
	if debug.IsEnabled(ctx) {
		slog.Debug("refreshing access token", "key", a.Key, "path", path)
	}
	resp, err := conn.Invoke(ctx, connection.Request{
		Type:       connection.RequestPost,
		Path:       path,
		Parameters: map[string]any{"refresh_token": current.RefreshToken},
	})
	if err != nil {
		return Token{}, &AuthError{Reason: "token refresh failed", Err: err}
	}
	if !resp.OK() {
		return Token{}, &AuthError{Reason: "token refresh failed", Err: fmt.Errorf("status %d", resp.Status)}
	}

	next, err := a.parseRefresh(resp.Body)
	if err != nil {
		return Token{}, &AuthError{Reason: "token refresh failed", Err: err}
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if err := a.Store.Save(ctx, a.Key, next); err != nil {
		return Token{}, fmt.Errorf("failed to store refreshed token: %w", err)
	}
	return next, nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (a *Refreshing) parseRefresh(body []byte) (Token, error) {
	var r refreshResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Token{}, fmt.Errorf("invalid refresh response: %w", err)
	}
	if r.AccessToken == "" {
		return Token{}, fmt.Errorf("refresh response has no access_token")
	}
	tok := Token{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	if r.ExpiresIn > 0 {
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		tok.ExpiresAt = now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok, nil
}
