package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

// HeaderAuthorization carries bearer tokens.
const HeaderAuthorization = "Authorization"

// StaticHeader sets a fixed header on every request, such as an API key.
type StaticHeader struct {
	Name  string
	Value string
}

var _ connection.Authenticator = StaticHeader{}

// InterceptRequest implements connection.Authenticator.
func (a StaticHeader) InterceptRequest(_ context.Context, req connection.Request) (connection.Request, error) {
	if a.Name == "" {
		return connection.Request{}, &AuthError{Reason: "header name is empty"}
	}
	return req.WithHeader(a.Name, a.Value), nil
}

// OnResponse implements connection.Authenticator.
func (StaticHeader) OnResponse(context.Context, connection.Request, *connection.Response, connection.Invoker) (*connection.Response, error) {
	return nil, nil
}

// Bearer sends the token from Source as "Authorization: Bearer <token>".
type Bearer struct {
	Source TokenSource
}

var _ connection.Authenticator = Bearer{}

// InterceptRequest implements connection.Authenticator.
func (a Bearer) InterceptRequest(ctx context.Context, req connection.Request) (connection.Request, error) {
	if a.Source == nil {
		return connection.Request{}, &AuthError{Reason: "no token source configured"}
	}
	tok, err := a.Source.Token(ctx)
	if err != nil {
		return connection.Request{}, tokenError(err)
	}
	return withBearer(req, tok.AccessToken), nil
}

// OnResponse implements connection.Authenticator.
func (Bearer) OnResponse(context.Context, connection.Request, *connection.Response, connection.Invoker) (*connection.Response, error) {
	return nil, nil
}

func tokenError(err error) error {
	if errors.Is(err, ErrNoToken) {
		return &AuthError{Reason: "no access token configured", Err: err}
	}
	return &AuthError{Reason: "failed to load access token", Err: err}
}

func withBearer(req connection.Request, token string) connection.Request {
	return req.WithHeader(HeaderAuthorization, "Bearer "+token)
}

// bearerToken extracts the token from the request's Authorization header.
func bearerToken(req connection.Request) string {
	for name, value := range req.Headers {
		if strings.EqualFold(name, HeaderAuthorization) {
			return strings.TrimPrefix(value, "Bearer ")
		}
	}
	return ""
}
