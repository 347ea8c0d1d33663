package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type ContextKey string

const (
	skipAuthContextKey ContextKey = "skip_auth"
)

// TokenSource is the read side of the token store.
type TokenSource interface {
	Load(ctx context.Context) (string, bool, error)
}

// WithoutAuth marks a request context so AuthTransport sends it without a
// bearer credential even when one is stored.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthContextKey, true)
}

func authSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(skipAuthContextKey).(bool)
	return skip
}

// AuthTransport attaches the stored credential and reports 401 responses to
// requests that carried it. That hook is the single path by which a stale
// credential gets discarded.
type AuthTransport struct {
	Base           http.RoundTripper
	Tokens         TokenSource
	OnUnauthorized func(req *http.Request, resp *http.Response)
	Log            logrus.FieldLogger
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	authed := false

	if !authSkipped(ctx) && t.Tokens != nil {
		token, ok, err := t.Tokens.Load(ctx)
		if err != nil {
			// an unreadable store behaves like an empty one
			t.logger().WithError(err).Warn("failed to load token, sending unauthenticated")
		} else if ok {
			req = req.Clone(ctx)
			req.Header.Set("Authorization", "Bearer "+token)
			authed = true
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if authed && resp.StatusCode == http.StatusUnauthorized && t.OnUnauthorized != nil {
		t.OnUnauthorized(req, resp)
	}
	return resp, nil
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *AuthTransport) logger() logrus.FieldLogger {
	if t.Log != nil {
		return t.Log
	}
	return logrus.StandardLogger()
}

// BearerToken extracts the credential from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization format")
	}
	return parts[1], nil
}
