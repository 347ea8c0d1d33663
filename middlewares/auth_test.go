package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Load(context.Context) (string, bool, error) {
	return s.token, s.token != "", s.err
}

func echoServer(t *testing.T, status int) (*httptest.Server, *http.Header) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestAuthTransport_AttachesBearer(t *testing.T) {
	srv, seen := echoServer(t, http.StatusOK)
	client := &http.Client{Transport: &AuthTransport{Tokens: staticTokens{token: "tok"}}}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok", seen.Get("Authorization"))
	// the caller's request is left untouched
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestAuthTransport_NoTokenOrSkipped(t *testing.T) {
	tests := []struct {
		name   string
		tokens TokenSource
		ctx    context.Context
	}{
		{"no token", staticTokens{}, context.Background()},
		{"store error", staticTokens{err: errors.New("disk gone")}, context.Background()},
		{"skipped", staticTokens{token: "tok"}, WithoutAuth(context.Background())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, seen := echoServer(t, http.StatusOK)
			client := &http.Client{Transport: &AuthTransport{Tokens: tt.tokens}}

			req, _ := http.NewRequestWithContext(tt.ctx, http.MethodGet, srv.URL, nil)
			resp, err := client.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Empty(t, seen.Get("Authorization"))
		})
	}
}

func TestAuthTransport_UnauthorizedHook(t *testing.T) {
	srv, _ := echoServer(t, http.StatusUnauthorized)

	calls := 0
	transport := &AuthTransport{
		Tokens:         staticTokens{token: "stale"},
		OnUnauthorized: func(*http.Request, *http.Response) { calls++ },
	}
	client := &http.Client{Transport: transport}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, calls)

	// a 401 on an anonymous request (bad login) is not a session expiry
	req, _ := http.NewRequestWithContext(WithoutAuth(context.Background()), http.MethodGet, srv.URL, nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, calls)
}

func TestChain_SetsRequestID(t *testing.T) {
	srv, seen := echoServer(t, http.StatusOK)
	client := &http.Client{Transport: Chain(nil, staticTokens{}, nil, nil)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, seen.Get(RequestIDHeader), 36)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer a b", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, err := BearerToken(r)
		if tt.ok {
			require.NoError(t, err, tt.header)
			assert.Equal(t, tt.want, got)
		} else {
			assert.Error(t, err, tt.header)
		}
	}
}
