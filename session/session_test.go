package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/client"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/tokenstore"
	"github.com/ray-remotestate/restroclient/utils"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method, path string
	body         any
	anonymous    bool
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []call
	fn    func(method, path string, body any) (*client.Response, error)
}

func (g *fakeGateway) Do(_ context.Context, method, path string, body any, opts ...client.RequestOption) (*client.Response, error) {
	g.mu.Lock()
	anonymous := client.Settings(opts...).SkipAuth
	g.calls = append(g.calls, call{method: method, path: path, body: body, anonymous: anonymous})
	g.mu.Unlock()
	resp, err := g.fn(method, path, body)
	if resp != nil {
		resp.Anonymous = anonymous
	}
	return resp, err
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func jsonResp(status int, v any) *client.Response {
	b, _ := json.Marshal(v)
	return &client.Response{Status: status, Body: b}
}

func newManager(t *testing.T, fn func(method, path string, body any) (*client.Response, error)) (*Manager, *fakeGateway, *tokenstore.MemoryStore) {
	gw := &fakeGateway{fn: fn}
	tokens := tokenstore.NewMemoryStore()
	logger, _ := test.NewNullLogger()
	return New(gw, tokens, logger), gw, tokens
}

func validToken(t *testing.T, ttl time.Duration) string {
	token, err := utils.GenerateAccessToken([]byte("k"), models.User{ID: 1, Username: "alice"}, ttl)
	require.NoError(t, err)
	return token
}

var alice = models.User{ID: 1, Username: "alice", FullName: "Alice", Role: models.RoleUser}

func TestReconcile_NoToken(t *testing.T) {
	m, gw, _ := newManager(t, nil)

	state, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Anonymous, state)
	assert.Equal(t, 0, gw.count())
}

func TestReconcile_ValidToken(t *testing.T) {
	m, gw, tokens := newManager(t, func(method, path string, _ any) (*client.Response, error) {
		assert.Equal(t, http.MethodGet, method)
		assert.Equal(t, "/auth/me", path)
		return jsonResp(200, alice), nil
	})
	require.NoError(t, tokens.Save(context.Background(), validToken(t, time.Hour)))

	var seen []State
	m.Subscribe(func(s State, _ *models.User) { seen = append(seen, s) })

	state, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Authenticated, state)
	assert.Equal(t, []State{Authenticating, Authenticated}, seen)
	assert.Equal(t, "alice", m.User().Username)
	assert.Equal(t, 1, gw.count())
}

func TestReconcile_Unauthorized_ClearsToken(t *testing.T) {
	m, _, tokens := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(401, map[string]string{"message": "Token is invalid!"}), nil
	})
	require.NoError(t, tokens.Save(context.Background(), validToken(t, time.Hour)))

	state, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Anonymous, state)
	assert.Nil(t, m.User())

	_, ok, _ := tokens.Load(context.Background())
	assert.False(t, ok)
}

func TestReconcile_TransientFailure_KeepsToken(t *testing.T) {
	tests := []struct {
		name string
		resp *client.Response
		err  error
	}{
		{"network", nil, apperrors.Network(errors.New("refused"))},
		{"server error", jsonResp(500, map[string]string{"error": "db down"}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, tokens := newManager(t, func(string, string, any) (*client.Response, error) {
				return tt.resp, tt.err
			})
			token := validToken(t, time.Hour)
			require.NoError(t, tokens.Save(context.Background(), token))

			state, err := m.Reconcile(context.Background())
			assert.Error(t, err)
			assert.Equal(t, Anonymous, state)

			stored, ok, _ := tokens.Load(context.Background())
			assert.True(t, ok)
			assert.Equal(t, token, stored)
		})
	}
}

func TestReconcile_LocallyExpiredToken(t *testing.T) {
	m, gw, tokens := newManager(t, nil)
	require.NoError(t, tokens.Save(context.Background(), validToken(t, -time.Minute)))

	state, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Expired, state)
	assert.Equal(t, 0, gw.count())
	assert.False(t, m.IsAuthenticated())

	_, ok, _ := tokens.Load(context.Background())
	assert.False(t, ok)
}

func TestReconcile_ConcurrentCallsShareRequest(t *testing.T) {
	release := make(chan struct{})
	var hits int32
	m, _, tokens := newManager(t, func(string, string, any) (*client.Response, error) {
		atomic.AddInt32(&hits, 1)
		<-release
		return jsonResp(200, alice), nil
	})
	require.NoError(t, tokens.Save(context.Background(), validToken(t, time.Hour)))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Reconcile(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.True(t, m.IsAuthenticated())
}

func TestLogin_Success(t *testing.T) {
	token := validToken(t, time.Hour)
	m, gw, tokens := newManager(t, func(method, path string, body any) (*client.Response, error) {
		assert.Equal(t, "/auth/login", path)
		assert.Equal(t, models.Credentials{Username: "alice", Password: "secret1"}, body)
		return jsonResp(200, models.LoginResponse{AccessToken: token, User: &alice}), nil
	})

	user, err := m.Login(context.Background(), " alice ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName())
	assert.Equal(t, Authenticated, m.State())
	assert.True(t, gw.calls[0].anonymous)

	stored, ok, _ := tokens.Load(context.Background())
	assert.True(t, ok)
	assert.Equal(t, token, stored)
}

func TestLogin_WrongPassword_SurfacesServerMessage(t *testing.T) {
	m, _, tokens := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(401, map[string]string{"error": "用户名或密码错误"}), nil
	})

	_, err := m.Login(context.Background(), "alice", "nope")
	require.Error(t, err)
	assert.Equal(t, "用户名或密码错误", err.Error())
	assert.Equal(t, Anonymous, m.State())

	_, ok, _ := tokens.Load(context.Background())
	assert.False(t, ok)
}

func TestLogin_MalformedResponse(t *testing.T) {
	m, _, _ := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(200, map[string]string{"message": "ok"}), nil
	})

	_, err := m.Login(context.Background(), "alice", "secret1")
	assert.ErrorIs(t, err, apperrors.ErrDataShape)
	assert.Equal(t, Anonymous, m.State())
}

func TestLogin_EmptyFields(t *testing.T) {
	m, gw, _ := newManager(t, nil)
	_, err := m.Login(context.Background(), "  ", "x")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, gw.count())
}

func TestRegister_PasswordLength(t *testing.T) {
	m, gw, _ := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(201, map[string]any{"message": "用户注册成功", "user_id": 9}), nil
	})

	err := m.Register(context.Background(), models.Registration{Username: "bob", Password: "12345"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, gw.count())

	err = m.Register(context.Background(), models.Registration{Username: "bob", Password: "123456"})
	require.NoError(t, err)
	assert.Equal(t, 1, gw.count())
	assert.Equal(t, "/auth/register", gw.calls[0].path)

	// registering does not log in
	assert.Equal(t, Anonymous, m.State())
}

func TestRegister_Validation(t *testing.T) {
	m, gw, _ := newManager(t, nil)
	for _, reg := range []models.Registration{
		{Username: "", Password: "secret1"},
		{Username: "bob", Password: ""},
		{Username: "   ", Password: "secret1"},
	} {
		assert.ErrorIs(t, m.Register(context.Background(), reg), apperrors.ErrValidation)
	}
	assert.Equal(t, 0, gw.count())
}

func TestRegister_Conflict(t *testing.T) {
	m, _, _ := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(409, map[string]string{"error": "用户名已存在"}), nil
	})
	err := m.Register(context.Background(), models.Registration{Username: "bob", Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrServer)
	assert.Equal(t, "用户名已存在", err.Error())
}

func TestLogout_ClearsEverythingAndRunsHooks(t *testing.T) {
	m, _, tokens := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(200, models.LoginResponse{AccessToken: "t", User: &alice}), nil
	})
	_, err := m.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	hookRan := false
	m.OnLogout(func() { hookRan = true })
	m.Logout(context.Background())

	assert.True(t, hookRan)
	assert.Equal(t, Anonymous, m.State())
	assert.Nil(t, m.User())
	_, ok, _ := tokens.Load(context.Background())
	assert.False(t, ok)
}

func TestExpire_DoesNotRunLogoutHooks(t *testing.T) {
	m, _, tokens := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(200, models.LoginResponse{AccessToken: "t", User: &alice}), nil
	})
	_, err := m.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	hookRan := false
	m.OnLogout(func() { hookRan = true })

	err = m.Guard(context.Background(), apperrors.AuthExpired("Token has expired!", 401))
	assert.ErrorIs(t, err, apperrors.ErrAuthExpired)

	assert.False(t, hookRan)
	assert.Equal(t, Expired, m.State())
	assert.ErrorIs(t, m.RequireAuth(), apperrors.ErrAuthRequired)
	_, ok, _ := tokens.Load(context.Background())
	assert.False(t, ok)
}

func TestGuard_IgnoresOtherErrors(t *testing.T) {
	m, _, _ := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(200, models.LoginResponse{AccessToken: "t", User: &alice}), nil
	})
	_, err := m.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	_ = m.Guard(context.Background(), apperrors.Server("boom", 500))
	assert.True(t, m.IsAuthenticated())
}

func TestIsAdmin(t *testing.T) {
	admin := models.User{ID: 2, Username: "root", Role: models.RoleAdmin}
	m, _, _ := newManager(t, func(string, string, any) (*client.Response, error) {
		return jsonResp(200, models.LoginResponse{AccessToken: "t", User: &admin}), nil
	})
	assert.False(t, m.IsAdmin())
	_, err := m.Login(context.Background(), "root", "secret1")
	require.NoError(t, err)
	assert.True(t, m.IsAdmin())
}
