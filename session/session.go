// Package session tracks who is logged in. The persisted token is the source
// of truth for whether a credential exists; the in-memory user is rebuilt
// from it by Reconcile and dropped together with it.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/client"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/tokenstore"
	"github.com/ray-remotestate/restroclient/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const MinPasswordLength = 6

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	// Expired behaves like Anonymous but remembers that the last credential
	// was rejected, so the front end can say so.
	Expired
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	}
	return "unknown"
}

type Gateway interface {
	Do(ctx context.Context, method, path string, body any, opts ...client.RequestOption) (*client.Response, error)
}

type Listener func(state State, user *models.User)

type Manager struct {
	gw     Gateway
	tokens tokenstore.Store
	log    logrus.FieldLogger
	now    func() time.Time
	sf     singleflight.Group

	mu        sync.RWMutex
	state     State
	user      *models.User
	listeners []Listener
	onLogout  []func()
}

func New(gw Gateway, tokens tokenstore.Store, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		gw:     gw,
		tokens: tokens,
		log:    log.WithField("component", "session"),
		now:    time.Now,
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User returns a copy of the current user, or nil when nobody is logged in.
func (m *Manager) User() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) IsAuthenticated() bool {
	return m.State() == Authenticated
}

func (m *Manager) IsAdmin() bool {
	u := m.User()
	return u != nil && m.IsAuthenticated() && u.Role == models.RoleAdmin
}

// Subscribe registers fn to be called after every state change.
func (m *Manager) Subscribe(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// OnLogout registers fn to run on an explicit logout, not on expiry.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

func (m *Manager) set(state State, user *models.User) {
	m.mu.Lock()
	m.state = state
	m.user = user
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(state, user)
	}
}

// Reconcile rebuilds the session from the stored token. Concurrent calls
// share one round trip.
func (m *Manager) Reconcile(ctx context.Context) (State, error) {
	v, err, _ := m.sf.Do("reconcile", func() (interface{}, error) {
		return m.reconcile(ctx)
	})
	return v.(State), err
}

func (m *Manager) reconcile(ctx context.Context) (State, error) {
	token, ok, err := m.tokens.Load(ctx)
	if err != nil {
		m.log.WithError(err).Warn("failed to read stored token")
		m.set(Anonymous, nil)
		return Anonymous, err
	}
	if !ok {
		m.set(Anonymous, nil)
		return Anonymous, nil
	}

	if utils.TokenExpired(token, m.now()) {
		m.log.Info("stored token is past its expiry, discarding")
		m.clearToken(ctx)
		m.set(Expired, nil)
		return Expired, nil
	}

	m.set(Authenticating, nil)

	resp, err := m.gw.Do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		// keep the token: a flaky network must not cost the user their login
		m.log.WithError(err).Warn("could not validate stored token, continuing anonymously")
		m.set(Anonymous, nil)
		return Anonymous, err
	}

	var user models.User
	if err := client.DecodeJSON(resp, "user profile", &user); err != nil {
		if errors.Is(err, apperrors.ErrAuthExpired) {
			m.clearToken(ctx)
			m.set(Anonymous, nil)
			return Anonymous, nil
		}
		m.log.WithError(err).Warn("stored token validation failed, continuing anonymously")
		m.set(Anonymous, nil)
		return Anonymous, err
	}
	if user.Username == "" {
		m.set(Anonymous, nil)
		return Anonymous, apperrors.DataShape("user profile", errors.New("missing username"))
	}

	m.set(Authenticated, &user)
	m.log.WithField("username", user.Username).Info("session restored")
	return Authenticated, nil
}

// Login posts credentials without any bearer token. On failure the session
// stays as it was and the server's message is returned verbatim.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.Validation("username and password are required")
	}

	resp, err := m.gw.Do(ctx, http.MethodPost, "/auth/login",
		models.Credentials{Username: username, Password: password}, client.WithoutAuth())
	if err != nil {
		return nil, err
	}

	var out models.LoginResponse
	if err := client.DecodeJSON(resp, "login response", &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.User == nil {
		return nil, apperrors.DataShape("login response", errors.New("missing access_token or user"))
	}

	if err := m.tokens.Save(ctx, out.AccessToken); err != nil {
		return nil, err
	}

	user := *out.User
	m.set(Authenticated, &user)
	m.log.WithField("username", user.Username).Info("logged in")
	return m.User(), nil
}

// Register creates an account. It does not log the user in.
func (m *Manager) Register(ctx context.Context, reg models.Registration) error {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.FullName = strings.TrimSpace(reg.FullName)

	if reg.Username == "" || reg.Password == "" {
		return apperrors.Validation("username and password are required")
	}
	if utf8.RuneCountInString(reg.Password) < MinPasswordLength {
		return apperrors.Validation("password must be at least %d characters", MinPasswordLength)
	}

	resp, err := m.gw.Do(ctx, http.MethodPost, "/auth/register", reg, client.WithoutAuth())
	if err != nil {
		return err
	}
	return client.Check(resp)
}

// Logout drops the credential and the user, then runs the logout hooks.
func (m *Manager) Logout(ctx context.Context) {
	m.clearToken(ctx)
	m.set(Anonymous, nil)

	m.mu.RLock()
	hooks := append([]func(){}, m.onLogout...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
	m.log.Info("logged out")
}

// Expire handles a credential the server rejected. The cart is left alone.
func (m *Manager) Expire(ctx context.Context) {
	m.clearToken(ctx)
	if m.State() == Expired {
		return
	}
	m.set(Expired, nil)
	m.log.Info("session expired")
}

func (m *Manager) clearToken(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.log.WithError(err).Error("failed to clear stored token")
	}
}

// RequireAuth is the precondition every authenticated flow checks first.
func (m *Manager) RequireAuth() error {
	switch m.State() {
	case Authenticated:
		return nil
	case Expired:
		return apperrors.AuthRequired("your session has expired, please log in again")
	default:
		return apperrors.AuthRequired("please log in first")
	}
}

// Guard expires the session when err is an authorization failure and returns
// err unchanged.
func (m *Manager) Guard(ctx context.Context, err error) error {
	if errors.Is(err, apperrors.ErrAuthExpired) {
		m.Expire(ctx)
	}
	return err
}
