// Package app builds the client's object graph and owns its shared state.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ray-remotestate/restroclient/cart"
	"github.com/ray-remotestate/restroclient/client"
	"github.com/ray-remotestate/restroclient/config"
	"github.com/ray-remotestate/restroclient/history"
	"github.com/ray-remotestate/restroclient/menu"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/order"
	"github.com/ray-remotestate/restroclient/session"
	"github.com/ray-remotestate/restroclient/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Deps overrides pieces New would otherwise build from the config.
type Deps struct {
	Tokens    tokenstore.Store
	Transport http.RoundTripper
	Log       logrus.FieldLogger
}

type App struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	Tokens  tokenstore.Store
	Client  *client.Client
	Session *session.Manager
	Cart    *cart.Cart
	Form    *order.Form
	History *history.Viewer
	Orders  *order.Submitter
	Menu    *menu.Service

	closers []func() error
}

func New(cfg *config.Config, deps Deps) (*App, error) {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{Config: cfg, Log: log}

	a.Tokens = deps.Tokens
	if a.Tokens == nil {
		store, closer, err := NewTokenStore(cfg)
		if err != nil {
			return nil, err
		}
		a.Tokens = store
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	c, err := client.New(client.Config{
		BaseURL:         cfg.APIURL,
		Timeout:         cfg.RequestTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
		Transport:       deps.Transport,
		Log:             log,
	}, a.Tokens)
	if err != nil {
		return nil, err
	}
	a.Client = c

	a.Session = session.New(c, a.Tokens, log)
	a.Cart = cart.New()
	a.Form = &order.Form{}
	a.History = history.NewViewer(c, a.Session, cfg.HistoryPageSize, log)
	a.Orders = order.NewSubmitter(c, a.Session, a.Cart, a.Form, a.History, log)
	a.Menu = menu.NewService(c, a.Session, log)

	// any 401 on a credentialed call ends the session; the cart survives
	c.OnUnauthorized(func() {
		a.Session.Expire(context.Background())
	})
	a.Session.OnLogout(func() {
		a.Cart.Clear()
		a.Form.Reset()
	})
	a.Session.Subscribe(func(state session.State, _ *models.User) {
		if state != session.Authenticated {
			a.History.Reset()
		}
	})
	return a, nil
}

// NewTokenStore picks the credential backend named in cfg. The returned
// closer, if any, releases the backend's connections.
func NewTokenStore(cfg *config.Config) (tokenstore.Store, func() error, error) {
	switch cfg.TokenStore {
	case config.TokenStoreMemory:
		return tokenstore.NewMemoryStore(), nil, nil
	case config.TokenStoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return tokenstore.NewRedisStore(rdb, cfg.RedisKey, 0), rdb.Close, nil
	case config.TokenStoreFile, "":
		return tokenstore.NewFileStore(cfg.TokenFile), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

type StartResult struct {
	State      session.State
	MenuItems  int
	SessionErr error
	MenuErr    error
}

// Start restores the session and loads the menu in parallel. Neither failure
// stops the client; both are reported in the result.
func (a *App) Start(ctx context.Context) (StartResult, error) {
	var res StartResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		state, err := a.Session.Reconcile(gctx)
		res.State = state
		if err != nil {
			res.SessionErr = err
			a.Log.WithError(err).Warn("could not restore session")
		}
		return nil
	})
	g.Go(func() error {
		items, err := a.Menu.FetchMenu(gctx)
		res.MenuItems = len(items)
		if err != nil {
			res.MenuErr = err
			a.Log.WithError(err).Warn("could not load menu")
		}
		return nil
	})

	_ = g.Wait()
	return res, ctx.Err()
}

// AddDish puts a dish from the menu into the cart.
func (a *App) AddDish(ctx context.Context, itemID int64, quantity int) (models.MenuItem, error) {
	item, err := a.Menu.Lookup(ctx, itemID)
	if err != nil {
		return models.MenuItem{}, err
	}
	if err := a.Cart.Add(item.ID, item.Name, item.Price, quantity); err != nil {
		return models.MenuItem{}, err
	}
	return item, nil
}

// Suggest asks for a pairing based on what is in the cart.
func (a *App) Suggest(ctx context.Context, preferences string) (string, error) {
	return a.Menu.Suggest(ctx, a.Cart.Names(), preferences)
}

func (a *App) Close() error {
	var first error
	for _, fn := range a.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
