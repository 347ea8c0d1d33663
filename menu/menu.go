// Package menu loads the public menu and asks the server for dish pairings.
package menu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/client"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/sirupsen/logrus"
)

const uncategorized = "Other"

type Gateway interface {
	Do(ctx context.Context, method, path string, body any, opts ...client.RequestOption) (*client.Response, error)
}

type Authenticator interface {
	RequireAuth() error
	Guard(ctx context.Context, err error) error
}

// Group is one category heading with its dishes, in menu order.
type Group struct {
	Category string
	Items    []models.MenuItem
}

type Service struct {
	gw   Gateway
	auth Authenticator
	log  logrus.FieldLogger

	mu    sync.RWMutex
	items []models.MenuItem
}

func NewService(gw Gateway, auth Authenticator, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		gw:   gw,
		auth: auth,
		log:  log.WithField("component", "menu"),
	}
}

// FetchMenu loads the full menu and caches it for Lookup.
func (s *Service) FetchMenu(ctx context.Context) ([]models.MenuItem, error) {
	resp, err := s.gw.Do(ctx, http.MethodGet, "/menu", nil, client.WithoutAuth())
	if err != nil {
		return nil, err
	}
	var items []models.MenuItem
	if err := client.DecodeJSON(resp, "menu", &items); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.log.WithField("items", len(items)).Debug("menu loaded")
	return append([]models.MenuItem(nil), items...), nil
}

// Items returns the cached menu; empty until FetchMenu succeeds.
func (s *Service) Items() []models.MenuItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.MenuItem(nil), s.items...)
}

// Lookup finds a dish in the cached menu, falling back to the server.
func (s *Service) Lookup(ctx context.Context, id int64) (models.MenuItem, error) {
	s.mu.RLock()
	for _, it := range s.items {
		if it.ID == id {
			s.mu.RUnlock()
			return it, nil
		}
	}
	s.mu.RUnlock()
	return s.Item(ctx, id)
}

func (s *Service) Item(ctx context.Context, id int64) (models.MenuItem, error) {
	if id <= 0 {
		return models.MenuItem{}, apperrors.Validation("dish id must be a positive number")
	}
	resp, err := s.gw.Do(ctx, http.MethodGet, fmt.Sprintf("/menu/%d", id), nil, client.WithoutAuth())
	if err != nil {
		return models.MenuItem{}, err
	}
	var item models.MenuItem
	if err := client.DecodeJSON(resp, "menu item", &item); err != nil {
		return models.MenuItem{}, err
	}
	if item.ID == 0 {
		return models.MenuItem{}, apperrors.DataShape("menu item", errors.New("missing id"))
	}
	return item, nil
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	resp, err := s.gw.Do(ctx, http.MethodGet, "/categories", nil, client.WithoutAuth())
	if err != nil {
		return nil, err
	}
	var cats []models.Category
	if err := client.DecodeJSON(resp, "categories", &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// Suggest asks for a pairing for the given dishes. An empty dish list is
// rejected without a request.
func (s *Service) Suggest(ctx context.Context, dishes []string, preferences string) (string, error) {
	if err := s.auth.RequireAuth(); err != nil {
		return "", err
	}
	names := make([]string, 0, len(dishes))
	for _, d := range dishes {
		if d = strings.TrimSpace(d); d != "" {
			names = append(names, d)
		}
	}
	if len(names) == 0 {
		return "", apperrors.Validation("add some dishes to your cart to get a suggestion")
	}

	req := models.SuggestionRequest{
		CurrentDishes: names,
		Preferences:   strings.TrimSpace(preferences),
	}
	resp, err := s.gw.Do(ctx, http.MethodPost, "/recipe-suggestion", req)
	if err != nil {
		return "", err
	}
	if err := client.Check(resp); err != nil {
		return "", s.auth.Guard(ctx, err)
	}

	var out struct {
		Suggestion *string `json:"suggestion"`
	}
	if err := client.DecodeJSON(resp, "suggestion", &out); err != nil {
		return "", err
	}
	if out.Suggestion == nil {
		return "", apperrors.DataShape("suggestion", errors.New("missing suggestion"))
	}
	return *out.Suggestion, nil
}

// GroupByCategory buckets items under their category. Groups are sorted by
// name with uncategorized dishes last; items keep their original order.
func GroupByCategory(items []models.MenuItem) []Group {
	index := map[string]int{}
	var groups []Group
	for _, it := range items {
		cat := strings.TrimSpace(it.Category())
		if cat == "" {
			cat = uncategorized
		}
		i, ok := index[cat]
		if !ok {
			i = len(groups)
			index[cat] = i
			groups = append(groups, Group{Category: cat})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		if groups[a].Category == uncategorized {
			return false
		}
		if groups[b].Category == uncategorized {
			return true
		}
		return groups[a].Category < groups[b].Category
	})
	return groups
}
