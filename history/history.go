// Package history pages through the logged-in user's past orders.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/client"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultPageSize = 5

// ErrStale is returned when a newer FetchPage started before this one came
// back; its result was discarded.
var ErrStale = errors.New("page request superseded by a newer one")

type Gateway interface {
	Do(ctx context.Context, method, path string, body any, opts ...client.RequestOption) (*client.Response, error)
}

type Authenticator interface {
	RequireAuth() error
	Guard(ctx context.Context, err error) error
}

type Viewer struct {
	gw       Gateway
	auth     Authenticator
	pageSize int
	log      logrus.FieldLogger

	generation atomic.Uint64

	mu        sync.RWMutex
	current   *models.OrderPage
	listeners []func(models.OrderPage)
}

func NewViewer(gw Gateway, auth Authenticator, pageSize int, log logrus.FieldLogger) *Viewer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Viewer{
		gw:       gw,
		auth:     auth,
		pageSize: pageSize,
		log:      log.WithField("component", "history"),
	}
}

func (v *Viewer) PageSize() int {
	return v.pageSize
}

func (v *Viewer) Subscribe(fn func(models.OrderPage)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Current returns the last listing that was applied.
func (v *Viewer) Current() (models.OrderPage, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.current == nil {
		return models.OrderPage{}, false
	}
	return *v.current, true
}

// Reset forgets the listing, e.g. after logout. In-flight fetches are
// invalidated too.
func (v *Viewer) Reset() {
	v.generation.Add(1)
	v.mu.Lock()
	v.current = nil
	v.mu.Unlock()
}

// FetchPage loads page n (1-based). Without a session it sends nothing.
// On failure the previous listing stays as it was.
func (v *Viewer) FetchPage(ctx context.Context, n int) (models.OrderPage, error) {
	if err := v.auth.RequireAuth(); err != nil {
		return models.OrderPage{}, err
	}
	if n < 1 {
		n = 1
	}

	gen := v.generation.Add(1)

	q := url.Values{}
	q.Set("page", strconv.Itoa(n))
	q.Set("per_page", strconv.Itoa(v.pageSize))

	resp, err := v.gw.Do(ctx, http.MethodGet, "/orders/my", nil, client.WithQuery(q))
	if err != nil {
		return models.OrderPage{}, err
	}
	if err := client.Check(resp); err != nil {
		return models.OrderPage{}, v.auth.Guard(ctx, err)
	}

	page, dropped, err := decodePage(resp.Body)
	if err != nil {
		return models.OrderPage{}, err
	}
	if dropped > 0 {
		v.log.WithField("dropped", dropped).Warn("skipped malformed order records")
	}
	if page.Page == 0 {
		page.Page = n
	}
	if page.PerPage == 0 {
		page.PerPage = v.pageSize
	}

	if gen != v.generation.Load() {
		v.log.WithField("page", n).Debug("discarding stale order page")
		return models.OrderPage{}, ErrStale
	}

	v.mu.Lock()
	v.current = &page
	listeners := append([]func(models.OrderPage){}, v.listeners...)
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(page)
	}
	return page, nil
}

func (v *Viewer) Next(ctx context.Context) (models.OrderPage, error) {
	cur, ok := v.Current()
	if !ok {
		return v.FetchPage(ctx, 1)
	}
	if !cur.HasNext() {
		return cur, nil
	}
	return v.FetchPage(ctx, cur.Page+1)
}

func (v *Viewer) Prev(ctx context.Context) (models.OrderPage, error) {
	cur, ok := v.Current()
	if !ok {
		return v.FetchPage(ctx, 1)
	}
	if !cur.HasPrev() {
		return cur, nil
	}
	return v.FetchPage(ctx, cur.Page-1)
}

// FetchDetail loads one order with its item breakdown.
func (v *Viewer) FetchDetail(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	if err := v.auth.RequireAuth(); err != nil {
		return nil, err
	}
	if orderID <= 0 {
		return nil, apperrors.Validation("order id must be a positive number")
	}

	resp, err := v.gw.Do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), nil)
	if err != nil {
		return nil, err
	}
	if err := client.Check(resp); err != nil {
		return nil, v.auth.Guard(ctx, err)
	}
	return decodeDetail(resp.Body)
}

type pageEnvelope struct {
	Orders      *[]json.RawMessage `json:"orders"`
	TotalOrders *int               `json:"total_orders"`
	Page        *int               `json:"page"`
	PerPage     *int               `json:"per_page"`
}

type wireSummary struct {
	ID            *int64           `json:"id"`
	TotalAmount   *decimal.Decimal `json:"total_amount"`
	OrderTime     string           `json:"order_time"`
	Status        string           `json:"status"`
	PaymentStatus string           `json:"payment_status"`
}

func (w wireSummary) summary() (models.OrderSummary, error) {
	if w.ID == nil || w.TotalAmount == nil {
		return models.OrderSummary{}, errors.New("missing id or total_amount")
	}
	return models.OrderSummary{
		ID:            *w.ID,
		TotalAmount:   *w.TotalAmount,
		OrderTime:     w.OrderTime,
		Status:        models.OrderStatus(w.Status),
		PaymentStatus: models.PaymentStatus(w.PaymentStatus),
	}, nil
}

// decodePage keeps every well-formed record and counts the rest.
func decodePage(body []byte) (models.OrderPage, int, error) {
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.OrderPage{}, 0, apperrors.DataShape("order history", err)
	}
	if env.Orders == nil {
		return models.OrderPage{}, 0, apperrors.DataShape("order history", errors.New("missing orders"))
	}

	page := models.OrderPage{Orders: make([]models.OrderSummary, 0, len(*env.Orders))}
	dropped := 0
	for _, raw := range *env.Orders {
		var w wireSummary
		if err := json.Unmarshal(raw, &w); err != nil {
			dropped++
			continue
		}
		s, err := w.summary()
		if err != nil {
			dropped++
			continue
		}
		page.Orders = append(page.Orders, s)
	}

	if env.TotalOrders != nil {
		page.TotalOrders = *env.TotalOrders
	} else {
		page.TotalOrders = len(page.Orders)
	}
	if env.Page != nil {
		page.Page = *env.Page
	}
	if env.PerPage != nil {
		page.PerPage = *env.PerPage
	}
	return page, dropped, nil
}

type wireDetail struct {
	wireSummary
	CustomerName    string                    `json:"customer_name"`
	PaymentMethod   string                    `json:"payment_method"`
	DeliveryAddress *string                   `json:"delivery_address"`
	Notes           *string                   `json:"notes"`
	Items           *[]models.OrderDetailItem `json:"items"`
}

func decodeDetail(body []byte) (*models.OrderDetail, error) {
	var w wireDetail
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, apperrors.DataShape("order detail", err)
	}
	summary, err := w.summary()
	if err != nil {
		return nil, apperrors.DataShape("order detail", err)
	}
	if w.Items == nil {
		return nil, apperrors.DataShape("order detail", errors.New("missing items"))
	}

	return &models.OrderDetail{
		OrderSummary:    summary,
		CustomerName:    w.CustomerName,
		PaymentMethod:   models.PaymentMethod(w.PaymentMethod),
		DeliveryAddress: w.DeliveryAddress,
		Notes:           w.Notes,
		Items:           *w.Items,
	}, nil
}
