// Package order turns the cart into an order on the server.
package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/cart"
	"github.com/ray-remotestate/restroclient/client"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/sirupsen/logrus"
)

const IdempotencyHeader = "Idempotency-Key"

type Gateway interface {
	Do(ctx context.Context, method, path string, body any, opts ...client.RequestOption) (*client.Response, error)
}

type Authenticator interface {
	RequireAuth() error
	Guard(ctx context.Context, err error) error
}

// Refresher reloads order history after a successful submission.
type Refresher interface {
	FetchPage(ctx context.Context, n int) (models.OrderPage, error)
}

type Submitter struct {
	gw      Gateway
	auth    Authenticator
	cart    *cart.Cart
	form    *Form
	history Refresher
	log     logrus.FieldLogger

	inFlight atomic.Bool

	mu          sync.Mutex
	lastKey     string
	fingerprint string
}

func NewSubmitter(gw Gateway, auth Authenticator, c *cart.Cart, form *Form, history Refresher, log logrus.FieldLogger) *Submitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if form == nil {
		form = &Form{}
	}
	return &Submitter{
		gw:      gw,
		auth:    auth,
		cart:    c,
		form:    form,
		history: history,
		log:     log.WithField("component", "order"),
	}
}

func (s *Submitter) Form() *Form {
	return s.form
}

// InFlight reports whether a submission is waiting on the server.
func (s *Submitter) InFlight() bool {
	return s.inFlight.Load()
}

// BuildRequest maps cart lines to the wire order. Prices are left out.
func BuildRequest(lines []cart.Line, method models.PaymentMethod, address, notes string) models.OrderRequest {
	items := make([]models.OrderLine, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderLine{
			MenuItemID:      l.ItemID,
			Quantity:        l.Quantity,
			SpecialRequests: optional(l.SpecialRequest),
		})
	}
	return models.OrderRequest{
		Items:           items,
		PaymentMethod:   method,
		DeliveryAddress: optional(address),
		Notes:           optional(notes),
	}
}

// Submit places an order for the current cart. Checks run in order and the
// first failure wins: session, non-empty cart, payment method. Nothing is
// sent unless all pass.
func (s *Submitter) Submit(ctx context.Context, method models.PaymentMethod) (*models.PlacedOrder, error) {
	if err := s.auth.RequireAuth(); err != nil {
		return nil, err
	}

	snap := s.cart.Snapshot()
	if snap.Empty() {
		return nil, apperrors.Validation("your cart is empty, add some dishes first")
	}

	method = models.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	if !method.IsValid() {
		return nil, apperrors.Validation("choose a payment method: %s", paymentChoices())
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, apperrors.Validation("order submission already in progress")
	}
	defer s.inFlight.Store(false)

	req := BuildRequest(snap.Lines, method, s.form.Address(), s.form.Notes())
	key := s.idempotencyKey(req)

	resp, err := s.gw.Do(ctx, http.MethodPost, "/orders", req, client.WithHeader(IdempotencyHeader, key))
	if err != nil {
		// the server may or may not have the order; a retry reuses the key
		s.log.WithError(err).WithField("idempotency_key", key).Warn("order submission did not complete")
		return nil, err
	}

	var placed models.PlacedOrder
	if err := client.DecodeJSON(resp, "order confirmation", &placed); err != nil {
		if !errors.Is(err, apperrors.ErrDataShape) {
			s.forgetKey()
		}
		return nil, s.auth.Guard(ctx, err)
	}
	if placed.OrderID == 0 {
		return nil, apperrors.DataShape("order confirmation", errors.New("missing order_id"))
	}

	s.cart.Clear()
	s.form.Reset()
	s.forgetKey()

	s.log.WithFields(logrus.Fields{
		"order_id": placed.OrderID,
		"total":    placed.TotalAmount.StringFixed(2),
	}).Info("order placed")

	if s.history != nil {
		if _, err := s.history.FetchPage(ctx, 1); err != nil {
			s.log.WithError(err).Warn("failed to refresh order history")
		}
	}
	return &placed, nil
}

// idempotencyKey reuses the previous key while the request is unchanged, so
// a retry after a lost response cannot create a second order.
func (s *Submitter) idempotencyKey(req models.OrderRequest) string {
	fp := fingerprint(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKey != "" && s.fingerprint == fp {
		return s.lastKey
	}
	s.lastKey = uuid.NewString()
	s.fingerprint = fp
	return s.lastKey
}

func (s *Submitter) forgetKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKey = ""
	s.fingerprint = ""
}

func fingerprint(req models.OrderRequest) string {
	var b strings.Builder
	for _, it := range req.Items {
		fmt.Fprintf(&b, "%d:%d:%s;", it.MenuItemID, it.Quantity, deref(it.SpecialRequests))
	}
	fmt.Fprintf(&b, "|%s|%s|%s", req.PaymentMethod, deref(req.DeliveryAddress), deref(req.Notes))
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func paymentChoices() string {
	names := make([]string, 0, len(models.PaymentMethods))
	for _, m := range models.PaymentMethods {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}
