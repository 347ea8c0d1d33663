package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/cart"
	"github.com/ray-remotestate/restroclient/client"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	authed  bool
	expired int
}

func (a *fakeAuth) RequireAuth() error {
	if !a.authed {
		return apperrors.AuthRequired("please log in first")
	}
	return nil
}

func (a *fakeAuth) Guard(_ context.Context, err error) error {
	if errors.Is(err, apperrors.ErrAuthExpired) {
		a.authed = false
		a.expired++
	}
	return err
}

type sent struct {
	body models.OrderRequest
	key  string
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sent
	fn   func() (*client.Response, error)
}

func (g *fakeGateway) Do(_ context.Context, method, path string, body any, opts ...client.RequestOption) (*client.Response, error) {
	g.mu.Lock()
	g.sent = append(g.sent, sent{
		body: body.(models.OrderRequest),
		key:  client.Settings(opts...).Header.Get(IdempotencyHeader),
	})
	g.mu.Unlock()
	return g.fn()
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type fakeHistory struct {
	pages []int
}

func (h *fakeHistory) FetchPage(_ context.Context, n int) (models.OrderPage, error) {
	h.pages = append(h.pages, n)
	return models.OrderPage{Page: n}, nil
}

func jsonResp(status int, v any) *client.Response {
	b, _ := json.Marshal(v)
	return &client.Response{Status: status, Body: b}
}

type fixture struct {
	sub     *Submitter
	gw      *fakeGateway
	auth    *fakeAuth
	cart    *cart.Cart
	history *fakeHistory
}

func newFixture(authed bool, fn func() (*client.Response, error)) fixture {
	gw := &fakeGateway{fn: fn}
	auth := &fakeAuth{authed: authed}
	c := cart.New()
	h := &fakeHistory{}
	logger, _ := test.NewNullLogger()
	return fixture{
		sub:     NewSubmitter(gw, auth, c, &Form{}, h, logger),
		gw:      gw,
		auth:    auth,
		cart:    c,
		history: h,
	}
}

func fillCart(t *testing.T, c *cart.Cart) {
	require.NoError(t, c.Add(1, "Kung Pao Chicken", decimal.RequireFromString("28.00"), 2))
	require.NoError(t, c.Add(2, "Rice", decimal.RequireFromString("3.00"), 1))
	c.SetSpecialRequest(1, "not too spicy")
}

func placed(id int64, total string) func() (*client.Response, error) {
	return func() (*client.Response, error) {
		return &client.Response{Status: 201, Body: []byte(`{"message": "订单创建成功", "order_id": ` + jsonNum(id) + `, "total_amount": "` + total + `"}`)}, nil
	}
}

func jsonNum(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestSubmit_Anonymous_NoRequest(t *testing.T) {
	f := newFixture(false, nil)
	fillCart(t, f.cart)

	_, err := f.sub.Submit(context.Background(), models.PaymentCash)
	assert.ErrorIs(t, err, apperrors.ErrAuthRequired)
	assert.Equal(t, 0, f.gw.count())
	assert.Equal(t, 2, f.cart.Len())
}

func TestSubmit_AnonymousWithEmptyCart_AuthWins(t *testing.T) {
	f := newFixture(false, nil)
	_, err := f.sub.Submit(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrAuthRequired)
}

func TestSubmit_EmptyCart_NoRequest(t *testing.T) {
	f := newFixture(true, nil)

	_, err := f.sub.Submit(context.Background(), models.PaymentCash)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, f.gw.count())
}

func TestSubmit_InvalidPaymentMethod(t *testing.T) {
	f := newFixture(true, nil)
	fillCart(t, f.cart)

	for _, m := range []models.PaymentMethod{"", "bitcoin"} {
		_, err := f.sub.Submit(context.Background(), m)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}
	assert.Equal(t, 0, f.gw.count())
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(true, placed(31, "60.00"))
	fillCart(t, f.cart)
	f.sub.Form().SetAddress("  1 Main St ")
	f.sub.Form().SetNotes("   ")

	res, err := f.sub.Submit(context.Background(), " CARD ")
	require.NoError(t, err)

	// the server's total wins over the client's 59.00
	assert.Equal(t, int64(31), res.OrderID)
	assert.Equal(t, "60.00", res.TotalAmount.StringFixed(2))

	require.Equal(t, 1, f.gw.count())
	body := f.gw.sent[0].body
	assert.Equal(t, models.PaymentCard, body.PaymentMethod)
	require.NotNil(t, body.DeliveryAddress)
	assert.Equal(t, "1 Main St", *body.DeliveryAddress)
	assert.Nil(t, body.Notes)
	require.Len(t, body.Items, 2)
	assert.Equal(t, models.OrderLine{MenuItemID: 2, Quantity: 1}, body.Items[1])
	assert.Equal(t, "not too spicy", *body.Items[0].SpecialRequests)
	assert.Len(t, f.gw.sent[0].key, 36)

	assert.Equal(t, 0, f.cart.Len())
	assert.Equal(t, "", f.sub.Form().Address())
	assert.Equal(t, "", f.sub.Form().Notes())
	assert.Equal(t, []int{1}, f.history.pages)
	assert.False(t, f.sub.InFlight())
}

func TestSubmit_ServerError_LeavesStateForRetry(t *testing.T) {
	f := newFixture(true, func() (*client.Response, error) {
		return jsonResp(404, map[string]string{"error": "菜品 'Rice' 未找到或不可用"}), nil
	})
	fillCart(t, f.cart)
	f.sub.Form().SetAddress("1 Main St")

	_, err := f.sub.Submit(context.Background(), models.PaymentCash)
	assert.ErrorIs(t, err, apperrors.ErrServer)
	assert.Equal(t, "菜品 'Rice' 未找到或不可用", err.Error())

	assert.Equal(t, 2, f.cart.Len())
	assert.Equal(t, "1 Main St", f.sub.Form().Address())
	assert.Equal(t, 0, f.auth.expired)
	assert.Empty(t, f.history.pages)
	assert.False(t, f.sub.InFlight())
}

func TestSubmit_Unauthorized_ForcesLogoutKeepsCart(t *testing.T) {
	f := newFixture(true, func() (*client.Response, error) {
		return jsonResp(401, map[string]string{"message": "Token has expired!"}), nil
	})
	fillCart(t, f.cart)

	_, err := f.sub.Submit(context.Background(), models.PaymentCash)
	assert.ErrorIs(t, err, apperrors.ErrAuthExpired)
	assert.Equal(t, 1, f.auth.expired)
	assert.Equal(t, 2, f.cart.Len())

	// ordering is now blocked without another request
	_, err = f.sub.Submit(context.Background(), models.PaymentCash)
	assert.ErrorIs(t, err, apperrors.ErrAuthRequired)
	assert.Equal(t, 1, f.gw.count())
}

func TestSubmit_NetworkRetryReusesIdempotencyKey(t *testing.T) {
	fail := true
	f := newFixture(true, func() (*client.Response, error) {
		if fail {
			return nil, apperrors.Timeout(context.DeadlineExceeded)
		}
		return placed(5, "59.00")()
	})
	fillCart(t, f.cart)

	_, err := f.sub.Submit(context.Background(), models.PaymentCash)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, 2, f.cart.Len())

	fail = false
	_, err = f.sub.Submit(context.Background(), models.PaymentCash)
	require.NoError(t, err)

	require.Equal(t, 2, f.gw.count())
	assert.Equal(t, f.gw.sent[0].key, f.gw.sent[1].key)

	// a new cart gets a new key
	fillCart(t, f.cart)
	_, err = f.sub.Submit(context.Background(), models.PaymentCash)
	require.NoError(t, err)
	assert.NotEqual(t, f.gw.sent[1].key, f.gw.sent[2].key)
}

func TestSubmit_ChangedCartGetsNewKey(t *testing.T) {
	f := newFixture(true, func() (*client.Response, error) {
		return nil, apperrors.Network(errors.New("refused"))
	})
	fillCart(t, f.cart)

	_, _ = f.sub.Submit(context.Background(), models.PaymentCash)
	f.cart.AdjustQuantity(2, 1)
	_, _ = f.sub.Submit(context.Background(), models.PaymentCash)

	assert.NotEqual(t, f.gw.sent[0].key, f.gw.sent[1].key)
}

func TestSubmit_RejectsReentry(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(true, func() (*client.Response, error) {
		close(started)
		<-release
		return placed(9, "59.00")()
	})
	fillCart(t, f.cart)

	done := make(chan error, 1)
	go func() {
		_, err := f.sub.Submit(context.Background(), models.PaymentCash)
		done <- err
	}()
	<-started
	assert.True(t, f.sub.InFlight())

	_, err := f.sub.Submit(context.Background(), models.PaymentCash)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not finish")
	}
	assert.Equal(t, 1, f.gw.count())
	assert.False(t, f.sub.InFlight())
}

func TestSubmit_MalformedConfirmation(t *testing.T) {
	f := newFixture(true, func() (*client.Response, error) {
		return jsonResp(201, map[string]string{"message": "订单创建成功"}), nil
	})
	fillCart(t, f.cart)

	_, err := f.sub.Submit(context.Background(), models.PaymentAlipay)
	assert.ErrorIs(t, err, apperrors.ErrDataShape)
	assert.Equal(t, 2, f.cart.Len())
}

func TestBuildRequest(t *testing.T) {
	lines := []cart.Line{
		{ItemID: 1, Name: "A", UnitPrice: decimal.NewFromInt(5), Quantity: 2, SpecialRequest: " "},
	}
	req := BuildRequest(lines, models.PaymentWeChat, "", " leave at door ")
	assert.Nil(t, req.Items[0].SpecialRequests)
	assert.Nil(t, req.DeliveryAddress)
	assert.Equal(t, "leave at door", *req.Notes)
}
