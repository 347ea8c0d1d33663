// Package client is the single gateway every call to the ordering API goes
// through. It sets the JSON headers, attaches the stored bearer credential,
// enforces a per-request timeout and trips a circuit breaker when the server
// keeps failing. Interpreting a response is left to the caller; see Check and
// DecodeJSON.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/middlewares"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const maxResponseBody = 4 << 20 // 4MB

var errServerStatus = errors.New("server responded with 5xx")

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32 // zero disables the breaker
	BreakerCooldown time.Duration
	Transport       http.RoundTripper
	Log             logrus.FieldLogger
}

type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	Anonymous bool
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*Response]
	log     logrus.FieldLogger

	mu             sync.RWMutex
	onUnauthorized func()
}

func New(cfg Config, tokens middlewares.TokenSource) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}

	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "gateway")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL: base,
		timeout: timeout,
		log:     log,
	}
	c.http = &http.Client{
		Transport: middlewares.Chain(cfg.Transport, tokens, c.unauthorized, log),
	}

	if cfg.BreakerFailures > 0 {
		c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:    "restro-api",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
			},
		})
	}

	return c, nil
}

// OnUnauthorized registers fn to run whenever a request that carried the
// bearer credential comes back 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) unauthorized(req *http.Request, _ *http.Response) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()

	c.log.WithField("path", req.URL.Path).Info("credential rejected by server")
	if fn != nil {
		fn()
	}
}

// RequestSettings is what a set of RequestOptions resolves to.
type RequestSettings struct {
	Query    url.Values
	Header   http.Header
	SkipAuth bool
}

type RequestOption func(*RequestSettings)

// Settings resolves opts. Gateways other than Client, such as test fakes,
// use it to see what a caller asked for.
func Settings(opts ...RequestOption) RequestSettings {
	s := RequestSettings{}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func WithQuery(q url.Values) RequestOption {
	return func(s *RequestSettings) { s.Query = q }
}

func WithHeader(key, value string) RequestOption {
	return func(s *RequestSettings) {
		if s.Header == nil {
			s.Header = http.Header{}
		}
		s.Header.Set(key, value)
	}
}

// WithoutAuth sends the request without the stored credential.
func WithoutAuth() RequestOption {
	return func(s *RequestSettings) { s.SkipAuth = true }
}

// Do sends one JSON request. body may be nil. Transport failures come back as
// apperrors Network or Timeout errors; any HTTP status, including 4xx and 5xx,
// is returned as a Response for the caller to interpret.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	ro := Settings(opts...)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	target := c.resolve(path, ro.Query)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if ro.SkipAuth {
		ctx = middlewares.WithoutAuth(ctx)
	}

	send := func() (*Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range ro.Header {
			req.Header[k] = v
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		resp := &Response{
			Status:    httpResp.StatusCode,
			Header:    httpResp.Header,
			Body:      data,
			Anonymous: ro.SkipAuth,
		}
		if resp.Status >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	}

	var (
		resp *Response
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.Execute(send)
	} else {
		resp, err = send()
	}

	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	return resp, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		e := apperrors.Network(err)
		e.Message = "the server is temporarily unavailable, try again shortly"
		return e
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Timeout(err)
	default:
		return apperrors.Network(err)
	}
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}
