package middlewares

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDTransport tags every outgoing request with a fresh id unless the
// caller already set one.
type RequestIDTransport struct {
	Base http.RoundTripper
}

func (t *RequestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

type LoggingTransport struct {
	Base http.RoundTripper
	Log  logrus.FieldLogger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	log := t.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	entry := log.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.URL.Path,
		"request_id": req.Header.Get(RequestIDHeader),
		"duration":   time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("request failed")
		return nil, err
	}

	entry = entry.WithField("status", resp.StatusCode)
	if resp.StatusCode >= http.StatusInternalServerError {
		entry.Warn("request completed with server error")
	} else {
		entry.Debug("request completed")
	}
	return resp, nil
}

// Chain builds the client transport: request id, then logging, then auth,
// then base.
func Chain(base http.RoundTripper, tokens TokenSource, onUnauthorized func(*http.Request, *http.Response), log logrus.FieldLogger) http.RoundTripper {
	auth := &AuthTransport{Base: base, Tokens: tokens, OnUnauthorized: onUnauthorized, Log: log}
	logging := &LoggingTransport{Base: auth, Log: log}
	return &RequestIDTransport{Base: logging}
}
