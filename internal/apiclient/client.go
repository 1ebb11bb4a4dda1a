// Package apiclient talks to the shop backend's REST API. It attaches the
// bearer token, decodes the {status, data, message} envelope and classifies
// every failure into the model error taxonomy. It never retries.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/model"
)

const (
	tracerName      = "github.com/pitabwire/shopdesk/internal/apiclient"
	maxResponseSize = 10 << 20
)

// TokenSource supplies the bearer token for outbound requests. An empty token
// means the request is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Recorder receives backend request metrics. A nil Recorder disables
// recording.
type Recorder interface {
	ObserveBackendRequest(method, route string, status int, elapsed time.Duration)
	SetBreakerState(state int)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Breaker    BreakerConfig
	Tokens     TokenSource
	Logger     *zap.Logger
	Recorder   Recorder
	HTTPClient *http.Client
}

// Client is a backend API client. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *CircuitBreaker
	tokens  TokenSource
	logger  *zap.Logger
	rec     Recorder
	tracer  trace.Tracer
}

// New creates a Client for the backend at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		base:    base,
		http:    hc,
		breaker: NewCircuitBreaker(opts.Breaker),
		tokens:  opts.Tokens,
		logger:  logger,
		rec:     opts.Recorder,
		tracer:  otel.Tracer(tracerName),
	}
	if c.rec != nil {
		rec := c.rec
		c.breaker.onChange = func(s BreakerState) { rec.SetBreakerState(int(s)) }
		rec.SetBreakerState(int(BreakerClosed))
	}
	return c, nil
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Envelope is the backend's response wrapper.
type Envelope struct {
	Status  string             `json:"status"`
	Data    json.RawMessage    `json:"data,omitempty"`
	Message string             `json:"message,omitempty"`
	Errors  []model.FieldError `json:"errors,omitempty"`

	// HTTPStatus is the response status code.
	HTTPStatus int `json:"-"`
}

// Succeeded reports whether the backend's status field signals success.
func (e *Envelope) Succeeded() bool {
	return strings.EqualFold(e.Status, "success")
}

// DecodeData unmarshals the data member into out.
func (e *Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return model.NewUnknownError(fmt.Sprintf("Unexpected response from server: %v", err))
	}
	return nil
}

// Request describes one backend call.
type Request struct {
	Method string
	// Path is appended to the base URL; it must start with "/".
	Path  string
	Query url.Values
	Body  any
	// Route is a low-cardinality name for metrics and spans; Path is used
	// when empty.
	Route string
	// Anonymous skips the bearer token.
	Anonymous bool
}

// Do performs req. A non-nil error is always a *model.ErrorEnvelope.
func (c *Client) Do(ctx context.Context, req Request) (*Envelope, error) {
	route := req.Route
	if route == "" {
		route = req.Path
	}

	ctx, span := c.tracer.Start(ctx, "backend "+req.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("shopdesk.route", route),
		),
	)
	defer span.End()

	env, err := c.do(ctx, req, route)
	if err != nil {
		ee := model.AsEnvelope(err)
		span.RecordError(ee)
		span.SetStatus(codes.Error, ee.Message)
		return env, ee
	}
	return env, nil
}

func (c *Client) do(ctx context.Context, req Request, route string) (*Envelope, error) {
	if !c.breaker.Allow() {
		c.logger.Warn("backend circuit open, request rejected", zap.String("route", route))
		return nil, model.NewNetworkUnavailableError("The backend service is temporarily unavailable")
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: marshal body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	u := *c.base
	rawPath := c.base.EscapedPath() + req.Path
	if p, err := url.PathUnescape(rawPath); err == nil {
		u.Path, u.RawPath = p, rawPath
	} else {
		u.Path = rawPath
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !req.Anonymous && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("apiclient: read token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+sanitizeHeader(token))
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		if callerCancelled(ctx) {
			c.logger.Debug("backend request cancelled by caller",
				zap.String("method", req.Method),
				zap.String("route", route),
			)
			return nil, classifyTransportError(ctx, err)
		}
		c.breaker.RecordFailure()
		c.observe(req.Method, route, 0, elapsed)
		c.logger.Warn("backend request failed",
			zap.String("method", req.Method),
			zap.String("route", route),
			zap.Error(err),
		)
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if callerCancelled(ctx) {
			return nil, classifyTransportError(ctx, err)
		}
		c.breaker.RecordFailure()
		c.observe(req.Method, route, resp.StatusCode, elapsed)
		return nil, classifyTransportError(ctx, err)
	}
	c.observe(req.Method, route, resp.StatusCode, elapsed)

	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}

	env := &Envelope{HTTPStatus: resp.StatusCode}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, env); err != nil && resp.StatusCode < 300 {
			return nil, model.NewUnknownError("Unexpected response from server")
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if strings.EqualFold(env.Status, "error") || strings.EqualFold(env.Status, "fail") {
			return env, statusError(resp.StatusCode, env)
		}
		c.logger.Debug("backend request",
			zap.String("method", req.Method),
			zap.String("route", route),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed),
		)
		return env, nil
	}
	return env, statusError(resp.StatusCode, env)
}

func (c *Client) observe(method, route string, status int, elapsed time.Duration) {
	if c.rec != nil {
		c.rec.ObserveBackendRequest(method, route, status, elapsed)
	}
}

// statusError maps a rejected response onto the error taxonomy. Backend
// validation messages are passed through verbatim.
func statusError(status int, env *Envelope) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		ee = model.NewNotAuthenticatedError(env.Message)
	case http.StatusNotFound:
		ee = model.NewNotFoundError(env.Message)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		msg := env.Message
		if msg == "" {
			msg = "The request was rejected by the server"
		}
		ee = model.NewValidationRejectedError(msg, env.Errors)
	default:
		ee = model.NewUnknownError(env.Message)
	}
	ee.Status = status
	return ee
}

// callerCancelled reports whether the caller abandoned the request, as a
// superseded load or a disconnected client does. That says nothing about the
// backend's health.
func callerCancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func classifyTransportError(ctx context.Context, err error) *model.ErrorEnvelope {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return model.NewNetworkUnavailableError("The backend service did not respond in time")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewNetworkUnavailableError("The backend service did not respond in time")
	}
	if errors.Is(err, context.Canceled) {
		return model.NewNetworkUnavailableError("The request was cancelled")
	}
	return model.NewNetworkUnavailableError("No response from server")
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
