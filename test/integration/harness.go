// Package integration runs the shopdesk server end to end against a fake
// shop backend.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/auth"
	"github.com/pitabwire/shopdesk/internal/config"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/store"
	"github.com/pitabwire/shopdesk/internal/syncrelay"
	"github.com/pitabwire/shopdesk/internal/transport"
)

// TestHarness is a fully wired shopdesk server in front of a MockBackend.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	Backend  *MockBackend
	Client   *apiclient.Client
	Auth     *auth.Service
	Orders   *store.Orders
	Products *store.Products
	Metrics  *observability.Metrics

	hub    *syncrelay.MemoryHub
	deps   store.Deps
	logger *zap.Logger
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout time.Duration
	breaker        apiclient.BreakerConfig
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.handlerTimeout = d }
}

// WithBreaker sets the backend circuit breaker configuration.
func WithBreaker(cfg apiclient.BreakerConfig) HarnessOption {
	return func(c *harnessConfig) { c.breaker = cfg }
}

// NewTestHarness starts a shopdesk server. It is shut down when the test
// completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{handlerTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(hc)
	}

	logger := zaptest.NewLogger(t)
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	backend := newMockBackend(t)

	creds := &auth.Credentials{
		Persistent: auth.NewMemoryCredentialStore(),
		Session:    auth.NewMemoryCredentialStore(),
	}
	client, err := apiclient.New(apiclient.Options{
		BaseURL:  backend.URL(),
		Timeout:  5 * time.Second,
		Breaker:  hc.breaker,
		Tokens:   creds,
		Logger:   logger,
		Recorder: metrics,
	})
	if err != nil {
		t.Fatalf("create api client: %v", err)
	}

	h := &TestHarness{
		t:       t,
		Backend: backend,
		Client:  client,
		Auth:    auth.NewService(client, creds, logger),
		Metrics: metrics,
		hub:     syncrelay.NewMemoryHub(),
		deps:    store.Deps{Client: client, Logger: logger, Recorder: metrics},
		logger:  logger,
	}
	h.Orders = h.NewOrdersView()
	h.Products = store.NewProducts(h.deps, h.channel(syncrelay.TopicProducts, syncrelay.ProductFields), store.ProductsConfig{})
	t.Cleanup(h.Products.Close)

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout

	router := transport.NewRouter(transport.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Readiness: observability.ReadinessChecks{
			BackendAvailable: func() bool { return client.Breaker().State() != apiclient.BreakerOpen },
		},
		MetricsHandler: http.NotFoundHandler(),
		Auth:           h.Auth,
		Orders:         h.Orders,
		Products:       h.Products,
		Dashboard:      store.NewDashboard(h.deps),
	})
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// NewOrdersView creates another orders store sharing the harness relay, as
// a second open view of the orders list would.
func (h *TestHarness) NewOrdersView() *store.Orders {
	o := store.NewOrders(h.deps, h.channel(syncrelay.TopicOrders, syncrelay.OrderFields), store.OrdersConfig{})
	h.t.Cleanup(o.Close)
	return o
}

func (h *TestHarness) channel(topic string, fields []string) *syncrelay.Channel {
	ch := syncrelay.NewChannel(topic, fields, h.hub.Join(topic), syncrelay.WithLogger(h.logger))
	h.t.Cleanup(func() { _ = ch.Close() })
	return ch
}

// Login signs in through the local API as an Owner.
func (h *TestHarness) Login() {
	h.t.Helper()
	h.Backend.OnOperation("login").RespondWithData(map[string]any{
		"token": GenerateToken(TestClaims{SubjectID: "u-1", Email: "owner@shop.test", Role: "Owner"}),
	})
	resp := h.Do(http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "owner@shop.test",
		"password": "correct horse",
	})
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("login failed: %d %s", resp.StatusCode, resp.Body)
	}
}

// Response is a decoded local API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(t *testing.T, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(r.Body), out); err != nil {
		t.Fatalf("decode %q: %v", r.Body, err)
	}
}

// ErrorCode returns the code of an {"error": ...} body.
func (r *Response) ErrorCode(t *testing.T) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	r.Decode(t, &body)
	return body.Error.Code
}

// Do sends a request to the local API. A nil body sends none.
func (h *TestHarness) Do(method, path string, body any) *Response {
	h.t.Helper()
	return h.DoContext(context.Background(), method, path, body)
}

// DoContext is Do with a caller-supplied context.
func (h *TestHarness) DoContext(ctx context.Context, method, path string, body any) *Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(raw))
	}
	req, err := http.NewRequestWithContext(ctx, method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: string(raw)}
}

// Snapshot is the decoded list snapshot returned by list routes.
type Snapshot struct {
	Items []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"items"`
	TotalCount int  `json:"totalCount"`
	TotalPages int  `json:"totalPages"`
	Page       int  `json:"page"`
	Loading    bool `json:"loading"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
