package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockBackend is a fake shop REST API. Responses are configured per
// operation and every received request is recorded for later assertion.
type MockBackend struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.RWMutex
	operations   map[string]*operationConfig
	receivedByOp map[string][]*RecordedRequest
}

// RecordedRequest captures the details of a request received by the mock.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	ReceivedAt  time.Time
}

type operationConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// OperationMock configures the responses of one operation.
type OperationMock struct {
	backend *MockBackend
	opID    string
}

type operationRoute struct {
	method      string
	pathPattern string
}

// shopRoutes are the backend operations the dashboard calls.
var shopRoutes = map[string]operationRoute{
	"login":             {method: "POST", pathPattern: "/auth/login"},
	"logout":            {method: "GET", pathPattern: "/auth/logout"},
	"listOrders":        {method: "GET", pathPattern: "/orders/all"},
	"orderAnalytics":    {method: "GET", pathPattern: "/orders/analytics"},
	"getOrder":          {method: "GET", pathPattern: "/orders/{id}"},
	"updateOrderStatus": {method: "PATCH", pathPattern: "/orders/{id}/status"},
	"listProducts":      {method: "GET", pathPattern: "/products"},
	"getProduct":        {method: "GET", pathPattern: "/products/{id}"},
	"updateProduct":     {method: "PATCH", pathPattern: "/products/{id}"},
	"dashboardMetrics":  {method: "GET", pathPattern: "/dashboard/metrics"},
}

func newMockBackend(t *testing.T) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:            t,
		operations:   make(map[string]*operationConfig),
		receivedByOp: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for opID, route := range shopRoutes {
		mux.HandleFunc(route.method+" "+route.pathPattern, mb.handleOperation(opID))
	}
	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)

	return mb
}

// URL returns the base URL of the mock backend.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// OnOperation returns a builder for the named operation's responses.
func (mb *MockBackend) OnOperation(operationID string) *OperationMock {
	if _, ok := shopRoutes[operationID]; !ok {
		mb.t.Fatalf("mock: unknown operation %q", operationID)
	}
	return &OperationMock{backend: mb, opID: operationID}
}

// RespondWith queues a raw response body.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body})
	return om
}

// RespondWithData queues a successful envelope carrying data.
func (om *OperationMock) RespondWithData(data any) *OperationMock {
	return om.RespondWith(http.StatusOK, map[string]any{"status": "success", "data": data})
}

// RespondWithError queues an error envelope.
func (om *OperationMock) RespondWithError(status int, message string) *OperationMock {
	return om.RespondWith(status, map[string]any{"status": "error", "message": message})
}

// RespondWithDelay queues a successful envelope sent after delay.
func (om *OperationMock) RespondWithDelay(delay time.Duration, data any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{
		status: http.StatusOK,
		body:   map[string]any{"status": "success", "data": data},
		delay:  delay,
	})
	return om
}

// RespondWithConnectionError closes the connection without a response.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{connError: true})
	return om
}

func (mb *MockBackend) addResponse(opID string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.operations[opID]
	if !ok {
		cfg = &operationConfig{}
		mb.operations[opID] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handleOperation(opID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			ReceivedAt:  time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.QueryParams[key] = values[0]
			}
		}
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			var parsed map[string]any
			if err := json.Unmarshal(body, &parsed); err == nil {
				rec.Body = parsed
			}
		}

		mb.mu.Lock()
		mb.receivedByOp[opID] = append(mb.receivedByOp[opID], rec)
		mb.mu.Unlock()

		resp := mb.nextResponse(opID)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotImplemented)
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "error",
				"message": fmt.Sprintf("mock: no response configured for %s", opID),
			})
			return
		}

		if resp.connError {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, _ := hj.Hijack(); conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

// nextResponse returns the queued responses in order, repeating the last.
func (mb *MockBackend) nextResponse(opID string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.operations[opID]
	mb.mu.RUnlock()
	if !ok {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if len(cfg.responses) == 0 {
		return nil
	}
	idx := cfg.current
	if idx >= len(cfg.responses) {
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// AssertCalled verifies that the operation was called the expected number of times.
func (mb *MockBackend) AssertCalled(t *testing.T, operationID string, expectedCount int) {
	t.Helper()
	if actual := mb.CallCount(operationID); actual != expectedCount {
		t.Errorf("mock: operation %q called %d times, want %d", operationID, actual, expectedCount)
	}
}

// CallCount returns how often the operation was called.
func (mb *MockBackend) CallCount(operationID string) int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.receivedByOp[operationID])
}

// LastRequest returns the last request received for the operation, or nil.
func (mb *MockBackend) LastRequest(operationID string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByOp[operationID]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// OrdersPage builds the data member of a /orders/all response.
func OrdersPage(count, total int, status string) map[string]any {
	orders := make([]map[string]any, count)
	for i := range orders {
		orders[i] = map[string]any{
			"id":          fmt.Sprintf("o%d", i+1),
			"orderNumber": fmt.Sprintf("#%04d", i+1),
			"status":      status,
			"totalAmount": "49.90",
		}
	}
	return map[string]any{"orders": orders, "totalOrders": total}
}

// ProductsPage builds the data member of a /products response.
func ProductsPage(count, total int) map[string]any {
	products := make([]map[string]any, count)
	for i := range products {
		products[i] = map[string]any{
			"_id":   fmt.Sprintf("p%d", i+1),
			"name":  fmt.Sprintf("Product %d", i+1),
			"price": "20.00",
			"sale":  "0",
		}
	}
	return map[string]any{"products": products, "totalProducts": total}
}
