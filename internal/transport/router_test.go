package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/config"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/store"
	"github.com/pitabwire/shopdesk/model"
)

type fakeAuth struct {
	session *model.Session
	err     error
	logins  int
}

func (f *fakeAuth) Login(_ context.Context, email, _ string, remember bool) (*model.Session, error) {
	f.logins++
	if f.err != nil {
		return nil, f.err
	}
	return &model.Session{SubjectID: "u-1", Email: email, Role: model.RoleOwner, Persisted: remember}, nil
}

func (f *fakeAuth) Logout(context.Context) error { return nil }

func (f *fakeAuth) Session(context.Context) (*model.Session, error) {
	if f.session == nil {
		return nil, model.NewNotAuthenticatedError("")
	}
	return f.session, nil
}

func (f *fakeAuth) ForgotPassword(context.Context, string) (bool, error) { return true, nil }

func (f *fakeAuth) ResetPassword(context.Context, string, string) (bool, error) { return true, nil }

func (f *fakeAuth) Register(ctx context.Context, _ string, email, password string) (*model.Session, error) {
	return f.Login(ctx, email, password, false)
}

func signedIn() *fakeAuth {
	return &fakeAuth{session: &model.Session{SubjectID: "u-1", Role: model.RoleAdmin}}
}

// shopBackend fakes the orders part of the shop API and records list queries.
type shopBackend struct {
	*http.ServeMux
	mu    sync.Mutex
	lists []url.Values
}

func newShopBackend(t *testing.T) (*shopBackend, *apiclient.Client) {
	t.Helper()
	b := &shopBackend{ServeMux: http.NewServeMux()}
	b.HandleFunc("GET /orders/all", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lists = append(b.lists, r.URL.Query())
		b.mu.Unlock()
		orders := make([]map[string]any, 10)
		for i := range orders {
			orders[i] = map[string]any{"id": fmt.Sprintf("o%d", i+1), "status": "Pending", "totalAmount": "12.50"}
		}
		reply(w, http.StatusOK, map[string]any{"orders": orders, "totalOrders": 35})
	})
	b.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "Order not found"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"order": map[string]any{"id": r.PathValue("id"), "status": "Shipped"}})
	})
	b.HandleFunc("PATCH /orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, nil)
	})

	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return b, client
}

func (b *shopBackend) lastList() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lists) == 0 {
		return nil
	}
	return b.lists[len(b.lists)-1]
}

func reply(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
}

func newTestRouter(t *testing.T, auth AuthService) (http.Handler, *shopBackend) {
	t.Helper()
	b, client := newShopBackend(t)
	orders := store.NewOrders(store.Deps{Client: client}, nil, store.OrdersConfig{})
	return NewRouter(Dependencies{
		Auth:           auth,
		Orders:         orders,
		Readiness:      observability.ReadinessChecks{BackendAvailable: func() bool { return true }},
		MetricsHandler: http.NotFoundHandler(),
	}), b
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type snapshotBody struct {
	Items      []model.Order `json:"items"`
	TotalCount int           `json:"totalCount"`
	TotalPages int           `json:"totalPages"`
	Page       int           `json:"page"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestPublicRoutes(t *testing.T) {
	h, _ := newTestRouter(t, &fakeAuth{})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/ready", "").Code)

	rec := do(h, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestAPIRequiresSession(t *testing.T) {
	h, _ := newTestRouter(t, &fakeAuth{})

	rec := do(h, http.MethodGet, "/api/orders", "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, model.ErrNotAuthenticated, body.Error.Code)
}

func TestAPIRejectsNonAdminSession(t *testing.T) {
	h, _ := newTestRouter(t, &fakeAuth{session: &model.Session{SubjectID: "c-1", Role: "Customer"}})

	rec := do(h, http.MethodGet, "/api/orders", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrders_loadPage(t *testing.T) {
	h, b := newTestRouter(t, signedIn())

	rec := do(h, http.MethodPost, "/api/orders/load?page=2", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[snapshotBody](t, rec)
	assert.Equal(t, 2, snap.Page)
	assert.Equal(t, 35, snap.TotalCount)
	assert.Equal(t, 4, snap.TotalPages)
	assert.Len(t, snap.Items, 10)
	assert.Equal(t, "2", b.lastList().Get("page"))
}

func TestOrders_badPage(t *testing.T) {
	h, _ := newTestRouter(t, signedIn())

	rec := do(h, http.MethodPost, "/api/orders/load?page=zero", "")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, model.ErrValidationRejected, body.Error.Code)
}

func TestOrders_sortReturnsToFirstPage(t *testing.T) {
	h, b := newTestRouter(t, signedIn())

	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/orders/load?page=3", "").Code)
	rec := do(h, http.MethodPost, "/api/orders/sort", `{"key":"totalAmount","direction":"asc"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	q := b.lastList()
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "totalAmount", q.Get("sortBy"))
	assert.Equal(t, "asc", q.Get("sortOrder"))
	assert.Equal(t, 1, decode[snapshotBody](t, rec).Page)
}

func TestOrders_sortRequiresKey(t *testing.T) {
	h, _ := newTestRouter(t, signedIn())

	rec := do(h, http.MethodPost, "/api/orders/sort", `{"direction":"desc"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOrders_searchAndReset(t *testing.T) {
	h, b := newTestRouter(t, signedIn())

	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/orders/search", `{"query":" ada "}`).Code)
	assert.Equal(t, "ada", b.lastList().Get("searchQuery"))

	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/orders/reset", "").Code)
	q := b.lastList()
	assert.Empty(t, q.Get("searchQuery"))
	assert.Equal(t, "createdAt", q.Get("sortBy"))
	assert.Equal(t, "desc", q.Get("sortOrder"))
}

func TestOrders_detail(t *testing.T) {
	h, _ := newTestRouter(t, signedIn())

	rec := do(h, http.MethodGet, "/api/orders/o7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[model.Order](t, rec)
	assert.Equal(t, "o7", order.ID)
	assert.Equal(t, model.OrderShipped, order.Status)

	rec = do(h, http.MethodGet, "/api/orders/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "Order not found", body.Error.Message)
}

func TestOrders_updateStatus(t *testing.T) {
	h, _ := newTestRouter(t, signedIn())
	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/orders/load", "").Code)

	rec := do(h, http.MethodPost, "/api/orders/o3/status", `{"status":"Processing"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Order       model.Order         `json:"order"`
		NextOptions []model.OrderStatus `json:"nextOptions"`
	}](t, rec)
	assert.Equal(t, model.OrderProcessing, body.Order.Status)
	assert.Equal(t, []model.OrderStatus{model.OrderShipped, model.OrderCanceled}, body.NextOptions)

	snap := decode[snapshotBody](t, do(h, http.MethodGet, "/api/orders", ""))
	assert.Equal(t, model.OrderProcessing, snap.Items[2].Status)
}

func TestOrders_updateStatusRejectsUnknown(t *testing.T) {
	h, _ := newTestRouter(t, signedIn())

	rec := do(h, http.MethodPost, "/api/orders/o3/status", `{"status":"Lost"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLogin(t *testing.T) {
	auth := &fakeAuth{}
	h, _ := newTestRouter(t, auth)

	rec := do(h, http.MethodPost, "/api/auth/login", `{"email":"owner@example.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, auth.logins)

	rec = do(h, http.MethodPost, "/api/auth/login", `{"email":"owner@example.com","password":"pw","remember":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[model.Session](t, rec)
	assert.Equal(t, "owner@example.com", s.Email)
	assert.True(t, s.Persisted)
}

func TestLogin_rejected(t *testing.T) {
	h, _ := newTestRouter(t, &fakeAuth{err: model.NewNotAuthenticatedError("Only Owners and Admins can log in.")})

	rec := do(h, http.MethodPost, "/api/auth/login", `{"email":"c@example.com","password":"pw"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Only Owners and Admins can log in.", decode[errorResponse](t, rec).Error.Message)
}

func TestMalformedBody(t *testing.T) {
	h, _ := newTestRouter(t, &fakeAuth{})

	rec := do(h, http.MethodPost, "/api/auth/login", `{"email":`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMetricsMiddlewareWired(t *testing.T) {
	_, client := newShopBackend(t)
	reg := prometheus.NewRegistry()
	m := observability.InitMetrics(reg)
	h := NewRouter(Dependencies{
		Auth:           signedIn(),
		Metrics:        m,
		Orders:         store.NewOrders(store.Deps{Client: client}, nil, store.OrdersConfig{}),
		MetricsHandler: observability.HandlerFor(reg),
	})

	do(h, http.MethodGet, "/api/orders/o1", "")

	v := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/orders/{id}", strconv.Itoa(http.StatusOK)))
	assert.Equal(t, float64(1), v)

	rec := do(h, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "shopdesk_http_requests_total")
}

func TestRecovery(t *testing.T) {
	h := Recovery(nopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := do(h, http.MethodGet, "/", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, model.ErrUnknown, decode[errorResponse](t, rec).Error.Code)
}

func TestCORS(t *testing.T) {
	cfg := corsConfig()
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func nopLogger() *zap.Logger { return zap.NewNop() }

func corsConfig() config.CORSConfig {
	return config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}
}

func TestOrders_filterByStatusReturnsToFirstPage(t *testing.T) {
	h, b := newTestRouter(t, signedIn())

	require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/orders/load?page=3", "").Code)
	rec := do(h, http.MethodPost, "/api/orders/filter", `{"name":"status","value":["Shipped","Delivered"]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := b.lastList()
	assert.Equal(t, []string{"Shipped", "Delivered"}, q["status"])
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, 1, decode[snapshotBody](t, rec).Page)

	rec = do(h, http.MethodPost, "/api/orders/filter", `{"name":"status","value":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, b.lastList(), "status")
}

func TestOrders_filterRangesEncodeBounds(t *testing.T) {
	h, b := newTestRouter(t, signedIn())

	require.Equal(t, http.StatusOK,
		do(h, http.MethodPost, "/api/orders/filter", `{"name":"date","value":{"start":"2024-01-01","end":"2024-01-31"}}`).Code)
	require.Equal(t, http.StatusOK,
		do(h, http.MethodPost, "/api/orders/filter", `{"name":"amount","value":{"min":"10","max":250}}`).Code)

	q := b.lastList()
	assert.Equal(t, "2024-01-01", q.Get("startDate"))
	assert.Equal(t, "2024-01-31", q.Get("endDate"))
	assert.Equal(t, "10", q.Get("minAmount"))
	assert.Equal(t, "250", q.Get("maxAmount"))
}

func TestOrders_filterRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown name":   `{"name":"colour","value":"red"}`,
		"unknown status": `{"name":"status","value":["Lost"]}`,
		"bad date":       `{"name":"date","value":{"start":"01/02/2024"}}`,
		"inverted range": `{"name":"amount","value":{"min":"50","max":"10"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h, b := newTestRouter(t, signedIn())

			rec := do(h, http.MethodPost, "/api/orders/filter", body)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Nil(t, b.lastList())
		})
	}
}

func TestRegister_isPublic(t *testing.T) {
	auth := &fakeAuth{}
	h, _ := newTestRouter(t, auth)

	rec := do(h, http.MethodPost, "/api/auth/register", `{"name":"New","email":"new@example.com","password":"pw"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "new@example.com", decode[model.Session](t, rec).Email)
	assert.Equal(t, 1, auth.logins)
}

func TestProfileRoutes(t *testing.T) {
	b, client := newShopBackend(t)
	var image string
	b.HandleFunc("GET /users/profile", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"user": map[string]any{"username": "Ada Lovelace", "role": "Owner"}})
	})
	b.HandleFunc("PUT /users/profile/change-img", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		image = body["thumbnail"]
		reply(w, http.StatusOK, nil)
	})
	h := NewRouter(Dependencies{
		Auth:           signedIn(),
		Profile:        store.NewProfile(store.Deps{Client: client}),
		MetricsHandler: http.NotFoundHandler(),
	})

	rec := do(h, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[model.UserProfile](t, rec)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)

	rec = do(h, http.MethodPut, "/api/profile/image", `{"thumbnail":"https://cdn.example.com/a.png"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://cdn.example.com/a.png", image)
	assert.Equal(t, "https://cdn.example.com/a.png", decode[model.UserProfile](t, rec).Thumbnail)

	rec = do(h, http.MethodPut, "/api/profile/image", `{"thumbnail":"a.png"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
