package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/model"
)

func TestServer_healthAndReadiness(t *testing.T) {
	h := NewTestHarness(t)

	if resp := h.Do(http.MethodGet, "/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d, want 200", resp.StatusCode)
	}
	resp := h.Do(http.MethodGet, "/ready", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready = %d %s, want 200", resp.StatusCode, resp.Body)
	}
	if resp.Header.Get("X-Correlation-Id") == "" {
		t.Error("missing X-Correlation-Id header")
	}
}

func TestAuth_sessionLifecycle(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.Do(http.MethodGet, "/api/orders", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("before login = %d, want 401", resp.StatusCode)
	}
	if code := resp.ErrorCode(t); code != model.ErrNotAuthenticated {
		t.Errorf("code = %s, want %s", code, model.ErrNotAuthenticated)
	}

	h.Login()
	if got := h.Backend.LastRequest("login").Body["email"]; got != "owner@shop.test" {
		t.Errorf("backend login email = %v", got)
	}

	var session model.Session
	h.Do(http.MethodGet, "/api/auth/session", nil).Decode(t, &session)
	if session.SubjectID != "u-1" || session.Role != model.RoleOwner {
		t.Errorf("session = %+v, want u-1 as Owner", session)
	}

	h.Backend.OnOperation("listOrders").RespondWithData(OrdersPage(1, 1, "Pending"))
	if resp := h.Do(http.MethodPost, "/api/orders/load", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("load after login = %d %s", resp.StatusCode, resp.Body)
	}
	authz := h.Backend.LastRequest("listOrders").Headers.Get("Authorization")
	if len(authz) < len("Bearer x") || authz[:7] != "Bearer " {
		t.Errorf("backend Authorization = %q, want bearer token", authz)
	}

	h.Backend.OnOperation("logout").RespondWithData(nil)
	if resp := h.Do(http.MethodPost, "/api/auth/logout", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout = %d, want 204", resp.StatusCode)
	}
	if resp := h.Do(http.MethodGet, "/api/orders", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("after logout = %d, want 401", resp.StatusCode)
	}
}

func TestAuth_rejectedCredentials(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("login").RespondWithError(http.StatusUnauthorized, "Invalid email or password")

	resp := h.Do(http.MethodPost, "/api/auth/login", map[string]any{"email": "a@b.c", "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := resp.ErrorCode(t); code != model.ErrNotAuthenticated {
		t.Errorf("code = %s", code)
	}
}

func TestResilience_unreachableBackendOpensBreaker(t *testing.T) {
	h := NewTestHarness(t, WithBreaker(apiclient.BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}))
	h.Login()
	h.Backend.OnOperation("listOrders").RespondWithConnectionError()

	for i := 0; i < 2; i++ {
		resp := h.Do(http.MethodPost, "/api/orders/load", nil)
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("load %d = %d, want 502", i, resp.StatusCode)
		}
	}
	if state := h.Client.Breaker().State(); state != apiclient.BreakerOpen {
		t.Fatalf("breaker = %v, want open", state)
	}

	calls := h.Backend.CallCount("listOrders")
	resp := h.Do(http.MethodPost, "/api/orders/load", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("load with open breaker = %d, want 502", resp.StatusCode)
	}
	h.Backend.AssertCalled(t, "listOrders", calls)

	if resp := h.Do(http.MethodGet, "/ready", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready = %d, want 503", resp.StatusCode)
	}
}

func TestResilience_slowBackendHitsHandlerTimeout(t *testing.T) {
	h := NewTestHarness(t, WithHandlerTimeout(100*time.Millisecond))
	h.Login()
	h.Backend.OnOperation("dashboardMetrics").RespondWithDelay(2*time.Second, map[string]any{})

	start := time.Now()
	resp := h.Do(http.MethodGet, "/api/dashboard/metrics", nil)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request took %v, want it cut short", elapsed)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d %s, want 502", resp.StatusCode, resp.Body)
	}
	if code := resp.ErrorCode(t); code != model.ErrNetworkUnavailable {
		t.Errorf("code = %s, want %s", code, model.ErrNetworkUnavailable)
	}
}
