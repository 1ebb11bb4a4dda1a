package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth_returnsOK(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version, Commit = "1.2.3", "abc1234"
	t.Cleanup(func() {
		Version, Commit = origVersion, origCommit
	})

	rec := httptest.NewRecorder()
	HandleHealth().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.2.3" || resp.Commit != "abc1234" {
		t.Errorf("resp = %+v", resp)
	}
}

func ready(t *testing.T, checks ReadinessChecks) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleReady(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return rec.Code, resp
}

func TestHandleReady_backendOnly(t *testing.T) {
	code, resp := ready(t, ReadinessChecks{BackendAvailable: func() bool { return true }})

	if code != http.StatusOK || resp.Status != "ready" {
		t.Fatalf("got %d %q, want 200 ready", code, resp.Status)
	}
	if len(resp.Checks) != 1 {
		t.Errorf("checks = %v, want only backend", resp.Checks)
	}
}

func TestHandleReady_breakerOpen(t *testing.T) {
	code, resp := ready(t, ReadinessChecks{BackendAvailable: func() bool { return false }})

	if code != http.StatusServiceUnavailable || resp.Status != "not_ready" {
		t.Fatalf("got %d %q, want 503 not_ready", code, resp.Status)
	}
	if resp.Checks["backend"].Error != "backend circuit is open" {
		t.Errorf("backend error = %q", resp.Checks["backend"].Error)
	}
}

func TestHandleReady_nilBackendProbeFails(t *testing.T) {
	code, _ := ready(t, ReadinessChecks{})
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestHandleReady_optionalChecks(t *testing.T) {
	checks := ReadinessChecks{
		BackendAvailable: func() bool { return true },
		OpenAPILoaded:    func() bool { return true },
		Redis: HealthCheckFunc(func(context.Context) error {
			return errors.New("dial tcp: connection refused")
		}),
	}
	code, resp := ready(t, checks)

	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if resp.Checks["openapi_index"].Status != "ok" {
		t.Errorf("openapi_index = %+v", resp.Checks["openapi_index"])
	}
	if r := resp.Checks["redis"]; r.Status != "error" || r.Error != "dial tcp: connection refused" {
		t.Errorf("redis = %+v", r)
	}
}

func TestRunCheck_appliesTimeout(t *testing.T) {
	res := runCheck(context.Background(), HealthCheckFunc(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}))
	if res.Status != "ok" {
		t.Errorf("result = %+v, want ok", res)
	}
}
