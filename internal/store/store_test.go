package store

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/shopdesk/internal/apiclient"
)

// backend is a fake shop API recording the query of every request.
type backend struct {
	*http.ServeMux

	mu      sync.Mutex
	queries map[string][]url.Values
}

func newBackend() *backend {
	return &backend{ServeMux: http.NewServeMux(), queries: map[string][]url.Values{}}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.queries[r.Method+" "+r.URL.Path] = append(b.queries[r.Method+" "+r.URL.Path], r.URL.Query())
	b.mu.Unlock()
	b.ServeMux.ServeHTTP(w, r)
}

func (b *backend) calls(key string) []url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]url.Values(nil), b.queries[key]...)
}

func newDeps(t *testing.T, b *backend) Deps {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return Deps{Client: client}
}

func ok(w http.ResponseWriter, data any) {
	reply(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
