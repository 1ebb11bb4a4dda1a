package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/model"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newService(t *testing.T, h http.Handler) (*Service, *Credentials) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	creds := &Credentials{
		Persistent: NewMemoryCredentialStore(),
		Session:    NewMemoryCredentialStore(),
	}
	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL, Timeout: 2 * time.Second, Tokens: creds})
	require.NoError(t, err)
	return NewService(client, creds, nil), creds
}

func TestLogin_rememberStoresPersistently(t *testing.T) {
	token := signed(t, jwt.MapClaims{
		"id":    "u1",
		"email": "owner@shop.test",
		"role":  model.RoleOwner,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "owner@shop.test", body["email"])
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": map[string]any{"token": token}})
	})
	svc, creds := newService(t, mux)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "owner@shop.test", "pw", true)
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.SubjectID)
	assert.Equal(t, model.RoleOwner, sess.Role)
	assert.True(t, sess.Persisted)

	stored, _ := creds.Persistent.Get(ctx)
	assert.Equal(t, token, stored)
	inSession, _ := creds.Session.Get(ctx)
	assert.Empty(t, inSession)

	got, err := svc.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner@shop.test", got.Email)
	assert.True(t, svc.IsAuthenticated(ctx))
	assert.False(t, svc.Status().Loading)
	assert.Nil(t, svc.Status().Error)
}

func TestLogin_withoutRememberUsesSessionStore(t *testing.T) {
	token := signed(t, jwt.MapClaims{"sub": "u2", "role": model.RoleAdmin})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": map[string]any{"token": token}})
	})
	svc, creds := newService(t, mux)
	ctx := context.Background()
	require.NoError(t, creds.Persistent.Set(ctx, "stale"))

	sess, err := svc.Login(ctx, "a@shop.test", "pw", false)
	require.NoError(t, err)
	assert.False(t, sess.Persisted)

	stored, _ := creds.Session.Get(ctx)
	assert.Equal(t, token, stored)
	persisted, _ := creds.Persistent.Get(ctx)
	assert.Empty(t, persisted)

	got, err := svc.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestLogin_errorMessages(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    map[string]any
		code    string
		message string
	}{
		{"forbidden role", http.StatusForbidden, map[string]any{"status": "error", "message": "nope"},
			model.ErrNotAuthenticated, "Only Owners and Admins can log in."},
		{"server message", http.StatusUnauthorized, map[string]any{"status": "error", "message": "Wrong password"},
			model.ErrNotAuthenticated, "Wrong password"},
		{"fallback", http.StatusBadRequest, map[string]any{"status": "error"},
			model.ErrValidationRejected, "Invalid email or password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			svc, _ := newService(t, mux)

			_, err := svc.Login(context.Background(), "x@shop.test", "pw", false)
			require.Error(t, err)
			ee := model.AsEnvelope(err)
			assert.Equal(t, tc.code, ee.Code)
			assert.Equal(t, tc.message, ee.Message)
			assert.Equal(t, ee, svc.Status().Error)
		})
	}
}

func TestLogin_rejectsCustomerRole(t *testing.T) {
	token := signed(t, jwt.MapClaims{"sub": "c1", "role": "Customer"})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": map[string]any{"token": token}})
	})
	svc, creds := newService(t, mux)

	_, err := svc.Login(context.Background(), "c@shop.test", "pw", true)
	assert.Equal(t, model.ErrNotAuthenticated, model.CodeOf(err))
	stored, _ := creds.Persistent.Get(context.Background())
	assert.Empty(t, stored)
}

func TestLogin_noResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	creds := &Credentials{Persistent: NewMemoryCredentialStore(), Session: NewMemoryCredentialStore()}
	client, err := apiclient.New(apiclient.Options{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	svc := NewService(client, creds, nil)

	_, err = svc.Login(context.Background(), "x@shop.test", "pw", false)
	ee := model.AsEnvelope(err)
	require.NotNil(t, ee)
	assert.Equal(t, model.ErrNetworkUnavailable, ee.Code)
	assert.Equal(t, "No response from server", ee.Message)
}

func TestLogout_clearsBothStoresEvenWhenBackendFails(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error"})
	})
	svc, creds := newService(t, mux)
	ctx := context.Background()
	require.NoError(t, creds.Persistent.Set(ctx, "p"))
	require.NoError(t, creds.Session.Set(ctx, "s"))

	require.NoError(t, svc.Logout(ctx))
	assert.Equal(t, "Bearer p", gotAuth)

	tok, err := svc.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
	assert.False(t, svc.IsAuthenticated(ctx))
}

func TestSession_expiredTokenIsNotAuthenticated(t *testing.T) {
	svc, creds := newService(t, http.NotFoundHandler())
	ctx := context.Background()
	require.NoError(t, creds.Session.Set(ctx, signed(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})))

	_, err := svc.Session(ctx)
	assert.Equal(t, model.ErrNotAuthenticated, model.CodeOf(err))
}

func TestSession_noToken(t *testing.T) {
	svc, _ := newService(t, http.NotFoundHandler())
	_, err := svc.Session(context.Background())
	assert.Equal(t, model.ErrNotAuthenticated, model.CodeOf(err))
}

func TestSession_malformedToken(t *testing.T) {
	svc, creds := newService(t, http.NotFoundHandler())
	ctx := context.Background()
	require.NoError(t, creds.Session.Set(ctx, "not-a-jwt"))

	_, err := svc.Session(ctx)
	assert.Equal(t, model.ErrNotAuthenticated, model.CodeOf(err))
}

func TestForgotAndResetPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/forgot-password", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "sent"})
	})
	mux.HandleFunc("POST /auth/reset-password", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error"})
	})
	svc, _ := newService(t, mux)
	ctx := context.Background()

	ok, err := svc.ForgotPassword(ctx, "owner@shop.test")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ResetPassword(ctx, "reset-tok", "new-pw")
	assert.False(t, ok)
	ee := model.AsEnvelope(err)
	require.NotNil(t, ee)
	assert.Equal(t, "Password reset failed", ee.Message)
}

func TestRegister_signsIn(t *testing.T) {
	token := signed(t, jwt.MapClaims{"id": "u9", "email": "new@shop.test", "role": model.RoleAdmin})
	var registered map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&registered)
		writeJSON(w, http.StatusCreated, map[string]any{"status": "SUCCESS"})
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": map[string]any{"token": token}})
	})
	svc, creds := newService(t, mux)
	ctx := context.Background()

	sess, err := svc.Register(ctx, " New Admin ", "new@shop.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "New Admin", "email": "new@shop.test", "password": "pw"}, registered)
	assert.Equal(t, "u9", sess.SubjectID)
	inSession, _ := creds.Session.Get(ctx)
	assert.Equal(t, token, inSession)
}

func TestRegister_failures(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, _ *http.Request) {
		calls++
		writeJSON(w, http.StatusConflict, map[string]any{"status": "error"})
	})
	svc, creds := newService(t, mux)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "new@shop.test", "")
	ee := model.AsEnvelope(err)
	require.NotNil(t, ee)
	assert.Equal(t, model.ErrValidationRejected, ee.Code)
	assert.Equal(t, []model.FieldError{{Field: "name", Message: "required"}, {Field: "password", Message: "required"}}, ee.Details)
	assert.Zero(t, calls)

	_, err = svc.Register(ctx, "New", "new@shop.test", "pw")
	ee = model.AsEnvelope(err)
	require.NotNil(t, ee)
	assert.Equal(t, "Registration failed", ee.Message)
	assert.Equal(t, 1, calls)
	stored, _ := creds.Session.Get(ctx)
	assert.Empty(t, stored)
	assert.Equal(t, ee, svc.Status().Error)
}

func TestRedisCredentialStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisCredentialStore(client, "shopdesk:token", time.Hour)
	ctx := context.Background()

	tok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, store.Set(ctx, "abc"))
	tok, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
	assert.Equal(t, time.Hour, mr.TTL("shopdesk:token"))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("shopdesk:token"))
}

func TestRedisCredentialStore_unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisCredentialStore(client, "k", 0).Get(context.Background())
	assert.Error(t, err)
}
