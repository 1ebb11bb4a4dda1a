package store

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/shopdesk/model"
)

func TestDashboard_Fetch(t *testing.T) {
	b := newBackend()
	b.HandleFunc("GET /dashboard/metrics", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, map[string]any{
			"totalCustomers": 120,
			"totalOrders":    45,
			"trends": map[string]any{
				"orders":    map[string]any{"trend": "up", "percentageChange": "12%"},
				"customers": map[string]any{"trend": "down", "percentageChange": "3%"},
			},
		})
	})
	dash := NewDashboard(newDeps(t, b))

	data, err := dash.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, data.TotalCustomers)
	assert.Equal(t, "up", data.Trends.Orders.Trend)
	assert.Equal(t, data, dash.Data())
	assert.Equal(t, OpStatus{}, dash.Status())
}

func TestDashboard_FetchFailureKeepsData(t *testing.T) {
	var fail atomic.Bool
	b := newBackend()
	b.HandleFunc("GET /dashboard/metrics", func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			reply(w, http.StatusInternalServerError, map[string]any{"status": "error"})
			return
		}
		ok(w, map[string]any{"totalOrders": 9})
	})
	dash := NewDashboard(newDeps(t, b))
	ctx := context.Background()
	_, err := dash.Fetch(ctx)
	require.NoError(t, err)

	fail.Store(true)
	data, err := dash.Fetch(ctx)
	require.Error(t, err)
	assert.Equal(t, 9, data.TotalOrders)
	assert.Equal(t, "Failed to fetch analytics data.", dash.Status().Error.Message)
}

func newStoreConfig(t *testing.T, b *backend) *StoreConfig {
	t.Helper()
	s := NewStoreConfig(newDeps(t, b))
	n := 0
	s.newID = func() string {
		n++
		return "id-" + strconv.Itoa(n)
	}
	s.now = func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestStoreConfig_localEdits(t *testing.T) {
	s := newStoreConfig(t, newBackend())

	std := s.AddShippingMethod(model.ShippingMethod{Name: "Standard", Cost: decimal.RequireFromString("5.99")})
	exp := s.AddShippingMethod(model.ShippingMethod{Name: "Express", Cost: decimal.RequireFromString("12.99")})
	assert.Equal(t, "id-1", std.ID)
	assert.True(t, std.IsActive)

	found, err := s.UpdateShippingMethod(exp.ID, model.Patch{"cost": "14.50"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, s.SoftDeleteShippingMethod(std.ID))
	assert.False(t, s.SoftDeleteShippingMethod("nope"))

	active := s.ActiveShippingMethods()
	require.Len(t, active, 1)
	assert.Equal(t, "14.5", active[0].Cost.String())
	assert.Len(t, s.Config().ShippingMethods, 2, "soft-deleted entries are kept")

	cur := s.AddCurrency(model.Currency{Symbol: "egp", Name: "Egyptian Pound"})
	assert.Equal(t, "EGP", cur.Code)
	lang := s.AddLanguage(model.Language{Name: "Arabic"})
	assert.Equal(t, "ar", lang.Code)
	assert.True(t, s.SoftDeleteLanguage("ar"))
	assert.Empty(t, s.ActiveLanguages())

	role := s.AddUserRole(model.UserRole{Name: "Admin", Permissions: []string{"manage_orders"}})
	_, err = s.UpdateUserRole(role.ID, model.Patch{"isActive": false})
	require.NoError(t, err)
	assert.Empty(t, s.ActiveUserRoles())

	require.NoError(t, s.Update(model.Patch{"storeName": "Corner Shop"}))
	assert.Equal(t, "Corner Shop", s.Config().StoreName)
	assert.Equal(t, "USD", s.Config().DefaultCurrency)
}

func TestStoreConfig_loadAndSave(t *testing.T) {
	var saved model.StoreConfig
	b := newBackend()
	b.HandleFunc("GET /store-config", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, map[string]any{"storeConfig": map[string]any{
			"storeName":       "My Store",
			"defaultCurrency": "USD",
			"defaultLanguage": "en",
			"supportedCurrencies": []map[string]any{
				{"code": "USD", "symbol": "$", "exchangeRate": 1, "isDefault": true, "isActive": true},
			},
		}})
	})
	b.HandleFunc("PUT /store-config", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&saved)
		ok(w, nil)
	})
	s := newStoreConfig(t, b)
	ctx := context.Background()

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, "My Store", s.Config().StoreName)
	assert.Len(t, s.ActiveCurrencies(), 1)

	s.AddLanguage(model.Language{Name: "English"})
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, "My Store", saved.StoreName)
	require.Len(t, saved.SupportedLanguages, 1)
	assert.Equal(t, "en", saved.SupportedLanguages[0].Code)
}

func TestSettings_applyFetchSave(t *testing.T) {
	var patched model.Settings
	b := newBackend()
	b.HandleFunc("GET /settings", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, map[string]any{"settings": map[string]any{
			"profile": map[string]any{"name": "Owner", "email": "owner@shop.test"},
			"theme":   map[string]any{"mode": "system", "primaryColor": "#000000"},
		}})
	})
	b.HandleFunc("PATCH /settings", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&patched)
		ok(w, map[string]any{"settings": patched})
	})
	s := NewSettings(newDeps(t, b))
	ctx := context.Background()
	assert.Equal(t, model.DefaultSettings(), s.Current())

	got, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeSystem, got.Theme.Mode)

	require.NoError(t, s.Apply(model.Patch{"theme": map[string]any{"mode": "dark"}}))
	assert.Equal(t, "#000000", s.Current().Theme.PrimaryColor, "nested sections merge field by field")

	err = s.Apply(model.Patch{"theme": map[string]any{"mode": "neon"}})
	assert.Equal(t, model.ErrValidationRejected, model.CodeOf(err))
	assert.Equal(t, model.ThemeDark, s.Current().Theme.Mode)

	_, err = s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, patched.Theme.Mode)

	reset, err := s.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeLight, reset.Theme.Mode)
	assert.Equal(t, "Owner", reset.Profile.Name)
}
