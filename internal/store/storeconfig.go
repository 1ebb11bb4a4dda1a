package store

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/model"
)

// StoreConfig holds the shop configuration being edited. Edits are local
// until Save.
type StoreConfig struct {
	client *apiclient.Client
	logger *zap.Logger
	ops    tracker
	newID  func() string
	now    func() time.Time

	mu  sync.Mutex
	cfg model.StoreConfig
}

// NewStoreConfig creates the store configuration store with the backend's
// defaults of USD and English.
func NewStoreConfig(d Deps) *StoreConfig {
	return &StoreConfig{
		client: d.Client,
		logger: d.logger().Named("store_config"),
		newID:  uuid.NewString,
		now:    time.Now,
		cfg:    model.StoreConfig{DefaultCurrency: "USD", DefaultLanguage: "en"},
	}
}

// Config returns a copy of the configuration.
func (s *StoreConfig) Config() model.StoreConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConfig(s.cfg)
}

// Update overlays top-level fields such as storeName.
func (s *StoreConfig) Update(p model.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneConfig(s.cfg)
	if err := model.MergePatch(&next, p); err != nil {
		return model.NewValidationRejectedError(err.Error(), nil)
	}
	s.cfg = next
	return nil
}

// AddShippingMethod appends an active shipping method with a fresh id.
func (s *StoreConfig) AddShippingMethod(m model.ShippingMethod) model.ShippingMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.newID()
	m.IsActive = true
	s.cfg.ShippingMethods = append(s.cfg.ShippingMethods, m)
	return m
}

// UpdateShippingMethod overlays p onto the method with the given id.
func (s *StoreConfig) UpdateShippingMethod(id string, p model.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return patchWhere(s.cfg.ShippingMethods, func(m model.ShippingMethod) bool { return m.ID == id }, p)
}

// SoftDeleteShippingMethod marks a shipping method deleted.
func (s *StoreConfig) SoftDeleteShippingMethod(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.cfg.ShippingMethods, func(m model.ShippingMethod) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	s.cfg.ShippingMethods[i].DeletedAt = s.stamp()
	return true
}

// ActiveShippingMethods returns the active, undeleted shipping methods.
func (s *StoreConfig) ActiveShippingMethods() []model.ShippingMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return active(s.cfg.ShippingMethods, func(m model.ShippingMethod) bool { return m.IsActive && m.DeletedAt == nil })
}

// AddUserRole appends an active role with a fresh id.
func (s *StoreConfig) AddUserRole(r model.UserRole) model.UserRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.newID()
	r.IsActive = true
	r.Permissions = slices.Clone(r.Permissions)
	s.cfg.UserRoles = append(s.cfg.UserRoles, r)
	return r
}

// UpdateUserRole overlays p onto the role with the given id.
func (s *StoreConfig) UpdateUserRole(id string, p model.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return patchWhere(s.cfg.UserRoles, func(r model.UserRole) bool { return r.ID == id }, p)
}

// SoftDeleteUserRole marks a role deleted.
func (s *StoreConfig) SoftDeleteUserRole(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.cfg.UserRoles, func(r model.UserRole) bool { return r.ID == id })
	if i < 0 {
		return false
	}
	s.cfg.UserRoles[i].DeletedAt = s.stamp()
	return true
}

// ActiveUserRoles returns the active, undeleted roles.
func (s *StoreConfig) ActiveUserRoles() []model.UserRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return active(s.cfg.UserRoles, func(r model.UserRole) bool { return r.IsActive && r.DeletedAt == nil })
}

// AddCurrency appends an active currency. Its code is the upper-cased
// symbol.
func (s *StoreConfig) AddCurrency(c model.Currency) model.Currency {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = strings.ToUpper(c.Symbol)
	c.IsActive = true
	s.cfg.SupportedCurrencies = append(s.cfg.SupportedCurrencies, c)
	return c
}

// UpdateCurrency overlays p onto the currency with the given code.
func (s *StoreConfig) UpdateCurrency(code string, p model.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return patchWhere(s.cfg.SupportedCurrencies, func(c model.Currency) bool { return c.Code == code }, p)
}

// SoftDeleteCurrency marks a currency deleted.
func (s *StoreConfig) SoftDeleteCurrency(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.cfg.SupportedCurrencies, func(c model.Currency) bool { return c.Code == code })
	if i < 0 {
		return false
	}
	s.cfg.SupportedCurrencies[i].DeletedAt = s.stamp()
	return true
}

// ActiveCurrencies returns the active, undeleted currencies.
func (s *StoreConfig) ActiveCurrencies() []model.Currency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return active(s.cfg.SupportedCurrencies, func(c model.Currency) bool { return c.IsActive && c.DeletedAt == nil })
}

// AddLanguage appends an active language. Its code is the first two
// letters of its name, lower-cased.
func (s *StoreConfig) AddLanguage(l model.Language) model.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := []rune(l.Name)
	if len(name) > 2 {
		name = name[:2]
	}
	l.Code = strings.ToLower(string(name))
	l.IsActive = true
	s.cfg.SupportedLanguages = append(s.cfg.SupportedLanguages, l)
	return l
}

// UpdateLanguage overlays p onto the language with the given code.
func (s *StoreConfig) UpdateLanguage(code string, p model.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return patchWhere(s.cfg.SupportedLanguages, func(l model.Language) bool { return l.Code == code }, p)
}

// SoftDeleteLanguage marks a language deleted.
func (s *StoreConfig) SoftDeleteLanguage(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.cfg.SupportedLanguages, func(l model.Language) bool { return l.Code == code })
	if i < 0 {
		return false
	}
	s.cfg.SupportedLanguages[i].DeletedAt = s.stamp()
	return true
}

// ActiveLanguages returns the active, undeleted languages.
func (s *StoreConfig) ActiveLanguages() []model.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return active(s.cfg.SupportedLanguages, func(l model.Language) bool { return l.IsActive && l.DeletedAt == nil })
}

type storeConfigData struct {
	StoreConfig *model.StoreConfig `json:"storeConfig"`
}

// Load replaces the local configuration with the backend's.
func (s *StoreConfig) Load(ctx context.Context) error {
	s.ops.begin()
	env, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/store-config"})
	if err != nil {
		return s.ops.end(err)
	}
	cfg, err := decodeStoreConfig(env.Data)
	if err != nil {
		return s.ops.end(err)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info("store configuration loaded", zap.String("store", cfg.StoreName))
	return s.ops.end(nil)
}

// Save sends the local configuration to the backend, soft-deleted entries
// included.
func (s *StoreConfig) Save(ctx context.Context) error {
	s.ops.begin()
	cfg := s.Config()
	if _, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: "/store-config", Body: cfg}); err != nil {
		return s.ops.end(err)
	}
	s.logger.Info("store configuration saved", zap.String("store", cfg.StoreName))
	return s.ops.end(nil)
}

// Status returns the loading flag and last error of Load and Save.
func (s *StoreConfig) Status() OpStatus { return s.ops.status() }

func (s *StoreConfig) stamp() *time.Time {
	t := s.now()
	return &t
}

// decodeStoreConfig accepts data either wrapping the configuration in a
// storeConfig member or being the configuration itself.
func decodeStoreConfig(data json.RawMessage) (model.StoreConfig, error) {
	var wrapped storeConfigData
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.StoreConfig != nil {
		return *wrapped.StoreConfig, nil
	}
	var cfg model.StoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, model.NewUnknownError("Unexpected response from server: " + err.Error())
	}
	return cfg, nil
}

func patchWhere[T any](items []T, match func(T) bool, p model.Patch) (bool, error) {
	i := slices.IndexFunc(items, match)
	if i < 0 {
		return false, nil
	}
	next := items[i]
	if err := model.MergePatch(&next, p); err != nil {
		return false, model.NewValidationRejectedError(err.Error(), nil)
	}
	items[i] = next
	return true, nil
}

func active[T any](items []T, keep func(T) bool) []T {
	var out []T
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func cloneConfig(c model.StoreConfig) model.StoreConfig {
	c.ShippingMethods = slices.Clone(c.ShippingMethods)
	c.UserRoles = slices.Clone(c.UserRoles)
	for i := range c.UserRoles {
		c.UserRoles[i].Permissions = slices.Clone(c.UserRoles[i].Permissions)
	}
	c.SupportedCurrencies = slices.Clone(c.SupportedCurrencies)
	c.SupportedLanguages = slices.Clone(c.SupportedLanguages)
	return c
}
