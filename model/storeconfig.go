package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoreConfig is the shop-wide configuration edited on the settings page.
type StoreConfig struct {
	StoreName           string           `json:"storeName" yaml:"store_name"`
	DefaultCurrency     string           `json:"defaultCurrency" yaml:"default_currency"`
	DefaultLanguage     string           `json:"defaultLanguage" yaml:"default_language"`
	ShippingMethods     []ShippingMethod `json:"shippingMethods" yaml:"shipping_methods"`
	UserRoles           []UserRole       `json:"userRoles" yaml:"user_roles"`
	SupportedCurrencies []Currency       `json:"supportedCurrencies" yaml:"supported_currencies"`
	SupportedLanguages  []Language       `json:"supportedLanguages" yaml:"supported_languages"`
}

// ShippingMethod is a delivery option offered at checkout.
type ShippingMethod struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Cost      decimal.Decimal `json:"cost" yaml:"cost"`
	IsActive  bool            `json:"isActive" yaml:"is_active"`
	DeletedAt *time.Time      `json:"deletedAt,omitempty" yaml:"deleted_at,omitempty"`
}

// UserRole is a named set of dashboard permissions.
type UserRole struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Permissions []string   `json:"permissions" yaml:"permissions"`
	IsActive    bool       `json:"isActive" yaml:"is_active"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" yaml:"deleted_at,omitempty"`
}

// Currency is a supported checkout currency.
type Currency struct {
	Code         string          `json:"code" yaml:"code"`
	Symbol       string          `json:"symbol" yaml:"symbol"`
	Name         string          `json:"name" yaml:"name"`
	ExchangeRate decimal.Decimal `json:"exchangeRate" yaml:"exchange_rate"`
	IsDefault    bool            `json:"isDefault" yaml:"is_default"`
	IsActive     bool            `json:"isActive" yaml:"is_active"`
	DeletedAt    *time.Time      `json:"deletedAt,omitempty" yaml:"deleted_at,omitempty"`
}

// Language is a supported storefront language.
type Language struct {
	Code      string     `json:"code" yaml:"code"`
	Name      string     `json:"name" yaml:"name"`
	IsDefault bool       `json:"isDefault" yaml:"is_default"`
	IsActive  bool       `json:"isActive" yaml:"is_active"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" yaml:"deleted_at,omitempty"`
}
