package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalogue entry.
type Product struct {
	ID                    string          `json:"_id"`
	Name                  string          `json:"name"`
	Subtitle              string          `json:"subtitle"`
	Price                 decimal.Decimal `json:"price"`
	Sale                  decimal.Decimal `json:"sale"`
	Categories            []string        `json:"categories"`
	Description           string          `json:"description,omitempty"`
	Brand                 string          `json:"brand,omitempty"`
	Colors                []ColorVariant  `json:"colors"`
	AdditionalInformation map[string]any  `json:"additionalInformation,omitempty"`
	Deleted               bool            `json:"deleted"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// ResourceID implements Resource.
func (p *Product) ResourceID() string { return p.ID }

// ApplyPatch implements Resource.
func (p *Product) ApplyPatch(patch Patch) error { return MergePatch(p, patch) }

// Clone implements Resource.
func (p *Product) Clone() Resource {
	c := *p
	return &c
}

// ColorVariant is a stocked colour of a product.
type ColorVariant struct {
	Name     string  `json:"name"`
	Hex      string  `json:"hex,omitempty"`
	Images   []Image `json:"images"`
	Quantity int     `json:"quantity"`
	SKU      string  `json:"sku,omitempty"`
}

// Image is a hosted product image.
type Image struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// Category groups products.
type Category struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// ResourceID implements Resource.
func (c *Category) ResourceID() string { return c.ID }

// ApplyPatch implements Resource.
func (c *Category) ApplyPatch(p Patch) error { return MergePatch(c, p) }

// Clone implements Resource.
func (c *Category) Clone() Resource {
	cp := *c
	return &cp
}

// CategoryInput is the payload for creating or updating a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Customer is a shop account as listed in the admin dashboard.
type Customer struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Thumbnail  string    `json:"thumbnail"`
	Phone      Phone     `json:"phone"`
	Role       string    `json:"role"`
	Gender     string    `json:"gender"`
	Favourites []string  `json:"favourites"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ResourceID implements Resource.
func (c *Customer) ResourceID() string { return c.ID }

// ApplyPatch implements Resource.
func (c *Customer) ApplyPatch(p Patch) error { return MergePatch(c, p) }

// Clone implements Resource.
func (c *Customer) Clone() Resource {
	cp := *c
	return &cp
}

// CustomerDetail is a customer together with the names of their favourite
// products.
type CustomerDetail struct {
	Customer       *Customer `json:"customer"`
	FavouriteNames []string  `json:"favouriteNames"`
}

// Phone is a contact number. The backend stores some numbers as JSON
// numbers, so both numbers and strings are accepted.
type Phone string

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phone) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = Phone(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("phone: %w", err)
	}
	*p = Phone(n.String())
	return nil
}
