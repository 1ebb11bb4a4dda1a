package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses as reported by the backend.
const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderCanceled   OrderStatus = "Canceled"
	OrderDelivered  OrderStatus = "Delivered"
)

// OrderStages is the forward progression of a fulfilled order.
var OrderStages = []OrderStatus{OrderPending, OrderProcessing, OrderShipped, OrderDelivered}

// AllOrderStatuses lists every status, in display order.
var AllOrderStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderShipped, OrderCanceled, OrderDelivered}

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCanceled || s == OrderDelivered
}

// Order is a customer order.
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	User            *User           `json:"user,omitempty"`
	OrderItems      []OrderItem     `json:"orderItems"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ResourceID implements Resource.
func (o *Order) ResourceID() string { return o.ID }

// ApplyPatch implements Resource.
func (o *Order) ApplyPatch(p Patch) error { return MergePatch(o, p) }

// Clone implements Resource.
func (o *Order) Clone() Resource {
	c := *o
	return &c
}

// OrderItem is a single line of an order.
type OrderItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	SKU      string          `json:"sku,omitempty"`
	Image    string          `json:"image"`
	Color    ItemColor       `json:"color"`
}

// ItemColor is the colour variant chosen for an order line.
type ItemColor struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// ShippingAddress is the delivery address of an order.
type ShippingAddress struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	ZipCode string `json:"zipCode"`
}

// User is the account summary embedded in orders.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

// OrderAnalytics holds the order totals shown on the orders page.
type OrderAnalytics struct {
	TotalOrders  int             `json:"totalOrders"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}
