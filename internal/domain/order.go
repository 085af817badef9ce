// Package domain holds the order-lifecycle data model (§3) shared by the
// repository, outbox, service, relay, processor, and consumer packages.
package domain

import "time"

// OrderStatus is the order lifecycle enum. Transitions are strictly forward:
// pending → confirmed → shipped → delivered, with cancellation possible
// from pending or confirmed.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the §3 Order entity. ConfirmedAt/ShippedAt/PaymentID/
// TrackingNumber/Carrier are pointer-valued because they are unset until the
// order reaches the corresponding lifecycle stage.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	TotalAmount     string      `json:"total_amount"` // decimal, kept as string to avoid float rounding
	Currency        string      `json:"currency"`
	ShippingAddress *string     `json:"shipping_address,omitempty"`
	Status          OrderStatus `json:"status"`
	TrackingNumber  *string     `json:"tracking_number,omitempty"`
	Carrier         *string     `json:"carrier,omitempty"`
	PaymentID       *string     `json:"payment_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	ConfirmedAt     *time.Time  `json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time  `json:"shipped_at,omitempty"`
	Items           []OrderItem `json:"items"`
}

// OrderItem is the §3 OrderItem entity, owned exclusively by its Order.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Price     string `json:"price"`
}
