package domain

import "encoding/json"

// Event type names carried in Envelope.EventType and used as bus subjects.
const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderShipped   = "order.shipped"
	EventOrderCancelled = "order.cancelled"
	EventUserCreated    = "user.created"
	EventUserUpdated    = "user.updated"
	EventUserDeleted    = "user.deleted"

	EnvelopeVersion = "1.0"
)

// Envelope is the §6.2 bus payload wrapper. Data holds one of the
// event-specific payload structs below, encoded as json.RawMessage so the
// envelope can be marshalled once the event type is known and the data is
// still a typed value at the call site.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
}

// OrderItemData is the item shape embedded in OrderCreatedData.
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Price     string `json:"price"`
}

// OrderCreatedData is the order.created event data (§6.2).
type OrderCreatedData struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	TotalAmount     string          `json:"total_amount"`
	Currency        string          `json:"currency"`
	ShippingAddress *string         `json:"shipping_address,omitempty"`
	Items           []OrderItemData `json:"items"`
	CreatedAt       string          `json:"created_at"`
}

// OrderConfirmedData is the order.confirmed event data (§6.2).
type OrderConfirmedData struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id"`
	TotalAmount string `json:"total_amount"`
	Currency    string `json:"currency"`
	ConfirmedAt string `json:"confirmed_at"`
}

// OrderShippedData is the order.shipped event data (§6.2).
type OrderShippedData struct {
	OrderID           string `json:"order_id"`
	UserID            string `json:"user_id"`
	Status            string `json:"status"`
	TrackingNumber    string `json:"tracking_number"`
	Carrier           string `json:"carrier"`
	EstimatedDelivery string `json:"estimated_delivery"`
	ShippedAt         string `json:"shipped_at"`
}

// OrderCancelledData is the order.cancelled event data (§6.2).
type OrderCancelledData struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	CancelledAt string `json:"cancelled_at"`
}

// UserEventData covers user.created and user.updated (§6.2: identical shape).
type UserEventData struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// UserDeletedData is the user.deleted event data (§6.2).
type UserDeletedData struct {
	UserID    string  `json:"user_id"`
	DeletedAt string  `json:"deleted_at"`
	Reason    *string `json:"reason,omitempty"`
}
