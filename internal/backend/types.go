package backend

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item as served by the backend. Instances are
// immutable once fetched; a fresh view of stock requires a re-fetch.
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	Category      string           `json:"category"`
	ImageURL      string           `json:"image_url"`
	SlotID        string           `json:"slot_id"`
	SlotNumber    int              `json:"slot_number"`
	CurrentStock  int              `json:"current_stock"`
}

// EffectivePrice returns the discounted price when one is set.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// Order is a single checkout attempt. The backend owns the lifecycle; the
// agent only observes status by re-fetching.
type Order struct {
	ID           string          `json:"id"`
	MachineID    string          `json:"machine_id"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	UnitAmount   decimal.Decimal `json:"unit_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PaymentURL   string          `json:"payment_url,omitempty"`
	PaymentToken string          `json:"payment_token,omitempty"`
	QRPayload    string          `json:"qr_payload,omitempty"`
	Status       string          `json:"status"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	DispensedAt  *time.Time      `json:"dispensed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateOrderRequest creates a single-item order.
type CreateOrderRequest struct {
	MachineID string `json:"machine_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// MultiOrderItem is one line of a multi-item order.
type MultiOrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateMultiOrderRequest creates an order with several items.
type CreateMultiOrderRequest struct {
	MachineID string           `json:"machine_id"`
	Items     []MultiOrderItem `json:"items"`
}

// Machine is the backend's view of a vending machine.
type Machine struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	Temperature float64   `json:"temperature"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// DispenseStatus reports the backend's view of a dispense operation.
type DispenseStatus struct {
	OrderID   string     `json:"order_id"`
	Status    string     `json:"status"`
	SlotID    string     `json:"slot_id,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// StockLog is one inventory movement row.
type StockLog struct {
	ID        string    `json:"id"`
	MachineID string    `json:"machine_id"`
	ProductID string    `json:"product_id"`
	SlotID    string    `json:"slot_id"`
	Change    int       `json:"change"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Announcement is a storefront banner managed from the backend.
type Announcement struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ImageURL  string     `json:"image_url,omitempty"`
	Active    bool       `json:"active"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// User is a backend user row (operator console listing).
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginRequest authenticates an operator against the backend.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the backend bearer token.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ChatRequest is a health-assistant conversation turn.
type ChatRequest struct {
	MachineID string `json:"machine_id,omitempty"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id,omitempty"`
}

// RecommendationsRequest asks the assistant for product suggestions.
type RecommendationsRequest struct {
	MachineID string   `json:"machine_id"`
	Goals     []string `json:"goals,omitempty"`
}

// RecommendationsResponse lists suggested products.
type RecommendationsResponse struct {
	Products []Product `json:"products"`
	Note     string    `json:"note,omitempty"`
}

// AssistantStatus reports whether the assistant service is reachable.
type AssistantStatus struct {
	Available bool   `json:"available"`
	Model     string `json:"model,omitempty"`
}

// VerifyPaymentRequest confirms a payment against the backend.
type VerifyPaymentRequest struct {
	TransactionStatus string `json:"transaction_status"`
	PaymentType       string `json:"payment_type,omitempty"`
}

// UpdatePaymentMethodRequest records the method chosen in the widget.
type UpdatePaymentMethodRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// TriggerDispenseRequest asks the backend to start dispensing an order.
type TriggerDispenseRequest struct {
	OrderID   string `json:"order_id"`
	MachineID string `json:"machine_id"`
}

// UpdateMachineStatusRequest updates machine status / telemetry.
type UpdateMachineStatusRequest struct {
	Status      string  `json:"status,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}
