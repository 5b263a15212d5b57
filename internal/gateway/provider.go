// Package gateway bridges the payment gateway's transaction lifecycle. The
// hosted widget itself runs on the display; this package only creates
// transactions, checks their status, and caches the per-order token.
package gateway

import (
	"context"
	"errors"
)

// Errors returned by providers.
var (
	// ErrNotConfigured means the gateway credentials are placeholders. This
	// is a fatal configuration error: surfaced verbatim, never retried.
	ErrNotConfigured = errors.New("payment gateway is not configured: set GATEWAY_SERVER_KEY")

	// ErrDuplicateOrder means the gateway rejected the order id because a
	// transaction already exists for it. The caller must abandon the order
	// and start a new checkout.
	ErrDuplicateOrder = errors.New("order id already has a gateway transaction")

	ErrMissingOrderID = errors.New("order_id is required")
	ErrInvalidAmount  = errors.New("amount must be a positive integer")
	ErrEmptyItems     = errors.New("at least one item is required")
)

// LineItem is one row of the transaction detail shown in the widget.
type LineItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// CreateTransactionRequest creates one checkout session. Amount is integer
// rupiah: the gateway accepts no fractional units.
type CreateTransactionRequest struct {
	OrderID       string     `json:"order_id"`
	Amount        int64      `json:"amount"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	Items         []LineItem `json:"items"`
}

// Validate rejects malformed requests before any network call.
func (r CreateTransactionRequest) Validate() error {
	if r.OrderID == "" {
		return ErrMissingOrderID
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if len(r.Items) == 0 {
		return ErrEmptyItems
	}
	return nil
}

// Transaction is the gateway's handle for one checkout session.
type Transaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// Status is the gateway's view of a transaction.
type Status struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	PaymentType       string `json:"payment_type,omitempty"`
	GrossAmount       string `json:"gross_amount,omitempty"`
	FraudStatus       string `json:"fraud_status,omitempty"`
}

// Settled reports whether the transaction has been paid.
func (s Status) Settled() bool {
	return s.TransactionStatus == "settlement" || s.TransactionStatus == "capture"
}

// Denied reports whether the transaction was refused or abandoned.
func (s Status) Denied() bool {
	switch s.TransactionStatus {
	case "deny", "cancel", "expire":
		return true
	}
	return false
}

// Provider abstracts the payment gateway so it is swappable and mockable.
type Provider interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (Transaction, error)
	CheckStatus(ctx context.Context, orderID string) (Status, error)
}
