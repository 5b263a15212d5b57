package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockProvider stands in when the gateway credentials are placeholders so
// the whole checkout flow stays testable without live credentials. Status
// answers are deterministic on the order id: "success" settles, "fail"
// denies, anything else stays pending.
type MockProvider struct {
	mu     sync.Mutex
	tokens map[string]string // order id -> issued token
}

func NewMockProvider() *MockProvider {
	return &MockProvider{tokens: make(map[string]string)}
}

func (m *MockProvider) CreateTransaction(_ context.Context, req CreateTransactionRequest) (Transaction, error) {
	if err := req.Validate(); err != nil {
		return Transaction{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[req.OrderID]; exists {
		return Transaction{}, ErrDuplicateOrder
	}
	token := "mock-" + uuid.NewString()
	m.tokens[req.OrderID] = token
	return Transaction{
		Token:       token,
		RedirectURL: fmt.Sprintf("https://payment.mock/redirect/%s", token),
	}, nil
}

func (m *MockProvider) CheckStatus(_ context.Context, orderID string) (Status, error) {
	if orderID == "" {
		return Status{}, ErrMissingOrderID
	}

	st := Status{OrderID: orderID, PaymentType: "qris"}
	lower := strings.ToLower(orderID)
	switch {
	case strings.Contains(lower, "success"):
		st.TransactionStatus = "settlement"
	case strings.Contains(lower, "fail"):
		st.TransactionStatus = "deny"
	default:
		st.TransactionStatus = "pending"
	}
	return st, nil
}
