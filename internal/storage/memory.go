package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Storage used in tests and when the agent runs
// without Redis. Contents do not survive a restart.
type Memory struct {
	mu        sync.Mutex
	authToken string
	snapshot  []byte
	payTokens map[string]string
	dismissed map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		payTokens: make(map[string]string),
		dismissed: make(map[string]bool),
	}
}

func (m *Memory) AuthToken(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authToken, nil
}

func (m *Memory) SetAuthToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authToken = token
	return nil
}

func (m *Memory) ClearAuthToken(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authToken = ""
	return nil
}

func (m *Memory) SaveSnapshot(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = append([]byte(nil), data...)
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	return append([]byte(nil), m.snapshot...), nil
}

func (m *Memory) ClearSnapshot(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	return nil
}

func (m *Memory) PaymentToken(_ context.Context, orderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payTokens[orderID], nil
}

func (m *Memory) SetPaymentToken(_ context.Context, orderID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payTokens[orderID] = token
	return nil
}

func (m *Memory) DeletePaymentToken(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payTokens, orderID)
	return nil
}

func (m *Memory) DismissAnnouncement(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed[id] = true
	return nil
}

func (m *Memory) DismissedAnnouncements(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.dismissed))
	for id := range m.dismissed {
		ids = append(ids, id)
	}
	return ids, nil
}
