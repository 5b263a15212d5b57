package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/enum"
	"github.com/vendika/kiosk/internal/gateway"
	"github.com/vendika/kiosk/internal/storage"
)

// mockBackend is an in-memory stand-in for the central API.
type mockBackend struct {
	mu       sync.Mutex
	products map[string]backend.Product
	orders   map[string]backend.Order

	verifyCalls  int
	triggerCalls int
}

func newMockBackend(products ...backend.Product) *mockBackend {
	m := &mockBackend{
		products: make(map[string]backend.Product),
		orders:   make(map[string]backend.Order),
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockBackend) ListAvailableProducts(_ context.Context) ([]backend.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]backend.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockBackend) GetProduct(_ context.Context, id string) (backend.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return backend.Product{}, errors.New("product not found")
	}
	return p, nil
}

func (m *mockBackend) CreateOrder(_ context.Context, req backend.CreateOrderRequest) (backend.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[req.ProductID]
	order := backend.Order{
		ID:          "order-success-" + req.ProductID,
		MachineID:   req.MachineID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		UnitAmount:  p.EffectivePrice(),
		TotalAmount: p.EffectivePrice().Mul(decimal.NewFromInt(int64(req.Quantity))),
		Status:      enum.OrderStatusPending,
	}
	m.orders[order.ID] = order
	return order, nil
}

func (m *mockBackend) GetOrder(_ context.Context, id string) (backend.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return backend.Order{}, errors.New("order not found")
	}
	return o, nil
}

func (m *mockBackend) VerifyPayment(_ context.Context, orderID string, _ backend.VerifyPaymentRequest) (backend.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	o := m.orders[orderID]
	o.Status = enum.OrderStatusPaid
	m.orders[orderID] = o
	return o, nil
}

func (m *mockBackend) UpdatePaymentMethod(_ context.Context, orderID string, _ backend.UpdatePaymentMethodRequest) (backend.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID], nil
}

func (m *mockBackend) TriggerDispense(_ context.Context, req backend.TriggerDispenseRequest) (backend.DispenseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggerCalls++
	o := m.orders[req.OrderID]
	o.Status = enum.OrderStatusDispensing
	m.orders[req.OrderID] = o
	return backend.DispenseStatus{OrderID: req.OrderID, Status: "DISPENSING"}, nil
}

// stubProvider returns a scripted status so settlement timing is
// deterministic.
type stubProvider struct {
	mu     sync.Mutex
	status gateway.Status
	txn    gateway.Transaction
	err    error
}

func (s *stubProvider) CreateTransaction(_ context.Context, req gateway.CreateTransactionRequest) (gateway.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return gateway.Transaction{}, s.err
	}
	return s.txn, nil
}

func (s *stubProvider) CheckStatus(_ context.Context, orderID string) (gateway.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.OrderID = orderID
	return st, nil
}

func (s *stubProvider) setStatus(txnStatus string) {
	s.mu.Lock()
	s.status.TransactionStatus = txnStatus
	s.mu.Unlock()
}

func fastEngine(t *testing.T, api Backend, provider gateway.Provider) (*Engine, *Store) {
	t.Helper()
	mem := storage.NewMemory()
	store := NewStore(mem)
	e := NewEngine(store, api, provider, mem, "VM-TEST")
	e.PaymentPollInterval = 5 * time.Millisecond
	e.PaymentCeiling = 500 * time.Millisecond
	e.AutoResetDelay = time.Hour // never fires inside a test
	e.DispensePoll = 5 * time.Millisecond
	e.DispenseDuration = 40 * time.Millisecond
	e.DispenseOutcome = func() bool { return true }
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(e.Stop)
	return e, store
}

func waitForScreen(t *testing.T, store *Store, want Screen) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if store.State().CurrentScreen == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for screen %s, at %s", want, store.State().CurrentScreen)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestSelectProductRequiresHomeScreen(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	e, _ := fastEngine(t, api, &stubProvider{})
	ctx := context.Background()

	if _, err := e.SelectProduct(ctx, "p1"); err != nil {
		t.Fatalf("select from home: %v", err)
	}
	if _, err := e.SelectProduct(ctx, "p1"); !errors.Is(err, ErrWrongScreen) {
		t.Fatalf("expected ErrWrongScreen selecting from product-detail, got %v", err)
	}
}

func TestSelectProductOutOfStock(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 0})
	e, store := fastEngine(t, api, &stubProvider{})

	_, err := e.SelectProduct(context.Background(), "p1")
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	state := store.State()
	if state.CurrentScreen != ScreenHome {
		t.Errorf("expected to stay on home, got %s", state.CurrentScreen)
	}
	if state.Error == "" {
		t.Error("expected a user-facing error message")
	}
}

func TestAdjustQuantityClampsToStock(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 3})
	e, _ := fastEngine(t, api, &stubProvider{})
	ctx := context.Background()

	if _, err := e.SelectProduct(ctx, "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	state, err := e.AdjustQuantity(ctx, 9)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if state.Quantity != 3 {
		t.Errorf("expected quantity clamped to stock 3, got %d", state.Quantity)
	}

	state, _ = e.AdjustQuantity(ctx, -1)
	if state.Quantity != 1 {
		t.Errorf("expected quantity clamped to 1, got %d", state.Quantity)
	}
}

func TestAdjustQuantityWithoutSelection(t *testing.T) {
	api := newMockBackend()
	e, _ := fastEngine(t, api, &stubProvider{})

	if _, err := e.AdjustQuantity(context.Background(), 2); !errors.Is(err, ErrNoProductSelected) {
		t.Fatalf("expected ErrNoProductSelected, got %v", err)
	}
}

func TestBackDropsSelection(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	e, store := fastEngine(t, api, &stubProvider{})
	ctx := context.Background()

	if _, err := e.SelectProduct(ctx, "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := e.Back(ctx); err != nil {
		t.Fatalf("back: %v", err)
	}

	state := store.State()
	if state.CurrentScreen != ScreenHome {
		t.Errorf("expected home after back, got %s", state.CurrentScreen)
	}
	if state.SelectedProduct != nil {
		t.Error("expected selection dropped on back to home")
	}
}

func TestBackFromSummaryKeepsSelection(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	e, store := fastEngine(t, api, &stubProvider{})
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	if _, err := e.ProceedToSummary(ctx); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if _, err := e.Back(ctx); err != nil {
		t.Fatalf("back: %v", err)
	}

	state := store.State()
	if state.CurrentScreen != ScreenProductDetail {
		t.Errorf("expected product-detail after back, got %s", state.CurrentScreen)
	}
	if state.SelectedProduct == nil {
		t.Error("expected selection kept on back to product-detail")
	}
}

func TestCheckoutRequiresSummaryScreen(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	e, _ := fastEngine(t, api, &stubProvider{})

	if _, err := e.Checkout(context.Background()); !errors.Is(err, ErrWrongScreen) {
		t.Fatalf("expected ErrWrongScreen, got %v", err)
	}
}

func TestFullCheckoutToSuccess(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{
		status: gateway.Status{TransactionStatus: enum.TxnStatusPending},
		txn:    gateway.Transaction{Token: "tok-1"},
	}
	e, store := fastEngine(t, api, provider)
	ctx := context.Background()

	var sales []SaleResult
	var salesMu sync.Mutex
	e.OnSale = func(res SaleResult) {
		salesMu.Lock()
		sales = append(sales, res)
		salesMu.Unlock()
	}

	e.SelectProduct(ctx, "p1")
	e.AdjustQuantity(ctx, 2)
	e.ProceedToSummary(ctx)
	if _, err := e.Checkout(ctx); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if got := store.State().CurrentScreen; got != ScreenPayment {
		t.Fatalf("expected payment screen after checkout, got %s", got)
	}

	txn, err := e.Pay(ctx, "", "")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if txn.Token != "tok-1" {
		t.Errorf("unexpected token %q", txn.Token)
	}

	provider.setStatus(enum.TxnStatusSettlement)

	waitForScreen(t, store, ScreenDispensing)
	waitForScreen(t, store, ScreenSuccess)

	api.mu.Lock()
	verify, trigger := api.verifyCalls, api.triggerCalls
	api.mu.Unlock()
	if verify != 1 {
		t.Errorf("expected 1 verify-payment call, got %d", verify)
	}
	if trigger != 1 {
		t.Errorf("expected 1 trigger-dispense call, got %d", trigger)
	}

	salesMu.Lock()
	defer salesMu.Unlock()
	if len(sales) != 1 || !sales[0].Success {
		t.Fatalf("expected one successful sale, got %+v", sales)
	}
	if sales[0].Order.Quantity != 2 {
		t.Errorf("expected sale quantity 2, got %d", sales[0].Order.Quantity)
	}
}

func TestPaymentDeniedLandsOnErrorScreen(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{status: gateway.Status{TransactionStatus: enum.TxnStatusPending}}
	e, store := fastEngine(t, api, provider)
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)

	provider.setStatus(enum.TxnStatusDeny)

	waitForScreen(t, store, ScreenError)
	if store.State().Error == "" {
		t.Error("expected a user-facing error message on denial")
	}
}

func TestPaymentCeilingTimesOut(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{status: gateway.Status{TransactionStatus: enum.TxnStatusPending}}
	e, store := fastEngine(t, api, provider)
	e.PaymentCeiling = 30 * time.Millisecond
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)

	waitForScreen(t, store, ScreenError)
}

func TestPayReusesCachedToken(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{
		status: gateway.Status{TransactionStatus: enum.TxnStatusPending},
		txn:    gateway.Transaction{Token: "tok-first"},
	}
	e, _ := fastEngine(t, api, provider)
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)

	if _, err := e.Pay(ctx, "", ""); err != nil {
		t.Fatalf("first pay: %v", err)
	}

	provider.mu.Lock()
	provider.txn.Token = "tok-second"
	provider.mu.Unlock()

	txn, err := e.Pay(ctx, "", "")
	if err != nil {
		t.Fatalf("second pay: %v", err)
	}
	if txn.Token != "tok-first" {
		t.Errorf("expected cached token tok-first, got %q", txn.Token)
	}
}

func TestPayDuplicateOrderResets(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{status: gateway.Status{TransactionStatus: enum.TxnStatusPending}}
	e, store := fastEngine(t, api, provider)
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)

	provider.mu.Lock()
	provider.err = gateway.ErrDuplicateOrder
	provider.mu.Unlock()

	if _, err := e.Pay(ctx, "", ""); !errors.Is(err, gateway.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
	if got := store.State().CurrentScreen; got != ScreenHome {
		t.Errorf("expected full reset to home, got %s", got)
	}
}

func TestPayNotConfiguredSurfacedVerbatim(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{status: gateway.Status{TransactionStatus: enum.TxnStatusPending}}
	e, store := fastEngine(t, api, provider)
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)

	provider.mu.Lock()
	provider.err = gateway.ErrNotConfigured
	provider.mu.Unlock()

	if _, err := e.Pay(ctx, "", ""); !errors.Is(err, gateway.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if got := store.State().Error; got != gateway.ErrNotConfigured.Error() {
		t.Errorf("expected verbatim config error, got %q", got)
	}
	if got := store.State().CurrentScreen; got != ScreenPayment {
		t.Errorf("expected to stay on payment screen, got %s", got)
	}
}

func TestCancelPaymentClearsTokenAndStays(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{
		status: gateway.Status{TransactionStatus: enum.TxnStatusPending},
		txn:    gateway.Transaction{Token: "tok-1"},
	}
	mem := storage.NewMemory()
	store := NewStore(mem)
	e := NewEngine(store, api, provider, mem, "VM-TEST")
	e.PaymentPollInterval = 5 * time.Millisecond
	e.AutoResetDelay = time.Hour
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(e.Stop)
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)
	e.Pay(ctx, "", "")

	orderID := store.State().CurrentOrder.ID
	if tok, _ := mem.PaymentToken(ctx, orderID); tok == "" {
		t.Fatal("expected cached token before cancel")
	}

	state, err := e.CancelPayment(ctx)
	if err != nil {
		t.Fatalf("cancel payment: %v", err)
	}
	if state.CurrentScreen != ScreenPayment {
		t.Errorf("expected to remain on payment, got %s", state.CurrentScreen)
	}
	if tok, _ := mem.PaymentToken(ctx, orderID); tok != "" {
		t.Errorf("expected token cleared, got %q", tok)
	}
}

func TestAutoResetAfterSuccess(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{
		status: gateway.Status{TransactionStatus: enum.TxnStatusSettlement},
		txn:    gateway.Transaction{Token: "tok-1"},
	}
	e, store := fastEngine(t, api, provider)
	e.AutoResetDelay = 20 * time.Millisecond
	ctx := context.Background()

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)

	waitForScreen(t, store, ScreenSuccess)
	waitForScreen(t, store, ScreenHome)

	state := store.State()
	if state.SelectedProduct != nil || state.CurrentOrder != nil {
		t.Error("expected transaction cleared after auto-reset")
	}
}

func TestDispenseFailureLandsOnErrorScreen(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{
		status: gateway.Status{TransactionStatus: enum.TxnStatusSettlement},
		txn:    gateway.Transaction{Token: "tok-1"},
	}
	e, store := fastEngine(t, api, provider)
	e.DispenseOutcome = func() bool { return false }
	ctx := context.Background()

	var failed []SaleResult
	var mu sync.Mutex
	e.OnSale = func(res SaleResult) {
		mu.Lock()
		failed = append(failed, res)
		mu.Unlock()
	}

	e.SelectProduct(ctx, "p1")
	e.ProceedToSummary(ctx)
	e.Checkout(ctx)

	waitForScreen(t, store, ScreenError)

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0].Success {
		t.Fatalf("expected one failed sale, got %+v", failed)
	}
}

func TestRestartResumesPaymentWatch(t *testing.T) {
	api := newMockBackend(backend.Product{ID: "p1", Name: "Water", Price: decimal.NewFromInt(10000), CurrentStock: 4})
	provider := &stubProvider{
		status: gateway.Status{TransactionStatus: enum.TxnStatusPending},
		txn:    gateway.Transaction{Token: "tok-1"},
	}
	mem := storage.NewMemory()

	store1 := NewStore(mem)
	e1 := NewEngine(store1, api, provider, mem, "VM-TEST")
	e1.PaymentPollInterval = time.Hour // no polling in the first life
	e1.AutoResetDelay = time.Hour
	if err := e1.Start(context.Background()); err != nil {
		t.Fatalf("start first engine: %v", err)
	}
	ctx := context.Background()
	e1.SelectProduct(ctx, "p1")
	e1.ProceedToSummary(ctx)
	e1.Checkout(ctx)
	e1.Stop()

	// Second life: the snapshot puts it back on the payment screen and the
	// resumed watcher sees the settlement.
	provider.setStatus(enum.TxnStatusSettlement)

	store2 := NewStore(mem)
	e2 := NewEngine(store2, api, provider, mem, "VM-TEST")
	e2.PaymentPollInterval = 5 * time.Millisecond
	e2.AutoResetDelay = time.Hour
	e2.DispensePoll = 5 * time.Millisecond
	e2.DispenseDuration = 40 * time.Millisecond
	e2.DispenseOutcome = func() bool { return true }
	if err := e2.Start(context.Background()); err != nil {
		t.Fatalf("start second engine: %v", err)
	}
	t.Cleanup(e2.Stop)

	if got := store2.State().CurrentScreen; got != ScreenPayment {
		t.Fatalf("expected restored payment screen, got %s", got)
	}
	waitForScreen(t, store2, ScreenSuccess)
}
