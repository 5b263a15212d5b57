package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/dispense"
	"github.com/vendika/kiosk/internal/gateway"
	"github.com/vendika/kiosk/internal/storage"
)

// Errors returned by the engine.
var (
	ErrNoProductSelected = errors.New("no product selected")
	ErrNoActiveOrder     = errors.New("no active order")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrWrongScreen       = errors.New("operation not available on current screen")
)

// Backend is the slice of the API client the engine needs.
type Backend interface {
	ListAvailableProducts(ctx context.Context) ([]backend.Product, error)
	GetProduct(ctx context.Context, id string) (backend.Product, error)
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (backend.Order, error)
	GetOrder(ctx context.Context, id string) (backend.Order, error)
	VerifyPayment(ctx context.Context, orderID string, req backend.VerifyPaymentRequest) (backend.Order, error)
	UpdatePaymentMethod(ctx context.Context, orderID string, req backend.UpdatePaymentMethodRequest) (backend.Order, error)
	TriggerDispense(ctx context.Context, req backend.TriggerDispenseRequest) (backend.DispenseStatus, error)
}

// Event is pushed to the display feed on every observable change.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types emitted by the engine.
const (
	EventScreenChanged    = "screen_changed"
	EventOrderUpdated     = "order_updated"
	EventDispenseProgress = "dispense_progress"
	EventCheckoutError    = "checkout_error"
)

// SaleResult is reported once per finished checkout attempt.
type SaleResult struct {
	Order   backend.Order
	Product *backend.Product
	Success bool
}

// Engine drives the Store through the checkout flow: product selection,
// order creation, payment, dispensing, terminal screens. Every poll and
// timer it starts is owned by a cancellable session context: navigating
// away or resetting stops them.
type Engine struct {
	store    *Store
	backend  Backend
	provider gateway.Provider
	durable  storage.Storage

	machineID string

	// Poll cadences and timer lengths; zero values take the defaults
	// below. Overridable so tests run in milliseconds.
	PaymentPollInterval time.Duration // default 3 s
	PaymentCeiling      time.Duration // default 5 min
	AutoResetDelay      time.Duration // default 10 s
	DispensePoll        time.Duration // default 5 s
	DispenseDuration    time.Duration // default 6 s

	// DispenseOutcome overrides the simulated dispense result in tests.
	DispenseOutcome func() bool

	// OnEvent receives display-feed events (nil is fine).
	OnEvent func(Event)

	// OnSale receives the result of each finished checkout attempt for
	// journaling/telemetry (nil is fine).
	OnSale func(SaleResult)

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc // active session watcher, if any
	wg      sync.WaitGroup
}

func NewEngine(store *Store, api Backend, provider gateway.Provider, durable storage.Storage, machineID string) *Engine {
	return &Engine{
		store:     store,
		backend:   api,
		provider:  provider,
		durable:   durable,
		machineID: machineID,
	}
}

// Start restores a persisted mid-flow transaction and resumes its watcher.
// The given context bounds every goroutine the engine ever starts.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	if err := e.store.Restore(ctx); err != nil {
		log.Printf("ERROR: restore transaction snapshot: %v", err)
		e.store.ResetTransaction(ctx)
		return nil
	}

	state := e.store.State()
	switch state.CurrentScreen {
	case ScreenPayment:
		if state.CurrentOrder == nil {
			e.store.ResetTransaction(ctx)
			return nil
		}
		e.startPaymentWatch(state.CurrentOrder.ID)
	case ScreenDispensing:
		if state.CurrentOrder == nil {
			e.store.ResetTransaction(ctx)
			return nil
		}
		e.startDispense(state.CurrentOrder.ID)
	case ScreenSuccess, ScreenError:
		// Terminal screens do not outlive a restart.
		e.store.ResetTransaction(ctx)
	}
	return nil
}

// Stop cancels all outstanding polls and timers and waits for them.
func (e *Engine) Stop() {
	e.cancelSession()
	e.wg.Wait()
}

// State returns the current transaction state.
func (e *Engine) State() State { return e.store.State() }

// Products lists what the machine can currently sell.
func (e *Engine) Products(ctx context.Context) ([]backend.Product, error) {
	return e.backend.ListAvailableProducts(ctx)
}

// SelectProduct fetches a fresh product view, selects it, and moves to the
// product-detail screen. Quantity is reset to 1 by the store.
func (e *Engine) SelectProduct(ctx context.Context, productID string) (State, error) {
	state := e.store.State()
	if state.CurrentScreen != ScreenHome {
		return state, fmt.Errorf("%w: %s", ErrWrongScreen, state.CurrentScreen)
	}

	e.store.SetLoading(true)
	product, err := e.backend.GetProduct(ctx, productID)
	e.store.SetLoading(false)
	if err != nil {
		e.store.SetError("product unavailable")
		return e.store.State(), err
	}
	if product.CurrentStock <= 0 {
		e.store.SetError("product is out of stock")
		return e.store.State(), ErrOutOfStock
	}

	e.store.SetSelectedProduct(ctx, &product)
	if err := e.store.SetCurrentScreen(ctx, ScreenProductDetail); err != nil {
		return e.store.State(), err
	}
	e.emitScreen()
	return e.store.State(), nil
}

// AdjustQuantity clamps the requested quantity to [1, min(10, stock)].
func (e *Engine) AdjustQuantity(ctx context.Context, n int) (State, error) {
	state := e.store.State()
	if state.SelectedProduct == nil {
		return state, ErrNoProductSelected
	}

	bound := MaxQuantity
	if stock := state.SelectedProduct.CurrentStock; stock < bound {
		bound = stock
	}
	if bound < MinQuantity {
		bound = MinQuantity
	}
	if n > bound {
		n = bound
	}
	e.store.SetQuantity(ctx, n)
	return e.store.State(), nil
}

// Back walks one backward edge: product-detail -> home (dropping the
// selection) or order-summary -> product-detail.
func (e *Engine) Back(ctx context.Context) (State, error) {
	state := e.store.State()
	switch state.CurrentScreen {
	case ScreenProductDetail:
		if err := e.store.SetCurrentScreen(ctx, ScreenHome); err != nil {
			return e.store.State(), err
		}
		e.store.SetSelectedProduct(ctx, nil)
	case ScreenOrderSummary:
		if err := e.store.SetCurrentScreen(ctx, ScreenProductDetail); err != nil {
			return e.store.State(), err
		}
	default:
		return state, fmt.Errorf("%w: %s", ErrWrongScreen, state.CurrentScreen)
	}
	e.emitScreen()
	return e.store.State(), nil
}

// ProceedToSummary moves product-detail -> order-summary.
func (e *Engine) ProceedToSummary(ctx context.Context) (State, error) {
	state := e.store.State()
	if state.SelectedProduct == nil {
		return state, ErrNoProductSelected
	}
	if err := e.store.SetCurrentScreen(ctx, ScreenOrderSummary); err != nil {
		return e.store.State(), err
	}
	e.emitScreen()
	return e.store.State(), nil
}

// Checkout creates the backend order and moves to the payment screen. The
// payment-status watcher (poll + hard ceiling) starts here and is torn
// down by Reset or by reaching a terminal screen.
func (e *Engine) Checkout(ctx context.Context) (State, error) {
	state := e.store.State()
	if state.CurrentScreen != ScreenOrderSummary {
		return state, fmt.Errorf("%w: %s", ErrWrongScreen, state.CurrentScreen)
	}
	if state.SelectedProduct == nil {
		return state, ErrNoProductSelected
	}

	e.store.SetLoading(true)
	order, err := e.backend.CreateOrder(ctx, backend.CreateOrderRequest{
		MachineID: e.machineID,
		ProductID: state.SelectedProduct.ID,
		Quantity:  state.Quantity,
	})
	e.store.SetLoading(false)
	if err != nil {
		e.store.SetError("could not create order")
		return e.store.State(), err
	}

	e.store.SetCurrentOrder(ctx, &order)
	if err := e.store.SetCurrentScreen(ctx, ScreenPayment); err != nil {
		return e.store.State(), err
	}
	e.emitScreen()
	e.emit(Event{Type: EventOrderUpdated, Payload: order})

	e.startPaymentWatch(order.ID)
	return e.store.State(), nil
}

// Pay obtains a gateway transaction for the current order, reusing the
// cached token when one exists so retries do not create a duplicate
// transaction. A duplicate-order rejection from the gateway means the
// order is stale: it is abandoned and the whole transaction reset.
func (e *Engine) Pay(ctx context.Context, customerName, customerEmail string) (gateway.Transaction, error) {
	state := e.store.State()
	if state.CurrentScreen != ScreenPayment || state.CurrentOrder == nil {
		return gateway.Transaction{}, ErrNoActiveOrder
	}
	order := *state.CurrentOrder

	if token, err := e.durable.PaymentToken(ctx, order.ID); err == nil && token != "" {
		return gateway.Transaction{Token: token, RedirectURL: order.PaymentURL}, nil
	}

	req := gateway.CreateTransactionRequest{
		OrderID: order.ID,
		Amount:  order.TotalAmount.IntPart(),
	}
	if state.SelectedProduct != nil {
		req.Items = []gateway.LineItem{{
			ID:       state.SelectedProduct.ID,
			Name:     state.SelectedProduct.Name,
			Price:    state.SelectedProduct.EffectivePrice().IntPart(),
			Quantity: order.Quantity,
		}}
	}
	req.CustomerName = customerName
	req.CustomerEmail = customerEmail

	txn, err := e.provider.CreateTransaction(ctx, req)
	if err != nil {
		if errors.Is(err, gateway.ErrDuplicateOrder) {
			// Stale order: discard it and make the customer start over.
			e.failSale(order)
			e.Reset(ctx)
			return gateway.Transaction{}, err
		}
		if errors.Is(err, gateway.ErrNotConfigured) {
			// Fatal configuration error, surfaced verbatim.
			e.store.SetError(err.Error())
			return gateway.Transaction{}, err
		}
		e.store.SetError("payment could not be started")
		return gateway.Transaction{}, err
	}

	if err := e.durable.SetPaymentToken(ctx, order.ID, txn.Token); err != nil {
		log.Printf("ERROR: cache payment token for order %s: %v", order.ID, err)
	}
	return txn, nil
}

// CancelPayment handles the customer closing the hosted widget before a
// success/pending result: recoverable, back to method selection with the
// cached token cleared so the next attempt starts fresh.
func (e *Engine) CancelPayment(ctx context.Context) (State, error) {
	state := e.store.State()
	if state.CurrentScreen != ScreenPayment || state.CurrentOrder == nil {
		return state, ErrNoActiveOrder
	}
	if err := e.durable.DeletePaymentToken(ctx, state.CurrentOrder.ID); err != nil {
		log.Printf("ERROR: clear payment token for order %s: %v", state.CurrentOrder.ID, err)
	}
	e.store.SetError("")
	return e.store.State(), nil
}

// Reset tears down all session timers and restores the initial state.
func (e *Engine) Reset(ctx context.Context) State {
	e.cancelSession()
	e.store.ResetTransaction(ctx)
	e.emitScreen()
	return e.store.State()
}

// --- session watchers ---

// startPaymentWatch polls gateway status every PaymentPollInterval until
// settlement, denial, or the hard ceiling.
func (e *Engine) startPaymentWatch(orderID string) {
	ctx := e.newSession()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.watchPayment(ctx, orderID)
	}()
}

func (e *Engine) watchPayment(ctx context.Context, orderID string) {
	interval := e.PaymentPollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ceiling := e.PaymentCeiling
	if ceiling <= 0 {
		ceiling = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			e.toError(ctx, orderID, "payment timed out")
			return
		case <-ticker.C:
			st, err := e.provider.CheckStatus(ctx, orderID)
			if err != nil {
				log.Printf("ERROR: check payment status for order %s: %v", orderID, err)
				continue
			}
			switch {
			case st.Settled():
				e.onSettled(ctx, orderID, st)
				return
			case st.Denied():
				e.toError(ctx, orderID, "payment was declined")
				return
			}
		}
	}
}

// onSettled verifies the payment with the backend, advances to the
// dispensing screen, and hands off to the dispense flow.
func (e *Engine) onSettled(ctx context.Context, orderID string, st gateway.Status) {
	if order, err := e.backend.VerifyPayment(ctx, orderID, backend.VerifyPaymentRequest{
		TransactionStatus: st.TransactionStatus,
		PaymentType:       st.PaymentType,
	}); err != nil {
		log.Printf("ERROR: verify payment for order %s: %v", orderID, err)
	} else {
		e.store.SetCurrentOrder(ctx, &order)
		e.emit(Event{Type: EventOrderUpdated, Payload: order})
	}
	if st.PaymentType != "" {
		if _, err := e.backend.UpdatePaymentMethod(ctx, orderID, backend.UpdatePaymentMethodRequest{
			PaymentMethod: st.PaymentType,
		}); err != nil {
			log.Printf("ERROR: update payment method for order %s: %v", orderID, err)
		}
	}

	if err := e.store.SetCurrentScreen(ctx, ScreenDispensing); err != nil {
		log.Printf("ERROR: advance to dispensing: %v", err)
		return
	}
	e.emitScreen()
	e.startDispense(orderID)
}

// startDispense runs the dispense flow on its own session context.
func (e *Engine) startDispense(orderID string) {
	ctx := e.newSession()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		flow := &dispense.Flow{
			Backend:          e.backend,
			MachineID:        e.machineID,
			PollInterval:     e.DispensePoll,
			ProgressDuration: e.DispenseDuration,
			Outcome:          e.DispenseOutcome,
			OnStage: func(stage dispense.Stage, progress int) {
				e.emit(Event{Type: EventDispenseProgress, Payload: map[string]interface{}{
					"stage":    string(stage),
					"progress": progress,
				}})
			},
		}

		ok, err := flow.Run(ctx, orderID)
		if ctx.Err() != nil {
			return
		}
		if err != nil || !ok {
			e.toError(ctx, orderID, "dispensing failed, please contact support")
			return
		}
		e.finishSale(ctx)
	}()
}

// finishSale lands on the success screen and schedules the auto-reset.
func (e *Engine) finishSale(ctx context.Context) {
	state := e.store.State()
	if err := e.store.SetCurrentScreen(ctx, ScreenSuccess); err != nil {
		log.Printf("ERROR: advance to success: %v", err)
		return
	}
	e.emitScreen()

	if e.OnSale != nil && state.CurrentOrder != nil {
		e.OnSale(SaleResult{Order: *state.CurrentOrder, Product: state.SelectedProduct, Success: true})
	}
	e.scheduleAutoReset()
}

// toError lands on the error screen with a message and schedules the
// auto-reset back home.
func (e *Engine) toError(ctx context.Context, orderID, msg string) {
	state := e.store.State()
	if err := e.store.SetCurrentScreen(ctx, ScreenError); err != nil {
		log.Printf("ERROR: advance to error screen: %v", err)
	}
	e.store.SetError(msg)
	e.emit(Event{Type: EventCheckoutError, Payload: msg})
	e.emitScreen()

	if state.CurrentOrder != nil && state.CurrentOrder.ID == orderID {
		e.failSale(*state.CurrentOrder)
	}
	e.scheduleAutoReset()
}

func (e *Engine) failSale(order backend.Order) {
	if e.OnSale != nil {
		state := e.store.State()
		e.OnSale(SaleResult{Order: order, Product: state.SelectedProduct, Success: false})
	}
}

// scheduleAutoReset returns to home after AutoResetDelay unless the
// customer resets manually first.
func (e *Engine) scheduleAutoReset() {
	ctx := e.newSession()
	delay := e.AutoResetDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			e.Reset(context.Background())
		}
	}()
}

// newSession cancels the previous session watcher and derives a fresh
// context from the engine's base context. Each screen owns exactly one
// session at a time.
func (e *Engine) newSession() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	base := e.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	e.cancel = cancel
	return ctx
}

func (e *Engine) cancelSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) emitScreen() {
	state := e.store.State()
	e.emit(Event{Type: EventScreenChanged, Payload: map[string]interface{}{
		"screen": string(state.CurrentScreen),
	}})
}

func (e *Engine) emit(ev Event) {
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
}
