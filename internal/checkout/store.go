package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/storage"
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

var ErrInvalidTransition = errors.New("screen transition not allowed")

// State is a point-in-time copy of the in-flight purchase.
type State struct {
	SelectedProduct *backend.Product `json:"selected_product"`
	Quantity        int              `json:"quantity"`
	CurrentOrder    *backend.Order   `json:"current_order"`
	CurrentScreen   Screen           `json:"current_screen"`
	IsLoading       bool             `json:"is_loading"`
	Error           string           `json:"error,omitempty"`
}

// snapshot is the persisted subset of State. Loading and error flags are
// transient and never written out.
type snapshot struct {
	SelectedProduct *backend.Product `json:"selected_product"`
	Quantity        int              `json:"quantity"`
	CurrentOrder    *backend.Order   `json:"current_order"`
	CurrentScreen   Screen           `json:"current_screen"`
}

// Store is the single source of truth for the in-flight purchase. It is an
// injectable container, not a package-level singleton, so tests can build
// isolated instances. All setters are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	state   State
	durable storage.Storage
}

func NewStore(durable storage.Storage) *Store {
	return &Store{
		state:   initialState(),
		durable: durable,
	}
}

func initialState() State {
	return State{Quantity: MinQuantity, CurrentScreen: ScreenHome}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSelectedProduct sets the product and unconditionally resets quantity
// to 1. Availability is not validated here: stock can be stale until the
// next fetch.
func (s *Store) SetSelectedProduct(ctx context.Context, p *backend.Product) {
	s.mu.Lock()
	s.state.SelectedProduct = p
	s.state.Quantity = MinQuantity
	s.mu.Unlock()
	s.persist(ctx)
}

// SetQuantity clamps to [1, 10]. The tighter per-product bound against
// current stock is the engine's responsibility.
func (s *Store) SetQuantity(ctx context.Context, n int) {
	if n < MinQuantity {
		n = MinQuantity
	}
	if n > MaxQuantity {
		n = MaxQuantity
	}
	s.mu.Lock()
	s.state.Quantity = n
	s.mu.Unlock()
	s.persist(ctx)
}

// SetCurrentOrder replaces the current order wholesale.
func (s *Store) SetCurrentOrder(ctx context.Context, o *backend.Order) {
	s.mu.Lock()
	s.state.CurrentOrder = o
	s.mu.Unlock()
	s.persist(ctx)
}

// SetCurrentScreen moves to the given screen if the edge exists and clears
// any error. Invalid edges are rejected, never silently applied.
func (s *Store) SetCurrentScreen(ctx context.Context, screen Screen) error {
	s.mu.Lock()
	if !CanTransition(s.state.CurrentScreen, screen) {
		from := s.state.CurrentScreen
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, screen)
	}
	s.state.CurrentScreen = screen
	s.state.Error = ""
	s.mu.Unlock()
	s.persist(ctx)
	return nil
}

func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.state.IsLoading = loading
	s.mu.Unlock()
}

// SetError records a user-facing error message and forces loading off.
// An empty message clears the error.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.state.Error = msg
	if msg != "" {
		s.state.IsLoading = false
	}
	s.mu.Unlock()
}

// ResetTransaction clears the cached gateway token for the current order
// from durable storage, then resets all fields to their initial values.
// The storage cleanup happens first so an interrupted reset cannot leak a
// token key with no order pointing at it.
func (s *Store) ResetTransaction(ctx context.Context) {
	s.mu.Lock()
	order := s.state.CurrentOrder
	s.mu.Unlock()

	if order != nil {
		if err := s.durable.DeletePaymentToken(ctx, order.ID); err != nil {
			log.Printf("ERROR: delete cached payment token for order %s: %v", order.ID, err)
		}
	}
	if err := s.durable.ClearSnapshot(ctx); err != nil {
		log.Printf("ERROR: clear transaction snapshot: %v", err)
	}

	s.mu.Lock()
	s.state = initialState()
	s.mu.Unlock()
}

// Restore loads the persisted subset, if any, so a restart resumes
// mid-flow. Loading and error flags always come back zeroed.
func (s *Store) Restore(ctx context.Context) error {
	data, err := s.durable.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.CurrentScreen == "" {
		snap.CurrentScreen = ScreenHome
	}
	if snap.Quantity < MinQuantity {
		snap.Quantity = MinQuantity
	}

	s.mu.Lock()
	s.state = State{
		SelectedProduct: snap.SelectedProduct,
		Quantity:        snap.Quantity,
		CurrentOrder:    snap.CurrentOrder,
		CurrentScreen:   snap.CurrentScreen,
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) persist(ctx context.Context) {
	s.mu.Lock()
	snap := snapshot{
		SelectedProduct: s.state.SelectedProduct,
		Quantity:        s.state.Quantity,
		CurrentOrder:    s.state.CurrentOrder,
		CurrentScreen:   s.state.CurrentScreen,
	}
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("ERROR: marshal transaction snapshot: %v", err)
		return
	}
	if err := s.durable.SaveSnapshot(ctx, data); err != nil {
		log.Printf("ERROR: save transaction snapshot: %v", err)
	}
}
