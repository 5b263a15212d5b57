package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/checkout"
	"github.com/vendika/kiosk/internal/enum"
	"github.com/vendika/kiosk/internal/gateway"
	"github.com/vendika/kiosk/internal/storage"
)

// KioskBackend is the slice of the API client the display surface proxies
// directly, outside the checkout engine.
type KioskBackend interface {
	GetProduct(ctx context.Context, id string) (backend.Product, error)
	AssistantChat(ctx context.Context, req backend.ChatRequest) (backend.ChatResponse, error)
	AssistantRecommendations(ctx context.Context, req backend.RecommendationsRequest) (backend.RecommendationsResponse, error)
	AssistantStatus(ctx context.Context) (backend.AssistantStatus, error)
	ListAnnouncements(ctx context.Context) ([]backend.Announcement, error)
	TrackAnnouncement(ctx context.Context, id, action string) error
}

// KioskHandler is the display surface: everything the vending screen
// calls. All state changes go through the checkout engine so the screen
// stays dumb.
type KioskHandler struct {
	engine  *checkout.Engine
	backend KioskBackend
	durable storage.Storage
}

func NewKioskHandler(engine *checkout.Engine, api KioskBackend, durable storage.Storage) *KioskHandler {
	return &KioskHandler{
		engine:  engine,
		backend: api,
		durable: durable,
	}
}

// RegisterRoutes registers kiosk endpoints on the given Chi router.
func (h *KioskHandler) RegisterRoutes(r chi.Router) {
	r.Get("/kiosk/state", h.GetState)
	r.Get("/kiosk/products", h.ListProducts)
	r.Get("/kiosk/products/{productID}", h.GetProduct)
	r.Post("/kiosk/select/{productID}", h.SelectProduct)
	r.Post("/kiosk/quantity", h.SetQuantity)
	r.Post("/kiosk/back", h.Back)
	r.Post("/kiosk/summary", h.ProceedToSummary)
	r.Post("/kiosk/checkout", h.Checkout)
	r.Post("/kiosk/pay", h.Pay)
	r.Post("/kiosk/cancel-payment", h.CancelPayment)
	r.Post("/kiosk/reset", h.Reset)

	r.Post("/kiosk/assistant/chat", h.AssistantChat)
	r.Post("/kiosk/assistant/recommendations", h.AssistantRecommendations)
	r.Get("/kiosk/assistant/status", h.AssistantStatus)

	r.Get("/kiosk/announcements", h.ListAnnouncements)
	r.Post("/kiosk/announcements/{id}/dismiss", h.DismissAnnouncement)
	r.Post("/kiosk/announcements/{id}/track", h.TrackAnnouncement)
}

// --- Request types ---

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type payRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

type trackRequest struct {
	Action string `json:"action"`
}

// --- Checkout flow ---

func (h *KioskHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.State())
}

func (h *KioskHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.engine.Products(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct returns a fresh product view without selecting it; the home
// screen uses it for detail previews.
func (h *KioskHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product id is required")
		return
	}

	product, err := h.backend.GetProduct(r.Context(), productID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *KioskHandler) SelectProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product id is required")
		return
	}

	state, err := h.engine.SelectProduct(r.Context(), productID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *KioskHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.engine.AdjustQuantity(r.Context(), req.Quantity)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *KioskHandler) Back(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.Back(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *KioskHandler) ProceedToSummary(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.ProceedToSummary(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *KioskHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.Checkout(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *KioskHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if r.Body != nil {
		// Body is optional; anonymous walk-up payments are the norm.
		json.NewDecoder(r.Body).Decode(&req)
	}

	txn, err := h.engine.Pay(r.Context(), req.CustomerName, req.CustomerEmail)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "payment gateway is not configured")
			return
		}
		if errors.Is(err, gateway.ErrDuplicateOrder) {
			writeError(w, http.StatusConflict, "order was already paid")
			return
		}
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *KioskHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.CancelPayment(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *KioskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Reset(r.Context()))
}

// --- Assistant proxy ---

func (h *KioskHandler) AssistantChat(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.backend.AssistantChat(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *KioskHandler) AssistantRecommendations(w http.ResponseWriter, r *http.Request) {
	var req backend.RecommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.backend.AssistantRecommendations(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *KioskHandler) AssistantStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.backend.AssistantStatus(r.Context())
	if err != nil {
		// The screen renders the assistant entry point from this flag,
		// so an unreachable assistant is not an error here.
		writeJSON(w, http.StatusOK, backend.AssistantStatus{Available: false})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- Announcements ---

// ListAnnouncements returns active announcements minus the ones the shopper
// dismissed on this machine.
func (h *KioskHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	all, err := h.backend.ListAnnouncements(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch announcements")
		return
	}

	dismissed, err := h.durable.DismissedAnnouncements(r.Context())
	if err != nil {
		log.Printf("ERROR: load dismissed announcements: %v", err)
		dismissed = nil
	}
	dismissedSet := make(map[string]bool, len(dismissed))
	for _, id := range dismissed {
		dismissedSet[id] = true
	}

	visible := make([]backend.Announcement, 0, len(all))
	for _, a := range all {
		if a.Active && !dismissedSet[a.ID] {
			visible = append(visible, a)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (h *KioskHandler) DismissAnnouncement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "announcement id is required")
		return
	}

	if err := h.durable.DismissAnnouncement(r.Context(), id); err != nil {
		log.Printf("ERROR: dismiss announcement %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *KioskHandler) TrackAnnouncement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "announcement id is required")
		return
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action != enum.AnnouncementTrackView && req.Action != enum.AnnouncementTrackClick {
		writeError(w, http.StatusBadRequest, "action must be view or click")
		return
	}

	// Tracking is fire-and-forget from the screen's point of view.
	if err := h.backend.TrackAnnouncement(r.Context(), id, req.Action); err != nil {
		log.Printf("ERROR: track announcement %s: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *KioskHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrWrongScreen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrNoProductSelected),
		errors.Is(err, checkout.ErrNoActiveOrder),
		errors.Is(err, checkout.ErrOutOfStock):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("ERROR: checkout: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
