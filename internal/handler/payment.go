package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendika/kiosk/internal/gateway"
	"github.com/vendika/kiosk/internal/storage"
)

// WebhookJournal records raw gateway notifications for audit.
type WebhookJournal interface {
	RecordWebhook(ctx context.Context, orderID, txnStatus string, payload []byte) error
}

// PaymentHandler relays gateway calls for the display. The widget on the
// screen talks to the gateway directly with its token; this handler only
// creates transactions, reports status, and swallows webhooks.
type PaymentHandler struct {
	provider  gateway.Provider
	durable   storage.Storage
	journal   WebhookJournal
	clientKey string
}

func NewPaymentHandler(provider gateway.Provider, durable storage.Storage, journal WebhookJournal, clientKey string) *PaymentHandler {
	return &PaymentHandler{provider: provider, durable: durable, journal: journal, clientKey: clientKey}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/payment/config", h.Config)
	r.Post("/payment/create", h.Create)
	r.Get("/payment/status/{orderID}", h.Status)
	r.Post("/payment/webhook", h.Webhook)
}

// Config hands the display the client key it needs to load the hosted
// widget. The server key never leaves the agent.
func (h *PaymentHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"client_key": h.clientKey})
}

// Create opens one gateway transaction for the order. Tokens are cached
// per order id so a display reload does not create a duplicate.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req gateway.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if token, err := h.durable.PaymentToken(r.Context(), req.OrderID); err == nil && token != "" {
		writeJSON(w, http.StatusOK, gateway.Transaction{Token: token})
		return
	}

	txn, err := h.provider.CreateTransaction(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, gateway.ErrDuplicateOrder):
			writeError(w, http.StatusConflict, "order already has a transaction")
		default:
			log.Printf("ERROR: create gateway transaction for %s: %v", req.OrderID, err)
			writeError(w, http.StatusBadGateway, "payment gateway error")
		}
		return
	}

	if err := h.durable.SetPaymentToken(r.Context(), req.OrderID, txn.Token); err != nil {
		log.Printf("ERROR: cache payment token for %s: %v", req.OrderID, err)
	}
	writeJSON(w, http.StatusOK, txn)
}

// Status reports the gateway's view of an order's transaction.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}

	st, err := h.provider.CheckStatus(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		log.Printf("ERROR: check gateway status for %s: %v", orderID, err)
		writeError(w, http.StatusBadGateway, "payment gateway error")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Webhook accepts gateway notifications. Payment state is driven by
// polling, not by webhooks, so the only obligations here are to log the
// notification, journal it, and acknowledge with 200 so the gateway stops
// retrying.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var note struct {
		OrderID           string `json:"order_id"`
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.Unmarshal(body, &note); err != nil {
		log.Printf("webhook: unparseable notification (%d bytes)", len(body))
	} else {
		log.Printf("webhook: order %s status %s", note.OrderID, note.TransactionStatus)
	}

	if h.journal != nil {
		if err := h.journal.RecordWebhook(r.Context(), note.OrderID, note.TransactionStatus, body); err != nil {
			log.Printf("ERROR: journal webhook for %s: %v", note.OrderID, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
