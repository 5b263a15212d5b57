package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/enum"
	"github.com/vendika/kiosk/internal/journal"
	"github.com/vendika/kiosk/internal/middleware"
)

// AdminBackend is the slice of the API client the operator console proxies.
type AdminBackend interface {
	GetOrdersByMachine(ctx context.Context, machineID string) ([]backend.Order, error)
	GetStockLogs(ctx context.Context, machineID string) ([]backend.StockLog, error)
	GetMachine(ctx context.Context, id string) (backend.Machine, error)
	UpdateMachineStatus(ctx context.Context, id string, req backend.UpdateMachineStatusRequest) (backend.Machine, error)
	ListUsers(ctx context.Context) ([]backend.User, error)
	CreateAnnouncement(ctx context.Context, a backend.Announcement) (backend.Announcement, error)
	UpdateAnnouncement(ctx context.Context, id string, a backend.Announcement) (backend.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id string) error
}

// SalesJournal is the local history the console reads without the backend.
type SalesJournal interface {
	ListSales(ctx context.Context, limit int) ([]journal.Sale, error)
	ListTemperatures(ctx context.Context, machineID string, limit int) ([]journal.TemperatureReading, error)
}

// AdminHandler serves the operator console. Local history comes from the
// journal; everything else proxies to the backend with the stored token.
type AdminHandler struct {
	backend   AdminBackend
	journal   SalesJournal
	machineID string
}

func NewAdminHandler(api AdminBackend, journal SalesJournal, machineID string) *AdminHandler {
	return &AdminHandler{backend: api, journal: journal, machineID: machineID}
}

// RegisterRoutes registers operator endpoints. The caller wraps them in
// Authenticate plus RequireRole.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/admin/sales", h.ListSales)
	r.Get("/admin/temperatures", h.ListTemperatures)
	r.Get("/admin/orders", h.ListOrders)
	r.Get("/admin/stock-logs", h.ListStockLogs)
	r.Get("/admin/machine", h.GetMachine)
	r.Post("/admin/machine/status", h.UpdateMachineStatus)
	r.Get("/admin/session", h.Session)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.RoleAdmin))
		r.Get("/admin/users", h.ListUsers)
		r.Post("/admin/announcements", h.CreateAnnouncement)
		r.Put("/admin/announcements/{id}", h.UpdateAnnouncement)
		r.Delete("/admin/announcements/{id}", h.DeleteAnnouncement)
	})
}

// --- Local journal ---

func (h *AdminHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusOK, []journal.Sale{})
		return
	}
	sales, err := h.journal.ListSales(r.Context(), queryLimit(r))
	if err != nil {
		log.Printf("ERROR: list sales: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if sales == nil {
		sales = []journal.Sale{}
	}
	writeJSON(w, http.StatusOK, sales)
}

func (h *AdminHandler) ListTemperatures(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusOK, []journal.TemperatureReading{})
		return
	}
	readings, err := h.journal.ListTemperatures(r.Context(), h.machineID, queryLimit(r))
	if err != nil {
		log.Printf("ERROR: list temperatures: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if readings == nil {
		readings = []journal.TemperatureReading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// --- Backend proxies ---

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.backend.GetOrdersByMachine(r.Context(), h.machineID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *AdminHandler) ListStockLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.backend.GetStockLogs(r.Context(), h.machineID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch stock logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *AdminHandler) GetMachine(w http.ResponseWriter, r *http.Request) {
	m, err := h.backend.GetMachine(r.Context(), h.machineID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch machine")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *AdminHandler) UpdateMachineStatus(w http.ResponseWriter, r *http.Request) {
	var req backend.UpdateMachineStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	m, err := h.backend.UpdateMachineStatus(r.Context(), h.machineID, req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to update machine status")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Session echoes the authenticated operator's claims so the console can
// render the right controls.
func (h *AdminHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":    claims.UserID,
		"machine_id": claims.MachineID,
		"role":       claims.Role,
	})
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.backend.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var a backend.Announcement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if a.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	created, err := h.backend.CreateAnnouncement(r.Context(), a)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to create announcement")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *AdminHandler) UpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var a backend.Announcement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.backend.UpdateAnnouncement(r.Context(), id, a)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to update announcement")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.backend.DeleteAnnouncement(r.Context(), id); err != nil {
		writeError(w, http.StatusBadGateway, "failed to delete announcement")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}
