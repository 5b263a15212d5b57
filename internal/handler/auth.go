package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vendika/kiosk/internal/auth"
	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/enum"
	"github.com/vendika/kiosk/internal/storage"
)

// AuthBackend is the slice of the API client used for operator login.
type AuthBackend interface {
	Login(ctx context.Context, req backend.LoginRequest) (backend.LoginResponse, error)
}

// AuthHandler authenticates operators against the central backend and
// issues local session tokens for this agent's admin surface. The backend
// bearer token is kept in durable storage so subsequent proxied calls
// carry it.
type AuthHandler struct {
	backend   AuthBackend
	durable   storage.Storage
	jwtSecret string
	machineID string

	// bcrypt hash of the maintenance PIN; empty disables PIN login.
	pinHash string
}

func NewAuthHandler(api AuthBackend, durable storage.Storage, jwtSecret, machineID, pinHash string) *AuthHandler {
	return &AuthHandler{
		backend:   api,
		durable:   durable,
		jwtSecret: jwtSecret,
		machineID: machineID,
		pinHash:   pinHash,
	}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/pin-login", h.PinLogin)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)
}

// --- Request / Response types ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type pinLoginRequest struct {
	Pin string `json:"pin"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *backend.User `json:"user,omitempty"`
}

// --- Handlers ---

// Login proxies email + password authentication to the backend, stores the
// backend bearer token, and returns a local operator session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	resp, err := h.backend.Login(r.Context(), backend.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if apiErr, ok := err.(*backend.APIError); ok && apiErr.Status == http.StatusUnauthorized {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}

	if err := h.durable.SetAuthToken(r.Context(), resp.Token); err != nil {
		log.Printf("ERROR: store backend auth token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithTokens(w, resp.User.ID, resp.User.Role, &resp.User)
}

// PinLogin grants a technician session from the maintenance PIN. It works
// with no backend connectivity, which is the point: a technician standing
// at a dead machine still needs the admin surface.
func (h *AuthHandler) PinLogin(w http.ResponseWriter, r *http.Request) {
	if h.pinHash == "" {
		writeError(w, http.StatusNotFound, "pin login is disabled")
		return
	}

	var req pinLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Pin == "" {
		writeError(w, http.StatusBadRequest, "pin is required")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.pinHash), []byte(req.Pin)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid pin")
		return
	}

	h.respondWithTokens(w, "maintenance", enum.RoleTechnician, nil)
}

// Refresh exchanges a refresh token for a fresh access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	userID, err := auth.ValidateRefreshToken(h.jwtSecret, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// Refreshed sessions keep the operator role; PIN sessions are too
	// short-lived to refresh.
	h.respondWithTokens(w, userID, enum.RoleOperator, nil)
}

// Logout drops the stored backend token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.durable.ClearAuthToken(r.Context()); err != nil {
		log.Printf("ERROR: clear backend auth token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, userID, role string, user *backend.User) {
	access, err := auth.GenerateToken(h.jwtSecret, userID, h.machineID, role)
	if err != nil {
		log.Printf("ERROR: generate access token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	refresh, err := auth.GenerateRefreshToken(h.jwtSecret, userID)
	if err != nil {
		log.Printf("ERROR: generate refresh token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	})
}
