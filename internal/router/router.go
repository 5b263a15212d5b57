package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/checkout"
	"github.com/vendika/kiosk/internal/config"
	"github.com/vendika/kiosk/internal/enum"
	"github.com/vendika/kiosk/internal/gateway"
	"github.com/vendika/kiosk/internal/handler"
	"github.com/vendika/kiosk/internal/journal"
	mw "github.com/vendika/kiosk/internal/middleware"
	"github.com/vendika/kiosk/internal/storage"
	"github.com/vendika/kiosk/internal/ws"
)

// Deps carries everything the routes need. Journal may be nil when the
// agent runs without a local database.
type Deps struct {
	Config   *config.Config
	API      *backend.Client
	Engine   *checkout.Engine
	Provider gateway.Provider
	Durable  storage.Storage
	Journal  *journal.Journal
	Hub      *ws.Hub
}

// New creates a Chi router with all agent routes wired up. The kiosk
// surface is unauthenticated (the display is a trusted local client); the
// operator surface requires a session token.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The display and the operator console are served from the machine
	// itself, so only local origins matter.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","machine_id":"` + d.Config.MachineID + `"}`))
	})

	// WebSocket feeds. The admin feed checks its token internally via
	// query param; the kiosk feed is the display's event stream.
	r.Get("/ws/kiosk", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeKiosk(d.Hub, w, r)
	})
	r.Get("/ws/admin", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeAdmin(d.Hub, d.Config.JWTSecret, w, r)
	})

	r.Route("/api", func(r chi.Router) {
		// Public: display surface plus payment relay. The gateway's
		// webhook must stay reachable without a token.
		authHandler := handler.NewAuthHandler(d.API, d.Durable, d.Config.JWTSecret, d.Config.MachineID, d.Config.MaintenancePinHash)
		authHandler.RegisterRoutes(r)

		kioskHandler := handler.NewKioskHandler(d.Engine, d.API, d.Durable)
		kioskHandler.RegisterRoutes(r)

		var webhookJournal handler.WebhookJournal
		if d.Journal != nil {
			webhookJournal = d.Journal
		}
		paymentHandler := handler.NewPaymentHandler(d.Provider, d.Durable, webhookJournal, d.Config.GatewayClientKey)
		paymentHandler.RegisterRoutes(r)

		// Protected: operator console.
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(d.Config.JWTSecret))
			r.Use(mw.RequireRole(enum.RoleAdmin, enum.RoleOperator, enum.RoleTechnician))

			var salesJournal handler.SalesJournal
			if d.Journal != nil {
				salesJournal = d.Journal
			}
			adminHandler := handler.NewAdminHandler(d.API, salesJournal, d.Config.MachineID)
			adminHandler.RegisterRoutes(r)
		})
	})

	return r
}
