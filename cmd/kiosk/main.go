package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/checkout"
	"github.com/vendika/kiosk/internal/config"
	"github.com/vendika/kiosk/internal/gateway"
	"github.com/vendika/kiosk/internal/journal"
	"github.com/vendika/kiosk/internal/machine"
	"github.com/vendika/kiosk/internal/router"
	"github.com/vendika/kiosk/internal/storage"
	"github.com/vendika/kiosk/internal/telemetry"
	"github.com/vendika/kiosk/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable client storage. Redis is preferred; without it the agent
	// still runs, it just forgets in-flight transactions on restart.
	var durable storage.Storage
	rdb := storage.NewRedis(cfg.RedisAddr, cfg.MachineID)
	if err := rdb.Ping(ctx); err != nil {
		log.Printf("ERROR: redis unavailable at %s, falling back to in-memory storage: %v", cfg.RedisAddr, err)
		durable = storage.NewMemory()
	} else {
		durable = rdb
		defer rdb.Close()
	}

	// Local journal. Optional for the same reason.
	var jrnl *journal.Journal
	pool, err := journal.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("ERROR: journal database unavailable, history endpoints disabled: %v", err)
	} else {
		jrnl = &journal.Journal{Pool: pool}
		defer pool.Close()
	}

	// Telemetry producer (nil when no brokers are configured).
	producer := telemetry.NewProducer(cfg.KafkaBrokers, cfg.MachineID)
	producer.Start(ctx)

	// Backend API client; the stored operator token rides along on every
	// call once someone has logged in.
	api := backend.NewClient(cfg.BackendBaseURL, durable)

	// Payment gateway. Placeholder credentials select the mock provider so
	// a bench machine can run the full checkout flow offline.
	var provider gateway.Provider
	snap := gateway.NewSnapClient(cfg.GatewayBaseURL, cfg.GatewayServerKey)
	if snap.IsConfigured() {
		provider = snap
	} else {
		log.Printf("gateway credentials are placeholders, using mock provider")
		provider = gateway.NewMockProvider()
	}

	// Checkout engine and its event fan-out.
	hub := ws.NewHub()
	go hub.Run()

	store := checkout.NewStore(durable)
	engine := checkout.NewEngine(store, api, provider, durable, cfg.MachineID)
	engine.OnEvent = func(ev checkout.Event) {
		hub.Broadcast(ws.ChannelKiosk, ws.NewEvent(ev.Type, ev.Payload))
	}
	engine.OnSale = func(res checkout.SaleResult) {
		sale := journal.Sale{
			OrderID: res.Order.ID,
			Success: res.Success,
		}
		if res.Product != nil {
			sale.ProductID = res.Product.ID
			sale.ProductName = res.Product.Name
			sale.Quantity = res.Order.Quantity
			sale.TotalAmount = res.Order.TotalAmount
		}
		if jrnl != nil {
			if err := jrnl.RecordSale(ctx, sale); err != nil {
				log.Printf("ERROR: journal sale %s: %v", res.Order.ID, err)
			}
		}
		eventType := telemetry.EventSaleCompleted
		if !res.Success {
			eventType = telemetry.EventSaleFailed
		}
		producer.Publish(eventType, sale)
		hub.Broadcast(ws.ChannelAdmin, ws.NewEvent("sale", sale))
	}
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("start checkout engine: %v", err)
	}

	// Cabinet temperature monitor.
	monitor := &machine.Monitor{
		Backend:    api,
		Journal:    jrnl,
		Telemetry:  producer,
		MachineID:  cfg.MachineID,
		MinCelsius: cfg.TempMinCelsius,
		MaxCelsius: cfg.TempMaxCelsius,
		OnAlert: func(alert machine.TempAlert) {
			hub.Broadcast(ws.ChannelAdmin, ws.NewEvent("temp_alert", alert))
		},
	}
	go monitor.Run(ctx)

	r := router.New(router.Deps{
		Config:   cfg,
		API:      api,
		Engine:   engine,
		Provider: provider,
		Durable:  durable,
		Journal:  jrnl,
		Hub:      hub,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("Starting kiosk agent for %s on :%s", cfg.MachineID, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	engine.Stop()
	cancel()
	producer.WaitClosed()
}
