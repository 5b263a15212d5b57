// Package machine samples machine status from the backend on a fixed tick
// and journals the cabinet temperature, raising an alert when it drifts
// out of band.
package machine

import (
	"context"
	"log"
	"time"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/journal"
	"github.com/vendika/kiosk/internal/telemetry"
)

// Backend is the slice of the API client the monitor needs.
type Backend interface {
	GetMachine(ctx context.Context, id string) (backend.Machine, error)
}

// TempAlert is the telemetry payload for an out-of-band reading.
type TempAlert struct {
	MachineID string  `json:"machine_id"`
	Celsius   float64 `json:"celsius"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

type Monitor struct {
	Backend   Backend
	Journal   *journal.Journal
	Telemetry *telemetry.Producer
	MachineID string

	MinCelsius float64
	MaxCelsius float64

	// Interval defaults to 60 s.
	Interval time.Duration

	// OnAlert is invoked (in addition to telemetry) when a reading is out
	// of band; the display feed uses it.
	OnAlert func(TempAlert)
}

// Run blocks until the context is cancelled. One sample is taken
// immediately so the journal is never empty after startup.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	mach, err := m.Backend.GetMachine(ctx, m.MachineID)
	if err != nil {
		log.Printf("ERROR: fetch machine %s status: %v", m.MachineID, err)
		return
	}

	if m.Journal != nil {
		if err := m.Journal.RecordTemperature(ctx, journal.TemperatureReading{
			MachineID: m.MachineID,
			Celsius:   mach.Temperature,
			Status:    mach.Status,
		}); err != nil {
			log.Printf("ERROR: journal temperature reading: %v", err)
		}
	}

	if mach.Temperature < m.MinCelsius || mach.Temperature > m.MaxCelsius {
		alert := TempAlert{
			MachineID: m.MachineID,
			Celsius:   mach.Temperature,
			Min:       m.MinCelsius,
			Max:       m.MaxCelsius,
		}
		log.Printf("temperature out of band on %s: %.1f°C (band %.1f-%.1f)",
			m.MachineID, mach.Temperature, m.MinCelsius, m.MaxCelsius)
		m.Telemetry.Publish(telemetry.EventTempAlert, alert)
		if m.OnAlert != nil {
			m.OnAlert(alert)
		}
	}
}
