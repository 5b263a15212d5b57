// Package dispense drives the staged dispensing presentation after payment
// confirmation. The progress itself is a fixed-duration simulation, not a
// hardware protocol: real slot feedback is a backend concern reported via
// the dispense-status endpoint.
package dispense

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/enum"
)

// Stage is the dispensing sub-state shown on the display.
type Stage string

const (
	StageWaitingPayment Stage = "waiting_payment"
	StageDispensing     Stage = "dispensing"
	StageChecking       Stage = "checking"
	StageComplete       Stage = "complete"
	StageFailed         Stage = "failed"
)

var ErrOrderFailed = errors.New("order failed before dispensing")

// Backend is the slice of the API client the flow needs.
type Backend interface {
	GetOrder(ctx context.Context, id string) (backend.Order, error)
	TriggerDispense(ctx context.Context, req backend.TriggerDispenseRequest) (backend.DispenseStatus, error)
}

// progressStage is one weighted leg of the simulated progress bar.
type progressStage struct {
	stage  Stage
	weight float64
}

var progressStages = []progressStage{
	{StageDispensing, 0.7},
	{StageChecking, 0.3},
}

// Flow runs the dispensing lifecycle for one order:
//
//	waiting_payment -> dispensing -> checking -> complete
//
// with failed reachable from dispensing/checking. If the order is still
// PENDING on entry the flow polls order status until payment is confirmed
// before triggering the dispense.
type Flow struct {
	Backend   Backend
	MachineID string

	// PollInterval is the order-status poll cadence while waiting for
	// payment confirmation. Defaults to 5 s.
	PollInterval time.Duration

	// ProgressDuration is the total length of the simulated progress.
	// Defaults to 6 s.
	ProgressDuration time.Duration

	// FailDelay is how long the failed stage is shown before the flow
	// returns. Defaults to 1500 ms.
	FailDelay time.Duration

	// Outcome decides whether the simulated dispense succeeds. Defaults
	// to a 90% success rate. Injectable so tests are deterministic.
	Outcome func() bool

	// OnStage is invoked on every stage/progress change (0-100).
	OnStage func(stage Stage, progress int)
}

func (f *Flow) pollInterval() time.Duration {
	if f.PollInterval > 0 {
		return f.PollInterval
	}
	return 5 * time.Second
}

func (f *Flow) progressDuration() time.Duration {
	if f.ProgressDuration > 0 {
		return f.ProgressDuration
	}
	return 6 * time.Second
}

func (f *Flow) failDelay() time.Duration {
	if f.FailDelay > 0 {
		return f.FailDelay
	}
	return 1500 * time.Millisecond
}

func (f *Flow) outcome() bool {
	if f.Outcome != nil {
		return f.Outcome()
	}
	return rand.Float64() < 0.9
}

func (f *Flow) notify(stage Stage, progress int) {
	if f.OnStage != nil {
		f.OnStage(stage, progress)
	}
}

// Run blocks until the flow completes, fails, or the context is cancelled.
// It returns true when the dispense (simulation) succeeded.
func (f *Flow) Run(ctx context.Context, orderID string) (bool, error) {
	order, err := f.Backend.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}

	switch order.Status {
	case enum.OrderStatusCompleted:
		// Already dispensed; nothing left to present.
		f.notify(StageComplete, 100)
		return true, nil
	case enum.OrderStatusFailed:
		f.notify(StageFailed, 0)
		return false, ErrOrderFailed
	case enum.OrderStatusPending:
		f.notify(StageWaitingPayment, 0)
		if err := f.waitForPayment(ctx, orderID); err != nil {
			return false, err
		}
	}

	// PAID or DISPENSING at this point: ask the backend to release the slot.
	// Re-fetching order status is idempotent, triggering is not, so this
	// happens exactly once per Run.
	if _, err := f.Backend.TriggerDispense(ctx, backend.TriggerDispenseRequest{
		OrderID:   orderID,
		MachineID: f.MachineID,
	}); err != nil {
		log.Printf("ERROR: trigger dispense for order %s: %v", orderID, err)
		return f.fail(ctx)
	}

	if err := f.runProgress(ctx); err != nil {
		return false, err
	}

	if !f.outcome() {
		return f.fail(ctx)
	}
	f.notify(StageComplete, 100)
	return true, nil
}

// waitForPayment polls order status until it leaves PENDING.
func (f *Flow) waitForPayment(ctx context.Context, orderID string) error {
	ticker := time.NewTicker(f.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			order, err := f.Backend.GetOrder(ctx, orderID)
			if err != nil {
				// Transient fetch failures keep the poll alive; the
				// ceiling timer on the payment screen bounds the wait.
				log.Printf("ERROR: poll order %s while waiting for payment: %v", orderID, err)
				continue
			}
			switch order.Status {
			case enum.OrderStatusPaid, enum.OrderStatusDispensing, enum.OrderStatusCompleted:
				return nil
			case enum.OrderStatusFailed:
				return ErrOrderFailed
			}
		}
	}
}

// runProgress advances the weighted stages over the fixed duration.
func (f *Flow) runProgress(ctx context.Context) error {
	const ticks = 20
	total := f.progressDuration()
	step := total / ticks

	elapsed := 0.0
	for i := 1; i <= ticks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
		elapsed = float64(i) / ticks
		f.notify(stageAt(elapsed), int(elapsed*100))
	}
	return nil
}

// stageAt maps overall progress to the weighted stage it falls in.
func stageAt(progress float64) Stage {
	acc := 0.0
	for _, ps := range progressStages {
		acc += ps.weight
		if progress <= acc {
			return ps.stage
		}
	}
	return progressStages[len(progressStages)-1].stage
}

func (f *Flow) fail(ctx context.Context) (bool, error) {
	f.notify(StageFailed, 0)
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(f.failDelay()):
	}
	return false, nil
}
