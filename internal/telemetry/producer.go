// Package telemetry publishes machine lifecycle events to the fleet event
// stream. The producer is optional: with no brokers configured every
// publish is a no-op and the agent runs standalone.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const Topic = "vending.machine.events"

// Event types.
const (
	EventSaleCompleted = "sale.completed"
	EventSaleFailed    = "sale.failed"
	EventTempAlert     = "machine.temp_alert"
)

// Envelope wraps every published event.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	MachineID  string          `json:"machine_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Producer writes events through a buffered inbox so publishers never
// block on the broker. Close flushes the inbox before closing the writer.
type Producer struct {
	w         *kafka.Writer
	machineID string
	inbox     chan kafka.Message
	closed    chan struct{}
}

// NewProducer returns nil when brokers is empty; a nil *Producer is safe
// to publish to.
func NewProducer(brokers []string, machineID string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		machineID: machineID,
		inbox:     make(chan kafka.Message, 256),
		closed:    make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	if p == nil {
		return
	}
	go func() {
		defer close(p.closed)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				if err := p.w.WriteMessages(context.Background(), m); err != nil {
					log.Printf("ERROR: telemetry write: %v", err)
				}
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				_ = p.w.Close()
				return
			}
			_ = p.w.WriteMessages(context.Background(), m)
		default:
			_ = p.w.Close()
			return
		}
	}
}

// Publish enqueues one event. Payloads that fail to marshal are dropped
// with a log line; telemetry never fails the caller.
func (p *Producer) Publish(eventType string, payload interface{}) {
	if p == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: telemetry marshal %s: %v", eventType, err)
		return
	}
	env := Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		MachineID:  p.machineID,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.Printf("ERROR: telemetry marshal envelope: %v", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(p.machineID),
		Value: b,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
		},
	}
	select {
	case p.inbox <- msg:
	default:
		log.Printf("ERROR: telemetry inbox full, dropping %s", eventType)
	}
}

// WaitClosed blocks until the producer loop has flushed and exited.
func (p *Producer) WaitClosed() {
	if p == nil {
		return
	}
	<-p.closed
}
