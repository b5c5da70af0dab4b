// Package event defines the domain events the fleet core emits after a committed write.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeRentalCreated     Type = "rental.created"
	TypeRentalEnded       Type = "rental.ended"
	TypeMaintenanceLogged Type = "maintenance.logged"
	TypeBatteryLow        Type = "battery.low"
)

type Event interface {
	Type() Type
	OccurredAt() time.Time
}

type RentalCreated struct {
	RentalID  uuid.UUID  `json:"rental_id"`
	BikeID    uuid.UUID  `json:"bike_id"`
	ProfileID uuid.UUID  `json:"profile_id"`
	Start     time.Time  `json:"start_date"`
	End       *time.Time `json:"end_date,omitempty"`
	At        time.Time  `json:"occurred_at"`
}

func (RentalCreated) Type() Type               { return TypeRentalCreated }
func (e RentalCreated) OccurredAt() time.Time { return e.At }

// RentalEnded is emitted when an ongoing rental gets an end date.
type RentalEnded struct {
	RentalID  uuid.UUID `json:"rental_id"`
	BikeID    uuid.UUID `json:"bike_id"`
	ProfileID uuid.UUID `json:"profile_id"`
	End       time.Time `json:"end_date"`
	At        time.Time `json:"occurred_at"`
}

func (RentalEnded) Type() Type               { return TypeRentalEnded }
func (e RentalEnded) OccurredAt() time.Time { return e.At }

type MaintenanceLogged struct {
	RecordID    uuid.UUID       `json:"record_id"`
	BikeID      *uuid.UUID      `json:"bike_id,omitempty"`
	BatteryID   *uuid.UUID      `json:"battery_id,omitempty"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Currency    string          `json:"currency"`
	ServiceDate time.Time       `json:"service_date"`
	At          time.Time       `json:"occurred_at"`
}

func (MaintenanceLogged) Type() Type               { return TypeMaintenanceLogged }
func (e MaintenanceLogged) OccurredAt() time.Time { return e.At }

type BatteryLow struct {
	BatteryID   uuid.UUID  `json:"battery_id"`
	BikeID      *uuid.UUID `json:"bike_id,omitempty"`
	ChargeLevel int        `json:"charge_level"`
	At          time.Time  `json:"occurred_at"`
}

func (BatteryLow) Type() Type               { return TypeBatteryLow }
func (e BatteryLow) OccurredAt() time.Time { return e.At }

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Handler interface {
	Handle(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Bus delivers events synchronously to every subscribed handler. A failing handler does
// not stop the others; their errors are joined.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, e); err != nil {
			b.logger.WarnContext(ctx, "event handler failed", "event", e.Type(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes e with its type tag so Unmarshal can restore the concrete event.
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: e.Type(), Payload: payload})
}

func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var e Event
	switch env.Type {
	case TypeRentalCreated:
		var v RentalCreated
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	case TypeRentalEnded:
		var v RentalEnded
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	case TypeMaintenanceLogged:
		var v MaintenanceLogged
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	case TypeBatteryLow:
		var v BatteryLow
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	return e, nil
}
