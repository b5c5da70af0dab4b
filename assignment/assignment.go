// Package assignment owns the driver-bike and battery-bike links. Each link is stored
// once and both directions are read from it, so the two sides cannot disagree.
package assignment

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/profile"
)

// Tx is the unit of work the registry mutates links through. Lock calls block
// concurrent writers of the same row until the transaction ends.
type Tx interface {
	LockBike(ctx context.Context, id uuid.UUID) (bike.Bike, error)
	LockBattery(ctx context.Context, id uuid.UUID) (battery.Battery, error)
	Profile(ctx context.Context, id uuid.UUID) (profile.Profile, error)
	SetDriver(ctx context.Context, bikeID uuid.UUID, profileID *uuid.UUID, status bike.Status) error
	SetBatteryBike(ctx context.Context, batteryID uuid.UUID, bikeID *uuid.UUID, status battery.Status) error
}

// Store runs fn in a transaction. fn's writes are committed only when it returns nil.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Registry struct {
	store     Store
	logger    *slog.Logger
	tracer    trace.Tracer
	conflicts prometheus.Counter
}

type Option func(*Registry)

// WithConflictCounter counts assignments rejected with a conflict.
func WithConflictCounter(c prometheus.Counter) Option {
	return func(r *Registry) {
		r.conflicts = c
	}
}

func NewRegistry(store Store, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("github.com/semanticallynull/ebike-fleet/assignment"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AssignDriver makes profileID the driver of bikeID. Assigning the current driver again
// is a no-op.
func (r *Registry) AssignDriver(ctx context.Context, bikeID, profileID uuid.UUID) (bike.Bike, error) {
	ctx, span := r.tracer.Start(ctx, "assignment.AssignDriver")
	defer span.End()

	var result bike.Bike
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBike(ctx, bikeID)
		if err != nil {
			return err
		}
		if _, err := tx.Profile(ctx, profileID); err != nil {
			if fleeterr.IsNotFound(err) {
				return fleeterr.Conflict("profile", profileID, "no such driver profile")
			}
			return err
		}

		if b.AssignedProfileID != nil {
			if *b.AssignedProfileID == profileID {
				result = b
				return nil
			}
			return fleeterr.Conflict("bike", bikeID, "already assigned to driver "+b.AssignedProfileID.String())
		}
		if b.Retired() {
			return fleeterr.Conflict("bike", bikeID, "retired bikes cannot be assigned")
		}

		status := b.Status
		if status == bike.StatusAvailable {
			status = bike.StatusAssigned
		}
		if err := tx.SetDriver(ctx, bikeID, &profileID, status); err != nil {
			return err
		}

		b.AssignedProfileID = &profileID
		b.Status = status
		result = b
		return nil
	})
	if err != nil {
		return bike.Bike{}, r.fail(span, err)
	}

	r.logger.InfoContext(ctx, "driver assigned", "bike_id", bikeID, "profile_id", profileID)
	return result, nil
}

// UnassignDriver clears the driver of bikeID. A bike without a driver is left as is.
func (r *Registry) UnassignDriver(ctx context.Context, bikeID uuid.UUID) (bike.Bike, error) {
	ctx, span := r.tracer.Start(ctx, "assignment.UnassignDriver")
	defer span.End()

	var result bike.Bike
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBike(ctx, bikeID)
		if err != nil {
			return err
		}
		if b.AssignedProfileID == nil {
			result = b
			return nil
		}

		status := b.Status
		if status == bike.StatusAssigned {
			status = bike.StatusAvailable
		}
		if err := tx.SetDriver(ctx, bikeID, nil, status); err != nil {
			return err
		}

		r.logger.InfoContext(ctx, "driver unassigned", "bike_id", bikeID, "profile_id", *b.AssignedProfileID)
		b.AssignedProfileID = nil
		b.Status = status
		result = b
		return nil
	})
	if err != nil {
		return bike.Bike{}, r.fail(span, err)
	}
	return result, nil
}

// AssignBattery mounts batteryID on bikeID. A battery may sit on one bike at a time;
// mounting it on the bike it is already on is a no-op.
func (r *Registry) AssignBattery(ctx context.Context, bikeID, batteryID uuid.UUID) (battery.Battery, error) {
	ctx, span := r.tracer.Start(ctx, "assignment.AssignBattery")
	defer span.End()

	var result battery.Battery
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBike(ctx, bikeID)
		if err != nil {
			return err
		}
		bt, err := tx.LockBattery(ctx, batteryID)
		if err != nil {
			return err
		}

		if bt.AssignedBikeID != nil {
			if *bt.AssignedBikeID == bikeID {
				result = bt
				return nil
			}
			return fleeterr.Conflict("battery", batteryID, "already assigned to bike "+bt.AssignedBikeID.String())
		}
		if b.Retired() {
			return fleeterr.Conflict("bike", bikeID, "retired bikes cannot take batteries")
		}
		if bt.Retired() {
			return fleeterr.Conflict("battery", batteryID, "retired batteries cannot be assigned")
		}

		status := bt.Status
		if status == battery.StatusAvailable || status == battery.StatusCharging {
			status = battery.StatusAssigned
		}
		if err := tx.SetBatteryBike(ctx, batteryID, &bikeID, status); err != nil {
			return err
		}

		bt.AssignedBikeID = &bikeID
		bt.Status = status
		result = bt
		return nil
	})
	if err != nil {
		return battery.Battery{}, r.fail(span, err)
	}

	r.logger.InfoContext(ctx, "battery assigned", "bike_id", bikeID, "battery_id", batteryID)
	return result, nil
}

// UnassignBattery removes batteryID from bikeID. It fails with a not-found error when the
// battery is not currently mounted on that bike.
func (r *Registry) UnassignBattery(ctx context.Context, bikeID, batteryID uuid.UUID) (battery.Battery, error) {
	ctx, span := r.tracer.Start(ctx, "assignment.UnassignBattery")
	defer span.End()

	var result battery.Battery
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockBike(ctx, bikeID); err != nil {
			return err
		}
		bt, err := tx.LockBattery(ctx, batteryID)
		if err != nil {
			return err
		}
		if bt.AssignedBikeID == nil || *bt.AssignedBikeID != bikeID {
			return &fleeterr.NotFoundError{Entity: "battery assignment on bike " + bikeID.String(), ID: batteryID}
		}

		status := bt.Status
		if status == battery.StatusAssigned {
			status = battery.StatusAvailable
		}
		if err := tx.SetBatteryBike(ctx, batteryID, nil, status); err != nil {
			return err
		}

		bt.AssignedBikeID = nil
		bt.Status = status
		result = bt
		return nil
	})
	if err != nil {
		return battery.Battery{}, r.fail(span, err)
	}

	r.logger.InfoContext(ctx, "battery unassigned", "bike_id", bikeID, "battery_id", batteryID)
	return result, nil
}

func (r *Registry) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if fleeterr.IsConflict(err) && r.conflicts != nil {
		r.conflicts.Inc()
	}
	return err
}
