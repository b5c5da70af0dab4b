package rental

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/event"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/validate"
	"github.com/semanticallynull/ebike-fleet/profile"
)

// Tx is the unit of work a rental write runs in. LockBike serializes all rental writes
// for one bike, so the overlap check and the write see the same set of rentals.
type Tx interface {
	LockBike(ctx context.Context, id uuid.UUID) (bike.Bike, error)
	Profile(ctx context.Context, id uuid.UUID) (profile.Profile, error)
	LockRental(ctx context.Context, id uuid.UUID) (Rental, error)
	RentalsForBike(ctx context.Context, bikeID uuid.UUID) ([]Rental, error)
	Insert(ctx context.Context, r *Rental) error
	Update(ctx context.Context, r *Rental) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id uuid.UUID) (Listing, error)
	List(ctx context.Context, f Filter) ([]Listing, error)
}

type Scheduler struct {
	store    Store
	events   event.Publisher
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	created  prometheus.Counter
	overlaps prometheus.Counter
}

type Option func(*Scheduler)

func WithPublisher(p event.Publisher) Option {
	return func(s *Scheduler) {
		s.events = p
	}
}

// WithCounters counts created rentals and rentals rejected for overlapping.
func WithCounters(created, overlaps prometheus.Counter) Option {
	return func(s *Scheduler) {
		s.created = created
		s.overlaps = overlaps
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func NewScheduler(store Store, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		events: event.Discard,
		logger: logger,
		tracer: otel.Tracer("github.com/semanticallynull/ebike-fleet/rental"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	BikeID    uuid.UUID  `json:"bike_id" validate:"required"`
	ProfileID uuid.UUID  `json:"profile_id" validate:"required"`
	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date"`
	Notes     *string    `json:"notes" validate:"omitempty,max=1000"`
}

func (s *Scheduler) Create(ctx context.Context, in CreateInput) (Rental, error) {
	ctx, span := s.tracer.Start(ctx, "rental.Create")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return Rental{}, err
	}

	now := s.now().UTC()
	r := Rental{
		ID:        uuid.New(),
		BikeID:    in.BikeID,
		ProfileID: in.ProfileID,
		StartDate: in.StartDate.UTC(),
		EndDate:   utcPtr(in.EndDate),
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := checkInterval(r); err != nil {
		return Rental{}, err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockBike(ctx, r.BikeID)
		if err != nil {
			return err
		}
		if b.Retired() {
			return fleeterr.Conflict("bike", b.ID, "retired bikes cannot be rented")
		}
		if _, err := tx.Profile(ctx, r.ProfileID); err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, r); err != nil {
			return err
		}
		return tx.Insert(ctx, &r)
	})
	if err != nil {
		return Rental{}, s.fail(span, err)
	}

	if s.created != nil {
		s.created.Inc()
	}
	s.logger.InfoContext(ctx, "rental created",
		"rental_id", r.ID, "bike_id", r.BikeID, "profile_id", r.ProfileID, "start_date", r.StartDate)

	s.publish(ctx, event.RentalCreated{
		RentalID:  r.ID,
		BikeID:    r.BikeID,
		ProfileID: r.ProfileID,
		Start:     r.StartDate,
		End:       r.EndDate,
		At:        now,
	})
	return r, nil
}

// UpdateInput is a partial update. ClearEndDate reopens a rental as ongoing and wins
// over EndDate.
type UpdateInput struct {
	BikeID       *uuid.UUID `json:"bike_id"`
	ProfileID    *uuid.UUID `json:"profile_id"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	ClearEndDate bool       `json:"clear_end_date"`
	Notes        *string    `json:"notes" validate:"omitempty,max=1000"`
}

// Update rewrites a rental and re-checks it against every other rental of its (possibly
// new) bike.
func (s *Scheduler) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Rental, error) {
	ctx, span := s.tracer.Start(ctx, "rental.Update")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return Rental{}, err
	}

	now := s.now().UTC()
	var (
		updated Rental
		ended   bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockRental(ctx, id)
		if err != nil {
			return err
		}

		r := current
		if in.BikeID != nil {
			r.BikeID = *in.BikeID
		}
		if in.ProfileID != nil {
			r.ProfileID = *in.ProfileID
		}
		if in.StartDate != nil {
			r.StartDate = in.StartDate.UTC()
		}
		if in.ClearEndDate {
			r.EndDate = nil
		} else if in.EndDate != nil {
			r.EndDate = utcPtr(in.EndDate)
		}
		if in.Notes != nil {
			r.Notes = in.Notes
		}
		if err := checkInterval(r); err != nil {
			return err
		}

		b, err := tx.LockBike(ctx, r.BikeID)
		if err != nil {
			return err
		}
		if r.BikeID != current.BikeID && b.Retired() {
			return fleeterr.Conflict("bike", b.ID, "retired bikes cannot be rented")
		}
		if r.ProfileID != current.ProfileID {
			if _, err := tx.Profile(ctx, r.ProfileID); err != nil {
				return err
			}
		}
		if err := checkOverlap(ctx, tx, r); err != nil {
			return err
		}

		r.UpdatedAt = now
		if err := tx.Update(ctx, &r); err != nil {
			return err
		}
		updated = r
		ended = current.Ongoing() && !r.Ongoing()
		return nil
	})
	if err != nil {
		return Rental{}, s.fail(span, err)
	}

	s.logger.InfoContext(ctx, "rental updated", "rental_id", id)
	if ended {
		s.publish(ctx, event.RentalEnded{
			RentalID:  updated.ID,
			BikeID:    updated.BikeID,
			ProfileID: updated.ProfileID,
			End:       *updated.EndDate,
			At:        now,
		})
	}
	return updated, nil
}

func (s *Scheduler) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "rental.Delete")
	defer span.End()

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockRental(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return s.fail(span, err)
	}

	s.logger.InfoContext(ctx, "rental deleted", "rental_id", id)
	return nil
}

func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (Listing, error) {
	return s.store.Get(ctx, id)
}

func (s *Scheduler) List(ctx context.Context, f Filter) ([]Listing, error) {
	return s.store.List(ctx, f)
}

func (s *Scheduler) publish(ctx context.Context, e event.Event) {
	// The rental is committed; a failed notification must not undo it.
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event", e.Type(), "error", err)
	}
}

func (s *Scheduler) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if fleeterr.IsOverlap(err) && s.overlaps != nil {
		s.overlaps.Inc()
	}
	return err
}

func checkInterval(r Rental) error {
	if r.StartDate.IsZero() {
		return fleeterr.Invalid("start_date", "is required")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return fleeterr.Invalid("end_date", "must not be before start_date")
	}
	return nil
}

func checkOverlap(ctx context.Context, tx Tx, r Rental) error {
	existing, err := tx.RentalsForBike(ctx, r.BikeID)
	if err != nil {
		return err
	}
	if ids := Overlapping(existing, r); len(ids) > 0 {
		return &fleeterr.OverlapError{BikeID: r.BikeID, ConflictIDs: ids}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
