package bike

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/validate"
)

// Repository persists bikes. Implementations return *fleeterr.NotFoundError for unknown
// IDs and *fleeterr.ConflictError for a duplicate serial number.
type Repository interface {
	Create(ctx context.Context, b *Bike) error
	Get(ctx context.Context, id uuid.UUID) (Bike, error)
	List(ctx context.Context, limit, offset int) ([]Bike, error)
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]Bike, error)
	Update(ctx context.Context, id uuid.UUID, mutate func(*Bike) error) (Bike, error)
	Retire(ctx context.Context, id uuid.UUID, now time.Time) (Bike, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

type CreateInput struct {
	SerialNumber  string     `json:"serial_number" validate:"required,max=64"`
	Make          *string    `json:"make" validate:"omitempty,max=100"`
	Model         *string    `json:"model" validate:"omitempty,max=100"`
	Status        Status     `json:"status" validate:"omitempty,oneof=available maintenance"`
	Mileage       int        `json:"mileage" validate:"gte=0"`
	LastServiceAt *time.Time `json:"last_service_at"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Bike, error) {
	in.SerialNumber = NormalizeSerial(in.SerialNumber)
	if err := validate.Struct(in); err != nil {
		return Bike{}, err
	}
	if in.Status == "" {
		in.Status = StatusAvailable
	}

	b := Bike{
		ID:            uuid.New(),
		SerialNumber:  in.SerialNumber,
		Make:          in.Make,
		Model:         in.Model,
		Status:        in.Status,
		Mileage:       in.Mileage,
		LastServiceAt: in.LastServiceAt,
		BatteryIDs:    []uuid.UUID{},
		CreatedAt:     s.now().UTC(),
	}
	b.UpdatedAt = b.CreatedAt

	if err := s.repo.Create(ctx, &b); err != nil {
		return Bike{}, err
	}

	s.logger.InfoContext(ctx, "bike registered", "bike_id", b.ID, "serial_number", b.SerialNumber)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Bike, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Bike, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListForProfile returns the bikes currently assigned to a driver.
func (s *Service) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]Bike, error) {
	return s.repo.ListForProfile(ctx, profileID)
}

// UpdateInput is a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Make          *string    `json:"make" validate:"omitempty,max=100"`
	Model         *string    `json:"model" validate:"omitempty,max=100"`
	Status        *Status    `json:"status" validate:"omitempty,oneof=available maintenance"`
	Mileage       *int       `json:"mileage" validate:"omitempty,gte=0"`
	LastServiceAt *time.Time `json:"last_service_at"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Bike, error) {
	if err := validate.Struct(in); err != nil {
		return Bike{}, err
	}

	return s.repo.Update(ctx, id, func(b *Bike) error {
		return in.apply(b)
	})
}

func (in UpdateInput) apply(b *Bike) error {
	if b.Retired() {
		return fleeterr.Conflict("bike", b.ID, "retired bikes cannot be changed")
	}
	if in.Status != nil {
		// assigned and retired are owned by the assignment registry and Retire.
		if b.AssignedProfileID != nil {
			return fleeterr.Invalid("status", "cannot change status while a driver holds the bike")
		}
		b.Status = *in.Status
	}
	if in.Make != nil {
		b.Make = in.Make
	}
	if in.Model != nil {
		b.Model = in.Model
	}
	if in.Mileage != nil {
		b.Mileage = *in.Mileage
	}
	if in.LastServiceAt != nil {
		t := in.LastServiceAt.UTC()
		b.LastServiceAt = &t
	}
	return nil
}

// Retire takes a bike out of service. Retired bikes stay in the inventory so rental
// and maintenance history keeps resolving.
func (s *Service) Retire(ctx context.Context, id uuid.UUID) (Bike, error) {
	b, err := s.repo.Retire(ctx, id, s.now().UTC())
	if err != nil {
		return Bike{}, err
	}

	s.logger.InfoContext(ctx, "bike retired", "bike_id", b.ID)
	return b, nil
}

// CheckRetirable reports whether b may be retired given the number of rentals that are
// ongoing or have not ended yet.
func CheckRetirable(b Bike, currentRentals int) error {
	switch {
	case b.Retired():
		return fleeterr.Conflict("bike", b.ID, "already retired")
	case b.AssignedProfileID != nil:
		return fleeterr.Conflict("bike", b.ID, "unassign the driver before retiring")
	case len(b.BatteryIDs) > 0:
		return fleeterr.Conflict("bike", b.ID, "unassign all batteries before retiring")
	case currentRentals > 0:
		return fleeterr.Conflict("bike", b.ID, "bike has ongoing or upcoming rentals")
	}
	return nil
}
