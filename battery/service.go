package battery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/validate"
)

type Repository interface {
	Create(ctx context.Context, b *Battery) error
	Get(ctx context.Context, id uuid.UUID) (Battery, error)
	List(ctx context.Context, limit, offset int) ([]Battery, error)
	ListForBike(ctx context.Context, bikeID uuid.UUID) ([]Battery, error)
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]Battery, error)
	Update(ctx context.Context, id uuid.UUID, mutate func(*Battery) error) (Battery, error)
	Retire(ctx context.Context, id uuid.UUID) (Battery, error)
}

// LowChargeHook is told when an update leaves a battery at or below the low-charge threshold.
type LowChargeHook func(ctx context.Context, b Battery)

type Service struct {
	repo      Repository
	logger    *slog.Logger
	now       func() time.Time
	threshold int
	onLow     LowChargeHook
}

type Option func(*Service)

// WithLowChargeHook calls hook whenever an update drops the charge to threshold percent or below.
func WithLowChargeHook(threshold int, hook LowChargeHook) Option {
	return func(s *Service) {
		s.threshold = threshold
		s.onLow = hook
	}
}

func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	SerialNumber  string     `json:"serial_number" validate:"required,max=64"`
	CapacityWh    *int       `json:"capacity_wh" validate:"omitempty,gt=0"`
	ChargeLevel   int        `json:"charge_level" validate:"gte=0,lte=100"`
	CycleCount    int        `json:"cycle_count" validate:"gte=0"`
	Health        Health     `json:"health" validate:"omitempty,oneof=good degraded poor"`
	Status        Status     `json:"status" validate:"omitempty,oneof=available charging maintenance"`
	LastServiceAt *time.Time `json:"last_service_at"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Battery, error) {
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	if err := validate.Struct(in); err != nil {
		return Battery{}, err
	}
	if in.Health == "" {
		in.Health = HealthGood
	}
	if in.Status == "" {
		in.Status = StatusAvailable
	}

	b := Battery{
		ID:            uuid.New(),
		SerialNumber:  in.SerialNumber,
		CapacityWh:    in.CapacityWh,
		ChargeLevel:   in.ChargeLevel,
		CycleCount:    in.CycleCount,
		Health:        in.Health,
		Status:        in.Status,
		LastServiceAt: in.LastServiceAt,
		CreatedAt:     s.now().UTC(),
	}
	b.UpdatedAt = b.CreatedAt

	if err := s.repo.Create(ctx, &b); err != nil {
		return Battery{}, err
	}

	s.logger.InfoContext(ctx, "battery registered", "battery_id", b.ID, "serial_number", b.SerialNumber)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Battery, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Battery, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListForBike(ctx context.Context, bikeID uuid.UUID) ([]Battery, error) {
	return s.repo.ListForBike(ctx, bikeID)
}

func (s *Service) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]Battery, error) {
	return s.repo.ListForProfile(ctx, profileID)
}

type UpdateInput struct {
	CapacityWh    *int       `json:"capacity_wh" validate:"omitempty,gt=0"`
	ChargeLevel   *int       `json:"charge_level" validate:"omitempty,gte=0,lte=100"`
	CycleCount    *int       `json:"cycle_count" validate:"omitempty,gte=0"`
	Health        *Health    `json:"health" validate:"omitempty,oneof=good degraded poor"`
	Status        *Status    `json:"status" validate:"omitempty,oneof=available charging maintenance"`
	LastServiceAt *time.Time `json:"last_service_at"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Battery, error) {
	if err := validate.Struct(in); err != nil {
		return Battery{}, err
	}

	b, err := s.repo.Update(ctx, id, in.apply)
	if err != nil {
		return Battery{}, err
	}

	if s.onLow != nil && in.ChargeLevel != nil && b.Low(s.threshold) {
		s.onLow(ctx, b)
	}
	return b, nil
}

func (in UpdateInput) apply(b *Battery) error {
	if b.Retired() {
		return fleeterr.Conflict("battery", b.ID, "retired batteries cannot be changed")
	}
	if in.Status != nil {
		if b.AssignedBikeID != nil {
			return fleeterr.Invalid("status", "cannot change status while the battery is mounted on a bike")
		}
		b.Status = *in.Status
	}
	if in.CapacityWh != nil {
		b.CapacityWh = in.CapacityWh
	}
	if in.ChargeLevel != nil {
		b.ChargeLevel = *in.ChargeLevel
	}
	if in.CycleCount != nil {
		b.CycleCount = *in.CycleCount
	}
	if in.Health != nil {
		b.Health = *in.Health
	}
	if in.LastServiceAt != nil {
		t := in.LastServiceAt.UTC()
		b.LastServiceAt = &t
	}
	return nil
}

func (s *Service) Retire(ctx context.Context, id uuid.UUID) (Battery, error) {
	b, err := s.repo.Retire(ctx, id)
	if err != nil {
		return Battery{}, err
	}

	s.logger.InfoContext(ctx, "battery retired", "battery_id", b.ID)
	return b, nil
}

func CheckRetirable(b Battery) error {
	if b.Retired() {
		return fleeterr.Conflict("battery", b.ID, "already retired")
	}
	if b.AssignedBikeID != nil {
		return fleeterr.Conflict("battery", b.ID, "unassign the battery from its bike before retiring")
	}
	return nil
}
