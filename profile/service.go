package profile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/internal/validate"
)

type Repository interface {
	Create(ctx context.Context, p *Profile) error
	Get(ctx context.Context, id uuid.UUID) (Profile, error)
	GetByUserID(ctx context.Context, userID string) (Profile, error)
	List(ctx context.Context, limit, offset int) ([]Profile, error)
	Update(ctx context.Context, p *Profile) error
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

type Input struct {
	UserID      string  `json:"user_id" validate:"required,max=128"`
	Role        Role    `json:"role" validate:"required,oneof=admin driver"`
	FirstName   *string `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=32"`
	AddressLine *string `json:"address_line" validate:"omitempty,max=255"`
}

func (s *Service) Create(ctx context.Context, in Input) (Profile, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := validate.Struct(in); err != nil {
		return Profile{}, err
	}

	p := Profile{
		ID:          uuid.New(),
		UserID:      in.UserID,
		Role:        in.Role,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		AddressLine: in.AddressLine,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return Profile{}, err
	}

	s.logger.InfoContext(ctx, "profile created", "profile_id", p.ID, "role", p.Role)
	return p, nil
}

// Update replaces the editable fields. The user ID is immutable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	in.UserID = p.UserID
	if err := validate.Struct(in); err != nil {
		return Profile{}, err
	}

	p.Role = in.Role
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.Email = in.Email
	p.PhoneNumber = in.PhoneNumber
	p.AddressLine = in.AddressLine
	if err := s.repo.Update(ctx, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Profile, error) {
	return s.repo.List(ctx, limit, offset)
}
