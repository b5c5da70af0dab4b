package profile

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/pgutil"
)

type SQLRepository struct {
	db *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, p *Profile) error {
	err := r.db.GetContext(ctx, p, createProfileQuery,
		p.ID, p.UserID, p.Role, p.FirstName, p.LastName, p.Email, p.PhoneNumber, p.AddressLine, p.CreatedAt)
	if pgutil.IsUniqueViolation(err) {
		return fleeterr.Conflict("profile", p.ID, "user "+p.UserID+" already has a profile")
	}
	return err
}

const createProfileQuery = `
INSERT INTO user_profiles (id, user_id, role, first_name, last_name, email, phone_number, address_line, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING *
`

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, getProfileQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fleeterr.NotFound("profile", id)
	}
	return p, err
}

const getProfileQuery = `SELECT * FROM user_profiles WHERE id = $1`

func (r *SQLRepository) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, getByUserIDQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, &fleeterr.NotFoundError{Entity: "profile for user " + userID}
	}
	return p, err
}

const getByUserIDQuery = `SELECT * FROM user_profiles WHERE user_id = $1`

func (r *SQLRepository) List(ctx context.Context, limit, offset int) ([]Profile, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	profiles := []Profile{}
	err := r.db.SelectContext(ctx, &profiles, listProfilesQuery, lim, offset)
	return profiles, err
}

const listProfilesQuery = `SELECT * FROM user_profiles ORDER BY last_name NULLS LAST, first_name NULLS LAST LIMIT $1 OFFSET $2`

func (r *SQLRepository) Update(ctx context.Context, p *Profile) error {
	err := r.db.GetContext(ctx, p, updateProfileQuery,
		p.ID, p.Role, p.FirstName, p.LastName, p.Email, p.PhoneNumber, p.AddressLine)
	if errors.Is(err, sql.ErrNoRows) {
		return fleeterr.NotFound("profile", p.ID)
	}
	return err
}

const updateProfileQuery = `
UPDATE user_profiles
SET role = $2, first_name = $3, last_name = $4, email = $5, phone_number = $6, address_line = $7
WHERE id = $1
RETURNING *
`
