package battery

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

func (r *SQLRepository) Create(ctx context.Context, b *Battery) error {
	err := r.db.GetContext(ctx, b, createBatteryQuery,
		b.ID, b.SerialNumber, b.CapacityWh, b.ChargeLevel, b.CycleCount, b.Health, b.Status, b.LastServiceAt, b.CreatedAt)
	if pgutil.IsUniqueViolation(err) {
		return fleeterr.Conflict("battery", b.ID, "serial number "+b.SerialNumber+" already registered")
	}
	return err
}

const createBatteryQuery = `
INSERT INTO batteries (id, serial_number, capacity_wh, charge_level, cycle_count, health, status, last_service_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
RETURNING *
`

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Battery, error) {
	var b Battery
	err := r.db.GetContext(ctx, &b, getBatteryQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Battery{}, fleeterr.NotFound("battery", id)
	}
	return b, err
}

const getBatteryQuery = `SELECT * FROM batteries WHERE id = $1`

func (r *SQLRepository) List(ctx context.Context, limit, offset int) ([]Battery, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	batteries := []Battery{}
	err := r.db.SelectContext(ctx, &batteries, listBatteriesQuery, lim, offset)
	return batteries, err
}

const listBatteriesQuery = `SELECT * FROM batteries ORDER BY serial_number LIMIT $1 OFFSET $2`

func (r *SQLRepository) ListForBike(ctx context.Context, bikeID uuid.UUID) ([]Battery, error) {
	batteries := []Battery{}
	err := r.db.SelectContext(ctx, &batteries, listForBikeQuery, bikeID)
	return batteries, err
}

const listForBikeQuery = `SELECT * FROM batteries WHERE assigned_bike_id = $1 ORDER BY serial_number`

// ListForProfile returns batteries mounted on bikes held by the driver.
func (r *SQLRepository) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]Battery, error) {
	batteries := []Battery{}
	err := r.db.SelectContext(ctx, &batteries, listForProfileQuery, profileID)
	return batteries, err
}

const listForProfileQuery = `
SELECT bt.* FROM batteries bt
JOIN bikes b ON bt.assigned_bike_id = b.id
WHERE b.assigned_profile_id = $1
ORDER BY bt.serial_number
`

func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*Battery) error) (Battery, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Battery{}, err
	}
	defer tx.Rollback()

	b, err := LockForUpdate(ctx, tx, id)
	if err != nil {
		return Battery{}, err
	}
	if err := mutate(&b); err != nil {
		return Battery{}, err
	}

	err = tx.GetContext(ctx, &b, updateBatteryQuery,
		id, b.CapacityWh, b.ChargeLevel, b.CycleCount, b.Health, b.Status, b.LastServiceAt)
	if err != nil {
		return Battery{}, err
	}

	return b, tx.Commit()
}

const updateBatteryQuery = `
UPDATE batteries
SET capacity_wh = $2, charge_level = $3, cycle_count = $4, health = $5, status = $6, last_service_at = $7, updated_at = now()
WHERE id = $1
RETURNING *
`

func (r *SQLRepository) Retire(ctx context.Context, id uuid.UUID) (Battery, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Battery{}, err
	}
	defer tx.Rollback()

	b, err := LockForUpdate(ctx, tx, id)
	if err != nil {
		return Battery{}, err
	}
	if err := CheckRetirable(b); err != nil {
		return Battery{}, err
	}

	if err := tx.GetContext(ctx, &b, retireBatteryQuery, id); err != nil {
		return Battery{}, err
	}
	return b, tx.Commit()
}

const retireBatteryQuery = `UPDATE batteries SET status = 'retired', updated_at = now() WHERE id = $1 RETURNING *`

// LockForUpdate reads a battery row under FOR UPDATE inside tx.
func LockForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Battery, error) {
	var b Battery
	err := tx.GetContext(ctx, &b, lockBatteryQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Battery{}, fleeterr.NotFound("battery", id)
	}
	return b, err
}

const lockBatteryQuery = `SELECT * FROM batteries WHERE id = $1 FOR UPDATE`
