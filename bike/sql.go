package bike

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

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

func (r *SQLRepository) Create(ctx context.Context, b *Bike) error {
	err := r.db.GetContext(ctx, b, createBikeQuery,
		b.ID, b.SerialNumber, b.Make, b.Model, b.Status, b.Mileage, b.LastServiceAt, b.CreatedAt)
	if pgutil.IsUniqueViolation(err) {
		return fleeterr.Conflict("bike", b.ID, "serial number "+b.SerialNumber+" already registered")
	}
	b.BatteryIDs = []uuid.UUID{}
	return err
}

const createBikeQuery = `
INSERT INTO bikes (id, serial_number, make, model, status, mileage, last_service_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING *
`

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Bike, error) {
	var b Bike
	err := r.db.GetContext(ctx, &b, getBikeQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Bike{}, fleeterr.NotFound("bike", id)
	}
	if err != nil {
		return Bike{}, err
	}

	bikes := []Bike{b}
	if err := attachBatteries(ctx, r.db, bikes); err != nil {
		return Bike{}, err
	}
	return bikes[0], nil
}

const getBikeQuery = `SELECT * FROM bikes WHERE id = $1`

func (r *SQLRepository) List(ctx context.Context, limit, offset int) ([]Bike, error) {
	bikes := []Bike{}
	if err := r.db.SelectContext(ctx, &bikes, listBikesQuery, limitArg(limit), offset); err != nil {
		return nil, err
	}
	return bikes, attachBatteries(ctx, r.db, bikes)
}

const listBikesQuery = `SELECT * FROM bikes ORDER BY serial_number LIMIT $1 OFFSET $2`

// ListForProfile returns the bikes whose driver is profileID.
func (r *SQLRepository) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]Bike, error) {
	bikes := []Bike{}
	if err := r.db.SelectContext(ctx, &bikes, listForProfileQuery, profileID); err != nil {
		return nil, err
	}
	return bikes, attachBatteries(ctx, r.db, bikes)
}

const listForProfileQuery = `SELECT * FROM bikes WHERE assigned_profile_id = $1 ORDER BY serial_number`

// Update locks the bike, applies mutate and writes the editable columns back.
func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*Bike) error) (Bike, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Bike{}, err
	}
	defer tx.Rollback()

	b, err := LockForUpdate(ctx, tx, id)
	if err != nil {
		return Bike{}, err
	}
	if err := mutate(&b); err != nil {
		return Bike{}, err
	}

	batteryIDs := b.BatteryIDs
	err = tx.GetContext(ctx, &b, updateBikeQuery, id, b.Make, b.Model, b.Status, b.Mileage, b.LastServiceAt)
	if err != nil {
		return Bike{}, err
	}
	b.BatteryIDs = batteryIDs

	return b, tx.Commit()
}

const updateBikeQuery = `
UPDATE bikes SET make = $2, model = $3, status = $4, mileage = $5, last_service_at = $6, updated_at = now()
WHERE id = $1
RETURNING *
`

// Retire marks the bike retired once it no longer holds a driver, a battery or a current rental.
func (r *SQLRepository) Retire(ctx context.Context, id uuid.UUID, now time.Time) (Bike, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Bike{}, err
	}
	defer tx.Rollback()

	b, err := LockForUpdate(ctx, tx, id)
	if err != nil {
		return Bike{}, err
	}

	var current int
	if err := tx.GetContext(ctx, &current, countCurrentRentalsQuery, id, now); err != nil {
		return Bike{}, err
	}
	if err := CheckRetirable(b, current); err != nil {
		return Bike{}, err
	}

	if err := tx.GetContext(ctx, &b, retireBikeQuery, id); err != nil {
		return Bike{}, err
	}
	b.BatteryIDs = []uuid.UUID{}

	return b, tx.Commit()
}

const countCurrentRentalsQuery = `
SELECT count(*) FROM rentals
WHERE bike_id = $1 AND (end_date IS NULL OR end_date > $2)
`

const retireBikeQuery = `UPDATE bikes SET status = 'retired', updated_at = now() WHERE id = $1 RETURNING *`

// LockForUpdate reads a bike row under FOR UPDATE together with its batteries.
// Other packages use it inside their own transactions.
func LockForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Bike, error) {
	var b Bike
	err := tx.GetContext(ctx, &b, lockBikeQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Bike{}, fleeterr.NotFound("bike", id)
	}
	if err != nil {
		return Bike{}, err
	}

	b.BatteryIDs = []uuid.UUID{}
	if err := tx.SelectContext(ctx, &b.BatteryIDs, batteriesOfBikeQuery, id); err != nil {
		return Bike{}, err
	}
	return b, nil
}

const lockBikeQuery = `SELECT * FROM bikes WHERE id = $1 FOR UPDATE`

const batteriesOfBikeQuery = `SELECT id FROM batteries WHERE assigned_bike_id = $1 ORDER BY serial_number`

func attachBatteries(ctx context.Context, db *sqlx.DB, bikes []Bike) error {
	if len(bikes) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(bikes))
	index := make(map[uuid.UUID]int, len(bikes))
	for i := range bikes {
		bikes[i].BatteryIDs = []uuid.UUID{}
		ids = append(ids, bikes[i].ID)
		index[bikes[i].ID] = i
	}

	query, args, err := sqlx.In(batteriesOfBikesQuery, ids)
	if err != nil {
		return err
	}

	var links []struct {
		ID     uuid.UUID `db:"id"`
		BikeID uuid.UUID `db:"assigned_bike_id"`
	}
	if err := db.SelectContext(ctx, &links, db.Rebind(query), args...); err != nil {
		return err
	}
	for _, l := range links {
		i := index[l.BikeID]
		bikes[i].BatteryIDs = append(bikes[i].BatteryIDs, l.ID)
	}
	return nil
}

const batteriesOfBikesQuery = `SELECT id, assigned_bike_id FROM batteries WHERE assigned_bike_id IN (?) ORDER BY serial_number`

// limitArg maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

// NormalizeSerial trims the serial number. Uniqueness is enforced on the lowercased value.
func NormalizeSerial(s string) string {
	return strings.TrimSpace(s)
}
