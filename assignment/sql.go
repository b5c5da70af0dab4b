package assignment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/profile"
)

// SQLStore runs registry transactions on Postgres. Row locks are always taken bike
// first, then battery.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, sqlTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t sqlTx) LockBike(ctx context.Context, id uuid.UUID) (bike.Bike, error) {
	return bike.LockForUpdate(ctx, t.tx, id)
}

func (t sqlTx) LockBattery(ctx context.Context, id uuid.UUID) (battery.Battery, error) {
	return battery.LockForUpdate(ctx, t.tx, id)
}

func (t sqlTx) Profile(ctx context.Context, id uuid.UUID) (profile.Profile, error) {
	var p profile.Profile
	err := t.tx.GetContext(ctx, &p, profileQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, fleeterr.NotFound("profile", id)
	}
	return p, err
}

// FOR KEY SHARE keeps the profile from being deleted before commit.
const profileQuery = `SELECT * FROM user_profiles WHERE id = $1 FOR KEY SHARE`

func (t sqlTx) SetDriver(ctx context.Context, bikeID uuid.UUID, profileID *uuid.UUID, status bike.Status) error {
	_, err := t.tx.ExecContext(ctx, setDriverQuery, bikeID, profileID, status)
	return err
}

const setDriverQuery = `UPDATE bikes SET assigned_profile_id = $2, status = $3, updated_at = now() WHERE id = $1`

func (t sqlTx) SetBatteryBike(ctx context.Context, batteryID uuid.UUID, bikeID *uuid.UUID, status battery.Status) error {
	_, err := t.tx.ExecContext(ctx, setBatteryBikeQuery, batteryID, bikeID, status)
	return err
}

const setBatteryBikeQuery = `UPDATE batteries SET assigned_bike_id = $2, status = $3, updated_at = now() WHERE id = $1`
