package rental

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/profile"
)

var dialect = goqu.Dialect("postgres")

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

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (Listing, error) {
	query, args, err := listingQuery(Filter{}).Where(goqu.I("r.id").Eq(id)).ToSQL()
	if err != nil {
		return Listing{}, err
	}

	var l Listing
	err = s.db.GetContext(ctx, &l, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Listing{}, fleeterr.NotFound("rental", id)
	}
	return l, err
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]Listing, error) {
	query, args, err := listingQuery(f).ToSQL()
	if err != nil {
		return nil, err
	}

	listings := []Listing{}
	err = s.db.SelectContext(ctx, &listings, query, args...)
	return listings, err
}

func listingQuery(f Filter) *goqu.SelectDataset {
	driverName := goqu.L("concat_ws(' ', p.first_name, p.last_name)")

	ds := dialect.From(goqu.T("rentals").As("r")).
		Prepared(true).
		Join(goqu.T("bikes").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.bike_id")))).
		Join(goqu.T("user_profiles").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("r.profile_id")))).
		Select(
			goqu.T("r").All(),
			goqu.I("b.serial_number").As("bike_serial"),
			driverName.As("driver_name"),
		)

	var where []exp.Expression
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		where = append(where, goqu.Or(
			goqu.I("b.serial_number").ILike(pattern),
			driverName.ILike(pattern),
		))
	}
	if f.BikeID != nil {
		where = append(where, goqu.I("r.bike_id").Eq(*f.BikeID))
	}
	if f.ProfileID != nil {
		where = append(where, goqu.I("r.profile_id").Eq(*f.ProfileID))
	}
	if len(where) > 0 {
		ds = ds.Where(where...)
	}

	ds = ds.Order(goqu.I("r.start_date").Desc(), goqu.I("r.id").Asc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	if f.Offset > 0 {
		ds = ds.Offset(uint(f.Offset))
	}
	return ds
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t sqlTx) LockBike(ctx context.Context, id uuid.UUID) (bike.Bike, error) {
	return bike.LockForUpdate(ctx, t.tx, id)
}

func (t sqlTx) Profile(ctx context.Context, id uuid.UUID) (profile.Profile, error) {
	var p profile.Profile
	err := t.tx.GetContext(ctx, &p, profileQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, fleeterr.NotFound("profile", id)
	}
	return p, err
}

const profileQuery = `SELECT * FROM user_profiles WHERE id = $1 FOR KEY SHARE`

func (t sqlTx) LockRental(ctx context.Context, id uuid.UUID) (Rental, error) {
	var r Rental
	err := t.tx.GetContext(ctx, &r, lockRentalQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Rental{}, fleeterr.NotFound("rental", id)
	}
	return r, err
}

const lockRentalQuery = `SELECT * FROM rentals WHERE id = $1 FOR UPDATE`

func (t sqlTx) RentalsForBike(ctx context.Context, bikeID uuid.UUID) ([]Rental, error) {
	var rentals []Rental
	err := t.tx.SelectContext(ctx, &rentals, rentalsForBikeQuery, bikeID)
	return rentals, err
}

const rentalsForBikeQuery = `SELECT * FROM rentals WHERE bike_id = $1 ORDER BY start_date`

func (t sqlTx) Insert(ctx context.Context, r *Rental) error {
	return t.tx.GetContext(ctx, r, insertRentalQuery,
		r.ID, r.BikeID, r.ProfileID, r.StartDate, r.EndDate, r.Notes, r.CreatedAt, r.UpdatedAt)
}

const insertRentalQuery = `
INSERT INTO rentals (id, bike_id, profile_id, start_date, end_date, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING *
`

func (t sqlTx) Update(ctx context.Context, r *Rental) error {
	return t.tx.GetContext(ctx, r, updateRentalQuery,
		r.ID, r.BikeID, r.ProfileID, r.StartDate, r.EndDate, r.Notes, r.UpdatedAt)
}

const updateRentalQuery = `
UPDATE rentals
SET bike_id = $2, profile_id = $3, start_date = $4, end_date = $5, notes = $6, updated_at = $7
WHERE id = $1
RETURNING *
`

func (t sqlTx) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, deleteRentalQuery, id)
	return err
}

const deleteRentalQuery = `DELETE FROM rentals WHERE id = $1`
