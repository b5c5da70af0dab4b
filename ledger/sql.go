package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
)

var dialect = goqu.Dialect("postgres")

type SQLRepository struct {
	db *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) InsertTransaction(ctx context.Context, t *Transaction) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkTransactionRefs(ctx, tx, t); err != nil {
			return err
		}
		return tx.GetContext(ctx, t, insertTransactionQuery,
			t.ID, t.Type, t.Amount, t.Currency, t.TransactionDate, t.RentalID, t.MaintenanceID, t.Description, t.CreatedAt, t.UpdatedAt)
	})
}

const insertTransactionQuery = `
INSERT INTO financial_transactions
    (id, transaction_type, amount, currency, transaction_date, rental_id, maintenance_id, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING *
`

func (r *SQLRepository) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	var t Transaction
	err := r.db.GetContext(ctx, &t, getTransactionQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fleeterr.NotFound("transaction", id)
	}
	return t, err
}

const getTransactionQuery = `SELECT * FROM financial_transactions WHERE id = $1`

func (r *SQLRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	var where []exp.Expression
	if f.Type != nil {
		where = append(where, goqu.C("transaction_type").Eq(string(*f.Type)))
	}
	if f.From != nil {
		where = append(where, goqu.C("transaction_date").Gte(*f.From))
	}
	if f.To != nil {
		where = append(where, goqu.C("transaction_date").Lt(*f.To))
	}
	if f.RentalID != nil {
		where = append(where, goqu.C("rental_id").Eq(*f.RentalID))
	}
	if f.MaintenanceID != nil {
		where = append(where, goqu.C("maintenance_id").Eq(*f.MaintenanceID))
	}

	ds := page(dialect.From("financial_transactions").Prepared(true).Where(where...), f.Limit, f.Offset).
		Order(goqu.C("transaction_date").Desc(), goqu.C("id").Asc())
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	txns := []Transaction{}
	err = r.db.SelectContext(ctx, &txns, query, args...)
	return txns, err
}

func (r *SQLRepository) UpdateTransaction(ctx context.Context, id uuid.UUID, mutate func(*Transaction) error) (Transaction, error) {
	var t Transaction
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &t, lockTransactionQuery, id)
		if errors.Is(err, sql.ErrNoRows) {
			return fleeterr.NotFound("transaction", id)
		}
		if err != nil {
			return err
		}
		if err := mutate(&t); err != nil {
			return err
		}
		if err := checkTransactionRefs(ctx, tx, &t); err != nil {
			return err
		}
		return tx.GetContext(ctx, &t, updateTransactionQuery,
			id, t.Type, t.Amount, t.Currency, t.TransactionDate, t.RentalID, t.MaintenanceID, t.Description, t.UpdatedAt)
	})
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

const lockTransactionQuery = `SELECT * FROM financial_transactions WHERE id = $1 FOR UPDATE`

const updateTransactionQuery = `
UPDATE financial_transactions
SET transaction_type = $2, amount = $3, currency = $4, transaction_date = $5,
    rental_id = $6, maintenance_id = $7, description = $8, updated_at = $9
WHERE id = $1
RETURNING *
`

func (r *SQLRepository) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, deleteTransactionQuery, id)
	if err != nil {
		return err
	}
	return expectOne(res, fleeterr.NotFound("transaction", id))
}

const deleteTransactionQuery = `DELETE FROM financial_transactions WHERE id = $1`

func (r *SQLRepository) InsertMaintenance(ctx context.Context, m *MaintenanceRecord) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkMaintenanceRefs(ctx, tx, m); err != nil {
			return err
		}
		err := tx.GetContext(ctx, m, insertMaintenanceQuery,
			m.ID, m.ServiceDate, m.Description, m.Cost, m.Currency, m.BikeID, m.BatteryID, m.Notes, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return err
		}
		return bumpLastService(ctx, tx, m)
	})
}

const insertMaintenanceQuery = `
INSERT INTO maintenance_records
    (id, service_date, description, cost, currency, bike_id, battery_id, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING *
`

func (r *SQLRepository) GetMaintenance(ctx context.Context, id uuid.UUID) (MaintenanceRecord, error) {
	var m MaintenanceRecord
	err := r.db.GetContext(ctx, &m, getMaintenanceQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return MaintenanceRecord{}, fleeterr.NotFound("maintenance record", id)
	}
	return m, err
}

const getMaintenanceQuery = `SELECT * FROM maintenance_records WHERE id = $1`

func (r *SQLRepository) ListMaintenance(ctx context.Context, f MaintenanceFilter) ([]MaintenanceRecord, error) {
	var where []exp.Expression
	if f.BikeID != nil {
		where = append(where, goqu.C("bike_id").Eq(*f.BikeID))
	}
	if f.BatteryID != nil {
		where = append(where, goqu.C("battery_id").Eq(*f.BatteryID))
	}
	if f.From != nil {
		where = append(where, goqu.C("service_date").Gte(*f.From))
	}
	if f.To != nil {
		where = append(where, goqu.C("service_date").Lt(*f.To))
	}

	ds := page(dialect.From("maintenance_records").Prepared(true).Where(where...), f.Limit, f.Offset).
		Order(goqu.C("service_date").Desc(), goqu.C("id").Asc())
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	records := []MaintenanceRecord{}
	err = r.db.SelectContext(ctx, &records, query, args...)
	return records, err
}

func (r *SQLRepository) UpdateMaintenance(ctx context.Context, id uuid.UUID, mutate func(*MaintenanceRecord) error) (MaintenanceRecord, error) {
	var m MaintenanceRecord
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &m, lockMaintenanceRowQuery, id)
		if errors.Is(err, sql.ErrNoRows) {
			return fleeterr.NotFound("maintenance record", id)
		}
		if err != nil {
			return err
		}
		if err := mutate(&m); err != nil {
			return err
		}
		if err := checkMaintenanceRefs(ctx, tx, &m); err != nil {
			return err
		}
		err = tx.GetContext(ctx, &m, updateMaintenanceQuery,
			id, m.ServiceDate, m.Description, m.Cost, m.Currency, m.BikeID, m.BatteryID, m.Notes, m.UpdatedAt)
		if err != nil {
			return err
		}
		return bumpLastService(ctx, tx, &m)
	})
	if err != nil {
		return MaintenanceRecord{}, err
	}
	return m, nil
}

const lockMaintenanceRowQuery = `SELECT * FROM maintenance_records WHERE id = $1 FOR UPDATE`

const updateMaintenanceQuery = `
UPDATE maintenance_records
SET service_date = $2, description = $3, cost = $4, currency = $5, bike_id = $6, battery_id = $7, notes = $8, updated_at = $9
WHERE id = $1
RETURNING *
`

func (r *SQLRepository) DeleteMaintenance(ctx context.Context, id uuid.UUID) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := mustExist(ctx, tx, lockMaintenanceQuery, "maintenance record", id); err != nil {
			return err
		}

		var linked int
		if err := tx.GetContext(ctx, &linked, countLinkedTransactionsQuery, id); err != nil {
			return err
		}
		if linked > 0 {
			return fleeterr.Conflict("maintenance record", id,
				fmt.Sprintf("%d transactions reference it", linked))
		}

		_, err := tx.ExecContext(ctx, deleteMaintenanceQuery, id)
		return err
	})
}

const lockMaintenanceQuery = `SELECT 1 FROM maintenance_records WHERE id = $1 FOR UPDATE`

const countLinkedTransactionsQuery = `SELECT count(*) FROM financial_transactions WHERE maintenance_id = $1`

const deleteMaintenanceQuery = `DELETE FROM maintenance_records WHERE id = $1`

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func checkTransactionRefs(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	if t.RentalID != nil {
		if err := mustExist(ctx, tx, rentalExistsQuery, "rental", *t.RentalID); err != nil {
			return err
		}
	}
	if t.MaintenanceID != nil {
		if err := mustExist(ctx, tx, maintenanceExistsQuery, "maintenance record", *t.MaintenanceID); err != nil {
			return err
		}
	}
	return nil
}

func checkMaintenanceRefs(ctx context.Context, tx *sqlx.Tx, m *MaintenanceRecord) error {
	if m.BikeID != nil {
		if err := mustExist(ctx, tx, bikeExistsQuery, "bike", *m.BikeID); err != nil {
			return err
		}
	}
	if m.BatteryID != nil {
		if err := mustExist(ctx, tx, batteryExistsQuery, "battery", *m.BatteryID); err != nil {
			return err
		}
	}
	return nil
}

const (
	rentalExistsQuery      = `SELECT 1 FROM rentals WHERE id = $1 FOR KEY SHARE`
	maintenanceExistsQuery = `SELECT 1 FROM maintenance_records WHERE id = $1 FOR KEY SHARE`
	bikeExistsQuery        = `SELECT 1 FROM bikes WHERE id = $1 FOR KEY SHARE`
	batteryExistsQuery     = `SELECT 1 FROM batteries WHERE id = $1 FOR KEY SHARE`
)

// mustExist runs a single-row locking query and maps an empty result to not found.
func mustExist(ctx context.Context, tx *sqlx.Tx, query, entity string, id uuid.UUID) error {
	var one int
	err := tx.GetContext(ctx, &one, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fleeterr.NotFound(entity, id)
	}
	return err
}

// bumpLastService moves the serviced bike's and battery's last service date forward,
// never back.
func bumpLastService(ctx context.Context, tx *sqlx.Tx, m *MaintenanceRecord) error {
	if m.BikeID != nil {
		if _, err := tx.ExecContext(ctx, bumpBikeServiceQuery, *m.BikeID, m.ServiceDate); err != nil {
			return err
		}
	}
	if m.BatteryID != nil {
		if _, err := tx.ExecContext(ctx, bumpBatteryServiceQuery, *m.BatteryID, m.ServiceDate); err != nil {
			return err
		}
	}
	return nil
}

const bumpBikeServiceQuery = `
UPDATE bikes SET last_service_at = $2, updated_at = now()
WHERE id = $1 AND (last_service_at IS NULL OR last_service_at < $2)
`

const bumpBatteryServiceQuery = `
UPDATE batteries SET last_service_at = $2, updated_at = now()
WHERE id = $1 AND (last_service_at IS NULL OR last_service_at < $2)
`

func page(ds *goqu.SelectDataset, limit, offset int) *goqu.SelectDataset {
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}
	return ds
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
