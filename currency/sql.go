package currency

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) AllRates(ctx context.Context) ([]Rate, error) {
	var rates []Rate
	err := s.db.SelectContext(ctx, &rates, allRatesQuery)
	return rates, err
}

const allRatesQuery = `SELECT base_currency, target_currency, rate, rate_date FROM exchange_rates ORDER BY rate_date`

func (s *SQLStore) UpsertRates(ctx context.Context, rates []Rate) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rates {
		if _, err := tx.ExecContext(ctx, upsertRateQuery, r.Base, r.Target, r.Rate, r.Date); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const upsertRateQuery = `
INSERT INTO exchange_rates (base_currency, target_currency, rate, rate_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (base_currency, target_currency, rate_date)
DO UPDATE SET rate = EXCLUDED.rate, updated_at = now()
`

func (s *SQLStore) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.GetContext(ctx, &v, getSettingQuery, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

const getSettingQuery = `SELECT value FROM application_settings WHERE key = $1`

func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, setSettingQuery, key, value)
	return err
}

const setSettingQuery = `
INSERT INTO application_settings (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`
