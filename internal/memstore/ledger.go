package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/currency"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/ledger"
)

// Ledger returns the store as a ledger.Repository.
func (s *Store) Ledger() ledger.Repository { return ledgerRepo{s} }

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	s := r.s
	return s.atomic(ctx, func() error {
		if err := r.checkTransactionRefs(t); err != nil {
			return err
		}
		put(s, s.transactions, t.ID, *t)
		return nil
	})
}

func (r ledgerRepo) GetTransaction(_ context.Context, id uuid.UUID) (ledger.Transaction, error) {
	var (
		t  ledger.Transaction
		ok bool
	)
	r.s.read(func() { t, ok = r.s.transactions[id] })
	if !ok {
		return ledger.Transaction{}, fleeterr.NotFound("transaction", id)
	}
	return t, nil
}

func (r ledgerRepo) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	r.s.read(func() {
		for _, t := range r.s.transactions {
			if f.Match(t) {
				out = append(out, t)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].TransactionDate, out[j].TransactionDate, out[i].ID, out[j].ID)
	})
	return window(out, f.Limit, f.Offset), nil
}

func (r ledgerRepo) UpdateTransaction(ctx context.Context, id uuid.UUID, mutate func(*ledger.Transaction) error) (ledger.Transaction, error) {
	s := r.s
	var t ledger.Transaction
	err := s.atomic(ctx, func() error {
		var ok bool
		if t, ok = s.transactions[id]; !ok {
			return fleeterr.NotFound("transaction", id)
		}
		if err := mutate(&t); err != nil {
			return err
		}
		t.ID = id
		if err := r.checkTransactionRefs(&t); err != nil {
			return err
		}
		put(s, s.transactions, id, t)
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

func (r ledgerRepo) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	s := r.s
	return s.atomic(ctx, func() error {
		if _, ok := s.transactions[id]; !ok {
			return fleeterr.NotFound("transaction", id)
		}
		remove(s, s.transactions, id)
		return nil
	})
}

func (r ledgerRepo) checkTransactionRefs(t *ledger.Transaction) error {
	if t.RentalID != nil {
		if _, ok := r.s.rentals[*t.RentalID]; !ok {
			return fleeterr.NotFound("rental", *t.RentalID)
		}
	}
	if t.MaintenanceID != nil {
		if _, ok := r.s.maintenance[*t.MaintenanceID]; !ok {
			return fleeterr.NotFound("maintenance record", *t.MaintenanceID)
		}
	}
	return nil
}

func (r ledgerRepo) InsertMaintenance(ctx context.Context, m *ledger.MaintenanceRecord) error {
	s := r.s
	return s.atomic(ctx, func() error {
		if err := r.checkMaintenanceRefs(m); err != nil {
			return err
		}
		put(s, s.maintenance, m.ID, *m)
		r.bumpLastService(m)
		return nil
	})
}

func (r ledgerRepo) GetMaintenance(_ context.Context, id uuid.UUID) (ledger.MaintenanceRecord, error) {
	var (
		m  ledger.MaintenanceRecord
		ok bool
	)
	r.s.read(func() { m, ok = r.s.maintenance[id] })
	if !ok {
		return ledger.MaintenanceRecord{}, fleeterr.NotFound("maintenance record", id)
	}
	return m, nil
}

func (r ledgerRepo) ListMaintenance(_ context.Context, f ledger.MaintenanceFilter) ([]ledger.MaintenanceRecord, error) {
	var out []ledger.MaintenanceRecord
	r.s.read(func() {
		for _, m := range r.s.maintenance {
			if f.Match(m) {
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].ServiceDate, out[j].ServiceDate, out[i].ID, out[j].ID)
	})
	return window(out, f.Limit, f.Offset), nil
}

func (r ledgerRepo) UpdateMaintenance(ctx context.Context, id uuid.UUID, mutate func(*ledger.MaintenanceRecord) error) (ledger.MaintenanceRecord, error) {
	s := r.s
	var m ledger.MaintenanceRecord
	err := s.atomic(ctx, func() error {
		var ok bool
		if m, ok = s.maintenance[id]; !ok {
			return fleeterr.NotFound("maintenance record", id)
		}
		if err := mutate(&m); err != nil {
			return err
		}
		m.ID = id
		if err := r.checkMaintenanceRefs(&m); err != nil {
			return err
		}
		put(s, s.maintenance, id, m)
		r.bumpLastService(&m)
		return nil
	})
	if err != nil {
		return ledger.MaintenanceRecord{}, err
	}
	return m, nil
}

func (r ledgerRepo) DeleteMaintenance(ctx context.Context, id uuid.UUID) error {
	s := r.s
	return s.atomic(ctx, func() error {
		if _, ok := s.maintenance[id]; !ok {
			return fleeterr.NotFound("maintenance record", id)
		}

		linked := 0
		for _, t := range s.transactions {
			if t.MaintenanceID != nil && *t.MaintenanceID == id {
				linked++
			}
		}
		if linked > 0 {
			return fleeterr.Conflict("maintenance record", id, fmt.Sprintf("%d transactions reference it", linked))
		}

		remove(s, s.maintenance, id)
		return nil
	})
}

func (r ledgerRepo) checkMaintenanceRefs(m *ledger.MaintenanceRecord) error {
	if m.BikeID != nil {
		if _, ok := r.s.bikes[*m.BikeID]; !ok {
			return fleeterr.NotFound("bike", *m.BikeID)
		}
	}
	if m.BatteryID != nil {
		if _, ok := r.s.batteries[*m.BatteryID]; !ok {
			return fleeterr.NotFound("battery", *m.BatteryID)
		}
	}
	return nil
}

func (r ledgerRepo) bumpLastService(m *ledger.MaintenanceRecord) {
	s := r.s
	at := m.ServiceDate
	if m.BikeID != nil {
		b := s.bikes[*m.BikeID]
		if b.LastServiceAt == nil || b.LastServiceAt.Before(at) {
			b.LastServiceAt = &at
			b.UpdatedAt = s.stamp()
			put(s, s.bikes, b.ID, b)
		}
	}
	if m.BatteryID != nil {
		b := s.batteries[*m.BatteryID]
		if b.LastServiceAt == nil || b.LastServiceAt.Before(at) {
			b.LastServiceAt = &at
			b.UpdatedAt = s.stamp()
			put(s, s.batteries, b.ID, b)
		}
	}
}

func newerFirst(a, b time.Time, aID, bID uuid.UUID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID.String() < bID.String()
}

// Currency returns the store as both rate and settings storage.
func (s *Store) Currency() CurrencyStore { return currencyStore{s} }

type CurrencyStore interface {
	currency.RateStore
	currency.SettingsStore
}

type currencyStore struct{ s *Store }

func (c currencyStore) AllRates(_ context.Context) ([]currency.Rate, error) {
	var out []currency.Rate
	c.s.read(func() {
		for _, r := range c.s.rates {
			out = append(out, r)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (c currencyStore) UpsertRates(ctx context.Context, rates []currency.Rate) error {
	s := c.s
	return s.atomic(ctx, func() error {
		for _, r := range rates {
			r.Date = currency.Day(r.Date)
			put(s, s.rates, rateKey{r.Base, r.Target, r.Date}, r)
		}
		return nil
	})
}

func (c currencyStore) Setting(_ context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	c.s.read(func() { v, ok = c.s.settings[key] })
	return v, ok, nil
}

func (c currencyStore) SetSetting(ctx context.Context, key, value string) error {
	s := c.s
	return s.atomic(ctx, func() error {
		put(s, s.settings, key, value)
		return nil
	})
}
