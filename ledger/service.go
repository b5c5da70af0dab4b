package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/ebike-fleet/event"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/validate"
)

// Repository persists the ledger. Updates lock the row, apply mutate and write it back
// in one transaction. Inserts and updates fail with *fleeterr.NotFoundError
// when a referenced rental, maintenance record, bike or battery does not exist.
// DeleteMaintenance fails with *fleeterr.ConflictError while transactions reference the
// record. InsertMaintenance also moves the bike's last service date forward.
type Repository interface {
	InsertTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, mutate func(*Transaction) error) (Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error

	InsertMaintenance(ctx context.Context, m *MaintenanceRecord) error
	GetMaintenance(ctx context.Context, id uuid.UUID) (MaintenanceRecord, error)
	ListMaintenance(ctx context.Context, f MaintenanceFilter) ([]MaintenanceRecord, error)
	UpdateMaintenance(ctx context.Context, id uuid.UUID, mutate func(*MaintenanceRecord) error) (MaintenanceRecord, error)
	DeleteMaintenance(ctx context.Context, id uuid.UUID) error
}

type Converter interface {
	Convert(amount decimal.Decimal, from, to string, asOf *time.Time) (decimal.Decimal, error)
}

type ReportingCurrency interface {
	ReportingCurrency(ctx context.Context) (string, error)
}

type Service struct {
	repo      Repository
	converter Converter
	reporting ReportingCurrency
	events    event.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p event.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, converter Converter, reporting ReportingCurrency, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		converter: converter,
		reporting: reporting,
		events:    event.Discard,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type TransactionInput struct {
	Type            Type            `json:"transaction_type" validate:"required,oneof=income expense"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"required,iso4217"`
	TransactionDate time.Time       `json:"transaction_date" validate:"required"`
	RentalID        *uuid.UUID      `json:"rental_id"`
	MaintenanceID   *uuid.UUID      `json:"maintenance_id"`
	Description     *string         `json:"description" validate:"omitempty,max=500"`
}

func (in *TransactionInput) check() error {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := validate.Struct(in); err != nil {
		return err
	}
	if !in.Amount.IsPositive() {
		return fleeterr.Invalid("amount", "must be greater than zero")
	}
	return checkMoney("amount", in.Amount)
}

// Stored amounts are numeric(14,2).
const (
	moneyScale  = 2
	moneyDigits = 12
)

var moneyLimit = decimal.New(1, moneyDigits)

func checkMoney(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(moneyScale)) {
		return fleeterr.Invalid(field, "must have at most two decimal places")
	}
	if d.Abs().GreaterThanOrEqual(moneyLimit) {
		return fleeterr.Invalid(field, "is too large")
	}
	return nil
}

func (s *Service) RecordTransaction(ctx context.Context, in TransactionInput) (Transaction, error) {
	if err := in.check(); err != nil {
		return Transaction{}, err
	}

	now := s.now().UTC()
	t := Transaction{
		ID:              uuid.New(),
		Type:            in.Type,
		Amount:          in.Amount,
		Currency:        in.Currency,
		TransactionDate: in.TransactionDate.UTC(),
		RentalID:        in.RentalID,
		MaintenanceID:   in.MaintenanceID,
		Description:     in.Description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.InsertTransaction(ctx, &t); err != nil {
		return Transaction{}, err
	}

	s.logger.InfoContext(ctx, "transaction recorded",
		"transaction_id", t.ID, "type", t.Type, "amount", t.Amount.String(), "currency", t.Currency)
	return t, nil
}

// UpdateTransaction replaces every editable field of a transaction.
func (s *Service) UpdateTransaction(ctx context.Context, id uuid.UUID, in TransactionInput) (Transaction, error) {
	if err := in.check(); err != nil {
		return Transaction{}, err
	}

	now := s.now().UTC()
	return s.repo.UpdateTransaction(ctx, id, func(t *Transaction) error {
		t.Type = in.Type
		t.Amount = in.Amount
		t.Currency = in.Currency
		t.TransactionDate = in.TransactionDate.UTC()
		t.RentalID = in.RentalID
		t.MaintenanceID = in.MaintenanceID
		t.Description = in.Description
		t.UpdatedAt = now
		return nil
	})
}

func (s *Service) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "transaction deleted", "transaction_id", id)
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, f)
}

type MaintenanceInput struct {
	ServiceDate time.Time       `json:"service_date" validate:"required"`
	Description string          `json:"description" validate:"required,max=1000"`
	Cost        decimal.Decimal `json:"cost"`
	Currency    string          `json:"currency" validate:"required,iso4217"`
	BikeID      *uuid.UUID      `json:"bike_id" validate:"required_without=BatteryID"`
	BatteryID   *uuid.UUID      `json:"battery_id"`
	Notes       *string         `json:"notes" validate:"omitempty,max=2000"`
}

func (in *MaintenanceInput) check() error {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "RSD"
	}
	in.Description = strings.TrimSpace(in.Description)
	if err := validate.Struct(in); err != nil {
		return err
	}
	if in.Cost.IsNegative() {
		return fleeterr.Invalid("cost", "must not be negative")
	}
	return checkMoney("cost", in.Cost)
}

// RecordMaintenance stores a maintenance record. It is not mirrored into the transaction
// set; summaries add maintenance costs separately.
func (s *Service) RecordMaintenance(ctx context.Context, in MaintenanceInput) (MaintenanceRecord, error) {
	if err := in.check(); err != nil {
		return MaintenanceRecord{}, err
	}

	now := s.now().UTC()
	m := MaintenanceRecord{
		ID:          uuid.New(),
		ServiceDate: in.ServiceDate.UTC(),
		Description: in.Description,
		Cost:        in.Cost,
		Currency:    in.Currency,
		BikeID:      in.BikeID,
		BatteryID:   in.BatteryID,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertMaintenance(ctx, &m); err != nil {
		return MaintenanceRecord{}, err
	}

	s.logger.InfoContext(ctx, "maintenance recorded", "maintenance_id", m.ID, "bike_id", m.BikeID, "battery_id", m.BatteryID)
	if err := s.events.Publish(ctx, event.MaintenanceLogged{
		RecordID:    m.ID,
		BikeID:      m.BikeID,
		BatteryID:   m.BatteryID,
		Description: m.Description,
		Cost:        m.Cost,
		Currency:    m.Currency,
		ServiceDate: m.ServiceDate,
		At:          now,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event", event.TypeMaintenanceLogged, "error", err)
	}
	return m, nil
}

func (s *Service) UpdateMaintenance(ctx context.Context, id uuid.UUID, in MaintenanceInput) (MaintenanceRecord, error) {
	if err := in.check(); err != nil {
		return MaintenanceRecord{}, err
	}

	now := s.now().UTC()
	return s.repo.UpdateMaintenance(ctx, id, func(m *MaintenanceRecord) error {
		m.ServiceDate = in.ServiceDate.UTC()
		m.Description = in.Description
		m.Cost = in.Cost
		m.Currency = in.Currency
		m.BikeID = in.BikeID
		m.BatteryID = in.BatteryID
		m.Notes = in.Notes
		m.UpdatedAt = now
		return nil
	})
}

func (s *Service) DeleteMaintenance(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteMaintenance(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "maintenance deleted", "maintenance_id", id)
	return nil
}

func (s *Service) GetMaintenance(ctx context.Context, id uuid.UUID) (MaintenanceRecord, error) {
	return s.repo.GetMaintenance(ctx, id)
}

func (s *Service) ListMaintenance(ctx context.Context, f MaintenanceFilter) ([]MaintenanceRecord, error) {
	return s.repo.ListMaintenance(ctx, f)
}

// SummaryRequest selects the reporting currency and an optional [From, To) window.
// An empty Currency uses the configured reporting currency.
type SummaryRequest struct {
	Currency string
	From, To *time.Time
}

// Summary converts every transaction and maintenance record in the window with the
// latest rates and totals them. Amounts without an applicable rate are counted as
// unconverted instead of failing the whole summary.
func (s *Service) Summary(ctx context.Context, req SummaryRequest) (FinancialSummary, error) {
	target := req.Currency
	if target == "" {
		var err error
		if target, err = s.reporting.ReportingCurrency(ctx); err != nil {
			return FinancialSummary{}, err
		}
	}
	target = strings.ToUpper(strings.TrimSpace(target))
	if err := validate.Var(target, "iso4217"); err != nil {
		return FinancialSummary{}, fleeterr.Invalid("currency", "must be an ISO 4217 currency code")
	}

	txns, err := s.repo.ListTransactions(ctx, TransactionFilter{From: req.From, To: req.To})
	if err != nil {
		return FinancialSummary{}, err
	}
	records, err := s.repo.ListMaintenance(ctx, MaintenanceFilter{From: req.From, To: req.To})
	if err != nil {
		return FinancialSummary{}, err
	}

	sum := FinancialSummary{
		ReportingCurrency: target,
		TotalIncome:       decimal.Zero,
		TotalExpenses:     decimal.Zero,
		MaintenanceCost:   decimal.Zero,
	}

	billed := make(map[uuid.UUID]bool)
	for _, t := range txns {
		if t.Type == TypeExpense && t.MaintenanceID != nil {
			billed[*t.MaintenanceID] = true
		}

		switch t.Type {
		case TypeIncome:
			sum.IncomeCount++
		case TypeExpense:
			sum.ExpenseCount++
		}

		amount, err := s.converter.Convert(t.Amount, t.Currency, target, nil)
		if fleeterr.IsRateUnavailable(err) {
			sum.Unconverted++
			continue
		}
		if err != nil {
			return FinancialSummary{}, err
		}

		switch t.Type {
		case TypeIncome:
			sum.TotalIncome = sum.TotalIncome.Add(amount)
		case TypeExpense:
			sum.TotalExpenses = sum.TotalExpenses.Add(amount)
		}
	}

	for _, m := range records {
		if billed[m.ID] {
			continue
		}
		sum.MaintenanceCount++

		cost, err := s.converter.Convert(m.Cost, m.Currency, target, nil)
		if fleeterr.IsRateUnavailable(err) {
			sum.MaintenanceUnconverted++
			continue
		}
		if err != nil {
			return FinancialSummary{}, err
		}
		sum.MaintenanceCost = sum.MaintenanceCost.Add(cost)
	}

	sum.TotalIncome = sum.TotalIncome.Round(2)
	sum.TotalExpenses = sum.TotalExpenses.Round(2)
	sum.MaintenanceCost = sum.MaintenanceCost.Round(2)
	sum.NetProfit = sum.TotalIncome.Sub(sum.TotalExpenses)
	sum.NetAfterMaintenance = sum.NetProfit.Sub(sum.MaintenanceCost)
	return sum, nil
}
