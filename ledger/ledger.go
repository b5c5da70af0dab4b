// Package ledger records the fleet's money movements and maintenance costs and rolls
// them up into financial summaries.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// Transaction is a single income or expense. Amount is always positive; Type carries
// the direction.
type Transaction struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Type            Type            `db:"transaction_type" json:"transaction_type"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	TransactionDate time.Time       `db:"transaction_date" json:"transaction_date"`
	RentalID        *uuid.UUID      `db:"rental_id" json:"rental_id,omitempty"`
	MaintenanceID   *uuid.UUID      `db:"maintenance_id" json:"maintenance_id,omitempty"`
	Description     *string         `db:"description" json:"description,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// MaintenanceRecord is a service performed on a bike, a battery or both.
type MaintenanceRecord struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ServiceDate time.Time       `db:"service_date" json:"service_date"`
	Description string          `db:"description" json:"description"`
	Cost        decimal.Decimal `db:"cost" json:"cost"`
	Currency    string          `db:"currency" json:"currency"`
	BikeID      *uuid.UUID      `db:"bike_id" json:"bike_id,omitempty"`
	BatteryID   *uuid.UUID      `db:"battery_id" json:"battery_id,omitempty"`
	Notes       *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// TransactionFilter narrows a listing. From is inclusive and To exclusive.
type TransactionFilter struct {
	Type          *Type
	From, To      *time.Time
	RentalID      *uuid.UUID
	MaintenanceID *uuid.UUID
	Limit, Offset int
}

func (f TransactionFilter) Match(t Transaction) bool {
	switch {
	case f.Type != nil && t.Type != *f.Type:
		return false
	case f.From != nil && t.TransactionDate.Before(*f.From):
		return false
	case f.To != nil && !t.TransactionDate.Before(*f.To):
		return false
	case f.RentalID != nil && (t.RentalID == nil || *t.RentalID != *f.RentalID):
		return false
	case f.MaintenanceID != nil && (t.MaintenanceID == nil || *t.MaintenanceID != *f.MaintenanceID):
		return false
	}
	return true
}

type MaintenanceFilter struct {
	BikeID        *uuid.UUID
	BatteryID     *uuid.UUID
	From, To      *time.Time
	Limit, Offset int
}

func (f MaintenanceFilter) Match(m MaintenanceRecord) bool {
	switch {
	case f.BikeID != nil && (m.BikeID == nil || *m.BikeID != *f.BikeID):
		return false
	case f.BatteryID != nil && (m.BatteryID == nil || *m.BatteryID != *f.BatteryID):
		return false
	case f.From != nil && m.ServiceDate.Before(*f.From):
		return false
	case f.To != nil && !m.ServiceDate.Before(*f.To):
		return false
	}
	return true
}

// FinancialSummary is the ledger rolled up in one reporting currency.
type FinancialSummary struct {
	ReportingCurrency string          `json:"reporting_currency"`
	TotalIncome       decimal.Decimal `json:"total_income"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	IncomeCount       int             `json:"income_count"`
	ExpenseCount      int             `json:"expense_count"`
	// Unconverted counts transactions skipped because no rate applied.
	Unconverted int `json:"unconverted"`

	// MaintenanceCost covers records no expense transaction already points at.
	MaintenanceCost        decimal.Decimal `json:"maintenance_cost"`
	MaintenanceCount       int             `json:"maintenance_count"`
	MaintenanceUnconverted int             `json:"maintenance_unconverted"`
	NetAfterMaintenance    decimal.Decimal `json:"net_after_maintenance"`
}
