// Package battery models the swappable battery packs of the fleet.
package battery

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusAssigned    Status = "assigned"
	StatusCharging    Status = "charging"
	StatusMaintenance Status = "maintenance"
	StatusRetired     Status = "retired"
)

// Health is the coarse wear grade recorded at service.
type Health string

const (
	HealthGood     Health = "good"
	HealthDegraded Health = "degraded"
	HealthPoor     Health = "poor"
)

type Battery struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SerialNumber string    `db:"serial_number" json:"serial_number"`
	CapacityWh   *int      `db:"capacity_wh" json:"capacity_wh,omitempty"`
	// ChargeLevel is a percentage, 0 to 100.
	ChargeLevel   int        `db:"charge_level" json:"charge_level"`
	CycleCount    int        `db:"cycle_count" json:"cycle_count"`
	Health        Health     `db:"health" json:"health"`
	Status        Status     `db:"status" json:"status"`
	LastServiceAt *time.Time `db:"last_service_at" json:"last_service_at,omitempty"`

	// AssignedBikeID is the only record of the battery-bike link.
	AssignedBikeID *uuid.UUID `db:"assigned_bike_id" json:"assigned_bike_id"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (b Battery) Retired() bool {
	return b.Status == StatusRetired
}

// Low reports whether the charge is at or below threshold percent.
func (b Battery) Low(threshold int) bool {
	return b.ChargeLevel <= threshold
}
