// Package bike models the e-bikes of the fleet and their inventory lifecycle.
package bike

import (
	"time"

	"github.com/google/uuid"
)

// Status is the operational state of a bike.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusAssigned    Status = "assigned"
	StatusMaintenance Status = "maintenance"
	StatusRetired     Status = "retired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusMaintenance, StatusRetired:
		return true
	}
	return false
}

// Bike is a single e-bike of the fleet.
type Bike struct {
	ID uuid.UUID `db:"id" json:"id"`
	// SerialNumber is printed on the frame. It is unique across the fleet, ignoring case.
	SerialNumber  string     `db:"serial_number" json:"serial_number"`
	Make          *string    `db:"make" json:"make,omitempty"`
	Model         *string    `db:"model" json:"model,omitempty"`
	Status        Status     `db:"status" json:"status"`
	Mileage       int        `db:"mileage" json:"mileage"`
	LastServiceAt *time.Time `db:"last_service_at" json:"last_service_at,omitempty"`

	// AssignedProfileID is the driver currently holding the bike.
	AssignedProfileID *uuid.UUID `db:"assigned_profile_id" json:"assigned_profile_id"`
	// BatteryIDs is derived from the batteries that point at this bike.
	BatteryIDs []uuid.UUID `db:"-" json:"battery_ids"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (b Bike) Retired() bool {
	return b.Status == StatusRetired
}

func (b Bike) HasBattery(id uuid.UUID) bool {
	for _, bid := range b.BatteryIDs {
		if bid == id {
			return true
		}
	}
	return false
}
