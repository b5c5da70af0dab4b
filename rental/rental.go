// Package rental schedules rentals of bikes to drivers and keeps every bike's rentals
// free of overlaps.
package rental

import (
	"time"

	"github.com/google/uuid"
)

type Rental struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BikeID    uuid.UUID `db:"bike_id" json:"bike_id"`
	ProfileID uuid.UUID `db:"profile_id" json:"profile_id"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	// EndDate is nil while the rental is ongoing.
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

func (r Rental) Ongoing() bool {
	return r.EndDate == nil
}

// Empty reports whether the rental ends where it starts and so holds no instant.
func (r Rental) Empty() bool {
	return r.EndDate != nil && !r.EndDate.After(r.StartDate)
}

// Overlaps reports whether r and o occupy a common instant. Intervals are half-open,
// [start, end), and an open end runs forever, so a rental ending at T does not collide
// with one starting at T. An empty rental overlaps nothing.
func (r Rental) Overlaps(o Rental) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return before(r.StartDate, o.EndDate) && before(o.StartDate, r.EndDate)
}

func before(t time.Time, end *time.Time) bool {
	return end == nil || t.Before(*end)
}

// Overlapping returns the IDs of rentals in existing that collide with candidate. The
// candidate itself is skipped, so an update can be checked against its own history.
func Overlapping(existing []Rental, candidate Rental) []uuid.UUID {
	var ids []uuid.UUID
	for _, e := range existing {
		if e.ID == candidate.ID || e.BikeID != candidate.BikeID {
			continue
		}
		if e.Overlaps(candidate) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Listing is a rental joined with the names a person searches by.
type Listing struct {
	Rental
	BikeSerial string `db:"bike_serial" json:"bike_serial"`
	DriverName string `db:"driver_name" json:"driver_name"`
}

// Filter narrows a rental listing. Search matches, case-insensitively, a substring of
// the bike serial number or the driver's name.
type Filter struct {
	Search    string
	BikeID    *uuid.UUID
	ProfileID *uuid.UUID
	Limit     int
	Offset    int
}
