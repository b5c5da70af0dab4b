package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/assignment"
	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/profile"
	"github.com/semanticallynull/ebike-fleet/rental"
)

// txView is the transaction handle for both assignment and rental writes. It is only
// used while the store lock is held.
type txView struct{ s *Store }

func (t txView) LockBike(_ context.Context, id uuid.UUID) (bike.Bike, error) {
	b, ok := t.s.bike(id)
	if !ok {
		return bike.Bike{}, fleeterr.NotFound("bike", id)
	}
	return b, nil
}

func (t txView) LockBattery(_ context.Context, id uuid.UUID) (battery.Battery, error) {
	b, ok := t.s.battery(id)
	if !ok {
		return battery.Battery{}, fleeterr.NotFound("battery", id)
	}
	return b, nil
}

func (t txView) Profile(_ context.Context, id uuid.UUID) (profile.Profile, error) {
	p, ok := t.s.profiles[id]
	if !ok {
		return profile.Profile{}, fleeterr.NotFound("profile", id)
	}
	return p, nil
}

func (t txView) SetDriver(_ context.Context, bikeID uuid.UUID, profileID *uuid.UUID, status bike.Status) error {
	s := t.s
	b, ok := s.bikes[bikeID]
	if !ok {
		return fleeterr.NotFound("bike", bikeID)
	}
	if profileID == nil {
		remove(s, s.drivers, bikeID)
	} else {
		put(s, s.drivers, bikeID, *profileID)
	}
	b.Status = status
	b.UpdatedAt = s.stamp()
	put(s, s.bikes, bikeID, b)
	return nil
}

func (t txView) SetBatteryBike(_ context.Context, batteryID uuid.UUID, bikeID *uuid.UUID, status battery.Status) error {
	s := t.s
	b, ok := s.batteries[batteryID]
	if !ok {
		return fleeterr.NotFound("battery", batteryID)
	}
	if bikeID == nil {
		remove(s, s.mounts, batteryID)
	} else {
		put(s, s.mounts, batteryID, *bikeID)
	}
	b.Status = status
	b.UpdatedAt = s.stamp()
	put(s, s.batteries, batteryID, b)
	return nil
}

func (t txView) LockRental(_ context.Context, id uuid.UUID) (rental.Rental, error) {
	r, ok := t.s.rentals[id]
	if !ok {
		return rental.Rental{}, fleeterr.NotFound("rental", id)
	}
	return r, nil
}

func (t txView) RentalsForBike(_ context.Context, bikeID uuid.UUID) ([]rental.Rental, error) {
	var out []rental.Rental
	for _, r := range t.s.rentals {
		if r.BikeID == bikeID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (t txView) Insert(_ context.Context, r *rental.Rental) error {
	if err := t.checkRentalRefs(r); err != nil {
		return err
	}
	put(t.s, t.s.rentals, r.ID, *r)
	return nil
}

func (t txView) Update(_ context.Context, r *rental.Rental) error {
	if _, ok := t.s.rentals[r.ID]; !ok {
		return fleeterr.NotFound("rental", r.ID)
	}
	if err := t.checkRentalRefs(r); err != nil {
		return err
	}
	put(t.s, t.s.rentals, r.ID, *r)
	return nil
}

func (t txView) checkRentalRefs(r *rental.Rental) error {
	if _, ok := t.s.bikes[r.BikeID]; !ok {
		return fleeterr.NotFound("bike", r.BikeID)
	}
	if _, ok := t.s.profiles[r.ProfileID]; !ok {
		return fleeterr.NotFound("profile", r.ProfileID)
	}
	return nil
}

// Delete removes the rental and detaches transactions that pointed at it.
func (t txView) Delete(_ context.Context, id uuid.UUID) error {
	s := t.s
	if _, ok := s.rentals[id]; !ok {
		return fleeterr.NotFound("rental", id)
	}
	for tid, txn := range s.transactions {
		if txn.RentalID != nil && *txn.RentalID == id {
			txn.RentalID = nil
			put(s, s.transactions, tid, txn)
		}
	}
	remove(s, s.rentals, id)
	return nil
}

// Assignments returns the store as an assignment.Store.
func (s *Store) Assignments() assignment.Store { return assignmentStore{s} }

type assignmentStore struct{ s *Store }

func (a assignmentStore) WithinTx(ctx context.Context, fn func(context.Context, assignment.Tx) error) error {
	return a.s.atomic(ctx, func() error {
		return fn(ctx, txView(a))
	})
}

// Rentals returns the store as a rental.Store.
func (s *Store) Rentals() rental.Store { return rentalStore{s} }

type rentalStore struct{ s *Store }

func (r rentalStore) WithinTx(ctx context.Context, fn func(context.Context, rental.Tx) error) error {
	return r.s.atomic(ctx, func() error {
		return fn(ctx, txView(r))
	})
}

func (r rentalStore) Get(_ context.Context, id uuid.UUID) (rental.Listing, error) {
	var (
		l  rental.Listing
		ok bool
	)
	r.s.read(func() {
		var rt rental.Rental
		if rt, ok = r.s.rentals[id]; ok {
			l = r.listing(rt)
		}
	})
	if !ok {
		return rental.Listing{}, fleeterr.NotFound("rental", id)
	}
	return l, nil
}

func (r rentalStore) List(_ context.Context, f rental.Filter) ([]rental.Listing, error) {
	term := strings.ToLower(strings.TrimSpace(f.Search))

	var out []rental.Listing
	r.s.read(func() {
		for _, rt := range r.s.rentals {
			if f.BikeID != nil && rt.BikeID != *f.BikeID {
				continue
			}
			if f.ProfileID != nil && rt.ProfileID != *f.ProfileID {
				continue
			}
			l := r.listing(rt)
			if term != "" &&
				!strings.Contains(strings.ToLower(l.BikeSerial), term) &&
				!strings.Contains(strings.ToLower(l.DriverName), term) {
				continue
			}
			out = append(out, l)
		}
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return window(out, f.Limit, f.Offset), nil
}

func (r rentalStore) listing(rt rental.Rental) rental.Listing {
	return rental.Listing{
		Rental:     rt,
		BikeSerial: r.s.bikes[rt.BikeID].SerialNumber,
		DriverName: fullName(r.s.profiles[rt.ProfileID]),
	}
}
