// Package memstore is an in-process implementation of every fleet repository. It keeps
// entities in maps keyed by ID and the driver and battery links in their own relation
// maps, so both directions of a link are always read from one record.
//
// A single mutex serializes all access. Writes made inside a transaction are undone in
// reverse order when the transaction fails.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/currency"
	"github.com/semanticallynull/ebike-fleet/ledger"
	"github.com/semanticallynull/ebike-fleet/profile"
	"github.com/semanticallynull/ebike-fleet/rental"
)

type Store struct {
	mu sync.Mutex

	bikes        map[uuid.UUID]bike.Bike
	batteries    map[uuid.UUID]battery.Battery
	profiles     map[uuid.UUID]profile.Profile
	rentals      map[uuid.UUID]rental.Rental
	transactions map[uuid.UUID]ledger.Transaction
	maintenance  map[uuid.UUID]ledger.MaintenanceRecord
	rates        map[rateKey]currency.Rate
	settings     map[string]string

	// drivers maps bike to profile; mounts maps battery to bike.
	drivers map[uuid.UUID]uuid.UUID
	mounts  map[uuid.UUID]uuid.UUID

	undo []func()
	inTx bool
	now  func() time.Time
}

type rateKey struct {
	base, target string
	day          time.Time
}

func New() *Store {
	return &Store{
		bikes:        make(map[uuid.UUID]bike.Bike),
		batteries:    make(map[uuid.UUID]battery.Battery),
		profiles:     make(map[uuid.UUID]profile.Profile),
		rentals:      make(map[uuid.UUID]rental.Rental),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		maintenance:  make(map[uuid.UUID]ledger.MaintenanceRecord),
		rates:        make(map[rateKey]currency.Rate),
		settings:     map[string]string{"currency": currency.DefaultBase},
		drivers:      make(map[uuid.UUID]uuid.UUID),
		mounts:       make(map[uuid.UUID]uuid.UUID),
		now:          time.Now,
	}
}

// atomic runs fn under the store lock and rolls back its writes if it fails.
func (s *Store) atomic(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inTx = true
	s.undo = s.undo[:0]
	defer func() {
		s.inTx = false
		s.undo = s.undo[:0]
	}()

	if err := fn(); err != nil {
		for i := len(s.undo) - 1; i >= 0; i-- {
			s.undo[i]()
		}
		return err
	}
	return nil
}

func (s *Store) read(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Store) record(undo func()) {
	if s.inTx {
		s.undo = append(s.undo, undo)
	}
}

func put[K comparable, V any](s *Store, m map[K]V, k K, v V) {
	old, had := m[k]
	m[k] = v
	s.record(func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func remove[K comparable, V any](s *Store, m map[K]V, k K) {
	old, had := m[k]
	if !had {
		return
	}
	delete(m, k)
	s.record(func() { m[k] = old })
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// bike returns the bike with its links filled in from the relation maps.
func (s *Store) bike(id uuid.UUID) (bike.Bike, bool) {
	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, false
	}

	b.AssignedProfileID = nil
	if pid, ok := s.drivers[id]; ok {
		b.AssignedProfileID = &pid
	}

	b.BatteryIDs = []uuid.UUID{}
	for batteryID, bikeID := range s.mounts {
		if bikeID == id {
			b.BatteryIDs = append(b.BatteryIDs, batteryID)
		}
	}
	sort.Slice(b.BatteryIDs, func(i, j int) bool {
		return s.batteries[b.BatteryIDs[i]].SerialNumber < s.batteries[b.BatteryIDs[j]].SerialNumber
	})
	return b, true
}

func (s *Store) battery(id uuid.UUID) (battery.Battery, bool) {
	b, ok := s.batteries[id]
	if !ok {
		return battery.Battery{}, false
	}

	b.AssignedBikeID = nil
	if bikeID, ok := s.mounts[id]; ok {
		b.AssignedBikeID = &bikeID
	}
	return b, true
}

// currentRentals counts rentals of bikeID that are ongoing or end after now.
func (s *Store) currentRentals(bikeID uuid.UUID, now time.Time) int {
	n := 0
	for _, r := range s.rentals {
		if r.BikeID == bikeID && (r.EndDate == nil || r.EndDate.After(now)) {
			n++
		}
	}
	return n
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func fullName(p profile.Profile) string {
	var parts []string
	if p.FirstName != nil && *p.FirstName != "" {
		parts = append(parts, *p.FirstName)
	}
	if p.LastName != nil && *p.LastName != "" {
		parts = append(parts, *p.LastName)
	}
	return strings.Join(parts, " ")
}
