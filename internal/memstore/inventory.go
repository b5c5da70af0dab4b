package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/profile"
)

// Bikes returns the store as a bike.Repository.
func (s *Store) Bikes() bike.Repository { return bikeRepo{s} }

type bikeRepo struct{ s *Store }

func (r bikeRepo) Create(ctx context.Context, b *bike.Bike) error {
	s := r.s
	return s.atomic(ctx, func() error {
		serial := strings.ToLower(b.SerialNumber)
		for _, other := range s.bikes {
			if strings.ToLower(other.SerialNumber) == serial {
				return fleeterr.Conflict("bike", b.ID, "serial number "+b.SerialNumber+" already registered")
			}
		}

		stored := *b
		stored.AssignedProfileID = nil
		stored.BatteryIDs = nil
		put(s, s.bikes, b.ID, stored)

		b.AssignedProfileID = nil
		b.BatteryIDs = []uuid.UUID{}
		return nil
	})
}

func (r bikeRepo) Get(_ context.Context, id uuid.UUID) (bike.Bike, error) {
	var (
		b  bike.Bike
		ok bool
	)
	r.s.read(func() { b, ok = r.s.bike(id) })
	if !ok {
		return bike.Bike{}, fleeterr.NotFound("bike", id)
	}
	return b, nil
}

func (r bikeRepo) List(_ context.Context, limit, offset int) ([]bike.Bike, error) {
	return r.list(func(bike.Bike) bool { return true }, limit, offset), nil
}

func (r bikeRepo) ListForProfile(_ context.Context, profileID uuid.UUID) ([]bike.Bike, error) {
	return r.list(func(b bike.Bike) bool {
		return b.AssignedProfileID != nil && *b.AssignedProfileID == profileID
	}, 0, 0), nil
}

func (r bikeRepo) list(keep func(bike.Bike) bool, limit, offset int) []bike.Bike {
	var out []bike.Bike
	r.s.read(func() {
		for id := range r.s.bikes {
			b, _ := r.s.bike(id)
			if keep(b) {
				out = append(out, b)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return window(out, limit, offset)
}

func (r bikeRepo) Update(ctx context.Context, id uuid.UUID, mutate func(*bike.Bike) error) (bike.Bike, error) {
	s := r.s
	var result bike.Bike
	err := s.atomic(ctx, func() error {
		b, ok := s.bike(id)
		if !ok {
			return fleeterr.NotFound("bike", id)
		}
		if err := mutate(&b); err != nil {
			return err
		}
		b.UpdatedAt = s.stamp()

		stored := b
		stored.AssignedProfileID = nil
		stored.BatteryIDs = nil
		put(s, s.bikes, id, stored)

		result, _ = s.bike(id)
		return nil
	})
	return result, err
}

func (r bikeRepo) Retire(ctx context.Context, id uuid.UUID, now time.Time) (bike.Bike, error) {
	s := r.s
	var result bike.Bike
	err := s.atomic(ctx, func() error {
		b, ok := s.bike(id)
		if !ok {
			return fleeterr.NotFound("bike", id)
		}
		if err := bike.CheckRetirable(b, s.currentRentals(id, now)); err != nil {
			return err
		}

		stored := s.bikes[id]
		stored.Status = bike.StatusRetired
		stored.UpdatedAt = s.stamp()
		put(s, s.bikes, id, stored)

		result, _ = s.bike(id)
		return nil
	})
	return result, err
}

// Batteries returns the store as a battery.Repository.
func (s *Store) Batteries() battery.Repository { return batteryRepo{s} }

type batteryRepo struct{ s *Store }

func (r batteryRepo) Create(ctx context.Context, b *battery.Battery) error {
	s := r.s
	return s.atomic(ctx, func() error {
		// Battery serials are case-sensitive; bike serials are not.
		for _, other := range s.batteries {
			if other.SerialNumber == b.SerialNumber {
				return fleeterr.Conflict("battery", b.ID, "serial number "+b.SerialNumber+" already registered")
			}
		}

		b.AssignedBikeID = nil
		put(s, s.batteries, b.ID, *b)
		return nil
	})
}

func (r batteryRepo) Get(_ context.Context, id uuid.UUID) (battery.Battery, error) {
	var (
		b  battery.Battery
		ok bool
	)
	r.s.read(func() { b, ok = r.s.battery(id) })
	if !ok {
		return battery.Battery{}, fleeterr.NotFound("battery", id)
	}
	return b, nil
}

func (r batteryRepo) List(_ context.Context, limit, offset int) ([]battery.Battery, error) {
	return r.list(func(battery.Battery) bool { return true }, limit, offset), nil
}

func (r batteryRepo) ListForBike(_ context.Context, bikeID uuid.UUID) ([]battery.Battery, error) {
	return r.list(func(b battery.Battery) bool {
		return b.AssignedBikeID != nil && *b.AssignedBikeID == bikeID
	}, 0, 0), nil
}

func (r batteryRepo) ListForProfile(_ context.Context, profileID uuid.UUID) ([]battery.Battery, error) {
	var held map[uuid.UUID]bool
	r.s.read(func() {
		held = make(map[uuid.UUID]bool)
		for bikeID, pid := range r.s.drivers {
			if pid == profileID {
				held[bikeID] = true
			}
		}
	})
	return r.list(func(b battery.Battery) bool {
		return b.AssignedBikeID != nil && held[*b.AssignedBikeID]
	}, 0, 0), nil
}

func (r batteryRepo) list(keep func(battery.Battery) bool, limit, offset int) []battery.Battery {
	var out []battery.Battery
	r.s.read(func() {
		for id := range r.s.batteries {
			b, _ := r.s.battery(id)
			if keep(b) {
				out = append(out, b)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return window(out, limit, offset)
}

func (r batteryRepo) Update(ctx context.Context, id uuid.UUID, mutate func(*battery.Battery) error) (battery.Battery, error) {
	s := r.s
	var result battery.Battery
	err := s.atomic(ctx, func() error {
		b, ok := s.battery(id)
		if !ok {
			return fleeterr.NotFound("battery", id)
		}
		if err := mutate(&b); err != nil {
			return err
		}
		b.UpdatedAt = s.stamp()

		stored := b
		stored.AssignedBikeID = nil
		put(s, s.batteries, id, stored)

		result, _ = s.battery(id)
		return nil
	})
	return result, err
}

func (r batteryRepo) Retire(ctx context.Context, id uuid.UUID) (battery.Battery, error) {
	s := r.s
	var result battery.Battery
	err := s.atomic(ctx, func() error {
		b, ok := s.battery(id)
		if !ok {
			return fleeterr.NotFound("battery", id)
		}
		if err := battery.CheckRetirable(b); err != nil {
			return err
		}

		stored := s.batteries[id]
		stored.Status = battery.StatusRetired
		stored.UpdatedAt = s.stamp()
		put(s, s.batteries, id, stored)

		result, _ = s.battery(id)
		return nil
	})
	return result, err
}

// Profiles returns the store as a profile.Repository.
func (s *Store) Profiles() profile.Repository { return profileRepo{s} }

type profileRepo struct{ s *Store }

func (r profileRepo) Create(ctx context.Context, p *profile.Profile) error {
	s := r.s
	return s.atomic(ctx, func() error {
		for _, other := range s.profiles {
			if other.UserID == p.UserID {
				return fleeterr.Conflict("profile", p.ID, "user "+p.UserID+" already has a profile")
			}
		}
		put(s, s.profiles, p.ID, *p)
		return nil
	})
}

func (r profileRepo) Get(_ context.Context, id uuid.UUID) (profile.Profile, error) {
	var (
		p  profile.Profile
		ok bool
	)
	r.s.read(func() { p, ok = r.s.profiles[id] })
	if !ok {
		return profile.Profile{}, fleeterr.NotFound("profile", id)
	}
	return p, nil
}

func (r profileRepo) GetByUserID(_ context.Context, userID string) (profile.Profile, error) {
	var (
		found profile.Profile
		ok    bool
	)
	r.s.read(func() {
		for _, p := range r.s.profiles {
			if p.UserID == userID {
				found, ok = p, true
				return
			}
		}
	})
	if !ok {
		return profile.Profile{}, &fleeterr.NotFoundError{Entity: "profile for user " + userID}
	}
	return found, nil
}

func (r profileRepo) List(_ context.Context, limit, offset int) ([]profile.Profile, error) {
	var out []profile.Profile
	r.s.read(func() {
		for _, p := range r.s.profiles {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return window(out, limit, offset), nil
}

func (r profileRepo) Update(ctx context.Context, p *profile.Profile) error {
	s := r.s
	return s.atomic(ctx, func() error {
		if _, ok := s.profiles[p.ID]; !ok {
			return fleeterr.NotFound("profile", p.ID)
		}
		put(s, s.profiles, p.ID, *p)
		return nil
	})
}
