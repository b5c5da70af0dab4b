package assignment_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/assignment"
	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/memstore"
	"github.com/semanticallynull/ebike-fleet/profile"
)

type fixture struct {
	store     *memstore.Store
	registry  *assignment.Registry
	bikes     *bike.Service
	batteries *battery.Service
	profiles  *profile.Service
	conflicts prometheus.Counter
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := memstore.New()
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{Name: "conflicts_total"})

	return fixture{
		store:     store,
		registry:  assignment.NewRegistry(store.Assignments(), logger, assignment.WithConflictCounter(conflicts)),
		bikes:     bike.NewService(store.Bikes(), logger),
		batteries: battery.NewService(store.Batteries(), logger),
		profiles:  profile.NewService(store.Profiles(), logger),
		conflicts: conflicts,
	}
}

func (f fixture) bike(t *testing.T, serial string) bike.Bike {
	t.Helper()
	b, err := f.bikes.Create(context.Background(), bike.CreateInput{SerialNumber: serial})
	require.NoError(t, err)
	return b
}

func (f fixture) battery(t *testing.T, serial string) battery.Battery {
	t.Helper()
	b, err := f.batteries.Create(context.Background(), battery.CreateInput{SerialNumber: serial, ChargeLevel: 80})
	require.NoError(t, err)
	return b
}

func (f fixture) driver(t *testing.T, userID string) profile.Profile {
	t.Helper()
	p, err := f.profiles.Create(context.Background(), profile.Input{UserID: userID, Role: profile.RoleDriver})
	require.NoError(t, err)
	return p
}

func TestAssignDriver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.bike(t, "EB-1")
	d := f.driver(t, "u-1")

	got, err := f.registry.AssignDriver(ctx, b.ID, d.ID)
	require.NoError(t, err)

	assert.Equal(t, d.ID, *got.AssignedProfileID)
	assert.Equal(t, bike.StatusAssigned, got.Status)

	held, err := f.bikes.ListForProfile(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, b.ID, held[0].ID)
}

func TestAssignDriver_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.bike(t, "EB-1")
	d := f.driver(t, "u-1")

	first, err := f.registry.AssignDriver(ctx, b.ID, d.ID)
	require.NoError(t, err)
	second, err := f.registry.AssignDriver(ctx, b.ID, d.ID)
	require.NoError(t, err)

	assert.Equal(t, first.AssignedProfileID, second.AssignedProfileID)
	assert.Equal(t, bike.StatusAssigned, second.Status)
	held, err := f.bikes.ListForProfile(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestAssignDriver_ConflictWithOtherDriver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.bike(t, "EB-1")
	first := f.driver(t, "u-1")
	second := f.driver(t, "u-2")

	_, err := f.registry.AssignDriver(ctx, b.ID, first.ID)
	require.NoError(t, err)
	_, err = f.registry.AssignDriver(ctx, b.ID, second.ID)

	assert.True(t, fleeterr.IsConflict(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.conflicts))
	got, err := f.bikes.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, *got.AssignedProfileID)
}

func TestAssignDriver_MissingEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.bike(t, "EB-1")
	d := f.driver(t, "u-1")

	_, err := f.registry.AssignDriver(ctx, uuid.New(), d.ID)
	assert.True(t, fleeterr.IsNotFound(err))

	_, err = f.registry.AssignDriver(ctx, b.ID, uuid.New())
	assert.True(t, fleeterr.IsConflict(err))
}

func TestAssignDriver_RetiredBike(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.bike(t, "EB-1")
	d := f.driver(t, "u-1")
	_, err := f.bikes.Retire(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.registry.AssignDriver(ctx, b.ID, d.ID)

	assert.True(t, fleeterr.IsConflict(err))
}

func TestUnassignDriver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.bike(t, "EB-1")
	d := f.driver(t, "u-1")
	_, err := f.registry.AssignDriver(ctx, b.ID, d.ID)
	require.NoError(t, err)

	got, err := f.registry.UnassignDriver(ctx, b.ID)
	require.NoError(t, err)

	assert.Nil(t, got.AssignedProfileID)
	assert.Equal(t, bike.StatusAvailable, got.Status)
	held, err := f.bikes.ListForProfile(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestUnassignDriver_NoDriverIsNoop(t *testing.T) {
	f := newFixture(t)
	b := f.bike(t, "EB-1")

	got, err := f.registry.UnassignDriver(context.Background(), b.ID)

	require.NoError(t, err)
	assert.Nil(t, got.AssignedProfileID)
	assert.Equal(t, bike.StatusAvailable, got.Status)
}

func TestAssignBattery_ConflictThenSucceedsAfterUnassign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b1 := f.bike(t, "EB-1")
	b2 := f.bike(t, "EB-2")
	bt := f.battery(t, "BT-1")

	_, err := f.registry.AssignBattery(ctx, b1.ID, bt.ID)
	require.NoError(t, err)

	_, err = f.registry.AssignBattery(ctx, b2.ID, bt.ID)
	require.True(t, fleeterr.IsConflict(err))

	_, err = f.registry.UnassignBattery(ctx, b1.ID, bt.ID)
	require.NoError(t, err)

	got, err := f.registry.AssignBattery(ctx, b2.ID, bt.ID)
	require.NoError(t, err)
	assert.Equal(t, b2.ID, *got.AssignedBikeID)
	assert.Equal(t, battery.StatusAssigned, got.Status)

	first, err := f.bikes.Get(ctx, b1.ID)
	require.NoError(t, err)
	assert.Empty(t, first.BatteryIDs)
	second, err := f.bikes.Get(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bt.ID}, second.BatteryIDs)
}

func TestAssignBattery_SameBikeIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.bike(t, "EB-1")
	bt := f.battery(t, "BT-1")

	_, err := f.registry.AssignBattery(ctx, b.ID, bt.ID)
	require.NoError(t, err)
	_, err = f.registry.AssignBattery(ctx, b.ID, bt.ID)
	require.NoError(t, err)

	got, err := f.bikes.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bt.ID}, got.BatteryIDs)
}

func TestUnassignBattery_NotOnBike(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b1 := f.bike(t, "EB-1")
	b2 := f.bike(t, "EB-2")
	bt := f.battery(t, "BT-1")
	_, err := f.registry.AssignBattery(ctx, b1.ID, bt.ID)
	require.NoError(t, err)

	_, err = f.registry.UnassignBattery(ctx, b2.ID, bt.ID)

	assert.True(t, fleeterr.IsNotFound(err))
}

// Both views of every link agree after a burst of concurrent assignments.
func TestLinksStayBidirectional(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var bikes []bike.Bike
	for _, serial := range []string{"EB-1", "EB-2", "EB-3"} {
		bikes = append(bikes, f.bike(t, serial))
	}
	var batteries []battery.Battery
	for _, serial := range []string{"BT-1", "BT-2", "BT-3", "BT-4"} {
		batteries = append(batteries, f.battery(t, serial))
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := bikes[i%len(bikes)]
			bt := batteries[i%len(batteries)]
			if i%3 == 0 {
				_, _ = f.registry.UnassignBattery(ctx, b.ID, bt.ID)
				return
			}
			_, _ = f.registry.AssignBattery(ctx, b.ID, bt.ID)
		}(i)
	}
	wg.Wait()

	mounted := map[uuid.UUID]uuid.UUID{}
	for _, b := range bikes {
		got, err := f.bikes.Get(ctx, b.ID)
		require.NoError(t, err)
		for _, id := range got.BatteryIDs {
			_, dup := mounted[id]
			require.False(t, dup, "battery on two bikes")
			mounted[id] = b.ID
		}
	}
	for _, bt := range batteries {
		got, err := f.batteries.Get(ctx, bt.ID)
		require.NoError(t, err)
		if got.AssignedBikeID == nil {
			assert.NotContains(t, mounted, bt.ID)
			continue
		}
		assert.Equal(t, *got.AssignedBikeID, mounted[bt.ID])
	}
}
