package rental_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/event"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/memstore"
	"github.com/semanticallynull/ebike-fleet/profile"
	"github.com/semanticallynull/ebike-fleet/rental"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	scheduler *rental.Scheduler
	bikes     *bike.Service
	profiles  *profile.Service
	events    *recorder
	created   prometheus.Counter
	overlaps  prometheus.Counter
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := memstore.New()
	f := fixture{
		bikes:    bike.NewService(store.Bikes(), logger),
		profiles: profile.NewService(store.Profiles(), logger),
		events:   &recorder{},
		created:  prometheus.NewCounter(prometheus.CounterOpts{Name: "created_total"}),
		overlaps: prometheus.NewCounter(prometheus.CounterOpts{Name: "overlaps_total"}),
	}
	f.scheduler = rental.NewScheduler(store.Rentals(), logger,
		rental.WithPublisher(f.events),
		rental.WithCounters(f.created, f.overlaps),
	)
	return f
}

func (f fixture) setup(t *testing.T) (bike.Bike, profile.Profile) {
	t.Helper()
	ctx := context.Background()
	first, last := "Ana", "Petrovic"
	b, err := f.bikes.Create(ctx, bike.CreateInput{SerialNumber: "EB-100"})
	require.NoError(t, err)
	p, err := f.profiles.Create(ctx, profile.Input{UserID: "u-1", Role: profile.RoleDriver, FirstName: &first, LastName: &last})
	require.NoError(t, err)
	return b, p
}

func TestCreate_TouchingBoundarySucceedsOverlapFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	first, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(10))})
	require.NoError(t, err)

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(10), EndDate: ptr(day(15))})
	require.NoError(t, err)

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(9), EndDate: ptr(day(12))})
	var overlap *fleeterr.OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, b.ID, overlap.BikeID)
	assert.Len(t, overlap.ConflictIDs, 2)
	assert.Contains(t, overlap.ConflictIDs, first.ID)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.overlaps))
	assert.Len(t, f.events.events, 2)
}

func TestCreate_OngoingRentalBlocksEverythingAfter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	_, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(5)})
	require.NoError(t, err)

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(20), EndDate: ptr(day(21))})
	assert.True(t, fleeterr.IsOverlap(err))

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(5))})
	assert.NoError(t, err)
}

func TestCreate_ZeroLengthRentalHoldsNoInstant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	_, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(10))})
	require.NoError(t, err)

	empty, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(5), EndDate: ptr(day(5))})
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(12), EndDate: ptr(day(14))})
	assert.NoError(t, err)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	_, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(5), EndDate: ptr(day(4))})
	assert.True(t, fleeterr.IsValidation(err))

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID})
	assert.True(t, fleeterr.IsValidation(err))

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: uuid.New(), ProfileID: p.ID, StartDate: day(1)})
	assert.True(t, fleeterr.IsNotFound(err))

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: uuid.New(), StartDate: day(1)})
	assert.True(t, fleeterr.IsNotFound(err))
}

func TestCreate_RetiredBike(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)
	_, err := f.bikes.Retire(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1)})

	assert.True(t, fleeterr.IsConflict(err))
}

func TestCreate_ConcurrentWritersCannotBothWin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(3))})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestUpdate_ChecksAgainstOthersButNotItself(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	r1, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(10))})
	require.NoError(t, err)
	r2, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(15), EndDate: ptr(day(20))})
	require.NoError(t, err)

	moved, err := f.scheduler.Update(ctx, r1.ID, rental.UpdateInput{EndDate: ptr(day(15))})
	require.NoError(t, err)
	assert.Equal(t, day(15), *moved.EndDate)

	_, err = f.scheduler.Update(ctx, r1.ID, rental.UpdateInput{EndDate: ptr(day(16))})
	var overlap *fleeterr.OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, []uuid.UUID{r2.ID}, overlap.ConflictIDs)

	got, err := f.scheduler.Get(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, day(15), *got.EndDate)
}

func TestUpdate_EndingOngoingRentalEmitsEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	r, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1)})
	require.NoError(t, err)

	_, err = f.scheduler.Update(ctx, r.ID, rental.UpdateInput{EndDate: ptr(day(3))})
	require.NoError(t, err)

	require.Len(t, f.events.events, 2)
	ended, ok := f.events.events[1].(event.RentalEnded)
	require.True(t, ok)
	assert.Equal(t, r.ID, ended.RentalID)
	assert.Equal(t, day(3), ended.End)
}

func TestUpdate_ClearEndDateReopens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	r, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(3))})
	require.NoError(t, err)

	got, err := f.scheduler.Update(ctx, r.ID, rental.UpdateInput{ClearEndDate: true, EndDate: ptr(day(9))})
	require.NoError(t, err)
	assert.True(t, got.Ongoing())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)

	r, err := f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(3))})
	require.NoError(t, err)

	require.NoError(t, f.scheduler.Delete(ctx, r.ID))
	assert.True(t, fleeterr.IsNotFound(f.scheduler.Delete(ctx, r.ID)))

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(3))})
	assert.NoError(t, err)
}

func TestList_SearchesSerialAndDriverName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)
	other, err := f.bikes.Create(ctx, bike.CreateInput{SerialNumber: "XB-7"})
	require.NoError(t, err)

	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: b.ID, ProfileID: p.ID, StartDate: day(1), EndDate: ptr(day(2))})
	require.NoError(t, err)
	_, err = f.scheduler.Create(ctx, rental.CreateInput{BikeID: other.ID, ProfileID: p.ID, StartDate: day(5), EndDate: ptr(day(6))})
	require.NoError(t, err)

	bySerial, err := f.scheduler.List(ctx, rental.Filter{Search: "eb-1"})
	require.NoError(t, err)
	require.Len(t, bySerial, 1)
	assert.Equal(t, "EB-100", bySerial[0].BikeSerial)

	byName, err := f.scheduler.List(ctx, rental.Filter{Search: "petro"})
	require.NoError(t, err)
	require.Len(t, byName, 2)
	assert.Equal(t, "Ana Petrovic", byName[0].DriverName)
	assert.Equal(t, "XB-7", byName[0].BikeSerial, "newest first")

	none, err := f.scheduler.List(ctx, rental.Filter{Search: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreate_NormalizesToUTC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, p := f.setup(t)
	belgrade := time.FixedZone("CET", 3600)

	r, err := f.scheduler.Create(ctx, rental.CreateInput{
		BikeID: b.ID, ProfileID: p.ID, StartDate: time.Date(2024, 1, 1, 1, 0, 0, 0, belgrade),
	})
	require.NoError(t, err)

	assert.Equal(t, day(1), r.StartDate)
	assert.Equal(t, time.UTC, r.StartDate.Location())
}
