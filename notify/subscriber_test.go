package notify_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/event"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/notify"
	"github.com/semanticallynull/ebike-fleet/profile"
)

type profiles map[uuid.UUID]profile.Profile

func (p profiles) Get(_ context.Context, id uuid.UUID) (profile.Profile, error) {
	v, ok := p[id]
	if !ok {
		return profile.Profile{}, fleeterr.NotFound("profile", id)
	}
	return v, nil
}

func strPtr(s string) *string { return &s }

func TestSubscriber_RentalGoesToDriverEmail(t *testing.T) {
	driver := profile.Profile{ID: uuid.New(), Email: strPtr("ana@example.com")}
	email := &recorder{name: "email"}
	d := notify.NewDispatcher()
	d.Register(email)
	sub := notify.NewSubscriber(d, profiles{driver.ID: driver}, slog.New(slog.DiscardHandler))

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sub.Handle(context.Background(), event.RentalCreated{
		RentalID:  uuid.New(),
		BikeID:    uuid.New(),
		ProfileID: driver.ID,
		Start:     start,
	}))

	sent := email.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindBikeRented, sent[0].Kind)
	assert.Equal(t, "ana@example.com", sent[0].Recipient)
}

func TestSubscriber_InAppAddressesProfileID(t *testing.T) {
	driver := profile.Profile{ID: uuid.New()}
	inbox := notify.NewInAppChannel(10)
	d := notify.NewDispatcher()
	d.Register(inbox)
	sub := notify.NewSubscriber(d, profiles{driver.ID: driver}, slog.New(slog.DiscardHandler), notify.OnChannel("in_app"))

	require.NoError(t, sub.Handle(context.Background(), event.RentalEnded{
		RentalID:  uuid.New(),
		BikeID:    uuid.New(),
		ProfileID: driver.ID,
		End:       time.Now(),
	}))

	box := inbox.Inbox(driver.ID.String())
	require.Len(t, box, 1)
	assert.Equal(t, notify.KindBikeReturned, box[0].Kind)
}

func TestSubscriber_SkipsDriverWithoutEmail(t *testing.T) {
	driver := profile.Profile{ID: uuid.New()}
	email := &recorder{name: "email"}
	d := notify.NewDispatcher()
	d.Register(email)
	sub := notify.NewSubscriber(d, profiles{driver.ID: driver}, slog.New(slog.DiscardHandler))

	require.NoError(t, sub.Handle(context.Background(), event.RentalCreated{ProfileID: driver.ID}))
	assert.Empty(t, email.messages())
}

func TestSubscriber_OpsAlerts(t *testing.T) {
	log := &recorder{name: "log"}
	d := notify.NewDispatcher()
	d.Register(log)
	sub := notify.NewSubscriber(d, profiles{}, slog.New(slog.DiscardHandler),
		notify.OnChannel("log"), notify.OpsRecipient("ops@example.com"))
	ctx := context.Background()

	require.NoError(t, sub.Handle(ctx, event.BatteryLow{BatteryID: uuid.New(), ChargeLevel: 12}))
	require.NoError(t, sub.Handle(ctx, event.MaintenanceLogged{
		RecordID:    uuid.New(),
		Description: "brake pads",
		Cost:        decimal.RequireFromString("1500"),
		Currency:    "RSD",
	}))

	sent := log.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, notify.KindBatteryLow, sent[0].Kind)
	assert.Contains(t, sent[0].Body, "12%")
	assert.Equal(t, notify.KindMaintenanceCompleted, sent[1].Kind)
	assert.Equal(t, "brake pads (1500.00 RSD)", sent[1].Body)
}

func TestSubscriber_UnknownDriver(t *testing.T) {
	d := notify.NewDispatcher()
	d.Register(&recorder{name: "email"})
	sub := notify.NewSubscriber(d, profiles{}, slog.New(slog.DiscardHandler))

	err := sub.Handle(context.Background(), event.RentalCreated{ProfileID: uuid.New()})

	assert.True(t, fleeterr.IsNotFound(err))
}
