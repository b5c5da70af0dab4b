package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/event"
	"github.com/semanticallynull/ebike-fleet/profile"
)

// ProfileLookup resolves who a rental notification goes to.
type ProfileLookup interface {
	Get(ctx context.Context, id uuid.UUID) (profile.Profile, error)
}

// Subscriber turns domain events into notifications. Rental events go to the driver;
// maintenance and battery events go to the operations recipient.
type Subscriber struct {
	dispatcher *Dispatcher
	profiles   ProfileLookup
	channel    string
	ops        string
	logger     *slog.Logger
}

type SubscriberOption func(*Subscriber)

// OnChannel sends through the named channel instead of the dispatcher default.
func OnChannel(name string) SubscriberOption {
	return func(s *Subscriber) {
		s.channel = name
	}
}

// OpsRecipient sets where fleet-wide alerts go.
func OpsRecipient(recipient string) SubscriberOption {
	return func(s *Subscriber) {
		s.ops = recipient
	}
}

func NewSubscriber(d *Dispatcher, profiles ProfileLookup, logger *slog.Logger, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{dispatcher: d, profiles: profiles, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscriber) Handle(ctx context.Context, e event.Event) error {
	msg, ok, err := s.message(ctx, e)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.WarnContext(ctx, "notification skipped, no recipient", "event", e.Type())
		return nil
	}
	return s.dispatcher.Notify(ctx, msg, s.channel)
}

func (s *Subscriber) message(ctx context.Context, e event.Event) (Message, bool, error) {
	switch e := e.(type) {
	case event.RentalCreated:
		to, ok, err := s.driver(ctx, e.ProfileID)
		if !ok || err != nil {
			return Message{}, ok, err
		}
		body := fmt.Sprintf("Bike %s is yours from %s.", e.BikeID, e.Start.Format("2006-01-02 15:04 MST"))
		if e.End != nil {
			body = fmt.Sprintf("Bike %s is yours from %s until %s.", e.BikeID,
				e.Start.Format("2006-01-02 15:04 MST"), e.End.Format("2006-01-02 15:04 MST"))
		}
		return Message{
			Kind:      KindBikeRented,
			Recipient: to,
			Subject:   "Bike rented",
			Body:      body,
			Data:      map[string]string{"rental_id": e.RentalID.String(), "bike_id": e.BikeID.String()},
		}, true, nil

	case event.RentalEnded:
		to, ok, err := s.driver(ctx, e.ProfileID)
		if !ok || err != nil {
			return Message{}, ok, err
		}
		return Message{
			Kind:      KindBikeReturned,
			Recipient: to,
			Subject:   "Bike returned",
			Body:      fmt.Sprintf("Your rental of bike %s ended at %s.", e.BikeID, e.End.Format("2006-01-02 15:04 MST")),
			Data:      map[string]string{"rental_id": e.RentalID.String(), "bike_id": e.BikeID.String()},
		}, true, nil

	case event.MaintenanceLogged:
		if s.ops == "" {
			return Message{}, false, nil
		}
		return Message{
			Kind:      KindMaintenanceCompleted,
			Recipient: s.ops,
			Subject:   "Maintenance logged",
			Body:      fmt.Sprintf("%s (%s %s)", e.Description, e.Cost.StringFixed(2), e.Currency),
			Data:      map[string]string{"record_id": e.RecordID.String()},
		}, true, nil

	case event.BatteryLow:
		if s.ops == "" {
			return Message{}, false, nil
		}
		return Message{
			Kind:      KindBatteryLow,
			Recipient: s.ops,
			Subject:   "Battery low",
			Body:      fmt.Sprintf("Battery %s is at %d%%.", e.BatteryID, e.ChargeLevel),
			Data:      map[string]string{"battery_id": e.BatteryID.String()},
		}, true, nil
	}
	return Message{}, false, nil
}

// driver picks the address matching the channel: email, phone number, or the profile ID
// for channels that address profiles directly.
func (s *Subscriber) driver(ctx context.Context, id uuid.UUID) (string, bool, error) {
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("look up driver: %w", err)
	}

	channel := s.channel
	if channel == "" {
		channel = s.dispatcher.Default()
	}
	switch channel {
	case "email":
		if p.Email == nil || *p.Email == "" {
			return "", false, nil
		}
		return *p.Email, true, nil
	case "sms":
		if p.PhoneNumber == nil || *p.PhoneNumber == "" {
			return "", false, nil
		}
		return *p.PhoneNumber, true, nil
	default:
		return p.ID.String(), true, nil
	}
}
