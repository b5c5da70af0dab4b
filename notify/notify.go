// Package notify fans fleet notifications out over pluggable delivery channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
)

// Kind classifies a notification.
type Kind string

const (
	KindBikeRented           Kind = "bike_rented"
	KindBikeReturned         Kind = "bike_returned"
	KindMaintenanceDue       Kind = "maintenance_due"
	KindMaintenanceCompleted Kind = "maintenance_completed"
	KindBatteryLow           Kind = "battery_low"
	KindRentalExpiring       Kind = "rental_expiring"
)

// Message is one notification addressed to a recipient. Recipient is whatever the
// channel delivers to: an email address, a phone number or a profile ID.
type Message struct {
	Kind      Kind              `json:"kind"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}

// Channel delivers messages over one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Result is the outcome of delivering over one channel.
type Result struct {
	Channel string `json:"channel"`
	Err     error  `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil }

// Results holds one Result per channel, in registration order.
type Results []Result

// Delivered reports whether at least one channel delivered the message.
func (rs Results) Delivered() bool {
	for _, r := range rs {
		if r.OK() {
			return true
		}
	}
	return false
}

// Map returns the success flag per channel name.
func (rs Results) Map() map[string]bool {
	m := make(map[string]bool, len(rs))
	for _, r := range rs {
		m[r.Channel] = r.OK()
	}
	return m
}

// Dispatcher routes messages to registered channels. One Dispatcher is built at start-up
// and shared by everything that sends notifications.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel
	order    []string
	def      string

	logger *slog.Logger
	sent   *prometheus.CounterVec
}

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithCounter counts deliveries by channel and outcome ("sent" or "failed").
func WithCounter(c *prometheus.CounterVec) Option {
	return func(d *Dispatcher) {
		d.sent = c
	}
}

// DefaultChannel is used by Notify when no channel is named, unless SetDefault changes it.
const DefaultChannel = "email"

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[string]Channel),
		def:      DefaultChannel,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds ch, replacing any channel registered under the same name.
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := ch.Name()
	if _, exists := d.channels[name]; !exists {
		d.order = append(d.order, name)
	}
	d.channels[name] = ch
}

func (d *Dispatcher) SetDefault(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.channels[name]; !ok {
		return &fleeterr.UnknownChannelError{Channel: name}
	}
	d.def = name
	return nil
}

func (d *Dispatcher) Default() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.def
}

// Channels lists the registered channel names in sorted order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := append([]string(nil), d.order...)
	sort.Strings(names)
	return names
}

// Notify sends msg over the named channel, or the default channel when name is empty.
func (d *Dispatcher) Notify(ctx context.Context, msg Message, name string) error {
	d.mu.RLock()
	if name == "" {
		name = d.def
	}
	ch, ok := d.channels[name]
	d.mu.RUnlock()

	if !ok {
		return &fleeterr.UnknownChannelError{Channel: name}
	}
	if err := d.send(ctx, ch, msg); err != nil {
		return fmt.Errorf("notify via %s: %w", name, err)
	}
	return nil
}

// NotifyAll sends msg over every registered channel. A failing channel does not stop
// the others.
func (d *Dispatcher) NotifyAll(ctx context.Context, msg Message) Results {
	d.mu.RLock()
	channels := make([]Channel, 0, len(d.order))
	for _, name := range d.order {
		channels = append(channels, d.channels[name])
	}
	d.mu.RUnlock()

	results := make(Results, 0, len(channels))
	for _, ch := range channels {
		results = append(results, Result{Channel: ch.Name(), Err: d.send(ctx, ch, msg)})
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) error {
	err := ch.Send(ctx, msg)

	outcome := "sent"
	if err != nil {
		outcome = "failed"
		d.logger.WarnContext(ctx, "notification failed",
			"channel", ch.Name(), "kind", msg.Kind, "recipient", msg.Recipient, "error", err)
	} else {
		d.logger.DebugContext(ctx, "notification sent", "channel", ch.Name(), "kind", msg.Kind)
	}
	if d.sent != nil {
		d.sent.WithLabelValues(ch.Name(), outcome).Inc()
	}
	return err
}
