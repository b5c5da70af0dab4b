package currency

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
)

// Source fetches the current rates from base into other currencies.
type Source interface {
	Latest(ctx context.Context, base string) (Quote, error)
}

// Quote is one fetch from a Source.
type Quote struct {
	Base  string
	Date  time.Time
	Rates map[string]decimal.Decimal
}

// RateStore persists rates so a restart starts with a warm table.
type RateStore interface {
	AllRates(ctx context.Context) ([]Rate, error)
	UpsertRates(ctx context.Context, rates []Rate) error
}

// Converter converts amounts using an in-memory rate table. Conversions read an immutable
// snapshot; Refresh and Load swap in a new one, so readers never see a partial update.
type Converter struct {
	table   atomic.Pointer[Table]
	writeMu sync.Mutex // serializes table swaps

	source     Source
	store      RateStore
	base       string
	currencies []string
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Converter)

func WithSource(s Source) Option {
	return func(c *Converter) {
		c.source = s
	}
}

func WithStore(s RateStore) Option {
	return func(c *Converter) {
		c.store = s
	}
}

// WithCurrencies sets the refresh base and the targets fetched for it.
func WithCurrencies(base string, targets ...string) Option {
	return func(c *Converter) {
		c.base = base
		c.currencies = targets
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		c.now = now
	}
}

// DefaultBase is the currency rates are refreshed against unless configured otherwise.
const DefaultBase = "RSD"

// DefaultCurrencies are the currencies the fleet books money in.
var DefaultCurrencies = []string{"RSD", "EUR", "USD"}

func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		base:       DefaultBase,
		currencies: DefaultCurrencies,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.table.Store(NewTable(nil))
	return c
}

// Convert converts amount from one currency into another. A nil asOf uses the newest rate
// of each pair; otherwise a rate recorded for that exact UTC day is required.
func (c *Converter) Convert(amount decimal.Decimal, from, to string, asOf *time.Time) (decimal.Decimal, error) {
	r, err := c.Rate(from, to, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(r), nil
}

func (c *Converter) Rate(from, to string, asOf *time.Time) (decimal.Decimal, error) {
	from, err := ParseCode(from)
	if err != nil {
		return decimal.Zero, err
	}
	to, err = ParseCode(to)
	if err != nil {
		return decimal.Zero, err
	}

	r, ok := c.table.Load().Lookup(from, to, asOf)
	if !ok {
		return decimal.Zero, &fleeterr.RateUnavailableError{From: from, To: to, AsOf: asOf}
	}
	return r, nil
}

// Rates returns the current snapshot.
func (c *Converter) Rates() []Rate {
	return c.table.Load().Rates()
}

// Replace installs rates as the whole table.
func (c *Converter) Replace(rates []Rate) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.table.Store(NewTable(rates))
}

// Load fills the table from the store.
func (c *Converter) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	rates, err := c.store.AllRates(ctx)
	if err != nil {
		return err
	}
	c.Replace(rates)
	c.logger.InfoContext(ctx, "exchange rates loaded", "count", len(rates))
	return nil
}

// RefreshReport summarizes a Refresh.
type RefreshReport struct {
	Base    string                     `json:"base_currency"`
	Date    time.Time                  `json:"rate_date"`
	Updated map[string]decimal.Decimal `json:"updated"`
	Failed  []string                   `json:"failed"`
}

func (r RefreshReport) Success() bool {
	return len(r.Failed) == 0
}

var ErrNoSource = errors.New("no exchange rate source configured")

// Refresh fetches today's rates from the source, persists them and swaps them into the
// table. Targets the source did not quote are reported as failed; the rates they had
// before stay in place.
func (c *Converter) Refresh(ctx context.Context) (RefreshReport, error) {
	if c.source == nil {
		return RefreshReport{}, ErrNoSource
	}

	quote, err := c.source.Latest(ctx, c.base)
	if err != nil {
		return RefreshReport{}, err
	}

	date := Day(quote.Date)
	if quote.Date.IsZero() {
		date = Day(c.now())
	}
	report := RefreshReport{Base: c.base, Date: date, Updated: map[string]decimal.Decimal{}, Failed: []string{}}

	var fresh []Rate
	for _, target := range c.currencies {
		if target == c.base {
			continue
		}
		r, ok := quote.Rates[target]
		if !ok || !r.IsPositive() {
			report.Failed = append(report.Failed, target)
			continue
		}
		fresh = append(fresh, Rate{Base: c.base, Target: target, Rate: r, Date: date})
		report.Updated[target] = r
	}

	if c.store != nil && len(fresh) > 0 {
		if err := c.store.UpsertRates(ctx, fresh); err != nil {
			return RefreshReport{}, err
		}
	}

	c.writeMu.Lock()
	c.table.Store(NewTable(append(c.Rates(), fresh...)))
	c.writeMu.Unlock()
	c.logger.InfoContext(ctx, "exchange rates refreshed",
		"base", c.base, "updated", len(report.Updated), "failed", report.Failed)
	return report, nil
}
