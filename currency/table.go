// Package currency converts money between ISO 4217 currencies using a cached table of
// daily exchange rates.
package currency

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
)

// ParseCode validates an ISO 4217 code and returns it in canonical upper case.
func ParseCode(s string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(s))
	if err != nil {
		return "", fleeterr.Invalid("currency", "unknown ISO 4217 code "+s)
	}
	return unit.String(), nil
}

// Rate is the value of one unit of Base in Target on Date.
type Rate struct {
	Base   string          `db:"base_currency" json:"base_currency"`
	Target string          `db:"target_currency" json:"target_currency"`
	Rate   decimal.Decimal `db:"rate" json:"rate"`
	// Date is the UTC calendar day the rate applies to.
	Date time.Time `db:"rate_date" json:"rate_date"`
}

type pair struct {
	from, to string
}

// Table is an immutable snapshot of known rates. Build a new one to change it.
type Table struct {
	// byPair holds each pair's rates ordered by date.
	byPair     map[pair][]Rate
	currencies []string
}

func NewTable(rates []Rate) *Table {
	t := &Table{byPair: make(map[pair][]Rate)}

	latest := make(map[pair]map[time.Time]Rate)
	seen := make(map[string]bool)
	for _, r := range rates {
		r.Date = Day(r.Date)
		p := pair{r.Base, r.Target}
		if latest[p] == nil {
			latest[p] = make(map[time.Time]Rate)
		}
		// A later entry for the same pair and day replaces an earlier one.
		latest[p][r.Date] = r
		seen[r.Base] = true
		seen[r.Target] = true
	}

	for p, byDay := range latest {
		list := make([]Rate, 0, len(byDay))
		for _, r := range byDay {
			list = append(list, r)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
		t.byPair[p] = list
	}
	for c := range seen {
		t.currencies = append(t.currencies, c)
	}
	sort.Strings(t.currencies)
	return t
}

// Rates returns every rate in the table.
func (t *Table) Rates() []Rate {
	var out []Rate
	for _, list := range t.byPair {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Base != out[j].Base {
			return out[i].Base < out[j].Base
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// Lookup finds the rate from one currency to another. With a nil day the newest rate of
// each pair is used; otherwise only rates recorded for that exact UTC day apply. A pair
// is tried directly, then inverted, then through one intermediate currency.
func (t *Table) Lookup(from, to string, day *time.Time) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if r, ok := t.oneHop(from, to, day); ok {
		return r, true
	}
	for _, via := range t.currencies {
		if via == from || via == to {
			continue
		}
		first, ok := t.oneHop(from, via, day)
		if !ok {
			continue
		}
		second, ok := t.oneHop(via, to, day)
		if !ok {
			continue
		}
		return first.Mul(second), true
	}
	return decimal.Zero, false
}

// oneHop prefers the stored direction of a pair. Without a day, an inverse recorded on a
// later day than the direct rate wins.
func (t *Table) oneHop(from, to string, day *time.Time) (decimal.Decimal, bool) {
	direct, hasDirect := t.stored(from, to, day)
	inverse, hasInverse := t.stored(to, from, day)
	if hasInverse && inverse.Rate.IsZero() {
		hasInverse = false
	}

	switch {
	case hasDirect && (!hasInverse || !inverse.Date.After(direct.Date)):
		return direct.Rate, true
	case hasInverse:
		return decimal.NewFromInt(1).DivRound(inverse.Rate, divisionPrecision), true
	}
	return decimal.Zero, false
}

func (t *Table) stored(from, to string, day *time.Time) (Rate, bool) {
	list := t.byPair[pair{from, to}]
	if len(list) == 0 {
		return Rate{}, false
	}
	if day == nil {
		return list[len(list)-1], true
	}

	d := Day(*day)
	i := sort.Search(len(list), func(i int) bool { return !list[i].Date.Before(d) })
	if i < len(list) && list[i].Date.Equal(d) {
		return list[i], true
	}
	return Rate{}, false
}

// divisionPrecision is the number of decimal places kept when inverting a rate.
const divisionPrecision = 12

// Day truncates t to midnight of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
