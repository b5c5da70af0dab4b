package currency_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/currency"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
)

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newConverter(rates ...currency.Rate) *currency.Converter {
	c := currency.NewConverter()
	c.Replace(rates)
	return c
}

func TestConvert_Direct(t *testing.T) {
	c := newConverter(currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0085"), Date: jan1})

	got, err := c.Convert(dec("10000"), "RSD", "EUR", nil)

	require.NoError(t, err)
	assert.True(t, dec("85").Equal(got), got.String())
}

func TestConvert_SameCurrency(t *testing.T) {
	c := newConverter()

	got, err := c.Convert(dec("12.34"), "eur", "EUR", nil)

	require.NoError(t, err)
	assert.True(t, dec("12.34").Equal(got))
}

func TestConvert_Inverse(t *testing.T) {
	c := newConverter(currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0085"), Date: jan1})

	got, err := c.Convert(dec("85"), "EUR", "RSD", nil)

	require.NoError(t, err)
	assert.True(t, dec("10000").Sub(got).Abs().LessThan(dec("0.0001")), got.String())
}

func TestConvert_Triangulates(t *testing.T) {
	c := newConverter(
		currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0085"), Date: jan1},
		currency.Rate{Base: "RSD", Target: "USD", Rate: dec("0.0092"), Date: jan1},
	)

	got, err := c.Convert(dec("92"), "USD", "EUR", nil)

	require.NoError(t, err)
	assert.True(t, dec("85").Sub(got).Abs().LessThan(dec("0.0001")), got.String())
}

func TestConvert_RoundTrip(t *testing.T) {
	c := newConverter(currency.Rate{Base: "RSD", Target: "USD", Rate: dec("0.0092"), Date: jan1})
	amount := dec("1234.56")

	there, err := c.Convert(amount, "RSD", "USD", nil)
	require.NoError(t, err)
	back, err := c.Convert(there, "USD", "RSD", nil)
	require.NoError(t, err)

	assert.True(t, amount.Sub(back).Abs().LessThan(dec("0.000001")), back.String())
}

func TestConvert_LatestUsesNewestDay(t *testing.T) {
	c := newConverter(
		currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0080"), Date: jan1},
		currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0090"), Date: jan2},
	)

	latest, err := c.Rate("RSD", "EUR", nil)
	require.NoError(t, err)
	onJan1, err := c.Rate("RSD", "EUR", &jan1)
	require.NoError(t, err)

	assert.True(t, dec("0.0090").Equal(latest))
	assert.True(t, dec("0.0080").Equal(onJan1))
}

func TestConvert_LatestPrefersNewerDirection(t *testing.T) {
	c := newConverter(
		currency.Rate{Base: "EUR", Target: "RSD", Rate: dec("117"), Date: jan1},
		currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.008"), Date: jan2},
	)

	eurToRSD, err := c.Rate("EUR", "RSD", nil)
	require.NoError(t, err)
	assert.True(t, dec("125").Equal(eurToRSD), eurToRSD.String())

	rsdToEUR, err := c.Rate("RSD", "EUR", nil)
	require.NoError(t, err)
	assert.True(t, dec("0.008").Equal(rsdToEUR))

	onJan1, err := c.Rate("EUR", "RSD", &jan1)
	require.NoError(t, err)
	assert.True(t, dec("117").Equal(onJan1))
}

func TestConvert_SameDayPrefersStoredDirection(t *testing.T) {
	c := newConverter(
		currency.Rate{Base: "EUR", Target: "RSD", Rate: dec("117"), Date: jan2},
		currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.008"), Date: jan2},
	)

	got, err := c.Rate("EUR", "RSD", nil)
	require.NoError(t, err)
	assert.True(t, dec("117").Equal(got))
}

func TestConvert_AsOfNeedsExactDay(t *testing.T) {
	c := newConverter(currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0085"), Date: jan1})
	jan3 := time.Date(2024, 1, 3, 15, 30, 0, 0, time.UTC)

	_, err := c.Convert(dec("1"), "RSD", "EUR", &jan3)

	var rerr *fleeterr.RateUnavailableError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "RSD", rerr.From)
	assert.Equal(t, "EUR", rerr.To)
}

func TestConvert_AsOfIgnoresTimeOfDay(t *testing.T) {
	c := newConverter(currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0085"), Date: jan1})
	evening := jan1.Add(21 * time.Hour)

	_, err := c.Convert(dec("1"), "RSD", "EUR", &evening)

	assert.NoError(t, err)
}

func TestConvert_NoRate(t *testing.T) {
	c := newConverter(currency.Rate{Base: "RSD", Target: "EUR", Rate: dec("0.0085"), Date: jan1})

	_, err := c.Convert(dec("1"), "GBP", "EUR", nil)

	assert.True(t, fleeterr.IsRateUnavailable(err))
}

func TestConvert_InvalidCode(t *testing.T) {
	c := newConverter()

	_, err := c.Convert(dec("1"), "EURO", "RSD", nil)

	assert.True(t, fleeterr.IsValidation(err))
}

type memRates struct {
	saved []currency.Rate
}

func (m *memRates) AllRates(context.Context) ([]currency.Rate, error) { return m.saved, nil }

func (m *memRates) UpsertRates(_ context.Context, rates []currency.Rate) error {
	m.saved = append(m.saved, rates...)
	return nil
}

func TestRefresh_FetchesPersistsAndSwaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/RSD", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"RSD","date":"2024-01-02","rates":{"RSD":1,"EUR":0.0085,"GBP":0.0073}}`))
	}))
	defer srv.Close()

	store := &memRates{}
	c := currency.NewConverter(
		currency.WithSource(currency.NewHTTPSource(srv.URL+"/latest/%s", srv.Client())),
		currency.WithStore(store),
	)

	report, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "RSD", report.Base)
	assert.Equal(t, jan2, report.Date)
	assert.Contains(t, report.Updated, "EUR")
	assert.Equal(t, []string{"USD"}, report.Failed)
	assert.False(t, report.Success())
	require.Len(t, store.saved, 1)

	got, err := c.Convert(dec("100"), "EUR", "RSD", &jan2)
	require.NoError(t, err)
	assert.True(t, got.GreaterThan(dec("11764")))
}

func TestRefresh_SourceFailureKeepsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := currency.NewConverter(currency.WithSource(currency.NewHTTPSource(srv.URL+"/%s", srv.Client())))
	c.Replace([]currency.Rate{{Base: "RSD", Target: "EUR", Rate: dec("0.0085"), Date: jan1}})

	_, err := c.Refresh(context.Background())

	assert.Error(t, err)
	_, err = c.Rate("RSD", "EUR", nil)
	assert.NoError(t, err)
}

func TestLoad_WarmsTableFromStore(t *testing.T) {
	store := &memRates{saved: []currency.Rate{{Base: "RSD", Target: "USD", Rate: dec("0.0092"), Date: jan1}}}
	c := currency.NewConverter(currency.WithStore(store))

	require.NoError(t, c.Load(context.Background()))

	assert.Len(t, c.Rates(), 1)
}

func TestParseCode(t *testing.T) {
	code, err := currency.ParseCode(" eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", code)

	_, err = currency.ParseCode("ZZZZ")
	assert.True(t, fleeterr.IsValidation(err))
}
