package currency_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/currency"
	"github.com/semanticallynull/ebike-fleet/fleeterr"
)

type memSettings map[string]string

func (m memSettings) Setting(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memSettings) SetSetting(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestSettings_DefaultsToFallback(t *testing.T) {
	s := currency.NewSettings(memSettings{}, "", slog.New(slog.DiscardHandler))

	got, err := s.ReportingCurrency(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "RSD", got)
}

func TestSettings_SetValidatesAndCanonicalizes(t *testing.T) {
	store := memSettings{}
	s := currency.NewSettings(store, "RSD", slog.New(slog.DiscardHandler))

	code, err := s.SetReportingCurrency(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", code)

	got, err := s.ReportingCurrency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USD", got)

	_, err = s.SetReportingCurrency(context.Background(), "dollars")
	assert.True(t, fleeterr.IsValidation(err))
}
