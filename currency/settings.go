package currency

import (
	"context"
	"log/slog"
)

// SettingsStore is a key-value table of application settings.
type SettingsStore interface {
	Setting(ctx context.Context, key string) (value string, ok bool, err error)
	SetSetting(ctx context.Context, key, value string) error
}

const reportingCurrencyKey = "currency"

// Settings exposes the reporting currency financial summaries default to.
type Settings struct {
	store    SettingsStore
	fallback string
	logger   *slog.Logger
}

func NewSettings(store SettingsStore, fallback string, logger *slog.Logger) *Settings {
	if fallback == "" {
		fallback = DefaultBase
	}
	return &Settings{store: store, fallback: fallback, logger: logger}
}

func (s *Settings) ReportingCurrency(ctx context.Context) (string, error) {
	v, ok, err := s.store.Setting(ctx, reportingCurrencyKey)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return s.fallback, nil
	}
	return v, nil
}

func (s *Settings) SetReportingCurrency(ctx context.Context, code string) (string, error) {
	code, err := ParseCode(code)
	if err != nil {
		return "", err
	}
	if err := s.store.SetSetting(ctx, reportingCurrencyKey, code); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "reporting currency changed", "currency", code)
	return code, nil
}
