package validate_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/validate"
)

type sample struct {
	Serial   string `json:"serial_number" validate:"required"`
	Currency string `json:"currency" validate:"required,iso4217"`
	Charge   int    `json:"charge_level" validate:"gte=0,lte=100"`
}

func TestStruct_ReportsJSONFieldName(t *testing.T) {
	err := validate.Struct(sample{Currency: "EUR"})

	var verr *fleeterr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "serial_number", verr.Field)
	assert.Equal(t, "is required", verr.Reason)
}

func TestStruct_RejectsUnknownCurrency(t *testing.T) {
	err := validate.Struct(sample{Serial: "S-1", Currency: "EURO"})

	var verr *fleeterr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "currency", verr.Field)
}

func TestStruct_RangeChecks(t *testing.T) {
	err := validate.Struct(sample{Serial: "S-1", Currency: "RSD", Charge: 101})

	var verr *fleeterr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "charge_level", verr.Field)
	assert.Equal(t, "must be at most 100", verr.Reason)
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, validate.Struct(sample{Serial: "S-1", Currency: "USD", Charge: 40}))
}
