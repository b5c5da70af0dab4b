package schema_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/semanticallynull/ebike-fleet/internal/schema"
)

func TestStatements_CoverEveryTable(t *testing.T) {
	stmts := schema.Statements()

	tables := []string{
		"user_profiles", "bikes", "batteries", "rentals",
		"maintenance_records", "financial_transactions", "exchange_rates", "application_settings",
	}
	for _, table := range tables {
		found := false
		for _, s := range stmts {
			if strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
			}
		}
		assert.True(t, found, table)
	}

	for _, s := range stmts {
		assert.False(t, strings.HasSuffix(s, ";"), s)
	}
}
