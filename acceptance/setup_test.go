package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/ebike-fleet/api"
	"github.com/semanticallynull/ebike-fleet/assignment"
	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/currency"
	"github.com/semanticallynull/ebike-fleet/event"
	"github.com/semanticallynull/ebike-fleet/internal/memstore"
	"github.com/semanticallynull/ebike-fleet/internal/middleware"
	"github.com/semanticallynull/ebike-fleet/internal/schema"
	"github.com/semanticallynull/ebike-fleet/ledger"
	"github.com/semanticallynull/ebike-fleet/notify"
	"github.com/semanticallynull/ebike-fleet/profile"
	"github.com/semanticallynull/ebike-fleet/rental"
)

type TestServer struct {
	DB        *sqlx.DB
	Router    *gin.Engine
	Converter *currency.Converter
	Inbox     *notify.InAppChannel
}

type stores struct {
	bikes       bike.Repository
	batteries   battery.Repository
	profiles    profile.Repository
	assignments assignment.Store
	rentals     rental.Store
	ledger      ledger.Repository
	rates       currency.RateStore
	settings    currency.SettingsStore
}

// NewTestServer serves the API over the in-memory store, or over Postgres when
// DATABASE_URL is set.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)
	ts := &TestServer{}

	var st stores
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		db, err := sqlx.Connect("pgx", dbURL)
		require.NoError(t, err, "connect to database")
		require.NoError(t, schema.Apply(context.Background(), db))
		cleanupTestData(t, db)
		t.Cleanup(func() { db.Close() })

		ts.DB = db
		cs := currency.NewSQLStore(db)
		st = stores{
			bikes:       bike.NewSQLRepository(db),
			batteries:   battery.NewSQLRepository(db),
			profiles:    profile.NewSQLRepository(db),
			assignments: assignment.NewSQLStore(db),
			rentals:     rental.NewSQLStore(db),
			ledger:      ledger.NewSQLRepository(db),
			rates:       cs,
			settings:    cs,
		}
	} else {
		mem := memstore.New()
		st = stores{
			bikes:       mem.Bikes(),
			batteries:   mem.Batteries(),
			profiles:    mem.Profiles(),
			assignments: mem.Assignments(),
			rentals:     mem.Rentals(),
			ledger:      mem.Ledger(),
			rates:       mem.Currency(),
			settings:    mem.Currency(),
		}
	}

	ts.Inbox = notify.NewInAppChannel(50)
	dispatcher := notify.NewDispatcher(notify.WithLogger(logger))
	dispatcher.Register(ts.Inbox)
	dispatcher.Register(notify.NewLogChannel(logger))
	require.NoError(t, dispatcher.SetDefault("in_app"))

	profiles := profile.NewService(st.profiles, logger)
	bus := event.NewBus(logger)
	bus.Subscribe(notify.NewSubscriber(dispatcher, profiles, logger))

	ts.Converter = currency.NewConverter(currency.WithStore(st.rates), currency.WithLogger(logger))
	settings := currency.NewSettings(st.settings, currency.DefaultBase, logger)

	a := api.New(api.Services{
		Bikes:       bike.NewService(st.bikes, logger),
		Batteries:   battery.NewService(st.batteries, logger),
		Profiles:    profiles,
		Assignments: assignment.NewRegistry(st.assignments, logger),
		Rentals:     rental.NewScheduler(st.rentals, logger, rental.WithPublisher(bus)),
		Ledger:      ledger.NewService(st.ledger, ts.Converter, settings, logger, ledger.WithPublisher(bus)),
		Converter:   ts.Converter,
		Settings:    settings,
		Notifier:    dispatcher,
		Inbox:       ts.Inbox,
	}, api.Config{Logger: logger})
	ts.Router = a.Router()

	return ts
}

func cleanupTestData(t *testing.T, db *sqlx.DB) {
	t.Helper()

	// Delete in order of dependencies
	for _, table := range []string{
		"financial_transactions", "maintenance_records", "rentals",
		"batteries", "bikes", "user_profiles", "exchange_rates",
	} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("warning: failed to clean %s: %v", table, err)
		}
	}
	if _, err := db.Exec(`UPDATE application_settings SET value = 'RSD' WHERE key = 'currency'`); err != nil {
		t.Logf("warning: failed to reset settings: %v", err)
	}
}

type actor struct {
	userID string
	role   profile.Role
}

var admin = actor{userID: "admin-1", role: profile.RoleAdmin}

func (ts *TestServer) Do(method, path string, body any, as *actor) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(middleware.ActorIDHeader, as.userID)
		req.Header.Set(middleware.ActorRoleHeader, string(as.role))
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) GET(path string, as *actor) *httptest.ResponseRecorder {
	return ts.Do(http.MethodGet, path, nil, as)
}

func (ts *TestServer) POST(path string, body any, as *actor) *httptest.ResponseRecorder {
	return ts.Do(http.MethodPost, path, body, as)
}

// expect decodes the body into out after checking the status.
func expect(t *testing.T, w *httptest.ResponseRecorder, status int, out any) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

type idResponse struct {
	ID string `json:"id"`
}

func (ts *TestServer) CreateDriver(t *testing.T, userID, first, last string) (string, actor) {
	t.Helper()
	var p idResponse
	expect(t, ts.POST("/profiles", map[string]any{
		"user_id":    userID,
		"role":       "driver",
		"first_name": first,
		"last_name":  last,
	}, &admin), http.StatusCreated, &p)
	return p.ID, actor{userID: userID, role: profile.RoleDriver}
}

func (ts *TestServer) CreateBike(t *testing.T, serial string) string {
	t.Helper()
	var b idResponse
	expect(t, ts.POST("/bikes", map[string]any{"serial_number": serial}, &admin), http.StatusCreated, &b)
	return b.ID
}

func (ts *TestServer) CreateBattery(t *testing.T, serial string) string {
	t.Helper()
	var b idResponse
	expect(t, ts.POST("/batteries", map[string]any{"serial_number": serial, "charge_level": 90}, &admin), http.StatusCreated, &b)
	return b.ID
}

func (ts *TestServer) CreateRental(t *testing.T, bikeID, profileID string, start, end time.Time) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]any{"bike_id": bikeID, "profile_id": profileID, "start_date": start}
	if !end.IsZero() {
		body["end_date"] = end
	}
	return ts.POST("/rentals", body, &admin)
}

// SetRate installs a rate in the converter's table for the given day.
func (ts *TestServer) SetRate(base, target, rate string, day time.Time) {
	rates := append(ts.Converter.Rates(), currency.Rate{
		Base:   base,
		Target: target,
		Rate:   decimal.RequireFromString(rate),
		Date:   day,
	})
	ts.Converter.Replace(rates)
}
