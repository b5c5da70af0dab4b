package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/ebike-fleet/assignment"
	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/currency"
	"github.com/semanticallynull/ebike-fleet/internal/middleware"
	"github.com/semanticallynull/ebike-fleet/ledger"
	"github.com/semanticallynull/ebike-fleet/notify"
	"github.com/semanticallynull/ebike-fleet/profile"
	"github.com/semanticallynull/ebike-fleet/rental"
)

// Services are the core operations the routes call into. Every mutation of fleet state
// goes through one of them.
type Services struct {
	Bikes       *bike.Service
	Batteries   *battery.Service
	Profiles    *profile.Service
	Assignments *assignment.Registry
	Rentals     *rental.Scheduler
	Ledger      *ledger.Service
	Converter   *currency.Converter
	Settings    *currency.Settings
	Notifier    *notify.Dispatcher
	// Inbox backs the in-app notification listing; nil disables it.
	Inbox *notify.InAppChannel
}

type Config struct {
	Logger *slog.Logger
	// Registry enables request metrics and /metrics when set.
	Registry        *prometheus.Registry
	MetricsUsername string
	MetricsPassword string
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

type API struct {
	r   *gin.Engine
	svc Services
	cfg Config
}

func New(svc Services, cfg Config) *API {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &API{
		r:   gin.New(),
		svc: svc,
		cfg: cfg,
	}

	a.r.Use(gin.Recovery(), middleware.Tracing(), middleware.Logging(cfg.Logger))
	if cfg.Registry != nil {
		a.r.Use(middleware.Metrics(cfg.Registry))
		metrics := a.r.Group("/metrics")
		if cfg.MetricsUsername != "" {
			metrics.Use(gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}))
		}
		metrics.GET("", gin.WrapH(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	a.r.GET("/health", a.healthHandler)

	authed := a.r.Group("/")
	authed.Use(middleware.Authenticate())
	admin := authed.Group("/")
	admin.Use(middleware.RequireRole(profile.RoleAdmin))

	a.bikeRoutes(authed, admin)
	a.batteryRoutes(authed, admin)
	a.profileRoutes(authed, admin)
	a.assignmentRoutes(admin)
	a.rentalRoutes(authed, admin)
	a.ledgerRoutes(admin)
	a.currencyRoutes(authed, admin)
	a.notificationRoutes(authed, admin)

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

func (a *API) healthHandler(c *gin.Context) {
	if a.cfg.Ready != nil {
		if err := a.cfg.Ready(c.Request.Context()); err != nil {
			middleware.GetLogger(c).WarnContext(c, "readiness check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
