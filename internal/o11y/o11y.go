package o11y

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	LogLevel slog.Level
	// OTLPEndpoint is host:port of an OTLP/HTTP collector. Tracing is not exported when empty.
	OTLPEndpoint string
	SampleRatio  float64
}

type Observability struct {
	Logger   *slog.Logger
	Tracer   *trace.TracerProvider
	Registry *prometheus.Registry
	Metrics  *Metrics
}

func Setup(ctx context.Context, cfg Config) (*Observability, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	opts := []trace.TracerProviderOption{
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		)
		if err != nil {
			return nil, func() {}, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("tracer shutdown", "error", err)
		}
	}

	return &Observability{
		Logger:   logger,
		Tracer:   tp,
		Registry: registry,
		Metrics:  NewMetrics(registry),
	}, cleanup, nil
}

// Metrics are the domain counters handed to the core services.
type Metrics struct {
	RentalsCreated      prometheus.Counter
	RentalOverlaps      prometheus.Counter
	AssignmentConflicts prometheus.Counter
	Notifications       *prometheus.CounterVec
}

// NewMetrics builds the counters and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RentalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_rentals_created_total",
			Help: "Rentals committed",
		}),
		RentalOverlaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_rental_overlaps_total",
			Help: "Rental writes rejected because they overlapped another rental",
		}),
		AssignmentConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_assignment_conflicts_total",
			Help: "Assignment requests rejected by the registry",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_notifications_total",
			Help: "Notification deliveries by channel and outcome",
		}, []string{"channel", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.RentalsCreated, m.RentalOverlaps, m.AssignmentConflicts, m.Notifications)
	}
	return m
}
