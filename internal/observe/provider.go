package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// serverInfoName is the gauge whose labels carry the version and the provider
// mode the server resolved at startup.
const serverInfoName = "voxdispatch.server.info"

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "voxdispatch".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// InstanceID identifies this process. Default: a random UUID.
	InstanceID string

	// Mode is the configured provider mode: offline, online or auto. The
	// resolved mode is reported later through [Telemetry.SetMode].
	Mode string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// Telemetry owns the meter and tracer providers and the Prometheus registry
// the meter provider exports to.
type Telemetry struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider

	registry *prometheus.Registry
	version  string
	mode     atomic.Pointer[string]
}

// NewTelemetry builds the providers without touching the OTel globals.
//
// The resource carries service.name, service.version, service.instance.id and
// voxdispatch.mode.configured. Until [Telemetry.SetMode] is called the
// server info gauge reports the configured mode.
func NewTelemetry(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxdispatch"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcessPID(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ServiceInstanceID(cfg.InstanceID),
			attribute.String("voxdispatch.mode.configured", cfg.Mode),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{registry: reg, version: cfg.ServiceVersion}
	t.SetMode(cfg.Mode)

	t.MeterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	_, err = t.MeterProvider.Meter(meterName).Int64ObservableGauge(serverInfoName,
		metric.WithDescription("Always 1. Labels carry the version and the resolved provider mode."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(1, metric.WithAttributes(
				attribute.String("version", t.version),
				attribute.String("mode", t.Mode()),
			))
			return nil
		}),
	)
	if err != nil {
		_ = t.MeterProvider.Shutdown(ctx)
		return nil, fmt.Errorf("observe: server info gauge: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	t.TracerProvider = sdktrace.NewTracerProvider(tpOpts...)

	return t, nil
}

// InitProvider builds the providers with [NewTelemetry] and registers them as
// the global OTel providers. Call [Telemetry.Shutdown] in a defer from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	t, err := NewTelemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(t.MeterProvider)
	otel.SetTracerProvider(t.TracerProvider)
	return t, nil
}

// SetMode records the provider mode the server is running in.
func (t *Telemetry) SetMode(mode string) {
	t.mode.Store(&mode)
}

// Mode returns the mode last passed to SetMode.
func (t *Telemetry) Mode() string {
	if m := t.mode.Load(); m != nil {
		return *m
	}
	return ""
}

// Handler serves the Prometheus exposition of this Telemetry's registry.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// Shutdown flushes and closes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.MeterProvider.Shutdown(ctx),
		t.TracerProvider.Shutdown(ctx),
	)
}
