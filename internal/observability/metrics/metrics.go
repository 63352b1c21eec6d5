package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments for the tenant pipeline.
type Metrics struct {
	tenantResolutions metric.Int64Counter
	fallbackDegrades  metric.Int64Counter
	migrationsApplied metric.Int64Counter
	migrationDuration metric.Int64Histogram
	moduleDispatches  metric.Int64Counter
	navigationSyncs   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "soko"
	}
	meter := provider.Meter(name)

	tenantResolutions, err := meter.Int64Counter("soko_tenant_resolutions_total")
	if err != nil {
		return nil, err
	}
	fallbackDegrades, err := meter.Int64Counter("soko_tenant_fallback_degradations_total")
	if err != nil {
		return nil, err
	}
	migrationsApplied, err := meter.Int64Counter("soko_module_migrations_applied_total")
	if err != nil {
		return nil, err
	}
	migrationDuration, err := meter.Int64Histogram("soko_module_migration_duration_ms")
	if err != nil {
		return nil, err
	}
	moduleDispatches, err := meter.Int64Counter("soko_module_dispatches_total")
	if err != nil {
		return nil, err
	}
	navigationSyncs, err := meter.Int64Counter("soko_navigation_syncs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tenantResolutions: tenantResolutions,
		fallbackDegrades:  fallbackDegrades,
		migrationsApplied: migrationsApplied,
		migrationDuration: migrationDuration,
		moduleDispatches:  moduleDispatches,
		navigationSyncs:   navigationSyncs,
	}, nil
}

// RecordResolution counts one tenant resolution by outcome reason.
// Successful resolutions use outcome "ok".
func (m *Metrics) RecordResolution(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.tenantResolutions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFallbackDegradation counts a db_per_org acquisition that silently
// degraded to the shared database. This is the mandatory telemetry for the
// fallback policy; operators alert on it.
func (m *Metrics) RecordFallbackDegradation(ctx context.Context, slug, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant", strings.TrimSpace(slug)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.fallbackDegrades.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMigrationApplied counts one applied migration script.
func (m *Metrics) RecordMigrationApplied(ctx context.Context, moduleKey string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("module", strings.TrimSpace(moduleKey)))
	m.migrationsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.migrationDuration.Record(ctx, elapsed.Milliseconds(), metric.WithAttributes(attrs...))
}

// RecordDispatch counts one module dispatch by outcome
// (ok, route_not_found, module_not_found).
func (m *Metrics) RecordDispatch(ctx context.Context, moduleKey, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("module", strings.TrimSpace(moduleKey)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.moduleDispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNavigationSync counts one navigation sync by result.
func (m *Metrics) RecordNavigationSync(ctx context.Context, moduleKey, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("module", strings.TrimSpace(moduleKey)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.navigationSyncs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// FilterAttributes drops attributes with empty values to keep cardinality sane.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if strings.TrimSpace(attr.Value.Emit()) == "" {
			continue
		}
		out = append(out, attr)
	}
	return out
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp metrics protocol %q", protocol)
	}
}
