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

// Metrics exposes application-level instruments.
type Metrics struct {
	collectionsIngested metric.Int64Counter
	paymentsRecorded    metric.Int64Counter
	rateConflicts       metric.Int64Counter
	integrityFindings   metric.Int64Counter
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "trackvault"
	}
	meter := provider.Meter(name)

	collectionsIngested, err := meter.Int64Counter("trackvault_collections_ingested_total")
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("trackvault_payments_recorded_total")
	if err != nil {
		return nil, err
	}
	rateConflicts, err := meter.Int64Counter("trackvault_rate_conflicts_total")
	if err != nil {
		return nil, err
	}
	integrityFindings, err := meter.Int64Counter("trackvault_rate_integrity_findings_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("trackvault_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("trackvault_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		collectionsIngested: collectionsIngested,
		paymentsRecorded:    paymentsRecorded,
		rateConflicts:       rateConflicts,
		integrityFindings:   integrityFindings,
		rateLimitAllowed:    rateLimitAllowed,
		rateLimitDenied:     rateLimitDenied,
	}, nil
}

// RecordCollectionIngested increments collection ingest counts.
func (m *Metrics) RecordCollectionIngested(ctx context.Context, productCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("product_code", strings.TrimSpace(productCode)))
	m.collectionsIngested.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentRecorded increments payment counts.
func (m *Metrics) RecordPaymentRecorded(ctx context.Context, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateConflict increments rejected overlapping rate submissions.
func (m *Metrics) RecordRateConflict(ctx context.Context, productCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("product_code", strings.TrimSpace(productCode)))
	m.rateConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordIntegrityFinding counts overlapping or missing rate coverage,
// whether hit by the resolver or flagged by the coverage sweep. Any
// non-zero value means the rate table needs attention.
func (m *Metrics) RecordIntegrityFinding(ctx context.Context, productCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("product_code", strings.TrimSpace(productCode)))
	m.integrityFindings.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, supplierID, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("supplier_id", strings.TrimSpace(supplierID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, supplierID, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("supplier_id", strings.TrimSpace(supplierID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"supplier_id":  {},
	"endpoint":     {},
	"status_code":  {},
	"product_code": {},
	"method":       {},
	"reason":       {},
	"unit":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
