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
	"go.opentelemetry.io/otel/sdk/resource"
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
	Attributes       []attribute.KeyValue
}

// Metrics exposes application-level instruments.
type Metrics struct {
	commissions       metric.Int64Counter
	commissionAmount  metric.Int64Counter
	cascadeActivation metric.Int64Counter
	renewals          metric.Int64Counter
	transfers         metric.Int64Counter
	externalPayments  metric.Int64Counter
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
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(cfg.Attributes...)),
	)
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
		name = "uplink"
	}
	meter := provider.Meter(name)

	commissions, err := meter.Int64Counter("uplink_commission_entries_total")
	if err != nil {
		return nil, err
	}
	commissionAmount, err := meter.Int64Counter("uplink_commission_amount_minor_total")
	if err != nil {
		return nil, err
	}
	cascadeActivation, err := meter.Int64Counter("uplink_cascade_activations_total")
	if err != nil {
		return nil, err
	}
	renewals, err := meter.Int64Counter("uplink_renewal_outcomes_total")
	if err != nil {
		return nil, err
	}
	transfers, err := meter.Int64Counter("uplink_transfers_total")
	if err != nil {
		return nil, err
	}
	externalPayments, err := meter.Int64Counter("uplink_external_payments_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		commissions:       commissions,
		commissionAmount:  commissionAmount,
		cascadeActivation: cascadeActivation,
		renewals:          renewals,
		transfers:         transfers,
		externalPayments:  externalPayments,
	}, nil
}

// RecordCommission counts one posted ledger entry and its amount.
func (m *Metrics) RecordCommission(ctx context.Context, commissionType, sourceType string, amount int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("commission_type", strings.TrimSpace(commissionType)),
		attribute.String("source_type", strings.TrimSpace(sourceType)),
	)
	m.commissions.Add(ctx, 1, metric.WithAttributes(attrs...))
	if amount > 0 {
		m.commissionAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
	}
}

// RecordCascadeActivations counts members auto-activated by a credit.
func (m *Metrics) RecordCascadeActivations(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cascadeActivation.Add(ctx, int64(count))
}

// RecordRenewal counts renewal sweep outcomes (renewed, warned, grace_started, lapsed).
func (m *Metrics) RecordRenewal(ctx context.Context, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.renewals.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordTransfer counts peer-to-peer transfer attempts by outcome.
func (m *Metrics) RecordTransfer(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.transfers.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExternalPayment counts external payment events by kind and outcome.
func (m *Metrics) RecordExternalPayment(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.externalPayments.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"commission_type": {},
	"source_type":     {},
	"outcome":         {},
	"kind":            {},
	"reason":          {},
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
