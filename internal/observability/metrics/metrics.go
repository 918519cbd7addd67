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
	quotaDecisions  metric.Int64Counter
	usageIncrements metric.Int64Counter
	callAttempts    metric.Int64Counter
	callOutcomes    metric.Int64Counter
	callDuration    metric.Float64Histogram
	workflowItems   metric.Int64Counter
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
		name = "prospector"
	}
	meter := provider.Meter(name)

	quotaDecisions, err := meter.Int64Counter("prospector_quota_decisions_total")
	if err != nil {
		return nil, err
	}
	usageIncrements, err := meter.Int64Counter("prospector_usage_increments_total")
	if err != nil {
		return nil, err
	}
	callAttempts, err := meter.Int64Counter("prospector_external_call_attempts_total")
	if err != nil {
		return nil, err
	}
	callOutcomes, err := meter.Int64Counter("prospector_external_call_outcomes_total")
	if err != nil {
		return nil, err
	}
	callDuration, err := meter.Float64Histogram("prospector_external_call_duration_seconds")
	if err != nil {
		return nil, err
	}
	workflowItems, err := meter.Int64Counter("prospector_workflow_items_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		quotaDecisions:  quotaDecisions,
		usageIncrements: usageIncrements,
		callAttempts:    callAttempts,
		callOutcomes:    callOutcomes,
		callDuration:    callDuration,
		workflowItems:   workflowItems,
	}, nil
}

// RecordQuotaDecision counts gate decisions by operation and reason.
func (m *Metrics) RecordQuotaDecision(ctx context.Context, operation, tier string, allowed bool, reason string) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("outcome", outcome),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.quotaDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordUsageIncrement(ctx context.Context, operation string, amount int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.usageIncrements.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordCallAttempt counts a single attempt against an external provider.
func (m *Metrics) RecordCallAttempt(ctx context.Context, call string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("call", strings.TrimSpace(call)))
	m.callAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCallOutcome records the final state of an executor invocation.
func (m *Metrics) RecordCallOutcome(ctx context.Context, call, outcome, errorKind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("call", strings.TrimSpace(call)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
		attribute.String("error_kind", strings.TrimSpace(errorKind)),
	)
	m.callOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.callDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordWorkflowItem counts per-item workflow results (accepted, rejected, errored).
func (m *Metrics) RecordWorkflowItem(ctx context.Context, stage, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("stage", strings.TrimSpace(stage)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.workflowItems.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"operation":   {},
	"tier":        {},
	"outcome":     {},
	"reason":      {},
	"call":        {},
	"error_kind":  {},
	"stage":       {},
	"status_code": {},
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
