package observability

import (
	"github.com/smallbiznis/prospector/internal/observability/logger"
	"github.com/smallbiznis/prospector/internal/observability/metrics"
	"github.com/smallbiznis/prospector/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideGormLoggerConfig,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(ensureTracingProvider),
	fx.Invoke(registerSchedulerMetrics),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

// provideGormLoggerConfig keeps record-store diagnostics at warn unless SQL
// tracing is requested; parameters are never logged either way.
func provideGormLoggerConfig(cfg Config) *logger.GormLoggerConfig {
	out := logger.DefaultGormLoggerConfig()
	if cfg.SlowQueryThreshold > 0 {
		out.SlowThreshold = cfg.SlowQueryThreshold
	}
	if cfg.SQLTrace {
		out.Level = gormlogger.Info
	}
	return &out
}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

// registerSchedulerMetrics builds the job collectors up front so the first
// usage_reset run does not pay for registration.
func registerSchedulerMetrics(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
}
