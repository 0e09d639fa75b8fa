package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/bistro/internal/config"
)

// Module exposes a configured Zap logger to the Fx container.
var Module = fx.Provide(New)

// New builds a production Zap logger; callers own the cleanup via Fx lifecycle.
// LogEncoding "console" switches to the human readable development encoder.
// Every entry carries the service identity and the order store driver.
func New(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	zapCfg, err := buildConfig(cfg.Observability)
	if err != nil {
		return nil, err
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	logger = logger.With(
		zap.String("service", cfg.Observability.ServiceName),
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Observability.Environment),
		zap.String("order_store", cfg.Database.Driver),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return logger.Sync()
		},
	})

	return logger, nil
}

func buildConfig(obs config.Observability) (zap.Config, error) {
	level := zapcore.InfoLevel
	if obs.LogLevel != "" {
		if err := level.Set(strings.ToLower(obs.LogLevel)); err != nil {
			return zap.Config{}, fmt.Errorf("invalid OBS_LOG_LEVEL %q: %w", obs.LogLevel, err)
		}
	}

	if obs.LogEncoding == "console" {
		zapCfg := zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(level)
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapCfg, nil
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = "json"
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	zapCfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	zapCfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	zapCfg.Sampling = nil
	if obs.LogSampling.Initial > 0 {
		zapCfg.Sampling = &zap.SamplingConfig{
			Initial:    obs.LogSampling.Initial,
			Thereafter: obs.LogSampling.Thereafter,
		}
	}
	return zapCfg, nil
}

// TraceFields returns trace_id and span_id for sc, or nothing when sc is invalid.
// Log lines carrying them can be joined with the exported spans.
func TraceFields(sc trace.SpanContext) []zap.Field {
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// WithTrace annotates l with the span found in ctx.
func WithTrace(ctx context.Context, l *zap.Logger) *zap.Logger {
	fields := TraceFields(trace.SpanContextFromContext(ctx))
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
