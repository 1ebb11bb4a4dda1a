package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/shopdesk/internal/config"
	"github.com/pitabwire/shopdesk/model"
)

type loggerKey struct{}

// NewLogger creates a zap.Logger configured for JSON output to stdout.
//
// Log level usage conventions:
//   - error: infrastructure failures (Redis down, token store unwritable)
//   - warn:  rejected backend calls, failed loads, dropped sync messages
//   - info:  completed loads, confirmed mutations, sign in and out
//   - debug: request parameters, superseded loads, relayed patches
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// SessionLogger returns the context logger enriched with the signed-in
// admin and the active trace.
func SessionLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	var fields []zap.Field
	if s := model.SessionFrom(ctx); s != nil {
		fields = append(fields, zap.String("subject_id", s.SubjectID), zap.String("role", s.Role))
	}
	if id := TraceIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

var sensitiveFields = map[string]bool{
	"password":      true,
	"newPassword":   true,
	"token":         true,
	"resetToken":    true,
	"authorization": true,
}

// Redact returns a copy of body with credentials replaced by "[REDACTED]",
// for debug logging of request bodies.
func Redact(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		switch nested, ok := v.(map[string]any); {
		case sensitiveFields[k]:
			out[k] = "[REDACTED]"
		case ok:
			out[k] = Redact(nested)
		default:
			out[k] = v
		}
	}
	return out
}
