package logger

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with audit-risk specific helpers
type Logger struct {
	*zap.Logger
	serviceName string
}

// ContextKey for request context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserIDKey    ContextKey = "user_id"
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	AreaIDKey    ContextKey = "area_id"
)

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if spanID, ok := ctx.Value(SpanIDKey).(string); ok && spanID != "" {
		fields = append(fields, zap.String("span_id", spanID))
	}
	if areaID, ok := ctx.Value(AreaIDKey).(string); ok && areaID != "" {
		fields = append(fields, zap.String("area_id", areaID))
	}

	return &Logger{
		Logger:      l.With(fields...),
		serviceName: l.serviceName,
	}
}

// WithArea returns a logger scoped to one auditable area
func (l *Logger) WithArea(areaID string) *Logger {
	return &Logger{
		Logger:      l.With(zap.String("area_id", areaID)),
		serviceName: l.serviceName,
	}
}

// The recalculation helpers expect a logger already scoped to the area,
// through WithArea or an AreaIDKey context value.

// RecalculationCompleted logs a committed recalculation
func (l *Logger) RecalculationCompleted(trigger string, inherent, combined float64, level string, durationMs int64) {
	l.Info("recalculation completed",
		zap.String("trigger", trigger),
		zap.Float64("inherent_risk_score", inherent),
		zap.Float64("combined_residual_risk", combined),
		zap.String("combined_residual_risk_level", level),
		zap.Int64("duration_ms", durationMs),
	)
}

// RecalculationFailed logs a recalculation that rolled back
func (l *Logger) RecalculationFailed(trigger string, err error) {
	l.Error("recalculation failed",
		zap.String("trigger", trigger),
		zap.Error(err),
	)
}

// OverridePreserved logs that a manual priority survived recomputation
func (l *Logger) OverridePreserved(priorityLevel, year int) {
	l.Info("priority override preserved",
		zap.Int("priority_level", priorityLevel),
		zap.Int("proposed_audit_year", year),
	)
}

// BatchCompleted logs the outcome of a bulk recomputation
func (l *Logger) BatchCompleted(total, recomputed, preserved, failed, skipped int, durationMs int64) {
	fields := []zap.Field{
		zap.Int("total", total),
		zap.Int("recomputed", recomputed),
		zap.Int("override_preserved", preserved),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Int64("duration_ms", durationMs),
	}
	if failed > 0 || skipped > 0 {
		l.Warn("bulk recomputation completed with failures", fields...)
		return
	}
	l.Info("bulk recomputation completed", fields...)
}

// ConfigurationWarning logs a non-fatal problem with the weight configuration
func (l *Logger) ConfigurationWarning(code, name, message string) {
	l.Warn("configuration warning",
		zap.String("code", code),
		zap.String("name", name),
		zap.String("message", message),
	)
}

// WeightsLoaded logs installation of a new weight snapshot
func (l *Logger) WeightsLoaded(version uint64, source string, warnings int) {
	l.Info("weights loaded",
		zap.Uint64("version", version),
		zap.String("source", source),
		zap.Int("warnings", warnings),
	)
}

// LockContention logs when acquiring an area lock took longer than expected
func (l *Logger) LockContention(areaID string, waited, threshold time.Duration) {
	l.Warn("area lock contention",
		zap.String("area_id", areaID),
		zap.Duration("waited", waited),
		zap.Duration("threshold", threshold),
	)
}

// EventPublishFailed logs a best-effort publish that did not go through
func (l *Logger) EventPublishFailed(trigger string, err error) {
	l.Warn("recalculation event not published",
		zap.String("trigger", trigger),
		zap.Error(err),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// DurationField creates a duration field
func DurationField(name string, d time.Duration) zap.Field {
	return zap.Duration(name, d)
}

// StringField creates a string field
func StringField(key, value string) zap.Field {
	return zap.String(key, value)
}

// IntField creates an int field
func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}
