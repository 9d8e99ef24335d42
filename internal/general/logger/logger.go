package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger emits single-line JSON entries with a fixed shape: service, action,
// message, plus request_id/ride_id pulled from the context when present.
type Logger struct {
	service string
	zl      *zap.Logger
}

// New creates a structured logger for the given service.
func New(service string) *Logger {
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		zapcore.DebugLevel,
	)

	hostname, err := os.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		hostname = "unknown-hostname"
	}

	zl := zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	)

	return &Logger{service: service, zl: zl}
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.zl.Debug(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.zl.Info(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Error writes an ERROR line and attaches the error.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	fields := l.fields(ctx, action, details)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.zl.Error(strings.TrimSpace(msg), fields...)
}

// Sync flushes buffered entries; call on shutdown.
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}

func (l *Logger) fields(ctx context.Context, action string, details any) []zap.Field {
	fields := []zap.Field{zap.String("action", safeAction(action))}
	if id := requestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := rideID(ctx); id != "" {
		fields = append(fields, zap.String("ride_id", id))
	}
	if details != nil {
		fields = append(fields, zap.Any("details", details))
	}
	return fields
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "dispatch_request_id"
	ctxKeyRideID    ctxKey = "dispatch_ride_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithRideID returns a new context carrying ride_id.
func (l *Logger) WithRideID(ctx context.Context, rideID string) context.Context {
	if strings.TrimSpace(rideID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRideID, rideID)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func rideID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKeyRideID).(string); ok {
		return s
	}
	return ""
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
