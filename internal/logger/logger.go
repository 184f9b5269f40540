package logger

import (
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes structured JSON lines tagged with service, hostname,
// action and request id.
type Logger struct {
	service  string
	hostname string
	zl       *zap.Logger
}

// New creates a production JSON logger for the given service
func New(service string) *Logger {
	hostname, _ := os.Hostname()

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewExample()
	}

	return &Logger{
		service:  service,
		hostname: hostname,
		zl:       zl.With(zap.String("service", service), zap.String("hostname", hostname)),
	}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// GenerateRequestID returns a fresh correlation id
func GenerateRequestID() string {
	return uuid.NewString()
}

func (l *Logger) Info(action, message, requestID string, fields map[string]interface{}) {
	l.zl.Info(message, l.fields(action, requestID, fields)...)
}

func (l *Logger) Debug(action, message, requestID string, fields map[string]interface{}) {
	l.zl.Debug(message, l.fields(action, requestID, fields)...)
}

// Error logs at error level. err may be nil for validation style failures.
func (l *Logger) Error(action, message, requestID string, err error, fields map[string]interface{}) {
	zf := l.fields(action, requestID, fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.zl.Error(message, zf...)
}

// Sync flushes buffered entries
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}

func (l *Logger) fields(action, requestID string, extra map[string]interface{}) []zap.Field {
	zf := make([]zap.Field, 0, len(extra)+2)
	zf = append(zf, zap.String("action", action), zap.String("request_id", requestID))
	for k, v := range extra {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}
