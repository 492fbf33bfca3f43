package telemetry

import (
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new OpenTelemetry-aware zap logger writing JSON to stdout.
func NewLogger(level, service string) (*otelzap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.Encoding = "json"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	if service != "" {
		config.InitialFields = map[string]interface{}{"service": service}
	}

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return otelzap.New(zapLogger, otelzap.WithMinLevel(zapLevel)), nil
}
