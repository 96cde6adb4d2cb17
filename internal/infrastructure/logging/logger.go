package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/config"
)

// Logger wraps a zap.SugaredLogger behind a key/value call shape.
//
// Every method takes a message followed by alternating keys and values:
//
//	log.Info("refresh complete", "duration", d)
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, console for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if strings.ToLower(cfg.Format) == "text" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	switch strings.ToLower(cfg.Output) {
	case "stderr":
		zcfg.OutputPaths = []string{"stderr"}
	default:
		zcfg.OutputPaths = []string{"stdout"}
	}

	zl, err := zcfg.Build()
	if err != nil {
		// Build only fails on unopenable sinks; stdout/stderr always open.
		zl = zap.NewNop()
	}

	zl = zl.With(
		zap.String("service", "radiotherm-homie"),
		zap.String("version", version),
	)

	return &Logger{sugar: zl.Sugar()}
}

// NewFromZap wraps an existing zap logger. Tests use this with zaptest/observer.
func NewFromZap(zl *zap.Logger) *Logger {
	return &Logger{sugar: zl.Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// parseLevel converts a string log level to a zap level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...)}
}

// Sync flushes buffered log entries. Call once before exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
