package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "RENDERCAST_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks RENDERCAST_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := parseLevel(level)
	if err != nil {
		return err
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// parseLevel maps a level name onto a zap level.
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// InitializeFromEnv initializes the logger from the RENDERCAST_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use this with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogAdvertisement logs a discovery advertisement as it arrives from the transport
func LogAdvertisement(location, usn, remote string) {
	Debug("Advertisement received",
		zap.String("location", location),
		zap.String("usn", usn),
		zap.String("remote_addr", remote),
	)
}

// LogPortAllocated logs a port handed out by the allocator.
// requested is the explicit port asked for, or 0 for an ephemeral port.
func LogPortAllocated(port, requested int) {
	Debug("Port allocated",
		zap.Int("port", port),
		zap.Int("requested", requested),
		zap.Bool("ephemeral", requested == 0),
	)
}

// LogDeviceDelivered logs a device surfaced to subscribers
func LogDeviceDelivered(name, host, reason string) {
	Info("Device delivered",
		zap.String("name", name),
		zap.String("host", host),
		zap.String("reason", reason),
	)
}

// LogConnection logs an event stream connection event
func LogConnection(clientID, remoteAddr, event string) {
	Info("Event stream connection",
		zap.String("client", clientID),
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogHeaders logs a raw header mapping at debug level with stable key order
func LogHeaders(label string, headers map[string]string) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+headers[k])
	}

	Debug(label,
		zap.Int("count", len(headers)),
		zap.Strings("headers", pairs),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
