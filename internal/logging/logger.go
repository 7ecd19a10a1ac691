package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

const (
	// FormatJSON emits production JSON lines (document server).
	FormatJSON Format = "json"
	// FormatConsole emits human-readable lines on stderr (CLI commands).
	FormatConsole Format = "console"
)

// NewLogger returns a zap logger configured for structured logging at the given level.
func NewLogger(level string, format Format) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if format == FormatConsole {
		cfg.Encoding = string(FormatConsole)
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	return cfg.Build()
}

// ParseLevel maps a configured level name onto a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
