package ui

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevels are the values accepted by --loglevel.
var LogLevels = []string{"debug", "info", "warning", "error", "critical"}

// ParseLogLevel maps a --loglevel value onto a zap level.
func ParseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warning", "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	case "critical":
		return zap.DPanicLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("invalid log level %q (want one of %s)", level, strings.Join(LogLevels, ", "))
	}
}

// NewLogger builds a console logger on stderr at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.TimeKey = ""
	if lvl > zap.DebugLevel {
		encoderCfg.CallerKey = ""
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core, zap.AddCaller()), nil
}
