package main

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// newLogger builds a console logger in dev mode and a JSON logger on
// stdout otherwise. An empty level means debug in dev mode, info elsewhere.
func newLogger(cfg logConfig) (*zap.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
		if cfg.Dev {
			level = "debug"
		}
	}
	lvl := levelFromString(level)

	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
