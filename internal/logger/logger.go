package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger configured based on environment variables.
// LOG_ENV, or APP_ENV when LOG_ENV is unset, selects the profile: "production"
// returns a production logger; anything else a development logger. LOG_LEVEL overrides the
// default level of either profile (debug, info, warn, error).
func New() (*zap.Logger, error) {
	env := os.Getenv("LOG_ENV")
	if env == "" {
		env = os.Getenv("APP_ENV")
	}

	if env == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.Level = zap.NewAtomicLevelAt(levelOr(zapcore.InfoLevel))
		return cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(levelOr(zapcore.DebugLevel))
	return cfg.Build(zap.AddCaller())
}

// levelOr resolves LOG_LEVEL, falling back to the profile default. The
// migrator and migration CLIs use this to quiet the dev profile without
// switching to the production encoder.
func levelOr(fallback zapcore.Level) zapcore.Level {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return fallback
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}

// Named returns a component-scoped child of l, tolerating a nil parent so
// constructors can be called without wiring a logger in tests.
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(name)
}
