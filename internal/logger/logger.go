package logger

import (
	"coincheck-trade-bot-go/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new zap.Logger instance based on the provided configuration.
// The "json" format selects the production encoder, anything else the development one.
func NewLogger(cfg config.Logger) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc.Level = zap.NewAtomicLevelAt(logLevel)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build()
}

// ForBot returns a child logger carrying the bot identity on every entry.
func ForBot(l *zap.Logger, botName, pair, runID string) *zap.Logger {
	return l.With(
		zap.String("bot", botName),
		zap.String("pair", pair),
		zap.String("run_id", runID),
	)
}
