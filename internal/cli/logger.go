package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"faculty-quiz-service/internal/config"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Log.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
