package testutil

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func level(debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// NewSimpleLogger development logger to the console with short timestamps
func NewSimpleLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("04:05.000")
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	log = log.WithOptions(zap.IncreaseLevel(level(debug)), zap.AddStacktrace(zapcore.FatalLevel))
	return log.Sugar()
}

// NewObservedLogger logger which keeps entries in memory for inspection by tests
func NewObservedLogger(debug bool) (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level(debug))
	return zap.New(core).Sugar(), logs
}
