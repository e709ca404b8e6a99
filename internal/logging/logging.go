// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *zap.SugaredLogger

// Configure builds the process logger at the given level. Unknown levels
// fall back to info.
func Configure(level string) {
	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		parsedLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsedLevel)
	config.DisableStacktrace = true

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	globalLogger = logger.Sugar()
}

// GetLogger returns the process logger, configuring defaults if needed.
func GetLogger() *zap.SugaredLogger {
	if globalLogger == nil {
		Configure("info")
	}

	return globalLogger
}

// BadgerLogger adapts the process logger to the interface badger expects.
type BadgerLogger struct {
	*zap.SugaredLogger
}

// NewBadgerLogger wraps the process logger for badger.
func NewBadgerLogger() *BadgerLogger {
	return &BadgerLogger{SugaredLogger: GetLogger()}
}

// Warningf forwards badger warnings to the process logger.
func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.Warnf(msg, args...)
}
