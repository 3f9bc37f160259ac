// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Loggers log events.

package hemi

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger
type Logger interface {
	Logf(f string, v ...any)
	Warnf(f string, v ...any)
	Close()
}

// LogConfig
type LogConfig struct {
	Target string // "stderr", "stdout", "/path/to/file.log", ...
	Level  string // "debug", "info", "warn", "error"
}

var errUnknownLogger = errors.New("unknown logger")

var (
	loggersLock    sync.RWMutex
	loggerCreators = make(map[string]func(config *LogConfig) (Logger, error)) // indexed by loggerSign
)

func RegisterLogger(loggerSign string, create func(config *LogConfig) (Logger, error)) {
	loggersLock.Lock()
	defer loggersLock.Unlock()

	if _, ok := loggerCreators[loggerSign]; ok {
		BugExitln("logger conflicts")
	}
	loggerCreators[loggerSign] = create
}
func CreateLogger(loggerSign string, config *LogConfig) (Logger, error) {
	loggersLock.RLock()
	create := loggerCreators[loggerSign]
	loggersLock.RUnlock()

	if create == nil {
		return nil, errUnknownLogger
	}
	return create(config)
}

func init() {
	RegisterLogger("noop", func(config *LogConfig) (Logger, error) {
		return noopLogger{}, nil
	})
	RegisterLogger("zap", func(config *LogConfig) (Logger, error) {
		return newZapLogger(config)
	})
}

// noopLogger
type noopLogger struct{}

func (noopLogger) Logf(f string, v ...any)  {}
func (noopLogger) Warnf(f string, v ...any) {}
func (noopLogger) Close()                   {}

// zapLogger
type zapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

func newZapLogger(config *LogConfig) (*zapLogger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	if config != nil {
		if config.Target != "" {
			zc.OutputPaths = []string{config.Target}
		}
		if config.Level != "" {
			level, err := zapcore.ParseLevel(config.Level)
			if err != nil {
				return nil, err
			}
			zc.Level = zap.NewAtomicLevelAt(level)
		}
	}
	base, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return newZapLoggerFrom(base), nil
}
func newZapLoggerFrom(base *zap.Logger) *zapLogger {
	return &zapLogger{base: base, sugar: base.Sugar()}
}

func (l *zapLogger) Logf(f string, v ...any)  { l.sugar.Infof(f, v...) }
func (l *zapLogger) Warnf(f string, v ...any) { l.sugar.Warnf(f, v...) }
func (l *zapLogger) Close()                   { l.base.Sync() }

// Zap exposes the structured logger for callers that want typed fields.
func (l *zapLogger) Zap() *zap.Logger { return l.base }
