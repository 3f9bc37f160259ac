// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Basic elements shared by the protocol engine and its gates.

package hemi

import (
	"fmt"
	"os"
	"sync/atomic"
)

const Version = "0.3.0"

var (
	_debugLevel atomic.Int32
	_logger     atomic.Value // holds a loggerBox, the default logger used when a component has none
)

type loggerBox struct{ Logger }

func DebugLevel() int32         { return _debugLevel.Load() }
func SetDebugLevel(level int32) { _debugLevel.Store(level) }

func DefaultLogger() Logger {
	if box, ok := _logger.Load().(loggerBox); ok && box.Logger != nil {
		return box.Logger
	}
	return noopLogger{}
}
func SetDefaultLogger(logger Logger) { _logger.Store(loggerBox{logger}) }

const ( // exit codes
	CodeBug = 20
	CodeUse = 21
	CodeEnv = 22
)

func BugExitln(v ...any)          { _exitln(CodeBug, "[BUG] ", v...) }
func BugExitf(f string, v ...any) { _exitf(CodeBug, "[BUG] ", f, v...) }

func UseExitln(v ...any)          { _exitln(CodeUse, "[USE] ", v...) }
func UseExitf(f string, v ...any) { _exitf(CodeUse, "[USE] ", f, v...) }

func EnvExitln(v ...any)          { _exitln(CodeEnv, "[ENV] ", v...) }
func EnvExitf(f string, v ...any) { _exitf(CodeEnv, "[ENV] ", f, v...) }

func _exitln(exitCode int, prefix string, v ...any) {
	fmt.Fprint(os.Stderr, prefix)
	fmt.Fprintln(os.Stderr, v...)
	os.Exit(exitCode)
}
func _exitf(exitCode int, prefix, f string, v ...any) {
	fmt.Fprintf(os.Stderr, prefix+f, v...)
	os.Exit(exitCode)
}
