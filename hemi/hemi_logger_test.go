// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Unit tests.

package hemi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCreateLogger(t *testing.T) {
	for _, sign := range []string{"noop", "zap"} {
		logger, err := CreateLogger(sign, &LogConfig{Target: "stderr", Level: "info"})
		if err != nil {
			t.Fatalf("CreateLogger(%s)=%v", sign, err)
		}
		logger.Close()
	}
	if _, err := CreateLogger("syslog", nil); err != errUnknownLogger {
		t.Errorf("CreateLogger(syslog)=%v", err)
	}
	logger, err := CreateLogger("noop", nil)
	if err != nil {
		t.Fatal(err)
	}
	logger.Logf("dropped %d", 1)
	logger.Close()

	if _, err := CreateLogger("zap", &LogConfig{Level: "loud"}); err == nil {
		t.Error("bad level accepted")
	}
}

func TestZapLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotline.log")
	logger, err := CreateLogger("zap", &LogConfig{Target: path, Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Logf("conn=%d below level", 1)
	logger.Warnf("conn=%d kept", 2)
	logger.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if text := string(data); strings.Contains(text, "below level") || !strings.Contains(text, "conn=2 kept") {
		t.Errorf("log=%q", text)
	}
}

func TestZapLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := newZapLoggerFrom(zap.New(core))
	logger.Logf("served %s", "/a")
	logger.Warnf("failed %s", "/b")
	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("%d entries", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "served /a" {
		t.Errorf("entries[0]=%v %q", entries[0].Level, entries[0].Message)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].Message != "failed /b" {
		t.Errorf("entries[1]=%v %q", entries[1].Level, entries[1].Message)
	}
	if logger.Zap() == nil {
		t.Error("Zap()")
	}
}

func TestDefaultLogger(t *testing.T) {
	old := DefaultLogger()
	defer SetDefaultLogger(old)
	core, logs := observer.New(zapcore.InfoLevel)
	SetDefaultLogger(newZapLoggerFrom(zap.New(core)))
	p := NewHTTP1Protocol(nil)
	p.Logger().Logf("from protocol")
	if logs.FilterMessage("from protocol").Len() != 1 {
		t.Error("protocol does not use the default logger")
	}
}
