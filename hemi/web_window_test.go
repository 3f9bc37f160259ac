// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Unit tests.

package hemi

import (
	"testing"
)

func fillWindow(w *window, s string) {
	w.lim += int32(copy(w.tail(), s))
}

func TestWindowCompact(t *testing.T) {
	var stock [8]byte
	var w window
	w.init(stock[:])
	fillWindow(&w, "abcdefgh")
	w.pos = 2
	w.setMark()
	w.pos = 5
	shift, ok := w.grow(100)
	if !ok || shift != 2 {
		t.Fatalf("grow()=(%d, %v), want (2, true)", shift, ok)
	}
	if w.mark != 0 || w.pos != 3 || w.lim != 6 {
		t.Errorf("mark=%d pos=%d lim=%d", w.mark, w.pos, w.lim)
	}
	if string(w.buffer[w.mark:w.lim]) != "cdefgh" {
		t.Errorf("kept=%q", w.buffer[w.mark:w.lim])
	}
	if w.pooled {
		t.Error("compaction must not allocate")
	}
}

func TestWindowGrow(t *testing.T) {
	var stock [8]byte
	var w window
	w.init(stock[:])
	fillWindow(&w, "abcdefgh")
	w.setMark()
	w.pos = 8
	if _, ok := w.grow(8); ok {
		t.Fatal("grow() beyond max size")
	}
	shift, ok := w.grow(_4K)
	if !ok || shift != 0 {
		t.Fatalf("grow()=(%d, %v)", shift, ok)
	}
	if len(w.buffer) != _4K || !w.pooled {
		t.Errorf("len(buffer)=%d pooled=%v", len(w.buffer), w.pooled)
	}
	if string(w.unread()) != "" || string(w.buffer[:w.lim]) != "abcdefgh" {
		t.Errorf("buffer=%q", w.buffer[:w.lim])
	}
	if w.space() != _4K-8 {
		t.Errorf("space=%d", w.space())
	}
	w.reset()
	if len(w.buffer) != 8 || w.pooled || w.lim != 0 || w.mark != -1 {
		t.Error("reset() must return to stock")
	}
}

func TestWindowNoMark(t *testing.T) {
	var stock [4]byte
	var w window
	w.init(stock[:])
	fillWindow(&w, "abcd")
	w.pos = 4
	shift, ok := w.grow(4)
	if !ok || shift != 4 || w.lim != 0 || w.pos != 0 {
		t.Errorf("grow()=(%d, %v) lim=%d pos=%d", shift, ok, w.lim, w.pos)
	}
}

func TestWindowEnsureSpace(t *testing.T) {
	var stock [16]byte
	var w window
	w.init(stock[:])
	fillWindow(&w, "0123456789")
	w.ensureSpace(100)
	if w.space() < 100 {
		t.Fatalf("space=%d", w.space())
	}
	if string(w.buffer[:w.lim]) != "0123456789" {
		t.Errorf("buffer=%q", w.buffer[:w.lim])
	}
	w.ensureSpace(_64K1)
	if w.space() < _64K1 {
		t.Fatalf("space=%d", w.space())
	}
	if string(w.buffer[:w.lim]) != "0123456789" {
		t.Errorf("buffer=%q", w.buffer[:w.lim])
	}
	w.reset()
}
