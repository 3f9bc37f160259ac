// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Unit tests for common elements.

package hemi

import (
	"bytes"
	"strconv"
	"testing"
)

func TestSpan(t *testing.T) {
	var s span
	s.set(3, 7)
	if s.from != 3 || s.edge != 7 {
		t.Errorf("span=%v", s)
	}
}

func TestDecToI64(t *testing.T) {
	tests := []struct {
		dec string
		i64 int64
		ok  bool
	}{
		{"0", 0, true},
		{"123", 123, true},
		{"9223372036854775807", 9223372036854775807, true},
		{"9223372036854775808", 0, false},
		{"", 0, false},
		{"12a", 0, false},
		{"-1", 0, false},
		{"12345678901234567890", 0, false},
	}
	for i, test := range tests {
		i64, ok := decToI64([]byte(test.dec))
		if ok != test.ok || (ok && i64 != test.i64) {
			t.Errorf("#%d: decToI64(%q)=(%d, %v), want (%d, %v)", i, test.dec, i64, ok, test.i64, test.ok)
		}
	}
}

func TestI64ToDecHex(t *testing.T) {
	var buf [20]byte
	for _, i64 := range []int64{0, 7, 10, 4096, 65535, 9223372036854775807} {
		n := i64ToDec(i64, buf[:])
		if back, ok := decToI64(buf[:n]); !ok || back != i64 {
			t.Errorf("i64ToDec(%d)=%q", i64, buf[:n])
		}
		n = i64ToHex(i64, buf[:])
		if back, err := strconv.ParseInt(string(buf[:n]), 16, 64); err != nil || back != i64 {
			t.Errorf("i64ToHex(%d)=%q", i64, buf[:n])
		}
	}
	n := i64ToHex(0x1a2b, buf[:])
	if string(buf[:n]) != "1a2b" {
		t.Errorf("i64ToHex(0x1a2b)=%q", buf[:n])
	}
}

func TestHashes(t *testing.T) {
	names := []string{"accept-encoding", "connection", "content-length", "expect", "host", "transfer-encoding", "upgrade", "user-agent"}
	hashes := []uint16{hashAcceptEncoding, hashConnection, hashContentLength, hashExpect, hashHost, hashTransferEncoding, hashUpgrade, hashUserAgent}
	for i, name := range names {
		if h := bytesHash([]byte(name)); h != hashes[i] {
			t.Errorf("bytesHash(%s)=%d, want %d", name, h, hashes[i])
		}
		if h := stringHash(name); h != hashes[i] {
			t.Errorf("stringHash(%s)=%d, want %d", name, h, hashes[i])
		}
	}
	if stringHash("Content-Length") != bytesHash([]byte("content-length")) {
		t.Error("stringHash is not case insensitive")
	}
}

func TestBytesLower(t *testing.T) {
	p := []byte("Content-TYPE")
	bytesToLower(p)
	if !bytes.Equal(p, []byte("content-type")) {
		t.Errorf("bytesToLower=%s", p)
	}
	if !bytesEqualLower(p, "Content-Type") {
		t.Error("bytesEqualLower")
	}
	if bytesEqualLower(p, "content-typ") {
		t.Error("bytesEqualLower with different lengths")
	}
}

func TestGetNK(t *testing.T) {
	tests := []struct {
		n    int64
		size int
	}{
		{1, _4K},
		{_4K, _4K},
		{_4K + 1, _16K},
		{_64K1, _64K1},
		{_64K1 + 1, _64K1 + 1},
	}
	for i, test := range tests {
		p := GetNK(test.n)
		if len(p) != test.size {
			t.Errorf("#%d: len(GetNK(%d))=%d, want %d", i, test.n, len(p), test.size)
		}
		PutNK(p)
	}
}

func BenchmarkStringHash(b *testing.B) {
	s := "hello-world"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stringHash(s)
	}
}
func BenchmarkBytesHash(b *testing.B) {
	p := []byte("hello-world")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bytesHash(p)
	}
}
