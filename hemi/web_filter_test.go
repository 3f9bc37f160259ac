// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Unit tests.

package hemi

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// scriptStage is an inputStage producing scripted pieces.
type scriptStage struct {
	pieces [][]byte
	last   []byte
	back   int // bytes of last given back
}

func newScriptStage(pieces ...string) *scriptStage {
	s := new(scriptStage)
	for _, piece := range pieces {
		s.pieces = append(s.pieces, []byte(piece))
	}
	return s
}
func bytewise(s string) []string {
	pieces := make([]string, len(s))
	for i := range s {
		pieces[i] = s[i : i+1]
	}
	return pieces
}

func (s *scriptStage) fetch() ([]byte, error) {
	if s.back > 0 {
		s.last = s.last[len(s.last)-s.back:]
		s.back = 0
		return s.last, nil
	}
	if len(s.pieces) == 0 {
		return nil, io.EOF
	}
	s.last = s.pieces[0]
	s.pieces = s.pieces[1:]
	return s.last, nil
}
func (s *scriptStage) unread(n int) { s.back += n }

// rest returns bytes never consumed.
func (s *scriptStage) rest() string {
	var b strings.Builder
	if s.back > 0 {
		b.Write(s.last[len(s.last)-s.back:])
	}
	for _, piece := range s.pieces {
		b.Write(piece)
	}
	return b.String()
}

func drainStage(stage inputStage) (string, error) {
	var b strings.Builder
	for {
		p, err := stage.fetch()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.Write(p)
	}
}

// recordStage is an outputStage recording bytes.
type recordStage struct {
	bytes.Buffer
	flushes int
	ended   bool
}

func (s *recordStage) write(p []byte) (int, error) { return s.Buffer.Write(p) }
func (s *recordStage) flush() error                { s.flushes++; return nil }
func (s *recordStage) end() error                  { s.ended = true; return nil }

func TestIdentityInputFilter(t *testing.T) {
	prev := newScriptStage("hel", "lo world")
	f := &identityInputFilter{maxSwallowSize: -1}
	f.setPrev(prev)
	f.setLength(5)
	data, err := drainStage(f)
	if err != nil || data != "hello" {
		t.Fatalf("drain=(%q, %v)", data, err)
	}
	if rest := prev.rest(); rest != " world" {
		t.Errorf("rest=%q", rest)
	}
	if !f.isFinished() {
		t.Error("isFinished()")
	}
}

func TestIdentityInputFilterEndOfStream(t *testing.T) {
	f := &identityInputFilter{maxSwallowSize: -1}
	f.setPrev(newScriptStage("abc"))
	f.setLength(10)
	if _, err := drainStage(f); err != errEndOfStream {
		t.Errorf("err=%v, want errEndOfStream", err)
	}
}

func TestIdentityInputFilterFinish(t *testing.T) {
	f := &identityInputFilter{maxSwallowSize: 4}
	f.setPrev(newScriptStage("0123456789"))
	f.setLength(10)
	if err := f.finish(); err != errSwallowTooLarge {
		t.Errorf("finish()=%v, want errSwallowTooLarge", err)
	}
	prev := newScriptStage("01234", "56789", "next")
	f.recycle()
	f.maxSwallowSize = -1
	f.setPrev(prev)
	f.setLength(10)
	if err := f.finish(); err != nil || !f.isFinished() {
		t.Fatalf("finish()=%v", err)
	}
	if rest := prev.rest(); rest != "next" {
		t.Errorf("rest=%q", rest)
	}
}

func TestIdentityInputFilterUnread(t *testing.T) {
	prev := newScriptStage("abcdef")
	f := &identityInputFilter{maxSwallowSize: -1}
	f.setPrev(prev)
	f.setLength(6)
	p, _ := f.fetch()
	if string(p) != "abcdef" {
		t.Fatalf("fetch()=%q", p)
	}
	f.unread(2)
	if f.remaining != 2 {
		t.Errorf("remaining=%d", f.remaining)
	}
	if data, err := drainStage(f); err != nil || data != "ef" {
		t.Errorf("drain=(%q, %v)", data, err)
	}
}

func newChunkedInputFilter(prev inputStage) *chunkedInputFilter {
	f := &chunkedInputFilter{maxExtensionSize: 64, maxTrailerSize: 64, maxSwallowSize: -1}
	f.setPrev(prev)
	return f
}

func TestChunkedInputFilter(t *testing.T) {
	const message = "5;name=value\r\nhello\r\n6\r\n world\r\n0\r\nX-Check: abc \r\n\r\nGET / HTTP/1.1\r\n"
	for _, pieces := range [][]string{{message}, bytewise(message)} {
		prev := newScriptStage(pieces...)
		f := newChunkedInputFilter(prev)
		data, err := drainStage(f)
		if err != nil || data != "hello world" {
			t.Fatalf("drain=(%q, %v)", data, err)
		}
		if value, ok := f.trailer("x-check"); !ok || string(value) != "abc" {
			t.Errorf("trailer=(%q, %v)", value, ok)
		}
		if rest := prev.rest(); rest != "GET / HTTP/1.1\r\n" {
			t.Errorf("rest=%q", rest)
		}
	}
}

func TestChunkedInputFilterBareLF(t *testing.T) {
	f := newChunkedInputFilter(newScriptStage("3\nabc\n0\n\n"))
	if data, err := drainStage(f); err != nil || data != "abc" {
		t.Errorf("drain=(%q, %v)", data, err)
	}
}

func TestChunkedInputFilterErrors(t *testing.T) {
	tests := []struct {
		message string
		err     error
		status  int16 // 0 for errors that are not http errors
	}{
		{"zz\r\n", errBadChunk, StatusBadRequest},
		{"\r\n", errBadChunk, StatusBadRequest},
		{"3\r\nabcX", errBadChunk, StatusBadRequest},
		{"3\rX", errBadChunk, StatusBadRequest},
		{"11111111111111111\r\n", errBadChunk, StatusBadRequest},
		{"3;" + strings.Repeat("e", 100) + "\r\n", errExtensionTooLarge, StatusContentTooLarge},
		{"0\r\n" + strings.Repeat("x", 100) + "\r\n\r\n", errTrailersTooLarge, StatusRequestHeaderFieldsTooLarge},
		{"0\r\nbad trailer\r\n\r\n", errBadTrailer, StatusBadRequest},
		{"0\r\n: value\r\n\r\n", errBadTrailer, StatusBadRequest},
		{"3\r\nab", errEndOfStream, 0},
	}
	for i, test := range tests {
		f := newChunkedInputFilter(newScriptStage(test.message))
		_, err := drainStage(f)
		if err != test.err {
			t.Errorf("#%d: err=%v, want %v", i, err, test.err)
			continue
		}
		var status int16
		if he, ok := err.(*httpError); ok {
			status = he.status
		}
		if status != test.status {
			t.Errorf("#%d: status=%d, want %d", i, status, test.status)
		}
	}
}

func TestChunkedInputFilterFinish(t *testing.T) {
	prev := newScriptStage("4\r\nabcd\r\n0\r\n\r\nnext")
	f := newChunkedInputFilter(prev)
	f.maxSwallowSize = 2
	if err := f.finish(); err != errSwallowTooLarge {
		t.Errorf("finish()=%v, want errSwallowTooLarge", err)
	}
	prev = newScriptStage("4\r\nabcd\r\n0\r\n\r\nnext")
	f = newChunkedInputFilter(prev)
	if err := f.finish(); err != nil || !f.isFinished() {
		t.Fatalf("finish()=%v", err)
	}
	if rest := prev.rest(); rest != "next" {
		t.Errorf("rest=%q", rest)
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 100, 5000, _64K1 + 7} {
		content := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
		record := new(recordStage)
		out := new(chunkedOutputFilter)
		out.setNext(record)
		for p := content; len(p) > 0; {
			n := 1000
			if n > len(p) {
				n = len(p)
			}
			out.write(p[:n])
			p = p[n:]
		}
		out.trailers = func(p []byte) []byte { return append(p, "x-sum: 1\r\n"...) }
		if err := out.end(); err != nil || !record.ended {
			t.Fatalf("end()=%v", err)
		}
		encoded := record.String()
		prev := newScriptStage(encoded)
		in := newChunkedInputFilter(prev)
		decoded, err := drainStage(in)
		if err != nil || decoded != string(content) {
			t.Fatalf("size %d: decoded %d bytes, err=%v", size, len(decoded), err)
		}
		if value, ok := in.trailer("x-sum"); !ok || string(value) != "1" {
			t.Errorf("size %d: trailer=(%q, %v)", size, value, ok)
		}
	}
}

func TestVoidInputFilter(t *testing.T) {
	f := new(voidInputFilter)
	if p, err := f.fetch(); p != nil || err != io.EOF {
		t.Errorf("fetch()=(%q, %v)", p, err)
	}
	if !f.isFinished() {
		t.Error("isFinished()")
	}
}

func TestBufferedInputFilter(t *testing.T) {
	prev := newScriptStage("hel", "lo", "next")
	identity := &identityInputFilter{maxSwallowSize: -1}
	identity.setPrev(prev)
	identity.setLength(5)
	f := &bufferedInputFilter{limit: 16}
	f.setPrev(identity)
	if err := f.fill(); err != nil {
		t.Fatalf("fill()=%v", err)
	}
	if rest := prev.rest(); rest != "next" {
		t.Errorf("rest=%q", rest)
	}
	p, err := f.fetch()
	if err != nil || string(p) != "hello" {
		t.Fatalf("fetch()=(%q, %v)", p, err)
	}
	f.unread(2)
	if data, err := drainStage(f); err != nil || data != "lo" {
		t.Errorf("drain=(%q, %v)", data, err)
	}
	f.recycle()

	identity.recycle()
	identity.setPrev(newScriptStage("0123456789"))
	identity.setLength(10)
	f.limit = 4
	f.setPrev(identity)
	if err := f.fill(); err != errSaveTooLarge {
		t.Errorf("fill()=%v, want errSaveTooLarge", err)
	}
	f.recycle()
}

func TestIdentityOutputFilter(t *testing.T) {
	record := new(recordStage)
	f := new(identityOutputFilter)
	f.setNext(record)
	f.setLength(3)
	if n, err := f.write([]byte("hello")); n != 5 || err != nil {
		t.Errorf("write()=(%d, %v)", n, err)
	}
	f.write([]byte("more"))
	if record.String() != "hel" {
		t.Errorf("written=%q", record.String())
	}
	f.recycle()
	f.setNext(record)
	record.Reset()
	f.write([]byte("until close"))
	if record.String() != "until close" {
		t.Errorf("written=%q", record.String())
	}
}

func TestChunkedOutputFilter(t *testing.T) {
	record := new(recordStage)
	f := new(chunkedOutputFilter)
	f.setNext(record)
	f.write([]byte("hello"))
	f.write(nil)
	f.write([]byte(strings.Repeat("x", 26)))
	f.end()
	want := "5\r\nhello\r\n1a\r\n" + strings.Repeat("x", 26) + "\r\n0\r\n\r\n"
	if record.String() != want {
		t.Errorf("written=%q, want %q", record.String(), want)
	}
}

func TestGzipOutputFilter(t *testing.T) {
	for _, content := range []string{"", "hello, hello, hello, hello"} {
		record := new(recordStage)
		f := &gzipOutputFilter{level: gzip.BestSpeed}
		f.setNext(record)
		if content != "" {
			f.write([]byte(content))
		}
		if err := f.end(); err != nil {
			t.Fatalf("end()=%v", err)
		}
		f.recycle()
		reader, err := gzip.NewReader(bytes.NewReader(record.Bytes()))
		if err != nil {
			t.Fatalf("gzip.NewReader()=%v", err)
		}
		decoded, err := io.ReadAll(reader)
		if err != nil || string(decoded) != content {
			t.Errorf("decoded=(%q, %v)", decoded, err)
		}
	}
}

func TestSocketStage(t *testing.T) {
	transport := newTestTransport()
	var s socketStage
	s.onUse(transport, 4)
	defer s.onEnd()
	s.write([]byte("ab"))
	if transport.out.Len() != 0 {
		t.Fatal("small writes must be coalesced")
	}
	s.write([]byte("cdefgh"))
	if transport.out.String() != "abcdefgh" || s.hasPending() {
		t.Fatalf("out=%q pending=%v", transport.out.String(), s.hasPending())
	}
	if s.written != 8 {
		t.Errorf("written=%d", s.written)
	}

	transport.writeLimit = 3
	s.write([]byte("0123456789"))
	if !s.hasPending() || transport.interests != 1 {
		t.Fatalf("pending=%v interests=%d", s.hasPending(), transport.interests)
	}
	for i := 0; s.hasPending() && i < 10; i++ {
		s.flush()
	}
	if transport.out.String() != "abcdefgh0123456789" {
		t.Errorf("out=%q", transport.out.String())
	}
}
