// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Unit tests.

package hemi

import (
	"strings"
	"testing"
	"time"
)

func newTestInput(transport Transport) (*http1Input, *Request) {
	in, req := new(http1Input), new(Request)
	req.onUse(nil, in)
	in.onUse(transport, req, noopLogger{})
	in.maxHeadSize = _1K
	in.rejectIllegalHeader = true
	in.keepAliveTimeout = 5 * time.Second
	in.connectionTimeout = 20 * time.Second
	return in, req
}

func parseHead(in *http1Input) (bool, error) {
	ok, err := in.parseRequestLine(false)
	if !ok || err != nil {
		return ok, err
	}
	return in.parseHeaders()
}

func TestParseRequest(t *testing.T) {
	in, req := newTestInput(newTestTransport("\r\nGET /index.html?x=1&y=2 HTTP/1.1\r\nHost: example.com\r\nAccept:  */* \r\nX-Empty:\r\nx-multi: a\r\nX-Multi: b\r\n\r\n"))
	ok, err := parseHead(in)
	if !ok || err != nil {
		t.Fatalf("parseHead()=(%v, %v)", ok, err)
	}
	if req.Method() != "GET" || req.URI() != "/index.html?x=1&y=2" || req.Protocol() != "HTTP/1.1" {
		t.Errorf("line=%q %q %q", req.Method(), req.URI(), req.Protocol())
	}
	if req.Path() != "/index.html" || req.QueryString() != "x=1&y=2" {
		t.Errorf("path=%q query=%q", req.Path(), req.QueryString())
	}
	if req.HeaderCount() != 5 {
		t.Errorf("HeaderCount()=%d", req.HeaderCount())
	}
	tests := []struct {
		name  string
		value string
	}{
		{"host", "example.com"},
		{"HOST", "example.com"},
		{"accept", "*/*"},
		{"x-empty", ""},
	}
	for i, test := range tests {
		if value, ok := req.Header(test.name); !ok || value != test.value {
			t.Errorf("#%d: Header(%s)=(%q, %v), want %q", i, test.name, value, ok, test.value)
		}
	}
	if values := req.Headers("X-Multi"); len(values) != 2 || values[0] != "a" || values[1] != "b" {
		t.Errorf("Headers(x-multi)=%q", values)
	}
	var names []string
	req.ForEachHeader(func(name []byte, value []byte) bool {
		names = append(names, string(name))
		return true
	})
	if strings.Join(names, ",") != "host,accept,x-empty,x-multi,x-multi" {
		t.Errorf("names=%q", names)
	}
}

func TestParseRequestBytewise(t *testing.T) {
	const head = "POST /upload HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\nX-Fold: first\r\n   second\r\n\r\n"
	transport := newTestTransport()
	transport.closeAtEnd = false
	in, req := newTestInput(transport)
	var ok bool
	var err error
	for i := 0; i < len(head); i++ {
		transport.feed(head[i : i+1])
		if ok, err = parseHead(in); err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if ok != (i == len(head)-1) {
			t.Fatalf("byte %d: ok=%v", i, ok)
		}
	}
	if req.Method() != "POST" || req.URI() != "/upload" {
		t.Errorf("line=%q %q", req.Method(), req.URI())
	}
	if value, _ := req.Header("x-fold"); value != "first second" {
		t.Errorf("x-fold=%q", value)
	}
	if value, _ := req.Header("content-length"); value != "3" {
		t.Errorf("content-length=%q", value)
	}
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		head   string
		status int16
	}{
		{"GET\r\n\r\n", StatusBadRequest},
		{" GET / HTTP/1.1\r\n\r\n", StatusBadRequest},
		{"G@T / HTTP/1.1\r\n\r\n", StatusBadRequest},
		{"GET /a\x01b HTTP/1.1\r\n\r\n", StatusBadRequest},
		{"GET / HTTP/1.1\rX", StatusBadRequest},
		{"GET / HTTP/1\x001\r\n\r\n", StatusBadRequest},
		{"GET / HTTP/1.1\r\nHost : h\r\n\r\n", StatusBadRequest},
		{"GET / HTTP/1.1\r\n: h\r\n\r\n", StatusBadRequest},
		{"GET / HTTP/1.1\r\nX: a\x01b\r\n\r\n", StatusBadRequest},
		{"GET / HTTP/1.1\r\nX: a\rb\r\n\r\n", StatusBadRequest},
		{"GET / HTTP/1.1\r\nX: a\r\n\rX", StatusBadRequest},
		{"GET /" + strings.Repeat("a", 2000) + " HTTP/1.1\r\n\r\n", StatusURITooLong},
		{"GET /" + strings.Repeat("a", 1020) + " HTTP/1.1\r\n\r\n", StatusURITooLong},
		{"GET / HTTP/1.1\r\nX: " + strings.Repeat("a", 1010) + "\r\n\r\n", StatusRequestHeaderFieldsTooLarge},
		{"GET / HTTP/1.1\r\nX: " + strings.Repeat("a", 3000) + "\r\n\r\n", StatusRequestHeaderFieldsTooLarge},
	}
	for i, test := range tests {
		in, _ := newTestInput(newTestTransport(test.head))
		_, err := parseHead(in)
		he, ok := err.(*httpError)
		if !ok || he.status != test.status {
			t.Errorf("#%d: err=%v, want %d", i, err, test.status)
		}
	}
}

func TestParseRequestLenient(t *testing.T) {
	const head = "GET / HTTP/1.1\r\nBad Header: x\r\nHost: h\r\nX@Y: z\r\n\r\n"
	in, req := newTestInput(newTestTransport(head))
	in.rejectIllegalHeader = false
	ok, err := parseHead(in)
	if !ok || err != nil {
		t.Fatalf("parseHead()=(%v, %v)", ok, err)
	}
	if in.illegalLines != 2 || req.HeaderCount() != 1 {
		t.Errorf("illegalLines=%d headers=%d", in.illegalLines, req.HeaderCount())
	}
	if host, _ := req.Header("host"); host != "h" {
		t.Errorf("host=%q", host)
	}

	in, _ = newTestInput(newTestTransport(head))
	if _, err := parseHead(in); err == nil {
		t.Error("illegal header accepted in strict mode")
	}
}

func TestParseRequestHTTP09(t *testing.T) {
	in, req := newTestInput(newTestTransport("GET /old\r\n"))
	ok, err := in.parseRequestLine(false)
	if !ok || err != nil {
		t.Fatalf("parseRequestLine()=(%v, %v)", ok, err)
	}
	if req.URI() != "/old" || len(req.UnsafeProtocol()) != 0 {
		t.Errorf("uri=%q protocol=%q", req.URI(), req.Protocol())
	}
	in.skipHeaders()
	if ok, err := in.parseHeaders(); !ok || err != nil {
		t.Errorf("parseHeaders() after skipHeaders()=(%v, %v)", ok, err)
	}
}

func TestParseRequestPreface(t *testing.T) {
	in, _ := newTestInput(newTestTransport(string(bytesHTTP2Preface)))
	if _, err := in.parseRequestLine(false); err != errHTTP2Preface {
		t.Errorf("err=%v, want errHTTP2Preface", err)
	}

	transport := newTestTransport()
	transport.closeAtEnd = false
	in, _ = newTestInput(transport)
	for i := 0; i < len(bytesHTTP2Preface)-1; i++ {
		transport.feed(string(bytesHTTP2Preface[i : i+1]))
		if ok, err := in.parseRequestLine(false); ok || err != nil {
			t.Fatalf("byte %d: (%v, %v)", i, ok, err)
		}
	}
	transport.feed(string(bytesHTTP2Preface[len(bytesHTTP2Preface)-1:]))
	if _, err := in.parseRequestLine(false); err != errHTTP2Preface {
		t.Errorf("err=%v, want errHTTP2Preface", err)
	}

	in, req := newTestInput(newTestTransport("PRIX / HTTP/1.1\r\n"))
	if ok, err := in.parseRequestLine(false); !ok || err != nil || req.Method() != "PRIX" {
		t.Errorf("parseRequestLine()=(%v, %v) method=%q", ok, err, req.Method())
	}
}

func TestParseRequestPipelined(t *testing.T) {
	in, req := newTestInput(newTestTransport("GET /a HTTP/1.1\r\nHost: h\r\n\r\nGET /b HTTP/1.1\r\nHost: h\r\n\r\n"))
	if ok, err := parseHead(in); !ok || err != nil || req.URI() != "/a" {
		t.Fatalf("first=(%v, %v) %q", ok, err, req.URI())
	}
	req.nextRequest()
	in.nextRequest()
	if !in.started {
		t.Error("pipelined bytes must mark the next request as started")
	}
	if ok, err := parseHead(in); !ok || err != nil || req.URI() != "/b" {
		t.Fatalf("second=(%v, %v) %q", ok, err, req.URI())
	}
	if req.HeaderCount() != 1 {
		t.Errorf("HeaderCount()=%d", req.HeaderCount())
	}
}

func TestParseRequestTimeouts(t *testing.T) {
	transport := newTestTransport()
	transport.closeAtEnd = false
	in, _ := newTestInput(transport)
	in.parseRequestLine(true)
	transport.feed("GET / HTTP/1.1\r\n")
	in.parseRequestLine(true)
	want := []time.Duration{5 * time.Second, 20 * time.Second}
	if len(transport.readTimeouts) != 2 || transport.readTimeouts[0] != want[0] || transport.readTimeouts[1] != want[1] {
		t.Errorf("readTimeouts=%v, want %v", transport.readTimeouts, want)
	}
}

func TestInputBody(t *testing.T) {
	transport := newTestTransport("POST / HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello", " world", "GET")
	in, _ := newTestInput(transport)
	if ok, err := parseHead(in); !ok || err != nil {
		t.Fatalf("parseHead()=(%v, %v)", ok, err)
	}
	in.addActiveFilter(filterIdentity).(*identityInputFilter).setLength(11)
	var body []byte
	p := make([]byte, 4)
	for {
		n, err := in.read(p)
		body = append(body, p[:n]...)
		if err != nil {
			break
		}
	}
	if string(body) != "hello world" {
		t.Errorf("body=%q", body)
	}
	if !in.isFinished() {
		t.Error("isFinished()")
	}
	in.nextRequest()
	if string(in.leftover()) != "GET" {
		t.Errorf("leftover=%q", in.leftover())
	}
}
