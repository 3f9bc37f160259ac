// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Unit tests.

package hemi

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		text string
		size int64
		ok   bool
	}{
		{"0", 0, true},
		{"9000", 9000, true},
		{"8K", 8 * K, true},
		{"8k", 8 * K, true},
		{"2M", 2 * M, true},
		{"1G", G, true},
		{"-1", -1, true},
		{"K", 0, false},
		{"1.5K", 0, false},
		{"ten", 0, false},
	}
	for i, test := range tests {
		size, err := parseSize(test.text)
		if (err == nil) != test.ok || size != test.size {
			t.Errorf("#%d: parseSize(%q)=(%d, %v)", i, test.text, size, err)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		text     string
		duration time.Duration
		ok       bool
	}{
		{"20", 20 * time.Second, true},
		{"20s", 20 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"1h30m", 90 * time.Minute, true},
		{"soon", 0, false},
	}
	for i, test := range tests {
		duration, err := parseDuration(test.text)
		if (err == nil) != test.ok || duration != test.duration {
			t.Errorf("#%d: parseDuration(%q)=(%v, %v)", i, test.text, duration, err)
		}
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		text string
		list []string
	}{
		{"", []string{}},
		{"text/html", []string{"text/html"}},
		{"text/html;text/css", []string{"text/html", "text/css"}},
		{" a , b;; c ,", []string{"a", "b", "c"}},
	}
	for i, test := range tests {
		if list, _ := parseList(test.text); !reflect.DeepEqual(list, test.list) {
			t.Errorf("#%d: parseList(%q)=%q", i, test.text, list)
		}
	}
}

func TestConfig(t *testing.T) {
	conf, err := LoadConfigText("[http1]\nMaxHeaderSize = 16K\nconnectionTimeout = 30\nserver = hotline \nallowedTrailerHeaders = X-Sum, X-Digest\nbadBool = maybe\nbadSize = 3X\n")
	if err != nil {
		t.Fatal(err)
	}
	c := NewConfig(conf, "http1")
	if c.Section() != "http1" {
		t.Errorf("Section()=%q", c.Section())
	}
	var size int32
	c.ConfigureInt32("maxHeaderSize", &size, nil, _8K)
	if size != 16*K {
		t.Errorf("maxHeaderSize=%d", size)
	}
	var timeout time.Duration
	c.ConfigureDuration("connectionTimeout", &timeout, nil, time.Second)
	if timeout != 30*time.Second {
		t.Errorf("connectionTimeout=%v", timeout)
	}
	var server string
	c.ConfigureString("server", &server, nil, "")
	if server != "hotline" {
		t.Errorf("server=%q", server)
	}
	var trailers []string
	c.ConfigureStringList("allowedTrailerHeaders", &trailers, nil, nil)
	if !reflect.DeepEqual(trailers, []string{"X-Sum", "X-Digest"}) {
		t.Errorf("allowedTrailerHeaders=%q", trailers)
	}
	var missing int64
	c.ConfigureInt64("missing", &missing, nil, 42)
	if missing != 42 {
		t.Errorf("missing=%d", missing)
	}
	if c.Err() != nil {
		t.Fatalf("Err()=%v", c.Err())
	}

	var flag bool
	c.ConfigureBool("badBool", &flag, true)
	if !flag || c.Err() == nil {
		t.Errorf("badBool=%v Err()=%v", flag, c.Err())
	}
	first := c.Err()
	var bad int64
	c.ConfigureInt64("badSize", &bad, nil, 7)
	if bad != 7 || c.Err() != first {
		t.Errorf("badSize=%d Err()=%v, want the first error kept", bad, c.Err())
	}
}

func TestConfigCheck(t *testing.T) {
	conf, _ := LoadConfigText("[gate]\nkind = udp\nmaxConns = -5\n")
	g := new(GateConfig)
	if err := g.Configure(NewConfig(conf, "gate")); err == nil {
		t.Error("bad gate config accepted")
	}
	if g.Kind != "tcp" || g.MaxConns != 0 || g.Address != ":8080" || g.WriteTimeout != time.Minute {
		t.Errorf("defaults not applied: %+v", g)
	}

	conf, _ = LoadConfigText("[gate]\nkind = gnet\naddress = 127.0.0.1:9000\ntlsCert = a.pem\n")
	if err := new(GateConfig).Configure(NewConfig(conf, "gate")); err == nil {
		t.Error("tlsCert without tlsKey accepted")
	}
}

func TestConfigNil(t *testing.T) {
	c := NewConfig(nil, "http1")
	var size int32
	c.ConfigureInt32("maxHeaderSize", &size, nil, _8K)
	if size != _8K || c.Err() != nil {
		t.Errorf("size=%d Err()=%v", size, c.Err())
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotline.conf")
	if err := os.WriteFile(path, []byte("[gate]\naddress = :9090\n\n[http1]\ncompression = on\n"), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	p := NewHTTP1Protocol(nil)
	if err := p.Configure(NewConfig(conf, "http1")); err != nil {
		t.Fatalf("Configure()=%v", err)
	}
	if p.compression != compressionOn {
		t.Errorf("compression=%d", p.compression)
	}
	g := new(GateConfig)
	if err := g.Configure(NewConfig(conf, "gate")); err != nil || g.Address != ":9090" {
		t.Errorf("address=%q err=%v", g.Address, err)
	}
}

func TestProtocolConfigure(t *testing.T) {
	conf, _ := LoadConfigText(`[http1]
maxHeaderSize = 4K
maxKeepAliveRequests = -1
connectionTimeout = 10s
compression = force
compressionLevel = 9
compressibleMimeTypes = Text/HTML; application/wasm
noCompressionUserAgents = ^curl/
continueResponseTiming = immediately
disableUploadTimeout = false
`)
	p := NewHTTP1Protocol(nil)
	if err := p.Configure(NewConfig(conf, "http1")); err != nil {
		t.Fatalf("Configure()=%v", err)
	}
	if p.maxHeaderSize != 4*K || p.maxKeepAliveRequests != -1 || p.gzipLevel != 9 {
		t.Errorf("maxHeaderSize=%d maxKeepAliveRequests=%d gzipLevel=%d", p.maxHeaderSize, p.maxKeepAliveRequests, p.gzipLevel)
	}
	if p.keepAliveTimeout != 10*time.Second {
		t.Errorf("keepAliveTimeout=%v, want connectionTimeout", p.keepAliveTimeout)
	}
	if p.compression != compressionForce || !p.continueImmediately || p.disableUploadTimeout {
		t.Error("compression, continueResponseTiming or disableUploadTimeout not applied")
	}
	if !p.isCompressible("text/html; charset=utf-8") || !p.isCompressible("application/wasm") || p.isCompressible("text/plain") {
		t.Error("compressibleMimeTypes not applied")
	}
	if p.noCompressionUserAgents == nil || !p.noCompressionUserAgents.MatchString("curl/8.0") {
		t.Error("noCompressionUserAgents not applied")
	}

	tests := []string{
		"maxHeaderSize = 100",
		"maxKeepAliveRequests = 0",
		"compression = maybe",
		"compressionLevel = 10",
		"continueResponseTiming = later",
		"restrictedUserAgents = (",
		"upgradeProtocols = nosuch",
	}
	for i, test := range tests {
		conf, _ := LoadConfigText("[http1]\n" + test + "\n")
		if err := NewHTTP1Protocol(nil).Configure(NewConfig(conf, "http1")); err == nil {
			t.Errorf("#%d: %q accepted", i, test)
		}
	}
}
