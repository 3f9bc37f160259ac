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
)

func newTestStatic(t *testing.T, settings ...string) (*StaticAdapter, string) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>home</h1>"), 0644)
	os.Mkdir(filepath.Join(root, "docs"), 0755)
	os.WriteFile(filepath.Join(root, "docs", "readme.md"), []byte("# readme"), 0644)
	os.WriteFile(filepath.Join(root, "docs", "a&b.txt"), []byte("ab"), 0644)
	os.WriteFile(filepath.Join(root, "secret.txt"), []byte("outside"), 0644)
	conf, err := LoadConfigText("[static]\nwebRoot = " + root + "\n" + strings.Join(settings, "\n") + "\n")
	if err != nil {
		t.Fatal(err)
	}
	a := NewStaticAdapter(noopLogger{})
	if err := a.Configure(NewConfig(conf, "static")); err != nil {
		t.Fatalf("Configure()=%v", err)
	}
	return a, root
}

func TestStaticAdapter(t *testing.T) {
	a, _ := newTestStatic(t, "mimeTypes = md=text/markdown")
	tests := []struct {
		request string
		status  int
		header  string // name: value expected in the response
		body    string
	}{
		{"GET / HTTP/1.1\r\nHost: h\r\n\r\n", 200, "Content-Type: text/html", "<h1>home</h1>"},
		{"GET /index.html HTTP/1.1\r\nHost: h\r\n\r\n", 200, "Content-Length: 13", "<h1>home</h1>"},
		{"GET /docs/readme.md HTTP/1.1\r\nHost: h\r\n\r\n", 200, "Content-Type: text/markdown", "# readme"},
		{"GET /docs/a%26b.txt HTTP/1.1\r\nHost: h\r\n\r\n", 200, "Content-Type: text/plain", "ab"},
		{"GET /docs HTTP/1.1\r\nHost: h\r\n\r\n", 302, "Location: /docs/", ""},
		{"GET /docs/ HTTP/1.1\r\nHost: h\r\n\r\n", 403, "", "forbidden"},
		{"GET /missing HTTP/1.1\r\nHost: h\r\n\r\n", 404, "", "not found"},
		{"GET /docs/../../etc/passwd HTTP/1.1\r\nHost: h\r\n\r\n", 404, "", "not found"},
		{"GET /docs/%zz HTTP/1.1\r\nHost: h\r\n\r\n", 400, "", "bad path"},
		{"DELETE / HTTP/1.1\r\nHost: h\r\n\r\n", 405, "Allow: GET, HEAD", "method not allowed"},
	}
	for i, test := range tests {
		_, out := serve(newTestProtocol(a), test.request)
		responses, err := readResponses(out)
		if err != nil || len(responses) != 1 {
			t.Errorf("#%d: %d responses, err=%v", i, len(responses), err)
			continue
		}
		resp := responses[0]
		if resp.StatusCode != test.status || resp.body != test.body {
			t.Errorf("#%d: status=%d body=%q", i, resp.StatusCode, resp.body)
		}
		if test.header != "" {
			name, value, _ := strings.Cut(test.header, ": ")
			if got := resp.Header.Get(name); !strings.HasPrefix(got, value) {
				t.Errorf("#%d: %s=%q, want %q", i, name, got, value)
			}
		}
	}
}

func TestStaticAdapterAutoIndex(t *testing.T) {
	a, _ := newTestStatic(t, "autoIndex = true")
	_, out := serve(newTestProtocol(a), "GET /docs/ HTTP/1.1\r\nHost: h\r\n\r\n")
	responses, err := readResponses(out)
	if err != nil || len(responses) != 1 {
		t.Fatalf("%d responses, err=%v", len(responses), err)
	}
	body := responses[0].body
	if !strings.Contains(body, `<a href="readme.md">`) || !strings.Contains(body, `<a href="a&amp;b.txt">`) {
		t.Errorf("body=%q", body)
	}
}

func TestStaticAdapterNotModified(t *testing.T) {
	a, root := newTestStatic(t)
	info, _ := os.Stat(filepath.Join(root, "index.html"))
	since := info.ModTime().UTC().Format(httpDateLayout)
	_, out := serve(newTestProtocol(a), "GET /index.html HTTP/1.1\r\nHost: h\r\nIf-Modified-Since: "+since+"\r\n\r\n")
	responses, _ := readResponses(out)
	if len(responses) != 1 || responses[0].StatusCode != 304 || responses[0].body != "" {
		t.Errorf("responses=%v", responses)
	}
}

func TestStaticAdapterConfigure(t *testing.T) {
	tests := []string{
		"",
		"webRoot = /nonexistent/web/root",
		"webRoot = " + os.Args[0],
	}
	for i, test := range tests {
		conf, _ := LoadConfigText("[static]\n" + test + "\n")
		if err := NewStaticAdapter(noopLogger{}).Configure(NewConfig(conf, "static")); err == nil {
			t.Errorf("#%d: %q accepted", i, test)
		}
	}
}
