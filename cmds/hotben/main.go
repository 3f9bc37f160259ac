// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Hotben is a simple HTTP/1.1 benchmarking tool with keep-alive and pipelining.

package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	C int      // concurrent connections
	R int      // requests per connection
	P int      // pipelined requests per write
	U *url.URL // target url
	M string   // http method
	H string   // extra http headers, separated by '|'
	B string   // http content
	T time.Duration
)

// hotben -c 240 -r 1000 -u http://localhost:8080/hello
// hotben -c 64 -r 1000 -p 16 -m POST -b hello -u http://localhost:8080/echo

func main() {
	var u string
	var err error
	flag.IntVar(&C, "c", 240, "concurrent connections")
	flag.IntVar(&R, "r", 1000, "requests per connection")
	flag.IntVar(&P, "p", 1, "pipelined requests per write")
	flag.StringVar(&u, "u", "http://localhost:8080/hello", "target url")
	flag.StringVar(&M, "m", "GET", "http method")
	flag.StringVar(&H, "h", "", "http headers, like 'Accept: */*|X-Trace: 1'")
	flag.StringVar(&B, "b", "", "http content")
	flag.DurationVar(&T, "t", 10*time.Second, "i/o timeout")
	flag.Parse()
	if U, err = url.Parse(u); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if U.Scheme != "http" {
		fmt.Fprintln(os.Stderr, "only http urls are supported")
		os.Exit(1)
	}
	if C <= 0 || R <= 0 || P <= 0 {
		fmt.Fprintln(os.Stderr, "-c, -r and -p must be positive")
		os.Exit(1)
	}
	address := U.Host
	if U.Port() == "" {
		address += ":80"
	}

	request := buildRequest(M, U.RequestURI(), U.Host, H, B)
	stats := newBenchStats()
	var benchmark sync.WaitGroup
	begin := time.Now()
	for i := 0; i < C; i++ {
		benchmark.Add(1)
		client := newHTTP1Client(address, request, M == "HEAD", stats)
		go func() {
			defer benchmark.Done()
			client.bench()
		}()
	}
	benchmark.Wait()
	stats.report(os.Stdout, time.Since(begin))
}

func buildRequest(method string, uri string, host string, headers string, content string) []byte {
	var request strings.Builder
	fmt.Fprintf(&request, "%s %s HTTP/1.1\r\nHost: %s\r\n", method, uri, host)
	if headers != "" {
		for _, header := range strings.Split(headers, "|") {
			if header = strings.TrimSpace(header); header != "" {
				request.WriteString(header + "\r\n")
			}
		}
	}
	if content != "" || method == "POST" || method == "PUT" {
		fmt.Fprintf(&request, "Content-Length: %d\r\n", len(content))
	}
	request.WriteString("\r\n")
	request.WriteString(content)
	return []byte(request.String())
}

// benchStats is shared by all clients.
type benchStats struct {
	requests   *xsync.Counter
	statusGood *xsync.Counter // 2xx, 3xx, 4xx
	statusBad  *xsync.Counter // 5xx
	failures   *xsync.Counter // connection level errors
	reconnects *xsync.Counter
	bytesRead  *xsync.Counter
	errorsLock sync.Mutex
	lastError  error
}

func newBenchStats() *benchStats {
	return &benchStats{
		requests:   xsync.NewCounter(),
		statusGood: xsync.NewCounter(),
		statusBad:  xsync.NewCounter(),
		failures:   xsync.NewCounter(),
		reconnects: xsync.NewCounter(),
		bytesRead:  xsync.NewCounter(),
	}
}

func (s *benchStats) fail(err error) {
	s.failures.Inc()
	s.errorsLock.Lock()
	s.lastError = err
	s.errorsLock.Unlock()
}

func (s *benchStats) report(out *os.File, elapsed time.Duration) {
	requests := s.requests.Value()
	fmt.Fprintf(out, "requests:   %d in %v\n", requests, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "throughput: %.1f req/s, %.2f MB/s\n", float64(requests)/elapsed.Seconds(), float64(s.bytesRead.Value())/elapsed.Seconds()/1e6)
	fmt.Fprintf(out, "status:     good=%d bad=%d\n", s.statusGood.Value(), s.statusBad.Value())
	fmt.Fprintf(out, "conns:      reconnects=%d failures=%d\n", s.reconnects.Value(), s.failures.Value())
	if s.lastError != nil {
		fmt.Fprintf(out, "last error: %v\n", s.lastError)
	}
}
