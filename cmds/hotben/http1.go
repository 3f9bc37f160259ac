// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1.1 client.

package main

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"time"
)

type http1Client struct {
	address string
	request []byte
	head    bool
	stats   *benchStats
	left    int
	batch   []byte // P requests in one write
}

func newHTTP1Client(address string, request []byte, head bool, stats *benchStats) *http1Client {
	c := new(http1Client)
	c.address = address
	c.request = request
	c.head = head
	c.stats = stats
	c.left = R
	c.batch = bytes.Repeat(request, P)
	return c
}

func (c *http1Client) bench() {
	for first := true; c.left > 0; first = false {
		if !first {
			c.stats.reconnects.Inc()
		}
		conn, err := net.DialTimeout("tcp", c.address, T)
		if err != nil {
			c.stats.fail(err)
			return
		}
		err = c._serve(conn)
		conn.Close()
		if err != nil {
			c.stats.fail(err)
			return
		}
	}
}

// _serve sends requests on conn until it is closed by the server or no requests are left.
func (c *http1Client) _serve(conn net.Conn) error {
	reader := bufio.NewReaderSize(&countingReader{conn, c.stats}, 16384)
	method := http.MethodGet
	if c.head {
		method = http.MethodHead
	}
	for c.left > 0 {
		n := P
		if n > c.left {
			n = c.left
		}
		conn.SetDeadline(time.Now().Add(T))
		if _, err := conn.Write(c.batch[:n*len(c.request)]); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			closed, err := c.recvResponse(reader, method)
			if err != nil {
				return err
			}
			c.left--
			c.stats.requests.Inc()
			if closed { // the rest of the batch is lost
				return nil
			}
		}
	}
	return nil
}

func (c *http1Client) recvResponse(reader *bufio.Reader, method string) (closed bool, err error) {
	resp, err := http.ReadResponse(reader, &http.Request{Method: method})
	if err != nil {
		return false, err
	}
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		return false, err
	}
	if resp.StatusCode >= 500 {
		c.stats.statusBad.Inc()
	} else {
		c.stats.statusGood.Inc()
	}
	return resp.Close, nil
}

type countingReader struct {
	conn  net.Conn
	stats *benchStats
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.conn.Read(p)
	r.stats.bytesRead.Add(int64(n))
	return n, err
}
