// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1 outgoing response, as seen by adapters.

package hemi

import (
	"errors"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	errInvalidHeaderName    = errors.New("invalid header name")
	errInvalidContentLength = errors.New("invalid content-length")
	errEngineHeader         = errors.New("header is controlled by the engine")
	errBadSendfileRange     = errors.New("bad sendfile range")
)

// Response collects status, headers and trailers until commit. Content goes through the processor to the output buffer.
type Response struct {
	// Assocs
	proc *http1Processor
	// States (stocks)
	stockHeaders [16][2]string
	// States (non-zeros)
	headers       [][2]string // lowercase names
	status        int16
	contentLength int64 // -1 means unknown
	// States (zeros)
	response0
}
type response0 struct { // for fast reset, entirely
	contentType string
	trailers    [][2]string
	sendfile    *SendfileData
	closeNow    bool   // the adapter asked to close without a clean response
	errorReason string // reason of an error response produced by the engine
}

func (r *Response) onUse(proc *http1Processor) {
	r.proc = proc
	r.headers = r.stockHeaders[0:0:len(r.stockHeaders)]
	r.status = StatusOK
	r.contentLength = -1
}
func (r *Response) onEnd() {
	if cap(r.headers) != cap(r.stockHeaders) {
		r.headers = nil
	}
	r.response0 = response0{}
	r.proc = nil
}
func (r *Response) nextRequest() {
	clear(r.headers)
	r.headers = r.headers[:0]
	r.status = StatusOK
	r.contentLength = -1
	r.response0 = response0{}
}

func (r *Response) Status() int16 { return r.status }
func (r *Response) SetStatus(status int16) error {
	if status < 100 || status > 999 {
		return errors.New("invalid status")
	}
	if r.IsCommitted() {
		return errAlreadyCommitted
	}
	r.status = status
	return nil
}

// SetHeader replaces all values of the header named name.
func (r *Response) SetHeader(name string, value string) error {
	name, err := r._checkHeader(name)
	if err != nil {
		return err
	}
	if special, err := r._setSpecial(name, value); special {
		return err
	}
	r._delHeader(name)
	r.headers = append(r.headers, [2]string{name, value})
	return nil
}

// AddHeader appends a value to the header named name.
func (r *Response) AddHeader(name string, value string) error {
	name, err := r._checkHeader(name)
	if err != nil {
		return err
	}
	if special, err := r._setSpecial(name, value); special {
		return err
	}
	r.headers = append(r.headers, [2]string{name, value})
	return nil
}
func (r *Response) DelHeader(name string) {
	if r.IsCommitted() {
		return
	}
	name = strings.ToLower(name)
	switch name {
	case "content-length":
		r.contentLength = -1
	case "content-type":
		r.contentType = ""
	default:
		r._delHeader(name)
	}
}
func (r *Response) Header(name string) (value string, ok bool) {
	name = strings.ToLower(name)
	for _, header := range r.headers {
		if header[0] == name {
			return header[1], true
		}
	}
	return "", false
}
func (r *Response) HasHeader(name string) bool {
	_, ok := r.Header(name)
	return ok
}

func (r *Response) _checkHeader(name string) (string, error) {
	if r.IsCommitted() {
		return "", errAlreadyCommitted
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return "", errInvalidHeaderName
	}
	name = strings.ToLower(name)
	switch name {
	case "transfer-encoding", "connection", "upgrade", "keep-alive":
		return "", errEngineHeader
	}
	return name, nil
}
func (r *Response) _setSpecial(name string, value string) (special bool, err error) {
	switch name {
	case "content-length":
		size, ok := decToI64([]byte(value))
		if !ok {
			return true, errInvalidContentLength
		}
		r.contentLength = size
		return true, nil
	case "content-type":
		r.contentType = value
		return true, nil
	}
	return false, nil
}
func (r *Response) _delHeader(name string) {
	headers := r.headers[:0]
	for _, header := range r.headers {
		if header[0] != name {
			headers = append(headers, header)
		}
	}
	clear(r.headers[len(headers):])
	r.headers = headers
}

func (r *Response) ContentLength() int64 { return r.contentLength }
func (r *Response) SetContentLength(size int64) {
	if !r.IsCommitted() && size >= -1 {
		r.contentLength = size
	}
}
func (r *Response) ContentType() string { return r.contentType }
func (r *Response) SetContentType(contentType string) {
	if !r.IsCommitted() {
		r.contentType = contentType
	}
}

// AddTrailer adds a trailer sent after chunked content. A response with trailers is always chunked on HTTP/1.1.
func (r *Response) AddTrailer(name string, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return errInvalidHeaderName
	}
	r.trailers = append(r.trailers, [2]string{strings.ToLower(name), value})
	return nil
}
func (r *Response) _appendTrailers(p []byte) []byte {
	for _, trailer := range r.trailers {
		p = append(p, trailer[0]...)
		p = append(p, bytesColonSpace...)
		for i := 0; i < len(trailer[1]); i++ {
			b := trailer[1][i]
			if byteIsCtl(b) {
				b = ' '
			}
			p = append(p, b)
		}
		p = append(p, bytesCRLF...)
	}
	return p
}

// Write writes content. The first write commits the response.
func (r *Response) Write(p []byte) (int, error) { return r.proc.writeBody(p) }
func (r *Response) WriteString(s string) (int, error) {
	return r.proc.writeBody(ConstBytes(s))
}

// Flush commits the response and pushes buffered content to the transport.
func (r *Response) Flush() error { return r.proc.flushBody() }

func (r *Response) IsCommitted() bool { return r.proc.output.isCommitted() }

// Reset drops status, headers and trailers set so far. It fails after commit.
func (r *Response) Reset() error {
	if r.IsCommitted() {
		return errAlreadyCommitted
	}
	r.nextRequest()
	r.proc.output.resetHead()
	return nil
}

// Sendfile sends length bytes of the file at path from offset as content, after headers.
func (r *Response) Sendfile(path string, offset int64, length int64) error {
	if r.IsCommitted() {
		return errAlreadyCommitted
	}
	if offset < 0 || length < 0 {
		return errBadSendfileRange
	}
	r.sendfile = &SendfileData{Path: path, Offset: offset, Length: length}
	r.contentLength = length
	return nil
}

// CloseNow closes the connection after this response without any clean end of content.
func (r *Response) CloseNow() { r.closeNow = true }

// BytesWritten returns content bytes given by the adapter so far.
func (r *Response) BytesWritten() int64 { return r.proc.output.bytesWritten }
