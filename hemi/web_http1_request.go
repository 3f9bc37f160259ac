// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1 incoming request, as seen by adapters.

package hemi

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"sync/atomic"
)

const ( // framing modes
	FramingNone          = iota // no content
	FramingContentLength        // exactly Framing.Length bytes
	FramingChunked              // chunked transfer coding
	FramingUntilClose           // content ends when the connection closes
)

// Framing describes how a message body is delimited.
type Framing struct {
	Mode   int8
	Length int64 // valid for FramingContentLength
}

// headerField is a request header whose name and value live in the input window.
type headerField struct {
	hash    uint16
	deleted bool
	name    span
	value   span
}

// Request
type Request struct {
	// Assocs
	proc  *http1Processor
	input *http1Input
	// States (stocks)
	stockFields [24]headerField
	// States (non-zeros)
	fields        []headerField
	queryAt       int32 // position of the first '?' in the request-target, -1 if none
	contentLength int64 // -1 means unknown
	// States (zeros)
	request0
}
type request0 struct { // for fast reset, entirely
	method      span
	uri         span
	protocol    span
	authority   span // from an absolute-form request-target
	uriSlash    bool // absolute-form target had an empty path
	hostIndex   int8 // index+1 of the host field, 0 if none
	versionCode uint8
	methodCode  uint32
	framing     Framing
	serverPort  int32
	serverName  span
	async       *AsyncContext
}

func (r *Request) onUse(proc *http1Processor, input *http1Input) {
	r.proc = proc
	r.input = input
	r.fields = r.stockFields[0:0:len(r.stockFields)]
	r.queryAt = -1
	r.contentLength = -1
}
func (r *Request) onEnd() {
	if cap(r.fields) != cap(r.stockFields) {
		r.fields = nil
	}
	r.request0 = request0{}
	r.proc = nil
	r.input = nil
}
func (r *Request) nextRequest() {
	r.fields = r.fields[:0]
	r.queryAt = -1
	r.contentLength = -1
	r.request0 = request0{}
}

func (r *Request) addField(hash uint16, nameFrom int32, nameEdge int32, valueFrom int32, valueEdge int32) {
	r.fields = append(r.fields, headerField{hash: hash, name: span{nameFrom, nameEdge}, value: span{valueFrom, valueEdge}})
}

func (r *Request) bytesOf(s span) []byte { return r.input.window.buffer[s.from:s.edge] }

func (r *Request) UnsafeMethod() []byte   { return r.bytesOf(r.method) }
func (r *Request) Method() string         { return string(r.UnsafeMethod()) }
func (r *Request) MethodCode() uint32     { return r.methodCode }
func (r *Request) IsHEAD() bool           { return r.methodCode == MethodHEAD }
func (r *Request) UnsafeProtocol() []byte { return r.bytesOf(r.protocol) }
func (r *Request) Protocol() string       { return string(r.UnsafeProtocol()) }
func (r *Request) VersionCode() uint8     { return r.versionCode }
func (r *Request) Version() string        { return webVersionStrings[r.versionCode] }

// URI returns the request-target in origin-form, including the query.
func (r *Request) URI() string {
	if r.uriSlash {
		return "/" + string(r.bytesOf(r.uri))
	}
	return string(r.bytesOf(r.uri))
}

// Path returns the request-target before '?'.
func (r *Request) Path() string {
	uri := r.uri
	if r.queryAt >= uri.from && r.queryAt < uri.edge {
		uri.edge = r.queryAt
	}
	if r.uriSlash {
		return "/" + string(r.bytesOf(uri))
	}
	return string(r.bytesOf(uri))
}

// QueryString returns the raw query without '?'.
func (r *Request) QueryString() string {
	if r.queryAt < r.uri.from || r.queryAt >= r.uri.edge {
		return ""
	}
	return string(r.input.window.buffer[r.queryAt+1 : r.uri.edge])
}

func (r *Request) HeaderCount() int {
	n := 0
	for i := range r.fields {
		if !r.fields[i].deleted {
			n++
		}
	}
	return n
}

// UnsafeHeader returns the first value of the header named name, case-insensitively.
func (r *Request) UnsafeHeader(name string) (value []byte, ok bool) {
	hash := stringHash(name)
	for i := range r.fields {
		field := &r.fields[i]
		if field.hash == hash && !field.deleted && bytesEqualLower(r.bytesOf(field.name), name) {
			return r.bytesOf(field.value), true
		}
	}
	return nil, false
}
func (r *Request) Header(name string) (value string, ok bool) {
	v, ok := r.UnsafeHeader(name)
	return string(v), ok
}

// Headers returns all values of the header named name, in order.
func (r *Request) Headers(name string) (values []string) {
	hash := stringHash(name)
	for i := range r.fields {
		field := &r.fields[i]
		if field.hash == hash && !field.deleted && bytesEqualLower(r.bytesOf(field.name), name) {
			values = append(values, string(r.bytesOf(field.value)))
		}
	}
	return
}
func (r *Request) HasHeader(name string) bool {
	_, ok := r.UnsafeHeader(name)
	return ok
}

// ForEachHeader calls fn for each header in arrival order until fn returns false. Names are lowercase.
func (r *Request) ForEachHeader(fn func(name []byte, value []byte) bool) {
	for i := range r.fields {
		field := &r.fields[i]
		if !field.deleted && !fn(r.bytesOf(field.name), r.bytesOf(field.value)) {
			return
		}
	}
}

func (r *Request) _countFields(hash uint16, name []byte) (n int, last int) {
	for i := range r.fields {
		field := &r.fields[i]
		if field.hash == hash && !field.deleted && string(r.bytesOf(field.name)) == string(name) {
			n++
			last = i
		}
	}
	return
}
// _fieldValues and _field look up fields the engine inspects, by precomputed hash and lowercase name.
func (r *Request) _fieldValues(hash uint16, name []byte) (values []string) {
	for i := range r.fields {
		field := &r.fields[i]
		if field.hash == hash && !field.deleted && string(r.bytesOf(field.name)) == string(name) {
			values = append(values, string(r.bytesOf(field.value)))
		}
	}
	return
}
func (r *Request) _field(hash uint16, name []byte) (value []byte, ok bool) {
	for i := range r.fields {
		field := &r.fields[i]
		if field.hash == hash && !field.deleted && string(r.bytesOf(field.name)) == string(name) {
			return r.bytesOf(field.value), true
		}
	}
	return nil, false
}
func (r *Request) _delFields(hash uint16, name []byte) {
	for i := range r.fields {
		field := &r.fields[i]
		if field.hash == hash && string(r.bytesOf(field.name)) == string(name) {
			field.deleted = true
		}
	}
}

// Host returns the Host header, or the authority of an absolute-form target when the header is absent.
func (r *Request) Host() string { return string(r._host()) }
func (r *Request) _host() []byte {
	if r.hostIndex > 0 {
		return r.bytesOf(r.fields[r.hostIndex-1].value)
	}
	return r.bytesOf(r.authority)
}
func (r *Request) ServerName() string { return string(r.bytesOf(r.serverName)) }
func (r *Request) ServerPort() int32  { return r.serverPort }

func (r *Request) ContentLength() int64 { return r.contentLength }
func (r *Request) Framing() Framing     { return r.framing }
func (r *Request) ContentType() string {
	v, _ := r.Header("content-type")
	return v
}

// Read reads decoded content. It sends the interim 100 response first if the client is waiting for it.
func (r *Request) Read(p []byte) (int, error) { return r.proc.readBody(p) }

// Trailer returns a trailer of a chunked request, once its content is fully read.
// Only names configured in allowedTrailerHeaders are visible.
func (r *Request) Trailer(name string) (value string, ok bool) {
	name = strings.ToLower(name)
	if !r.proc.protocol.allowedTrailers[name] || !r.input.chunked.isFinished() {
		return "", false
	}
	v, ok := r.input.chunked.trailer(name)
	return string(v), ok
}

func (r *Request) RemoteAddr() net.Addr      { return r.proc.transport.RemoteAddr() }
func (r *Request) LocalAddr() net.Addr       { return r.proc.transport.LocalAddr() }
func (r *Request) IsSecure() bool            { return r.proc.transport.IsSecure() }
func (r *Request) TLS() *tls.ConnectionState { return r.proc.transport.TLSState() }
func (r *Request) Scheme() string {
	if r.IsSecure() {
		return "https"
	}
	return "http"
}

var errNoCertificates = errors.New("peer certificates are not available")

// ClientCertificates returns peer certificates. If the handshake did not ask for them and the transport
// can renegotiate, unread content is saved first so it survives the renegotiation.
func (r *Request) ClientCertificates() ([]*x509.Certificate, error) { return r.proc.clientCertificates() }

// StartAsync keeps the request open after Service returns, until the returned context completes.
func (r *Request) StartAsync() *AsyncContext {
	if r.async == nil {
		r.async = &AsyncContext{proc: r.proc}
		r.proc.asyncStarted()
	}
	return r.async
}
func (r *Request) IsAsync() bool { return r.async != nil }

// AsyncContext
type AsyncContext struct {
	proc *http1Processor
	done atomic.Bool
}

// Complete finishes the request. It may be called from any goroutine, once.
func (a *AsyncContext) Complete() {
	if a.done.CompareAndSwap(false, true) {
		a.proc.notify(EventAsyncComplete)
	}
}

// RequestSnapshot is a copy of the minimal request state given to upgrade protocols.
type RequestSnapshot struct {
	Method   string
	URI      string
	Protocol string
	Headers  [][2]string // lowercase names
}

func (r *Request) snapshot() RequestSnapshot {
	s := RequestSnapshot{
		Method:   r.Method(),
		URI:      r.URI(),
		Protocol: r.Protocol(),
	}
	r.ForEachHeader(func(name []byte, value []byte) bool {
		s.Headers = append(s.Headers, [2]string{string(name), string(value)})
		return true
	})
	return s
}
