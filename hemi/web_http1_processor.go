// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1 connection processor. It drives requests on one connection, one after another:
// parse line, parse headers, check upgrade, prepare, dispatch, end request, then loop or stop.

// The processor never blocks by itself. Blocking is up to the transport: a goroutine-per-connection
// gate reads in blocking mode, an event-driven gate returns early and invokes the processor again.

package hemi

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http/httpguts"
)

const ( // error states. a state only escalates during a request
	errorNone               = iota
	errorCloseClean         // finish the response cleanly, then close
	errorCloseNow           // no more i/o on this request, close
	errorCloseConnectionNow // the connection is unusable
)

const ( // request stages, for monitoring
	StageNew = iota
	StageParse
	StagePrepare
	StageService
	StageEndInput
	StageEndOutput
	StageKeepAlive
	StageEnded
)

var stageNames = [...]string{
	StageNew:       "new",
	StageParse:     "parse",
	StagePrepare:   "prepare",
	StageService:   "service",
	StageEndInput:  "endInput",
	StageEndOutput: "endOutput",
	StageKeepAlive: "keepAlive",
	StageEnded:     "ended",
}

var (
	errIONotAllowed = errors.New("i/o is not allowed on this request")
	errAppPanic     = errors.New("adapter panicked")
)

// RequestInfo is a point-in-time view of a connection and its current request.
type RequestInfo struct {
	ConnID         int64
	Stage          string
	RemoteAddr     string
	Method         string
	URI            string
	RequestsServed int64
	BytesReceived  int64 // of the current request
	BytesSent      int64 // of the connection
	StartTime      time.Time
	ProcessingTime time.Duration // of the last finished request
}

// http1Processor
type http1Processor struct {
	// Assocs
	protocol  *HTTP1Protocol
	transport Transport
	logger    Logger
	notifier  func(event SocketEvent) // tells the gate to invoke Process again, from any goroutine
	// States (controlled)
	request  Request
	response Response
	input    http1Input
	output   http1Output
	// States (non-zeros)
	id            int64
	keepAlive     bool
	keepAliveLeft int32
	infoLock      sync.Mutex
	info          RequestInfo
	// States (zeros)
	http1Processor0
}
type http1Processor0 struct { // for fast reset, entirely
	keptAlive      bool // served at least one request
	ended          bool // no more requests on this connection
	errorState     int8
	expectation    bool // client waits for 100 before sending content
	continueSent   bool
	async          bool // current request runs asynchronously
	readWait       bool // the last DispositionLong waits for the rest of a head
	sendfileNative bool // transport sends the file after headers
	unreadInput    bool // the last request ended with content left on the wire
	requestsServed int64
	startTime      time.Time
	upgrade        *UpgradeToken
	sendfile       *SendfileData // pending for the gate
}

func (p *http1Processor) onUse(protocol *HTTP1Protocol, id int64, transport Transport, notifier func(event SocketEvent)) {
	p.protocol = protocol
	p.transport = transport
	p.logger = protocol.logger
	p.notifier = notifier
	p.id = id
	p.keepAlive = true
	p.keepAliveLeft = protocol.maxKeepAliveRequests

	in := &p.input
	in.onUse(transport, &p.request, p.logger)
	in.maxHeadSize = protocol.maxHeaderSize
	in.rejectIllegalHeader = protocol.rejectIllegalHeader
	in.keepAliveTimeout = protocol.keepAliveTimeout
	in.connectionTimeout = protocol.connectionTimeout
	if protocol.disableUploadTimeout {
		in.uploadTimeout = 0
	} else {
		in.uploadTimeout = protocol.connectionUploadTimeout
	}
	in.identity.maxSwallowSize = protocol.maxSwallowSize
	in.chunked.maxExtensionSize = int64(protocol.maxExtensionSize)
	in.chunked.maxTrailerSize = int64(protocol.maxTrailerSize)
	in.chunked.maxSwallowSize = protocol.maxSwallowSize
	in.buffered.limit = int64(protocol.maxSavePostSize)

	p.output.onUse(transport, protocol.maxResponseHeaderSize, int(protocol.socketBufferSize), protocol.gzipLevel)
	p.request.onUse(p, in)
	p.response.onUse(p)

	p.info = RequestInfo{ConnID: id, Stage: stageNames[StageNew]}
	if addr := transport.RemoteAddr(); addr != nil {
		p.info.RemoteAddr = addr.String()
	}
}
func (p *http1Processor) onEnd() {
	p.response.onEnd()
	p.request.onEnd()
	p.output.onEnd()
	p.input.onEnd()
	p.http1Processor0 = http1Processor0{}
	p.info = RequestInfo{}
	p.notifier = nil
	p.logger = nil
	p.transport = nil
	p.protocol = nil
}

// Process runs the processor for a socket event and tells the gate what to do next.
func (p *http1Processor) Process(event SocketEvent) Disposition {
	p.readWait = false
	switch event {
	case EventRead, EventWrite:
		if p.output.hasPending() {
			if err := p.output.flushSocket(); err != nil {
				p._setError(errorCloseConnectionNow, err)
				return p._terminate()
			}
			if p.output.hasPending() {
				return DispositionLong
			}
		}
		if p.sendfile != nil {
			return DispositionSendfile
		}
		if p.async {
			return DispositionLong
		}
		if p.ended {
			return p._terminate()
		}
		return p.service()
	case EventAsyncComplete:
		if !p.async {
			return DispositionLong
		}
		p.async = false
		if d, done := p._completeRequest(); done {
			return d
		}
		return p.service()
	case EventSendfileDone:
		p.sendfile = nil
		if p.ended {
			return p._terminate()
		}
		return p.service()
	case EventTimeout:
		if p.async { // the adapter never completed
			p.async = false
			p._appFailed(errors.New("asynchronous request timed out"))
			p._completeRequest()
			return p._terminate()
		}
		if p.input.started && !p.ended {
			return p._abort(errReadTimeout)
		}
		return p._terminate()
	default: // EventStop
		return p._terminate()
	}
}

// Upgrade returns the token of an upgraded connection after Process returned DispositionUpgrading.
func (p *http1Processor) Upgrade() *UpgradeToken { return p.upgrade }

// Sendfile returns the region to send after Process returned DispositionSendfile.
func (p *http1Processor) Sendfile() *SendfileData { return p.sendfile }

// WaitsForInput tells whether the last DispositionLong waits for more of a request head rather than
// for an asynchronous completion or a write drain. The gate arms a read with the read timeout then.
func (p *http1Processor) WaitsForInput() bool { return p.readWait }

// HasUnreadInput tells whether the client may still be sending content the processor never read.
func (p *http1Processor) HasUnreadInput() bool { return p.unreadInput }

func (p *http1Processor) service() Disposition {
	in := &p.input
	for !p.ended {
		if !in.started && p.protocol.IsPaused() { // idle
			return p._terminate()
		}
		p._setStage(StageParse)
		ok, err := in.parseRequestLine(p.keptAlive)
		if err != nil {
			if err == errHTTP2Preface {
				return p._preface()
			}
			return p._abort(err)
		}
		if !ok {
			if in.started {
				p.readWait = true
				return DispositionLong
			}
			return DispositionOpen // idle between requests
		}
		if err := p._prepareProtocol(); err != nil {
			return p._abort(err)
		}
		if p.protocol.IsPaused() {
			return p._abort(newHTTPError(StatusServiceUnavailable, "service paused"))
		}
		if p.output.http09 {
			in.skipHeaders()
		} else if ok, err = in.parseHeaders(); err != nil {
			return p._abort(err)
		} else if !ok {
			p.readWait = true
			return DispositionLong
		}
		p._setStage(StagePrepare)
		p.startTime = time.Now()
		if token, err := p._checkUpgrade(); err != nil {
			return p._abort(err)
		} else if token != nil {
			p.upgrade = token
			p.ended = true
			p._logAccess()
			return DispositionUpgrading
		}
		if err := p.prepareRequest(); err != nil {
			return p._abort(err)
		}
		if max := p.protocol.maxKeepAliveRequests; max == 1 {
			p.keepAlive = false
		} else if max > 0 {
			if p.keepAliveLeft--; p.keepAliveLeft <= 0 {
				p.keepAlive = false
			}
		}
		p._setStage(StageService)
		p._dispatch()
		if p.async {
			return DispositionLong
		}
		if d, done := p._completeRequest(); done {
			return d
		}
	}
	return p._terminate()
}

func (p *http1Processor) _dispatch() {
	defer func() {
		if x := recover(); x != nil {
			p.async = false
			p._appFailed(fmt.Errorf("%w: %v", errAppPanic, x))
		}
	}()
	if err := p.protocol.adapter.Service(&p.request, &p.response); err != nil {
		p.async = false
		p._appFailed(err)
	}
	if p.response.closeNow {
		p._setError(errorCloseNow, nil)
	}
}

func (p *http1Processor) _appFailed(err error) {
	p.logger.Warnf("conn=%d adapter failed: %v", p.id, err)
	p.protocol.stats.errors.Inc()
	if p.output.committed {
		p._setError(errorCloseNow, err)
		return
	}
	p._setError(errorCloseClean, err)
	p._sendError(StatusInternalServerError, "internal server error")
}

// _completeRequest ends the current request. If done is true, the returned disposition ends this invocation.
func (p *http1Processor) _completeRequest() (d Disposition, done bool) {
	p.endRequest()
	p._logAccess()
	p.requestsServed++
	p.protocol.stats.requests.Inc()
	if p.errorState >= errorCloseNow {
		p.ended = true
		return p._terminate(), true
	}
	if !p.keepAlive || p.errorState != errorNone {
		p.ended = true
	}
	if sf := p.response.sendfile; sf != nil && p.sendfileNative {
		data := *sf
		data.KeepAlive = !p.ended
		p.sendfile = &data
	}
	p._nextRequest()
	if p.output.hasPending() {
		return DispositionLong, true
	}
	if p.sendfile != nil {
		return DispositionSendfile, true
	}
	if p.ended {
		return p._terminate(), true
	}
	return DispositionOpen, false
}

// endRequest finishes the response, then swallows unread content if the connection will be reused.
func (p *http1Processor) endRequest() {
	if p._isIOAllowed() {
		p._setStage(StageEndOutput)
		if err := p._finishResponse(); err != nil {
			p.logger.Warnf("conn=%d finish response: %v", p.id, err)
			p._setError(errorCloseConnectionNow, err)
		}
	}
	p._setStage(StageEndInput)
	p._checkExpectation()
	if p._isIOAllowed() && p.keepAlive && p.errorState == errorNone {
		if err := p.input.endRequest(); err != nil {
			p._setError(errorCloseNow, err)
		}
	}
	p.unreadInput = !p.input.isFinished()
	p._collectBytes()
}

func (p *http1Processor) _finishResponse() error {
	if !p.output.committed {
		if err := p.prepareResponse(); err != nil {
			return err
		}
	}
	if sf := p.response.sendfile; sf != nil && !p.sendfileNative && p.errorState == errorNone {
		if err := p._streamFile(sf); err != nil {
			return err
		}
	}
	return p.output.end()
}

// _streamFile writes a file region through the output filters when the transport cannot send it by itself.
func (p *http1Processor) _streamFile(sf *SendfileData) error {
	file, err := os.Open(sf.Path)
	if err != nil {
		return err
	}
	defer file.Close()
	buffer := Get16K()
	defer PutNK(buffer)
	section := io.NewSectionReader(file, sf.Offset, sf.Length)
	for {
		n, err := section.Read(buffer)
		if n > 0 {
			if _, err := p.output.write(buffer[:n]); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// _checkExpectation stops swallowing and keep-alive when a client waiting for 100 never got it
// and its content was not read. The client may or may not send the content anyway.
func (p *http1Processor) _checkExpectation() {
	if p.expectation && !p.continueSent && !p.input.isFinished() {
		p.input.swallowInput = false
		p.keepAlive = false
	}
}

func (p *http1Processor) _nextRequest() {
	p._setStage(StageKeepAlive)
	p.keptAlive = true
	p.request.nextRequest()
	p.response.nextRequest()
	p.input.nextRequest()
	p.output.nextRequest()
	p.errorState = errorNone
	p.expectation = false
	p.continueSent = false
	p.sendfileNative = false
	p.startTime = time.Time{}
	p.keepAlive = true
}

// _terminate stops the connection. Pending output is flushed first when possible.
func (p *http1Processor) _terminate() Disposition {
	p.ended = true
	p._setStage(StageEnded)
	if p.output.hasPending() && p._isConnectionIOAllowed() {
		return DispositionLong
	}
	return DispositionClosed
}

// _abort handles a failure before dispatch. The adapter is never invoked for such a request.
func (p *http1Processor) _abort(err error) Disposition {
	var he *httpError
	switch {
	case errors.As(err, &he):
		p.logger.Logf("conn=%d bad request: %v", p.id, err)
		p._setError(errorCloseClean, err)
		p._sendError(he.status, he.reason)
	case err == errReadTimeout:
		if p.input.started {
			p._setError(errorCloseClean, err)
			p._sendError(StatusRequestTimeout, "request timeout")
		} else {
			p._setError(errorCloseConnectionNow, nil)
		}
	case err == errEndOfStream:
		p._setError(errorCloseConnectionNow, nil)
	default:
		p.logger.Warnf("conn=%d transport error: %v", p.id, err)
		p._setError(errorCloseConnectionNow, err)
	}
	if p.errorState != errorCloseConnectionNow {
		p.protocol.stats.errors.Inc()
	}
	if p._isIOAllowed() && p.output.committed {
		if err := p.output.end(); err != nil {
			p._setError(errorCloseConnectionNow, err)
		}
	}
	if p.input.started {
		p.unreadInput = true
		p._collectBytes()
		p._logAccess()
	}
	return p._terminate()
}

// _sendError prepares an error response with a short plain text body. It does nothing after commit.
func (p *http1Processor) _sendError(status int16, reason string) {
	if p.output.committed || !p._isIOAllowed() {
		return
	}
	resp := &p.response
	resp.Reset()
	resp.status = status
	resp.errorReason = reason
	resp.contentType = "text/plain; charset=utf-8"
	resp.contentLength = int64(len(reason))
	if err := p.prepareResponse(); err != nil {
		p._setError(errorCloseConnectionNow, err)
		return
	}
	if _, err := p.output.write(ConstBytes(reason)); err != nil {
		p._setError(errorCloseConnectionNow, err)
	}
}

// _preface hands a connection starting with the HTTP/2 client preface to h2c, if registered.
func (p *http1Processor) _preface() Disposition {
	upgrade := p.protocol.upgrades["h2c"]
	if upgrade == nil {
		return p._abort(newHTTPError(StatusHTTPVersionNotSupported, "http/2 is not supported"))
	}
	w := &p.input.window
	leftover := append([]byte(nil), w.buffer[0:w.lim]...)
	p.upgrade = &UpgradeToken{Protocol: upgrade, Transport: p.transport, Leftover: leftover, Preface: true}
	p.ended = true
	return DispositionUpgrading
}

// _checkUpgrade answers 101 when Connection lists "upgrade" and Upgrade names a registered protocol that accepts the request.
func (p *http1Processor) _checkUpgrade() (*UpgradeToken, error) {
	if len(p.protocol.upgrades) == 0 || p.request.VersionCode() != Version1_1 {
		return nil, nil
	}
	req := &p.request
	if !httpguts.HeaderValuesContainsToken(req._fieldValues(hashConnection, bytesConnection), "upgrade") {
		return nil, nil
	}
	var upgrade UpgradeProtocol
	for _, value := range req._fieldValues(hashUpgrade, bytesUpgrade) {
		for _, name := range strings.Split(value, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if candidate := p.protocol.upgrades[name]; candidate != nil && candidate.Accept(req) {
				upgrade = candidate
				break
			}
		}
		if upgrade != nil {
			break
		}
	}
	if upgrade == nil {
		return nil, nil
	}
	out := &p.output
	out.sendStatus(StatusSwitchingProtocols)
	out.sendLine(http1BytesConnectionUpgrade)
	out.sendHeader("upgrade", upgrade.Name())
	if err := out.endHeaders(); err != nil {
		return nil, err
	}
	if err := out.commit(); err != nil {
		return nil, err
	}
	if err := out.flushSocket(); err != nil {
		return nil, err
	}
	token := &UpgradeToken{
		Protocol:  upgrade,
		Transport: p.transport,
		Request:   req.snapshot(),
		Leftover:  append([]byte(nil), p.input.leftover()...),
	}
	p.response.status = StatusSwitchingProtocols
	return token, nil
}

// readBody serves Request.Read.
func (p *http1Processor) readBody(b []byte) (int, error) {
	if !p._isIOAllowed() {
		return 0, errIONotAllowed
	}
	if p.expectation && !p.continueSent {
		if err := p.sendContinue(); err != nil {
			return 0, err
		}
	}
	n, err := p.input.read(b)
	if err != nil && err != io.EOF {
		var he *httpError
		if errors.As(err, &he) {
			if !p.output.committed {
				p.response.status = he.status
			}
			p._setError(errorCloseClean, err)
		} else {
			p._setError(errorCloseNow, err)
		}
	}
	return n, err
}

// sendContinue sends the interim 100 response once. Swallowing is allowed again afterwards.
func (p *http1Processor) sendContinue() error {
	if p.continueSent || p.output.committed {
		return nil
	}
	p.continueSent = true
	if err := p.output.sendContinue(); err != nil {
		p._setError(errorCloseConnectionNow, err)
		return err
	}
	p.input.swallowInput = true
	return nil
}

// writeBody serves Response.Write. The response is committed first.
func (p *http1Processor) writeBody(b []byte) (int, error) {
	if !p._isIOAllowed() {
		return 0, errIONotAllowed
	}
	if !p.output.committed {
		if err := p.prepareResponse(); err != nil {
			p._setError(errorCloseConnectionNow, err)
			return 0, err
		}
	}
	n, err := p.output.write(b)
	if err != nil {
		p._setError(errorCloseConnectionNow, err)
	}
	return n, err
}
func (p *http1Processor) flushBody() error {
	if !p._isIOAllowed() {
		return errIONotAllowed
	}
	if !p.output.committed {
		if err := p.prepareResponse(); err != nil {
			p._setError(errorCloseConnectionNow, err)
			return err
		}
	}
	if err := p.output.flush(); err != nil {
		p._setError(errorCloseConnectionNow, err)
		return err
	}
	return nil
}

// clientCertificates serves Request.ClientCertificates.
func (p *http1Processor) clientCertificates() ([]*x509.Certificate, error) {
	if !p.transport.IsSecure() {
		return nil, errNoCertificates
	}
	if state := p.transport.TLSState(); state != nil && len(state.PeerCertificates) > 0 {
		return state.PeerCertificates, nil
	}
	requester, ok := p.transport.(certificateRequester)
	if !ok {
		return nil, errNoCertificates
	}
	in := &p.input
	if !in.isFinished() && !in.hasActiveFilter(filterBuffered) { // content is read during renegotiation
		buffered := in.addActiveFilter(filterBuffered).(*bufferedInputFilter)
		if err := buffered.fill(); err != nil {
			p._setError(errorCloseClean, err)
			return nil, err
		}
	}
	return requester.RequestCertificates()
}

func (p *http1Processor) asyncStarted() { p.async = true }

// notify asks the gate to invoke Process with event.
func (p *http1Processor) notify(event SocketEvent) {
	if notifier := p.notifier; notifier != nil {
		notifier(event)
	}
}

func (p *http1Processor) _setError(state int8, err error) {
	if state > p.errorState {
		p.errorState = state
	}
	p.keepAlive = false
	if err != nil && DebugLevel() >= 1 {
		p.logger.Logf("conn=%d error state=%d: %v", p.id, p.errorState, err)
	}
}
func (p *http1Processor) _isError() bool               { return p.errorState != errorNone }
func (p *http1Processor) _isIOAllowed() bool           { return p.errorState < errorCloseNow }
func (p *http1Processor) _isConnectionIOAllowed() bool { return p.errorState < errorCloseConnectionNow }

func (p *http1Processor) _setStage(stage int8) {
	p.infoLock.Lock()
	p.info.Stage = stageNames[stage]
	switch stage {
	case StageService:
		p.info.Method = p.request.Method()
		p.info.URI = p.request.URI()
		p.info.StartTime = p.startTime
	case StageKeepAlive:
		p.info.Method, p.info.URI = "", ""
		p.info.BytesReceived = 0
	}
	p.info.RequestsServed = p.requestsServed
	p.infoLock.Unlock()
}
func (p *http1Processor) _collectBytes() {
	received, sent := p.input.bytesRead, p.output.socket.written
	p.infoLock.Lock()
	delta := sent - p.info.BytesSent
	p.info.BytesReceived = received
	p.info.BytesSent = sent
	if !p.startTime.IsZero() {
		p.info.ProcessingTime = time.Since(p.startTime)
	}
	p.infoLock.Unlock()
	p.protocol.stats.bytesReceived.Add(received)
	p.protocol.stats.bytesSent.Add(delta)
	p.input.bytesRead = 0
}
func (p *http1Processor) snapshot() RequestInfo {
	p.infoLock.Lock()
	defer p.infoLock.Unlock()
	return p.info
}

func (p *http1Processor) _logAccess() {
	logger := p.protocol.accessLogger
	if logger == nil {
		return
	}
	var elapsed time.Duration
	if !p.startTime.IsZero() {
		elapsed = time.Since(p.startTime)
	}
	logger.Log(&p.request, &p.response, elapsed)
}
