// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1 incoming side: request line and header parser, and the raw body source.

package hemi

import (
	"errors"
	"io"
	"time"
)

const ( // request line phases
	lineBlank      = iota // skipping CR and LF before a request
	linePreface           // checking for the HTTP/2 client preface
	lineMethod            // scanning the method token
	lineTargetGap         // skipping blanks before the request-target
	lineTarget            // scanning the request-target
	lineProtocolGap       // skipping blanks before the protocol
	lineProtocol          // scanning the protocol token
	lineEnd               // expecting the end of line
	lineDone
)

const ( // header field phases
	fieldStart     = iota // at the beginning of a line
	fieldName             // scanning a field name
	fieldValueGap         // skipping blanks before a field value
	fieldValue            // scanning a field value
	fieldMultiLine        // after a value line, looking for an obs-fold
	fieldFoldGap          // skipping blanks of a continuation line
	fieldSkipLine         // skipping an illegal line
	fieldDone
)

var errHTTP2Preface = errors.New("http/2 client preface")

// http1Input parses the head of requests and serves as the first input stage of their bodies.
// Request line and header elements are stored as spans into the window, which therefore always holds the head at offset 0.
type http1Input struct {
	// Assocs
	transport Transport
	request   *Request
	logger    Logger
	// States (stocks)
	stockWindow [_2K]byte
	// States (controlled)
	identity identityInputFilter
	chunked  chunkedInputFilter
	void     voidInputFilter
	buffered bufferedInputFilter
	// States (non-zeros)
	window              window
	maxHeadSize         int32
	rejectIllegalHeader bool
	keepAliveTimeout    time.Duration
	connectionTimeout   time.Duration
	uploadTimeout       time.Duration // 0 means connectionTimeout is used for content too
	swallowInput        bool
	// States (zeros)
	http1Input0
}
type http1Input0 struct { // for fast reset, entirely
	active       [maxActiveFilters]inputFilter
	numActive    int8
	lineState    int8
	fieldState   int8
	sawCR        bool
	started      bool  // got any byte of current request
	timeoutSet   bool  // read timeout for current phase is set
	bodyTimeout  bool  // read timeout for content is set
	elemBack     int32 // start of the element being scanned
	nameBack     int32
	nameEdge     int32
	nameHash     uint16
	valueBack    int32
	valueEdge    int32 // write cursor while unfolding
	valueLast    int32 // edge of the last significant byte
	headEnd      int32
	bytesRead    int64 // bytes read from transport for current request
	illegalLines int32 // lines skipped in lenient mode
}

func (in *http1Input) onUse(transport Transport, request *Request, logger Logger) {
	in.transport = transport
	in.request = request
	in.logger = logger
	in.window.init(in.stockWindow[:])
	in.window.setMark()
	in.swallowInput = true
}
func (in *http1Input) onEnd() {
	in._resetFilters()
	in.window.reset()
	in.http1Input0 = http1Input0{}
	in.transport = nil
	in.request = nil
	in.logger = nil
}

// nextRequest keeps pipelined bytes and resets everything else.
func (in *http1Input) nextRequest() {
	in._resetFilters()
	w := &in.window
	w.clearMark()
	w.compact()
	w.setMark()
	started := w.lim > 0
	in.http1Input0 = http1Input0{}
	in.started = started
	in.swallowInput = true
}

// parseRequestLine parses the request line. It returns false without error when more bytes are needed.
// keptAlive tells whether the connection has served a request already.
func (in *http1Input) parseRequestLine(keptAlive bool) (bool, error) {
	if in.lineState == lineDone {
		return true, nil
	}
	if !in.timeoutSet {
		in.timeoutSet = true
		if keptAlive && !in.started {
			in.transport.SetReadTimeout(in.keepAliveTimeout)
		} else {
			in.transport.SetReadTimeout(in.connectionTimeout)
		}
	}
	w := &in.window
	req := in.request
	for {
		if w.pos == w.lim {
			if ok, err := in._fillHead(keptAlive); !ok {
				return false, err
			}
		}
		b := w.buffer[w.pos]
		switch in.lineState {
		case lineBlank:
			if b == '\r' || b == '\n' {
				w.pos++
				continue
			}
			w.clearMark()
			w.compact() // request starts at 0
			w.setMark()
			if b == 'P' {
				in.lineState = linePreface
			} else {
				in.lineState = lineMethod
			}
			in.elemBack = w.pos
		case linePreface:
			avail := w.lim - w.pos
			n := int32(len(bytesHTTP2Preface))
			if avail < n {
				n = avail
			}
			if string(w.buffer[w.pos:w.pos+n]) != string(bytesHTTP2Preface[:n]) {
				in.lineState = lineMethod
				continue
			}
			if n == int32(len(bytesHTTP2Preface)) {
				return false, errHTTP2Preface
			}
			if ok, err := in._fillHead(keptAlive); !ok {
				return false, err
			}
		case lineMethod:
			if b == ' ' || b == '\t' {
				if w.pos == in.elemBack {
					return false, newHTTPError(StatusBadRequest, "empty method")
				}
				req.method.set(in.elemBack, w.pos)
				in.lineState = lineTargetGap
			} else if b == '\r' || b == '\n' {
				return false, newHTTPError(StatusBadRequest, "missing request target")
			} else if webTchar[b] == 0 {
				return false, newHTTPError(StatusBadRequest, "invalid character in method")
			}
			w.pos++
		case lineTargetGap:
			if b == ' ' || b == '\t' {
				w.pos++
				continue
			}
			if b == '\r' || b == '\n' {
				return false, newHTTPError(StatusBadRequest, "missing request target")
			}
			in.elemBack = w.pos
			req.queryAt = -1
			in.lineState = lineTarget
		case lineTarget:
			if b == ' ' || b == '\t' {
				req.uri.set(in.elemBack, w.pos)
				in.lineState = lineProtocolGap
				w.pos++
			} else if b == '\r' || b == '\n' { // HTTP/0.9
				req.uri.set(in.elemBack, w.pos)
				req.protocol.set(w.pos, w.pos)
				in.lineState = lineEnd
			} else if b == '?' && req.queryAt == -1 {
				req.queryAt = w.pos
				w.pos++
			} else if webTargetIllegal[b] != 0 {
				return false, newHTTPError(StatusBadRequest, "invalid character in request target")
			} else {
				w.pos++
			}
		case lineProtocolGap:
			if b == ' ' || b == '\t' {
				w.pos++
				continue
			}
			in.elemBack = w.pos
			if b == '\r' || b == '\n' { // HTTP/0.9 with a trailing space
				req.protocol.set(w.pos, w.pos)
				in.lineState = lineEnd
			} else {
				in.lineState = lineProtocol
			}
		case lineProtocol:
			if b == '\r' || b == '\n' {
				req.protocol.set(in.elemBack, w.pos)
				in.lineState = lineEnd
				continue
			}
			if !byteIsProtocol(b) {
				return false, newHTTPError(StatusBadRequest, "invalid character in protocol")
			}
			w.pos++
		case lineEnd:
			if b == '\r' {
				if in.sawCR {
					return false, newHTTPError(StatusBadRequest, "bad end of request line")
				}
				in.sawCR = true
				w.pos++
				continue
			}
			if b != '\n' {
				return false, newHTTPError(StatusBadRequest, "bad end of request line")
			}
			w.pos++
			in.sawCR = false
			if w.pos > in.maxHeadSize {
				return false, newHTTPError(StatusURITooLong, "request line too long")
			}
			in.lineState = lineDone
			return true, nil
		default:
			BugExitln("unknown line state")
		}
	}
}

// parseHeaders parses the header section. It returns false without error when more bytes are needed.
func (in *http1Input) parseHeaders() (bool, error) {
	if in.fieldState == fieldDone {
		return true, nil
	}
	w := &in.window
	for {
		if w.pos == w.lim {
			if ok, err := in._fillHead(true); !ok {
				return false, err
			}
		}
		b := w.buffer[w.pos]
		switch in.fieldState {
		case fieldStart:
			if b == '\r' {
				if in.sawCR {
					return false, newHTTPError(StatusBadRequest, "bad end of headers")
				}
				in.sawCR = true
				w.pos++
				continue
			}
			if b == '\n' {
				w.pos++
				in.sawCR = false
				if w.pos > in.maxHeadSize {
					return false, newHTTPError(StatusRequestHeaderFieldsTooLarge, "request headers too large")
				}
				in.headEnd = w.pos
				in.fieldState = fieldDone
				return true, nil
			}
			if in.sawCR {
				return false, newHTTPError(StatusBadRequest, "bad end of headers")
			}
			in.nameBack = w.pos
			in.nameHash = 0
			in.fieldState = fieldName
		case fieldName:
			if b == ':' {
				if w.pos == in.nameBack {
					if err := in._illegalLine("empty header name"); err != nil {
						return false, err
					}
					continue
				}
				in.nameEdge = w.pos
				in.fieldState = fieldValueGap
				w.pos++
				continue
			}
			switch webTchar[b] {
			case 2: // A-Z
				b += 0x20
				w.buffer[w.pos] = b
			case 0:
				if err := in._illegalLine("invalid character in header name"); err != nil {
					return false, err
				}
				continue
			}
			in.nameHash += uint16(b)
			w.pos++
		case fieldValueGap:
			if b == ' ' || b == '\t' {
				w.pos++
				continue
			}
			in.valueBack = w.pos
			in.valueEdge = w.pos
			in.valueLast = w.pos
			in.fieldState = fieldValue
		case fieldValue:
			if b == '\r' {
				if in.sawCR {
					return false, newHTTPError(StatusBadRequest, "bad end of header line")
				}
				in.sawCR = true
				w.pos++
				continue
			}
			if b == '\n' {
				in.sawCR = false
				in.fieldState = fieldMultiLine
				w.pos++
				continue
			}
			if in.sawCR || byteIsCtl(b) {
				return false, newHTTPError(StatusBadRequest, "invalid character in header value")
			}
			w.buffer[in.valueEdge] = b
			in.valueEdge++
			if b != ' ' && b != '\t' {
				in.valueLast = in.valueEdge
			}
			w.pos++
		case fieldMultiLine:
			if b == ' ' || b == '\t' { // obs-fold, unfolded with one space
				if in.valueLast > in.valueBack {
					w.buffer[in.valueLast] = ' '
					in.valueEdge = in.valueLast + 1
				} else {
					in.valueEdge = in.valueBack
				}
				in.fieldState = fieldFoldGap
				w.pos++
				continue
			}
			in.request.addField(in.nameHash, in.nameBack, in.nameEdge, in.valueBack, in.valueLast)
			in.fieldState = fieldStart
		case fieldFoldGap:
			if b == ' ' || b == '\t' {
				w.pos++
				continue
			}
			in.fieldState = fieldValue
		case fieldSkipLine:
			if b == '\n' {
				in.sawCR = false
				in.fieldState = fieldStart
			}
			w.pos++
		default:
			BugExitln("unknown field state")
		}
	}
}

// skipHeaders ends the head right after the request line. HTTP/0.9 requests have no headers.
func (in *http1Input) skipHeaders() {
	in.headEnd = in.window.pos
	in.fieldState = fieldDone
}

func (in *http1Input) _illegalLine(reason string) error {
	if in.rejectIllegalHeader {
		in.logger.Logf("illegal header line rejected: %s", reason)
		return newHTTPError(StatusBadRequest, reason)
	}
	in.illegalLines++
	in.logger.Logf("illegal header line skipped: %s", reason)
	in.fieldState = fieldSkipLine
	return nil
}

// _fillHead reads more bytes of the head into the window.
func (in *http1Input) _fillHead(keptAlive bool) (bool, error) {
	w := &in.window
	if w.lim-w.mark >= in.maxHeadSize {
		return false, in._headTooLarge()
	}
	if w.space() == 0 {
		if _, ok := w.grow(in.maxHeadSize); !ok {
			return false, in._headTooLarge()
		}
	}
	n, err := in.transport.Read(w.tail(), false)
	if n > 0 {
		w.extend(int32(n))
		in.bytesRead += int64(n)
		if !in.started {
			in.started = true
			if keptAlive {
				in.transport.SetReadTimeout(in.connectionTimeout)
			}
		}
		return true, nil
	}
	if err != nil {
		return false, classifyReadError(err)
	}
	return false, nil
}
func (in *http1Input) _headTooLarge() error {
	if in.lineState != lineDone {
		return newHTTPError(StatusURITooLong, "request line too long")
	}
	return newHTTPError(StatusRequestHeaderFieldsTooLarge, "request headers too large")
}

// fetch implements inputStage for the first filter of a body.
func (in *http1Input) fetch() ([]byte, error) {
	w := &in.window
	if w.pos == w.lim {
		if ok, err := in._fillBody(); !ok {
			return nil, err
		}
	}
	p := w.buffer[w.pos:w.lim]
	w.pos = w.lim
	return p, nil
}
func (in *http1Input) unread(n int) { in.window.pos -= int32(n) }

// _fillBody reads more body bytes behind the head. Bytes of the head stay untouched.
func (in *http1Input) _fillBody() (bool, error) {
	w := &in.window
	w.pos, w.lim = in.headEnd, in.headEnd
	w.ensureSpace(_4K)
	if !in.bodyTimeout {
		in.bodyTimeout = true
		if in.uploadTimeout > 0 {
			in.transport.SetReadTimeout(in.uploadTimeout)
		} else {
			in.transport.SetReadTimeout(in.connectionTimeout)
		}
	}
	n, err := in.transport.Read(w.tail(), true)
	if n > 0 {
		w.extend(int32(n))
		in.bytesRead += int64(n)
		return true, nil
	}
	if err != nil {
		return false, classifyReadError(err)
	}
	return false, nil
}

func (in *http1Input) addActiveFilter(kind int8) inputFilter {
	var filter inputFilter
	switch kind {
	case filterIdentity:
		filter = &in.identity
	case filterChunked:
		filter = &in.chunked
	case filterVoid:
		filter = &in.void
	case filterBuffered:
		filter = &in.buffered
	default:
		BugExitln("unknown input filter")
	}
	if in.numActive == maxActiveFilters {
		BugExitln("too many input filters")
	}
	if in.numActive == 0 {
		filter.setPrev(in)
	} else {
		filter.setPrev(in.active[in.numActive-1])
	}
	in.active[in.numActive] = filter
	in.numActive++
	return filter
}
func (in *http1Input) hasActiveFilter(kind int8) bool {
	for i := int8(0); i < in.numActive; i++ {
		if in.active[i].kind() == kind {
			return true
		}
	}
	return false
}
func (in *http1Input) _resetFilters() {
	for i := int8(0); i < in.numActive; i++ {
		in.active[i].recycle()
		in.active[i] = nil
	}
	in.numActive = 0
}

// read copies decoded body bytes into p.
func (in *http1Input) read(p []byte) (int, error) {
	if in.numActive == 0 {
		return 0, io.EOF
	}
	last := in.active[in.numActive-1]
	for {
		q, err := last.fetch()
		if err != nil {
			return 0, err
		}
		if len(q) == 0 {
			continue
		}
		n := copy(p, q)
		if n < len(q) {
			last.unread(len(q) - n)
		}
		return n, nil
	}
}

// endRequest swallows the rest of the body so the next request can be parsed.
func (in *http1Input) endRequest() error {
	if !in.swallowInput || in.numActive == 0 {
		return nil
	}
	return in.active[in.numActive-1].finish()
}

func (in *http1Input) isFinished() bool {
	if in.numActive == 0 {
		return true
	}
	return in.active[in.numActive-1].isFinished()
}

// leftover returns bytes read ahead behind the current position.
func (in *http1Input) leftover() []byte { return in.window.unread() }
