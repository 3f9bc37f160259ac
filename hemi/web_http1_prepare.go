// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Request preparation (validation and content framing) and response preparation (framing, compression and connection headers).

package hemi

import (
	"bytes"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// _prepareProtocol checks the protocol of the request line. It runs before headers are parsed.
func (p *http1Processor) _prepareProtocol() error {
	req := &p.request
	protocol := req.UnsafeProtocol()
	switch {
	case bytes.Equal(protocol, bytesHTTP1_1):
		req.versionCode = Version1_1
		p.keepAlive = true
	case bytes.Equal(protocol, bytesHTTP1_0):
		req.versionCode = Version1_0
		p.keepAlive = false
	case len(protocol) == 0:
		req.versionCode = Version0_9
		p.keepAlive = false
		p.output.http09 = true
	case bytes.HasPrefix(protocol, []byte("HTTP/")):
		return newHTTPError(StatusHTTPVersionNotSupported, "unsupported http version")
	default:
		return newHTTPError(StatusBadRequest, "invalid protocol")
	}
	return nil
}

// prepareRequest validates the head and chooses the input filters for content.
func (p *http1Processor) prepareRequest() error {
	req, in := &p.request, &p.input
	protocol := p.protocol

	req.methodCode = webMethodCodes[string(req.UnsafeMethod())]
	if req.methodCode == MethodCONNECT {
		return newHTTPError(StatusNotImplemented, "connect is not implemented")
	}
	if req.versionCode == Version0_9 {
		if req.methodCode != MethodGET {
			return newHTTPError(StatusBadRequest, "http/0.9 allows get only")
		}
		if err := p._prepareTarget(); err != nil {
			return err
		}
		in.addActiveFilter(filterVoid)
		return nil
	}

	connection := req._fieldValues(hashConnection, bytesConnection)
	if httpguts.HeaderValuesContainsToken(connection, "close") {
		p.keepAlive = false
	} else if httpguts.HeaderValuesContainsToken(connection, "keep-alive") {
		p.keepAlive = true
	}

	if expects := req._fieldValues(hashExpect, bytesExpect); len(expects) > 0 && req.versionCode == Version1_1 {
		for _, expect := range expects {
			if !strings.EqualFold(strings.TrimSpace(expect), "100-continue") {
				return newHTTPError(StatusExpectationFailed, "unsupported expectation")
			}
		}
		p.expectation = true
	}

	if restricted := protocol.restrictedUserAgents; restricted != nil {
		if userAgent, ok := req._field(hashUserAgent, bytesUserAgent); ok && restricted.Match(userAgent) {
			p.keepAlive = false
		}
	}

	n, last := req._countFields(hashHost, bytesHost)
	if n > 1 {
		return newHTTPError(StatusBadRequest, "multiple host headers")
	}
	if n == 1 {
		req.hostIndex = int8(last + 1)
	} else if req.versionCode == Version1_1 {
		return newHTTPError(StatusBadRequest, "missing host header")
	}
	if err := p._prepareTarget(); err != nil {
		return err
	}
	if err := p._prepareHost(); err != nil {
		return err
	}
	if err := p._prepareFraming(); err != nil {
		return err
	}

	if p.expectation {
		in.swallowInput = false // until 100 is sent
		if protocol.continueImmediately {
			if err := p.sendContinue(); err != nil {
				return err
			}
		}
	}
	return nil
}

// _prepareTarget checks the request-target and turns an absolute-form into origin-form.
func (p *http1Processor) _prepareTarget() error {
	req := &p.request
	uri := req.bytesOf(req.uri)
	switch {
	case uri[0] == '/':
		return nil
	case len(uri) == 1 && uri[0] == '*':
		if req.methodCode != MethodOPTIONS {
			return newHTTPError(StatusBadRequest, "asterisk-form is for options only")
		}
		return nil
	}
	i := bytes.Index(uri, []byte("://"))
	if i <= 0 {
		return newHTTPError(StatusBadRequest, "invalid request target")
	}
	bytesToLower(uri[:i])
	if scheme := string(uri[:i]); scheme != "http" && scheme != "https" {
		return newHTTPError(StatusBadRequest, "unsupported scheme")
	}
	from := req.uri.from + int32(i) + 3
	edge := from
	for edge < req.uri.edge {
		if b := req.input.window.buffer[edge]; b == '/' || b == '?' {
			break
		}
		edge++
	}
	if edge == from {
		return newHTTPError(StatusBadRequest, "empty authority")
	}
	authority := req.input.window.buffer[from:edge]
	if bytes.IndexByte(authority, '@') >= 0 {
		return newHTTPError(StatusBadRequest, "userinfo in request target")
	}
	req.authority.set(from, edge)
	req.uri.from = edge
	if req.uri.edge == edge || req.input.window.buffer[edge] == '?' {
		req.uriSlash = true
	}
	if req.hostIndex > 0 {
		host := &req.fields[req.hostIndex-1]
		if !bytes.EqualFold(req.bytesOf(host.value), authority) {
			if !p.protocol.allowHostHeaderMismatch {
				return newHTTPError(StatusBadRequest, "host header does not match request target")
			}
			p.logger.Logf("conn=%d host %q replaced by %q", p.id, req.bytesOf(host.value), authority)
			host.value = req.authority // request line wins
		}
	}
	return nil
}

// _prepareHost validates the host and splits it into name and port.
func (p *http1Processor) _prepareHost() error {
	req := &p.request
	hostSpan := req.authority
	if req.hostIndex > 0 {
		hostSpan = req.fields[req.hostIndex-1].value
	}
	if p.transport.IsSecure() {
		req.serverPort = 443
	} else {
		req.serverPort = 80
	}
	host := req.bytesOf(hostSpan)
	if len(host) == 0 {
		if req.versionCode == Version1_1 {
			return newHTTPError(StatusBadRequest, "empty host")
		}
		return nil
	}
	if !httpguts.ValidHostHeader(string(host)) {
		return newHTTPError(StatusBadRequest, "invalid host")
	}
	nameEdge := int32(len(host))
	if host[0] == '[' { // ip-literal
		end := bytes.IndexByte(host, ']')
		if end < 0 {
			return newHTTPError(StatusBadRequest, "invalid host")
		}
		nameEdge = int32(end + 1)
	} else if colon := bytes.LastIndexByte(host, ':'); colon >= 0 {
		nameEdge = int32(colon)
	}
	if nameEdge < int32(len(host)) {
		if host[nameEdge] != ':' {
			return newHTTPError(StatusBadRequest, "invalid host")
		}
		if port := host[nameEdge+1:]; len(port) > 0 {
			n, ok := decToI64(port)
			if !ok || n == 0 || n > 65535 {
				return newHTTPError(StatusBadRequest, "invalid port")
			}
			req.serverPort = int32(n)
		}
	}
	req.serverName.set(hostSpan.from, hostSpan.from+nameEdge)
	return nil
}

// _prepareFraming chooses content framing. Transfer-Encoding wins over Content-Length.
func (p *http1Processor) _prepareFraming() error {
	req, in := &p.request, &p.input
	if codings := req._fieldValues(hashTransferEncoding, bytesTransferEncoding); len(codings) > 0 {
		if req.versionCode != Version1_1 {
			return newHTTPError(StatusBadRequest, "transfer-encoding in http/1.0")
		}
		chunked := false
		for _, coding := range codings {
			for _, token := range strings.Split(coding, ",") {
				token = strings.ToLower(strings.TrimSpace(token))
				switch token {
				case "", "identity":
				case "chunked":
					if chunked {
						return newHTTPError(StatusBadRequest, "chunked applied twice")
					}
					chunked = true
				default:
					if chunked {
						return newHTTPError(StatusBadRequest, "chunked is not the final coding")
					}
					return newHTTPError(StatusNotImplemented, "unsupported transfer coding")
				}
			}
		}
		if !chunked {
			return newHTTPError(StatusBadRequest, "chunked is not the final coding")
		}
		req._delFields(hashContentLength, bytesContentLength)
		in.addActiveFilter(filterChunked)
		req.framing = Framing{Mode: FramingChunked}
		req.contentLength = -1
		return nil
	}
	size := int64(-1)
	for i := range req.fields {
		field := &req.fields[i]
		if field.deleted || field.hash != hashContentLength || !bytes.Equal(req.bytesOf(field.name), bytesContentLength) {
			continue
		}
		n, ok := decToI64(req.bytesOf(field.value))
		if !ok || (size >= 0 && n != size) {
			return newHTTPError(StatusBadRequest, "invalid content-length")
		}
		size = n
	}
	if size >= 0 {
		in.addActiveFilter(filterIdentity).(*identityInputFilter).setLength(size)
		req.framing = Framing{Mode: FramingContentLength, Length: size}
		req.contentLength = size
		return nil
	}
	in.addActiveFilter(filterVoid)
	req.framing = Framing{Mode: FramingNone}
	return nil
}

// prepareResponse chooses output filters, writes the head and commits it.
func (p *http1Processor) prepareResponse() error {
	out := &p.output
	if out.committed {
		return nil
	}
	err := p._prepareResponse()
	if err != errHeadersTooLarge {
		return err
	}
	// Nothing is sent yet, so fall back to a minimal 500.
	p.logger.Warnf("conn=%d response headers too large", p.id)
	out._resetFilters()
	out.resetHead()
	resp := &p.response
	resp.nextRequest()
	resp.status = StatusInternalServerError
	resp.contentLength = 0
	p._setError(errorCloseClean, err)
	out.addActiveFilter(filterVoid)
	out.sendStatus(StatusInternalServerError)
	out.sendLine(http1BytesContentLengthZero)
	out.sendLine(http1BytesConnectionClose)
	if err := out.endHeaders(); err != nil {
		return err
	}
	return out.commit()
}

func (p *http1Processor) _prepareResponse() error {
	req, resp, out := &p.request, &p.response, &p.output
	status := resp.status

	if out.http09 {
		out.addActiveFilter(filterIdentity)
		p.keepAlive = false
		if resp.sendfile != nil {
			p.sendfileNative = false
		}
		return out.commit()
	}

	entityBody := true
	contentDelimitation := false
	if (status < 200 && status != StatusSwitchingProtocols) || status == StatusNoContent || status == StatusResetContent || status == StatusNotModified {
		out.addActiveFilter(filterVoid)
		entityBody = false
		contentDelimitation = true
		if status == StatusResetContent {
			resp.contentLength = 0
		} else {
			resp.contentLength = -1
		}
	}
	if req.IsHEAD() {
		out.addActiveFilter(filterVoid)
		contentDelimitation = true
	}

	if resp.sendfile != nil && entityBody && !req.IsHEAD() && p.transport.SendfileSupported() && !p._isError() {
		out.addActiveFilter(filterVoid)
		p.sendfileNative = true
		contentDelimitation = true
	} else if req.IsHEAD() || !entityBody {
		resp.sendfile = nil
	}

	useCompression, addVary := false, false
	if entityBody && resp.sendfile == nil {
		useCompression, addVary = p._useCompression()
	}

	if p.keepAlive && (statusDropsConnection(status) || p._isError()) {
		p.keepAlive = false
	}

	contentLength := resp.contentLength
	if useCompression {
		contentLength = -1
	}
	out.sendStatus(status)
	for _, header := range resp.headers {
		out.sendHeader(header[0], header[1])
	}
	if resp.contentType != "" {
		out.sendHeader("content-type", resp.contentType)
	}
	if addVary {
		out.sendLine(http1BytesVaryAcceptEncoding)
	}
	http11 := req.versionCode == Version1_1
	switch {
	case http11 && entityBody && len(resp.trailers) > 0:
		out.addActiveFilter(filterChunked)
		out.chunked.trailers = resp._appendTrailers
		out.sendLine(http1BytesTransferChunked)
		contentDelimitation = true
	case contentLength >= 0:
		var buf [20]byte
		n := i64ToDec(contentLength, buf[:])
		out.sendHeader("content-length", string(buf[:n]))
		out.addActiveFilter(filterIdentity).(*identityOutputFilter).setLength(contentLength)
		contentDelimitation = true
	case http11 && entityBody && p.keepAlive:
		out.addActiveFilter(filterChunked)
		out.chunked.trailers = resp._appendTrailers
		out.sendLine(http1BytesTransferChunked)
		contentDelimitation = true
	default:
		out.addActiveFilter(filterIdentity)
	}
	if useCompression {
		out.addActiveFilter(filterGzip)
		out.sendLine(http1BytesContentEncodingGzip)
	}

	if !resp.HasHeader("date") && status >= 200 {
		out.sendHeader("date", httpDate())
	}
	if server := p.protocol.server; server != "" && !resp.HasHeader("server") {
		out.sendHeader("server", server)
	}

	if !contentDelimitation {
		p.keepAlive = false
	}
	p._checkExpectation()
	if !p.keepAlive {
		out.sendLine(http1BytesConnectionClose)
	} else if req.versionCode == Version1_0 {
		out.sendLine(http1BytesConnectionKeepAlive)
	}
	if err := out.endHeaders(); err != nil {
		return err
	}
	if DebugLevel() >= 2 {
		p.logger.Logf("conn=%d response head: %q", p.id, out.head.buffer[:out.head.lim])
	}
	return out.commit()
}

// _useCompression decides whether the response is gzipped. Once the decision depends on Accept-Encoding,
// accept-encoding is merged into an existing Vary, or addVary asks for a new Vary header.
func (p *http1Processor) _useCompression() (use bool, addVary bool) {
	protocol := p.protocol
	if protocol.compression == compressionOff {
		return false, false
	}
	req, resp := &p.request, &p.response
	if resp.HasHeader("content-encoding") {
		return false, false
	}
	if etag, ok := resp.Header("etag"); ok && !strings.HasPrefix(etag, "W/") { // strong etags identify encoded bytes
		return false, false
	}
	force := protocol.compression == compressionForce
	if !force {
		if resp.contentLength >= 0 && resp.contentLength <= protocol.compressionMinSize { // must exceed the minimum
			return false, false
		}
		if !protocol.isCompressible(resp.contentType) {
			return false, false
		}
	}
	if vary, ok := resp.Header("vary"); !ok {
		addVary = true
	} else if vary != "*" && !httpguts.HeaderValuesContainsToken([]string{vary}, "accept-encoding") {
		resp.SetHeader("vary", vary+", accept-encoding")
	}
	if !httpguts.HeaderValuesContainsToken(req._fieldValues(hashAcceptEncoding, bytesAcceptEncoding), "gzip") {
		return false, addVary
	}
	if !force && protocol.noCompressionUserAgents != nil {
		if userAgent, ok := req._field(hashUserAgent, bytesUserAgent); ok && protocol.noCompressionUserAgents.Match(userAgent) {
			return false, addVary
		}
	}
	return true, addVary
}
