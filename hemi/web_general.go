// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// General HTTP elements: versions, methods, statuses, field names, byte tables and errors.

package hemi

import (
	"errors"
	"strconv"
)

const ( // version codes
	Version0_9 = 0
	Version1_0 = 1
	Version1_1 = 2
)

var webVersionStrings = [...]string{
	Version0_9: "HTTP/0.9",
	Version1_0: "HTTP/1.0",
	Version1_1: "HTTP/1.1",
}

const ( // method codes
	MethodGET     = 0x00000001
	MethodHEAD    = 0x00000002
	MethodPOST    = 0x00000004
	MethodPUT     = 0x00000008
	MethodDELETE  = 0x00000010
	MethodCONNECT = 0x00000020
	MethodOPTIONS = 0x00000040
	MethodTRACE   = 0x00000080
	MethodPATCH   = 0x00000100
)

var webMethodCodes = map[string]uint32{
	"GET":     MethodGET,
	"HEAD":    MethodHEAD,
	"POST":    MethodPOST,
	"PUT":     MethodPUT,
	"DELETE":  MethodDELETE,
	"CONNECT": MethodCONNECT,
	"OPTIONS": MethodOPTIONS,
	"TRACE":   MethodTRACE,
	"PATCH":   MethodPATCH,
}

const ( // status codes
	// 1XX
	StatusContinue           = 100
	StatusSwitchingProtocols = 101
	StatusProcessing         = 102
	StatusEarlyHints         = 103
	// 2XX
	StatusOK                         = 200
	StatusCreated                    = 201
	StatusAccepted                   = 202
	StatusNonAuthoritativeInfomation = 203
	StatusNoContent                  = 204
	StatusResetContent               = 205
	StatusPartialContent             = 206
	// 3XX
	StatusMultipleChoices   = 300
	StatusMovedPermanently  = 301
	StatusFound             = 302
	StatusSeeOther          = 303
	StatusNotModified       = 304
	StatusTemporaryRedirect = 307
	StatusPermanentRedirect = 308
	// 4XX
	StatusBadRequest                  = 400
	StatusUnauthorized                = 401
	StatusForbidden                   = 403
	StatusNotFound                    = 404
	StatusMethodNotAllowed            = 405
	StatusNotAcceptable               = 406
	StatusRequestTimeout              = 408
	StatusConflict                    = 409
	StatusGone                        = 410
	StatusLengthRequired              = 411
	StatusPreconditionFailed          = 412
	StatusContentTooLarge             = 413
	StatusURITooLong                  = 414
	StatusUnsupportedMediaType        = 415
	StatusRangeNotSatisfiable         = 416
	StatusExpectationFailed           = 417
	StatusMisdirectedRequest          = 421
	StatusUnprocessableEntity         = 422
	StatusUpgradeRequired             = 426
	StatusTooManyRequests             = 429
	StatusRequestHeaderFieldsTooLarge = 431
	// 5XX
	StatusInternalServerError     = 500
	StatusNotImplemented          = 501
	StatusBadGateway              = 502
	StatusServiceUnavailable      = 503
	StatusGatewayTimeout          = 504
	StatusHTTPVersionNotSupported = 505
)

var http1Controls = [...][]byte{ // status lines, indexed by status
	// 1XX
	StatusContinue:           []byte("HTTP/1.1 100 Continue\r\n"),
	StatusSwitchingProtocols: []byte("HTTP/1.1 101 Switching Protocols\r\n"),
	StatusProcessing:         []byte("HTTP/1.1 102 Processing\r\n"),
	StatusEarlyHints:         []byte("HTTP/1.1 103 Early Hints\r\n"),
	// 2XX
	StatusOK:                         []byte("HTTP/1.1 200 OK\r\n"),
	StatusCreated:                    []byte("HTTP/1.1 201 Created\r\n"),
	StatusAccepted:                   []byte("HTTP/1.1 202 Accepted\r\n"),
	StatusNonAuthoritativeInfomation: []byte("HTTP/1.1 203 Non-Authoritative Information\r\n"),
	StatusNoContent:                  []byte("HTTP/1.1 204 No Content\r\n"),
	StatusResetContent:               []byte("HTTP/1.1 205 Reset Content\r\n"),
	StatusPartialContent:             []byte("HTTP/1.1 206 Partial Content\r\n"),
	// 3XX
	StatusMultipleChoices:   []byte("HTTP/1.1 300 Multiple Choices\r\n"),
	StatusMovedPermanently:  []byte("HTTP/1.1 301 Moved Permanently\r\n"),
	StatusFound:             []byte("HTTP/1.1 302 Found\r\n"),
	StatusSeeOther:          []byte("HTTP/1.1 303 See Other\r\n"),
	StatusNotModified:       []byte("HTTP/1.1 304 Not Modified\r\n"),
	StatusTemporaryRedirect: []byte("HTTP/1.1 307 Temporary Redirect\r\n"),
	StatusPermanentRedirect: []byte("HTTP/1.1 308 Permanent Redirect\r\n"),
	// 4XX
	StatusBadRequest:                  []byte("HTTP/1.1 400 Bad Request\r\n"),
	StatusUnauthorized:                []byte("HTTP/1.1 401 Unauthorized\r\n"),
	StatusForbidden:                   []byte("HTTP/1.1 403 Forbidden\r\n"),
	StatusNotFound:                    []byte("HTTP/1.1 404 Not Found\r\n"),
	StatusMethodNotAllowed:            []byte("HTTP/1.1 405 Method Not Allowed\r\n"),
	StatusNotAcceptable:               []byte("HTTP/1.1 406 Not Acceptable\r\n"),
	StatusRequestTimeout:              []byte("HTTP/1.1 408 Request Timeout\r\n"),
	StatusConflict:                    []byte("HTTP/1.1 409 Conflict\r\n"),
	StatusGone:                        []byte("HTTP/1.1 410 Gone\r\n"),
	StatusLengthRequired:              []byte("HTTP/1.1 411 Length Required\r\n"),
	StatusPreconditionFailed:          []byte("HTTP/1.1 412 Precondition Failed\r\n"),
	StatusContentTooLarge:             []byte("HTTP/1.1 413 Content Too Large\r\n"),
	StatusURITooLong:                  []byte("HTTP/1.1 414 URI Too Long\r\n"),
	StatusUnsupportedMediaType:        []byte("HTTP/1.1 415 Unsupported Media Type\r\n"),
	StatusRangeNotSatisfiable:         []byte("HTTP/1.1 416 Range Not Satisfiable\r\n"),
	StatusExpectationFailed:           []byte("HTTP/1.1 417 Expectation Failed\r\n"),
	StatusMisdirectedRequest:          []byte("HTTP/1.1 421 Misdirected Request\r\n"),
	StatusUnprocessableEntity:         []byte("HTTP/1.1 422 Unprocessable Entity\r\n"),
	StatusUpgradeRequired:             []byte("HTTP/1.1 426 Upgrade Required\r\n"),
	StatusTooManyRequests:             []byte("HTTP/1.1 429 Too Many Requests\r\n"),
	StatusRequestHeaderFieldsTooLarge: []byte("HTTP/1.1 431 Request Header Fields Too Large\r\n"),
	// 5XX
	StatusInternalServerError:     []byte("HTTP/1.1 500 Internal Server Error\r\n"),
	StatusNotImplemented:          []byte("HTTP/1.1 501 Not Implemented\r\n"),
	StatusBadGateway:              []byte("HTTP/1.1 502 Bad Gateway\r\n"),
	StatusServiceUnavailable:      []byte("HTTP/1.1 503 Service Unavailable\r\n"),
	StatusGatewayTimeout:          []byte("HTTP/1.1 504 Gateway Timeout\r\n"),
	StatusHTTPVersionNotSupported: []byte("HTTP/1.1 505 HTTP Version Not Supported\r\n"),
}

// http1StatusLine appends the status line of status to p.
func http1StatusLine(p []byte, status int16) []byte {
	if status >= 0 && int(status) < len(http1Controls) && http1Controls[status] != nil {
		return append(p, http1Controls[status]...)
	}
	p = append(p, "HTTP/1.1 "...)
	p = strconv.AppendInt(p, int64(status), 10)
	return append(p, " \r\n"...) // empty reason phrase
}

// statusDropsConnection reports statuses after which the connection is never reused.
func statusDropsConnection(status int16) bool {
	switch status {
	case StatusBadRequest, StatusRequestTimeout, StatusLengthRequired, StatusContentTooLarge, StatusURITooLong,
		StatusInternalServerError, StatusServiceUnavailable, StatusNotImplemented:
		return true
	}
	return false
}

const ( // hashes of field names, see bytesHash()
	hashAcceptEncoding   = 1508
	hashConnection       = 1072
	hashContentLength    = 1450
	hashExpect           = 649
	hashHost             = 446
	hashTransferEncoding = 1753
	hashUpgrade          = 744
	hashUserAgent        = 1019
)

var ( // byteses
	bytesCRLF       = []byte("\r\n")
	bytesColonSpace = []byte(": ")

	bytesHTTP1_0 = []byte("HTTP/1.0")
	bytesHTTP1_1 = []byte("HTTP/1.1")

	bytesAcceptEncoding   = []byte("accept-encoding")
	bytesConnection       = []byte("connection")
	bytesContentLength    = []byte("content-length")
	bytesExpect           = []byte("expect")
	bytesHost             = []byte("host")
	bytesTransferEncoding = []byte("transfer-encoding")
	bytesUpgrade          = []byte("upgrade")
	bytesUserAgent        = []byte("user-agent")

	bytesHTTP2Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")
)

var ( // http/1 byteses
	http1BytesContinue            = []byte("HTTP/1.1 100 Continue\r\n\r\n")
	http1BytesConnectionClose     = []byte("connection: close\r\n")
	http1BytesConnectionKeepAlive = []byte("connection: keep-alive\r\n")
	http1BytesTransferChunked     = []byte("transfer-encoding: chunked\r\n")
	http1BytesContentEncodingGzip = []byte("content-encoding: gzip\r\n")
	http1BytesVaryAcceptEncoding  = []byte("vary: accept-encoding\r\n")
	http1BytesConnectionUpgrade   = []byte("connection: upgrade\r\n")
	http1BytesZeroCRLF            = []byte("0\r\n")
	http1BytesZeroCRLFCRLF        = []byte("0\r\n\r\n")
	http1BytesContentLengthZero   = []byte("content-length: 0\r\n")
)

var webTchar = [256]int8{ // tchar = ALPHA / DIGIT / "!" / "#" / "$" / "%" / "&" / "'" / "*" / "+" / "-" / "." / "^" / "_" / "`" / "|" / "~"
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 1, 0, 1, 1, 1, 1, 1, 0, 0, 1, 1, 0, 1, 1, 0, //   !   # $ % & '     * +   - .
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, // 0 1 2 3 4 5 6 7 8 9
	0, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, //   A B C D E F G H I J K L M N O
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 0, 0, 0, 1, 3, // P Q R S T U V W X Y Z       ^ _
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, // ` a b c d e f g h i j k l m n o
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1, 0, 1, 0, // p q r s t u v w x y z   |   ~
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}
var webTargetIllegal = [256]int8{ // 1 = byte not allowed in a request-target. Non-ASCII bytes are allowed.
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // SP   "
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1, 0, //                         <   >
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1, 0, //                         \   ^
	1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // `
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 0, 1, //                       { | }   DEL
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func byteIsProtocol(b byte) bool { // HTTP/1.1
	return b == 'H' || b == 'T' || b == 'P' || b == '/' || b == '.' || byteIsDigit(b)
}
func byteIsCtl(b byte) bool { return (b < 0x20 && b != '\t') || b == 0x7f }

// httpError is a protocol failure that maps to a response status.
type httpError struct {
	status int16
	reason string
}

func (e *httpError) Error() string { return strconv.Itoa(int(e.status)) + " " + e.reason }

func newHTTPError(status int16, reason string) *httpError { return &httpError{status, reason} }

var ( // transport errors
	errReadTimeout  = errors.New("read timeout")
	errWriteTimeout = errors.New("write timeout")
	errEndOfStream  = errors.New("end of stream")
)

var ( // framing errors
	errBadChunk          = newHTTPError(StatusBadRequest, "bad chunk")
	errExtensionTooLarge = newHTTPError(StatusContentTooLarge, "chunk extension too large")
	errTrailersTooLarge  = newHTTPError(StatusRequestHeaderFieldsTooLarge, "trailers too large")
	errBadTrailer        = newHTTPError(StatusBadRequest, "bad trailer")
	errSwallowTooLarge   = errors.New("unread content exceeds max swallow size")
	errSaveTooLarge      = newHTTPError(StatusContentTooLarge, "content too large to save")
	errHeadersTooLarge   = errors.New("response headers too large")
	errAlreadyCommitted  = errors.New("response already committed")
)
