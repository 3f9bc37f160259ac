// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Transport is the connection seen by a processor. Gates implement it.

package hemi

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"time"
)

// Transport
type Transport interface {
	// Read reads into p. If block is false, (0, nil) means no bytes are available right now.
	// A closed peer gives io.EOF, an expired read timeout gives an error with Timeout() true.
	Read(p []byte, block bool) (int, error)
	// Write writes p. A short count with nil error means the rest would block; the caller keeps it.
	Write(p []byte) (int, error)
	SetReadTimeout(timeout time.Duration)
	RegisterWriteInterest()
	SendfileSupported() bool
	IsSecure() bool
	TLSState() *tls.ConnectionState
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	Close() error
}

// certificateRequester is implemented by secure transports that can ask the peer for a certificate after the handshake.
type certificateRequester interface {
	RequestCertificates() ([]*x509.Certificate, error)
}

// SocketEvent tells a processor why it is invoked.
type SocketEvent int8

const (
	EventRead          SocketEvent = iota // readable, or first invocation
	EventWrite                            // writable again
	EventAsyncComplete                    // the application completed an asynchronous request
	EventSendfileDone                     // the gate finished a sendfile
	EventTimeout                          // a read or async timeout expired
	EventStop                             // the gate is stopping
)

// Disposition tells a gate what to do with the connection after a processor returns.
type Disposition int8

const (
	DispositionOpen      Disposition = iota // keep-alive, idle and ready for the next request
	DispositionLong                         // in the middle of a request: wait for more input, an async completion or a write drain
	DispositionClosed                       // close the connection
	DispositionUpgrading                    // hand the connection to an upgrade protocol
	DispositionSendfile                     // perform a sendfile, then report EventSendfileDone
)

var dispositionNames = [...]string{
	DispositionOpen:      "open",
	DispositionLong:      "long",
	DispositionClosed:    "closed",
	DispositionUpgrading: "upgrading",
	DispositionSendfile:  "sendfile",
}

func (d Disposition) String() string { return dispositionNames[d] }

// SendfileData describes a file region to send after the headers.
type SendfileData struct {
	Path      string
	Offset    int64
	Length    int64
	KeepAlive bool // whether the connection is reused after the transfer
}

func classifyReadError(err error) error {
	if err == io.EOF || errors.Is(err, net.ErrClosed) {
		return errEndOfStream
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errReadTimeout
	}
	return err
}
func classifyWriteError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errWriteTimeout
	}
	return err
}
