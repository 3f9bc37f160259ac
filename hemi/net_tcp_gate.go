// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// TCP gate. One goroutine per connection, blocking reads and writes with deadlines, optional TLS.

package hemi

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hexinfra/hotline/hemi/library/system"
	"github.com/puzpuzpuz/xsync/v3"
)

// TCPGate
type TCPGate struct {
	// Assocs
	protocol *HTTP1Protocol
	// States
	address      string
	tlsConfig    *tls.Config
	maxConns     int32
	writeTimeout time.Duration
	listener     *net.TCPListener
	numConns     atomic.Int32
	shut         atomic.Bool
	conns        *xsync.MapOf[*tcpConn, struct{}]
	waitConns    sync.WaitGroup
}

func NewTCPGate(protocol *HTTP1Protocol, config *GateConfig, tlsConfig *tls.Config) *TCPGate {
	g := new(TCPGate)
	g.protocol = protocol
	g.address = config.Address
	g.tlsConfig = tlsConfig
	g.maxConns = config.MaxConns
	g.writeTimeout = config.WriteTimeout
	if g.writeTimeout <= 0 {
		g.writeTimeout = 60 * time.Second
	}
	g.conns = xsync.NewMapOf[*tcpConn, struct{}]()
	return g
}

func (g *TCPGate) Open() error {
	listenConfig := new(net.ListenConfig)
	listenConfig.Control = func(network string, address string, rawConn syscall.RawConn) error {
		if err := system.SetReusePort(rawConn); err != nil {
			return err
		}
		return system.SetDeferAccept(rawConn)
	}
	listener, err := listenConfig.Listen(context.Background(), "tcp", g.address)
	if err != nil {
		return err
	}
	g.listener = listener.(*net.TCPListener)
	if DebugLevel() >= 1 {
		g.protocol.logger.Logf("tcp gate address=%s opened", g.listener.Addr())
	}
	return nil
}

func (g *TCPGate) Addr() net.Addr { return g.listener.Addr() }

func (g *TCPGate) Serve() error {
	for {
		netConn, err := g.listener.AcceptTCP()
		if err != nil {
			if g.shut.Load() {
				return nil
			}
			g.protocol.logger.Warnf("tcp gate accept error: %v", err)
			continue
		}
		if n := g.numConns.Add(1); g.maxConns > 0 && n > g.maxConns {
			netConn.Close()
			g.numConns.Add(-1)
			continue
		}
		g.waitConns.Add(1)
		go g.serveConn(netConn)
	}
}

// Shut stops accepting, then waits for connections. Connections still alive when ctx is done are closed.
func (g *TCPGate) Shut(ctx context.Context) error {
	g.shut.Store(true)
	err := g.listener.Close()
	done := make(chan struct{})
	go func() {
		g.waitConns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.conns.Range(func(conn *tcpConn, _ struct{}) bool {
			conn.netConn.Close()
			return true
		})
		<-done
	}
	return err
}

func (g *TCPGate) serveConn(netConn *net.TCPConn) { // runner
	defer func() {
		g.numConns.Add(-1)
		g.waitConns.Done()
	}()
	conn := &tcpConn{gate: g, netConn: netConn, events: make(chan SocketEvent, 1)}
	if g.tlsConfig != nil {
		tlsConn := tls.Server(netConn, g.tlsConfig)
		if tlsConn.SetDeadline(time.Now().Add(10*time.Second)) != nil || tlsConn.Handshake() != nil {
			netConn.Close()
			return
		}
		tlsConn.SetDeadline(time.Time{})
		conn.netConn = tlsConn
		conn.tlsConn = tlsConn
	} else if rawConn, err := netConn.SyscallConn(); err == nil {
		conn.rawConn = rawConn
	}
	g.conns.Store(conn, struct{}{})
	defer g.conns.Delete(conn)

	proc := g.protocol.getProcessor(conn, conn.notify)
	event := EventRead
	for {
		switch proc.Process(event) {
		case DispositionOpen:
			event = EventRead
		case DispositionLong:
			if proc.WaitsForInput() { // the next read blocks with the read timeout
				event = EventRead
				continue
			}
			select { // async
			case event = <-conn.events:
			case <-time.After(g.protocol.asyncTimeout):
				event = EventTimeout
			}
		case DispositionSendfile:
			if err := g._sendfile(conn, proc.Sendfile()); err != nil {
				g.protocol.logger.Warnf("tcp gate sendfile: %v", err)
				g.protocol.putProcessor(proc)
				conn.Close()
				return
			}
			event = EventSendfileDone
		case DispositionUpgrading:
			token := proc.Upgrade()
			g.protocol.putProcessor(proc)
			token.Protocol.Serve(token) // owns the connection from now on
			return
		default: // DispositionClosed
			lingering := proc.HasUnreadInput()
			g.protocol.putProcessor(proc)
			if lingering {
				conn.closeLingering()
			} else {
				conn.Close()
			}
			return
		}
	}
}

func (g *TCPGate) _sendfile(conn *tcpConn, data *SendfileData) error {
	file, err := os.Open(data.Path)
	if err != nil {
		return err
	}
	defer file.Close()
	conn.netConn.SetWriteDeadline(time.Now().Add(g.writeTimeout))
	_, err = system.Sendfile(conn.rawConn, file, data.Offset, data.Length)
	return err
}

// tcpConn is a Transport over a TCP or TLS connection.
type tcpConn struct {
	gate        *TCPGate
	netConn     net.Conn
	tlsConn     *tls.Conn       // nil if not secure
	rawConn     syscall.RawConn // nil if secure
	readTimeout time.Duration
	events      chan SocketEvent
}

// Read blocks whatever block is. There is always a goroutine to spare.
func (c *tcpConn) Read(p []byte, block bool) (int, error) {
	if c.readTimeout > 0 {
		c.netConn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.netConn.Read(p)
}
func (c *tcpConn) Write(p []byte) (int, error) {
	c.netConn.SetWriteDeadline(time.Now().Add(c.gate.writeTimeout))
	n, err := c.netConn.Write(p)
	if err != nil {
		err = classifyWriteError(err)
	}
	return n, err
}
func (c *tcpConn) SetReadTimeout(timeout time.Duration) { c.readTimeout = timeout }
func (c *tcpConn) RegisterWriteInterest()               {} // writes are never partial
func (c *tcpConn) SendfileSupported() bool              { return c.rawConn != nil && system.SendfileSupported }
func (c *tcpConn) IsSecure() bool                       { return c.tlsConn != nil }
func (c *tcpConn) TLSState() *tls.ConnectionState {
	if c.tlsConn == nil {
		return nil
	}
	state := c.tlsConn.ConnectionState()
	return &state
}
func (c *tcpConn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }
func (c *tcpConn) LocalAddr() net.Addr  { return c.netConn.LocalAddr() }
func (c *tcpConn) Close() error         { return c.netConn.Close() }

func (c *tcpConn) notify(event SocketEvent) {
	select {
	case c.events <- event:
	default: // one pending event is enough
	}
}

// closeLingering half-closes first, then drains what the client is still sending for a while,
// so the client can read the last response before a reset.
func (c *tcpConn) closeLingering() {
	var err error
	if c.tlsConn != nil {
		err = c.tlsConn.CloseWrite()
	} else {
		err = c.netConn.(*net.TCPConn).CloseWrite()
	}
	if err == nil {
		c.netConn.SetReadDeadline(time.Now().Add(time.Second))
		io.CopyN(io.Discard, c.netConn, _64K1)
	}
	c.netConn.Close()
}
