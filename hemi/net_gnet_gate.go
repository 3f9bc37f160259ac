// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Gnet gate. Event loops receive bytes, processors run on a goroutine pool and return as soon as
// they would block. A ticker expires connections that wait for input or for an async completion too long.

package hemi

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/panjf2000/gnet/v2/pkg/pool/goroutine"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/valyala/bytebufferpool"
)

var errConnClosed = fmt.Errorf("gnet connection: %w", net.ErrClosed)

// GnetGate
type GnetGate struct {
	// Mixins
	gnet.BuiltinEventEngine
	// Assocs
	protocol *HTTP1Protocol
	engine   gnet.Engine
	workers  *goroutine.Pool
	// States
	address  string
	maxConns int32
	addr     net.Addr
	booted   chan struct{}
	numConns atomic.Int32
	shut     atomic.Bool
	conns    *xsync.MapOf[*gnetConn, struct{}]
}

func NewGnetGate(protocol *HTTP1Protocol, config *GateConfig) *GnetGate {
	g := new(GnetGate)
	g.protocol = protocol
	g.workers = goroutine.Default()
	g.address = config.Address
	g.maxConns = config.MaxConns
	g.booted = make(chan struct{})
	g.conns = xsync.NewMapOf[*gnetConn, struct{}]()
	return g
}

// Open resolves the address. Listening starts in Serve, as gnet owns its listeners.
func (g *GnetGate) Open() error {
	addr, err := net.ResolveTCPAddr("tcp", g.address)
	if err != nil {
		return err
	}
	g.addr = addr
	return nil
}
func (g *GnetGate) Addr() net.Addr { return g.addr }

func (g *GnetGate) Serve() error {
	return gnet.Run(g, "tcp://"+g.address,
		gnet.WithMulticore(true),
		gnet.WithReusePort(true),
		gnet.WithTicker(true),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
	)
}

func (g *GnetGate) Shut(ctx context.Context) error {
	g.shut.Store(true)
	select {
	case <-g.booted:
	case <-ctx.Done():
		return ctx.Err()
	}
	for g.numConns.Load() > 0 {
		select {
		case <-ctx.Done():
			g.conns.Range(func(conn *gnetConn, _ struct{}) bool {
				conn.Close()
				return true
			})
			return g.engine.Stop(context.Background())
		case <-time.After(50 * time.Millisecond):
		}
	}
	return g.engine.Stop(ctx)
}

func (g *GnetGate) OnBoot(engine gnet.Engine) gnet.Action {
	g.engine = engine
	close(g.booted)
	if DebugLevel() >= 1 {
		g.protocol.logger.Logf("gnet gate address=%s booted", g.address)
	}
	return gnet.None
}

func (g *GnetGate) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if n := g.numConns.Add(1); g.shut.Load() || (g.maxConns > 0 && n > g.maxConns) {
		g.numConns.Add(-1)
		return nil, gnet.Close
	}
	conn := &gnetConn{gate: g, conn: c, inbound: bytebufferpool.Get(), readable: make(chan struct{}, 1)}
	conn.proc = g.protocol.getProcessor(conn, conn.schedule)
	c.SetContext(conn)
	g.conns.Store(conn, struct{}{})
	return nil, gnet.None
}

func (g *GnetGate) OnTraffic(c gnet.Conn) gnet.Action {
	conn, ok := c.Context().(*gnetConn)
	if !ok {
		return gnet.Close
	}
	data, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}
	conn.lock.Lock()
	conn.inbound.Write(data)
	conn.lock.Unlock()
	conn._signal()
	conn.schedule(EventRead)
	return gnet.None
}

func (g *GnetGate) OnClose(c gnet.Conn, err error) gnet.Action {
	conn, ok := c.Context().(*gnetConn)
	if !ok {
		return gnet.None
	}
	g.conns.Delete(conn)
	g.numConns.Add(-1)
	conn.lock.Lock()
	conn.closed = true
	release := !conn.running
	conn.lock.Unlock()
	conn._signal()
	if release {
		conn._release()
	}
	return gnet.None
}

// OnTick expires waiting connections.
func (g *GnetGate) OnTick() (time.Duration, gnet.Action) {
	now := time.Now().UnixNano()
	g.conns.Range(func(conn *gnetConn, _ struct{}) bool {
		if deadline := conn.deadline.Load(); deadline > 0 && now > deadline {
			conn.deadline.Store(0)
			conn.schedule(EventTimeout)
		}
		return true
	})
	return time.Second, gnet.None
}

// gnetConn is a Transport over a gnet connection.
type gnetConn struct {
	// Assocs
	gate *GnetGate
	conn gnet.Conn
	proc *http1Processor // nil once released
	// States
	lock        sync.Mutex
	inbound     *bytebufferpool.ByteBuffer
	readable    chan struct{}
	readTimeout time.Duration
	deadline    atomic.Int64 // unix nanos, 0 if not waiting
	running     bool
	pending     []SocketEvent
	closed      bool
	upgraded    bool
}

// schedule runs the processor for event on the worker pool. Events arriving while it runs are queued.
func (c *gnetConn) schedule(event SocketEvent) {
	c.lock.Lock()
	if c.upgraded || c.proc == nil {
		c.lock.Unlock()
		return
	}
	if c.running {
		if event != EventRead || len(c.pending) == 0 || c.pending[len(c.pending)-1] != EventRead {
			c.pending = append(c.pending, event)
		}
		c.lock.Unlock()
		return
	}
	c.running = true
	c.lock.Unlock()
	if err := c.gate.workers.Submit(func() { c._run(event) }); err != nil {
		c.gate.protocol.logger.Warnf("gnet gate submit: %v", err)
		c.lock.Lock()
		c.running = false
		c.lock.Unlock()
		c.Close()
	}
}

func (c *gnetConn) _run(event SocketEvent) { // runner
	for {
		c.deadline.Store(0)
		switch c.proc.Process(event) {
		case DispositionOpen:
			c.deadline.Store(time.Now().Add(c.readTimeout).UnixNano())
		case DispositionLong:
			if c.proc.WaitsForInput() {
				c.deadline.Store(time.Now().Add(c.readTimeout).UnixNano())
			} else {
				c.deadline.Store(time.Now().Add(c.gate.protocol.asyncTimeout).UnixNano())
			}
		case DispositionSendfile:
			c._copyFile(c.proc.Sendfile())
			event = EventSendfileDone
			continue
		case DispositionUpgrading:
			token := c.proc.Upgrade()
			c.lock.Lock()
			c.upgraded = true
			c.running = false
			c.lock.Unlock()
			c._release()
			token.Protocol.Serve(token)
			return
		default: // DispositionClosed
			c.lock.Lock()
			c.closed = true
			c.running = false
			c.lock.Unlock()
			c._release()
			c.conn.Close()
			return
		}
		c.lock.Lock()
		if c.closed {
			c.running = false
			c.lock.Unlock()
			c._release()
			return
		}
		if len(c.pending) == 0 {
			c.running = false
			c.lock.Unlock()
			return
		}
		event = c.pending[0]
		c.pending = c.pending[1:]
		c.lock.Unlock()
	}
}

// _copyFile writes a file region to the connection. Gnet has no sendfile, so the region is read and queued in 64K pieces.
func (c *gnetConn) _copyFile(data *SendfileData) {
	file, err := os.Open(data.Path)
	if err != nil {
		c.gate.protocol.logger.Warnf("gnet gate sendfile: %v", err)
		c.Close()
		return
	}
	defer file.Close()
	buffer := Get64K1()
	defer PutNK(buffer)
	offset, remaining := data.Offset, data.Length
	for remaining > 0 {
		size := int64(len(buffer))
		if size > remaining {
			size = remaining
		}
		n, err := file.ReadAt(buffer[:size], offset)
		if n > 0 {
			if _, err := c.Write(buffer[:n]); err != nil {
				return
			}
			offset += int64(n)
			remaining -= int64(n)
		}
		if err != nil {
			if remaining > 0 {
				c.Close()
			}
			return
		}
	}
}

func (c *gnetConn) _release() {
	c.lock.Lock()
	proc := c.proc
	c.proc = nil
	inbound := c.inbound
	if c.upgraded {
		inbound = nil // still read by the upgrade protocol
	} else {
		c.inbound = nil
	}
	c.lock.Unlock()
	if proc != nil {
		c.gate.protocol.putProcessor(proc)
	}
	if inbound != nil {
		bytebufferpool.Put(inbound)
	}
}

func (c *gnetConn) _signal() {
	select {
	case c.readable <- struct{}{}:
	default:
	}
}

func (c *gnetConn) Read(p []byte, block bool) (int, error) {
	var deadline <-chan time.Time
	for {
		c.lock.Lock()
		if c.inbound != nil && c.inbound.Len() > 0 {
			n := copy(p, c.inbound.B)
			c.inbound.Set(c.inbound.B[n:])
			c.lock.Unlock()
			return n, nil
		}
		closed := c.closed
		c.lock.Unlock()
		if closed {
			return 0, errConnClosed
		}
		if !block {
			return 0, nil
		}
		if deadline == nil && c.readTimeout > 0 {
			timer := time.NewTimer(c.readTimeout)
			defer timer.Stop()
			deadline = timer.C
		}
		select {
		case <-c.readable:
		case <-deadline:
			return 0, os.ErrDeadlineExceeded
		}
	}
}

// Write queues a copy of p on the event loop. It never writes partially.
func (c *gnetConn) Write(p []byte) (int, error) {
	c.lock.Lock()
	closed := c.closed
	c.lock.Unlock()
	if closed {
		return 0, errConnClosed
	}
	data := append([]byte(nil), p...)
	if err := c.conn.AsyncWrite(data, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}
func (c *gnetConn) SetReadTimeout(timeout time.Duration) { c.readTimeout = timeout }
func (c *gnetConn) RegisterWriteInterest()               {}
func (c *gnetConn) SendfileSupported() bool              { return true } // see _copyFile
func (c *gnetConn) IsSecure() bool                       { return false }
func (c *gnetConn) TLSState() *tls.ConnectionState       { return nil }
func (c *gnetConn) RemoteAddr() net.Addr                 { return c.conn.RemoteAddr() }
func (c *gnetConn) LocalAddr() net.Addr                  { return c.conn.LocalAddr() }
func (c *gnetConn) Close() error                         { return c.conn.Close() }
