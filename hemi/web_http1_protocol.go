// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1 protocol: configuration shared by all connections, processor pool, statistics and pause.

package hemi

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/puzpuzpuz/xsync/v3"
)

// Adapter is the application entry. Service is called once for every request that passed validation.
type Adapter interface {
	Service(req *Request, resp *Response) error
}

// AdapterFunc
type AdapterFunc func(req *Request, resp *Response) error

func (f AdapterFunc) Service(req *Request, resp *Response) error { return f(req, resp) }

// AccessLogger is optionally implemented by adapters. Log is called for every request, including rejected ones.
type AccessLogger interface {
	Log(req *Request, resp *Response, elapsed time.Duration)
}

const ( // compression modes
	compressionOff = iota
	compressionOn
	compressionForce
)

const defaultCompressibleTypes = "text/html;text/xml;text/plain;text/css;text/javascript;application/javascript;application/json;application/xml"

// HTTP1Protocol
type HTTP1Protocol struct {
	// Assocs
	adapter      Adapter
	accessLogger AccessLogger
	logger       Logger
	// States
	maxHeaderSize           int32
	maxResponseHeaderSize   int32
	maxTrailerSize          int32
	maxExtensionSize        int32
	maxSwallowSize          int64 // -1 means no limit
	maxSavePostSize         int32
	maxKeepAliveRequests    int32 // -1 means no limit
	connectionTimeout       time.Duration
	keepAliveTimeout        time.Duration
	connectionUploadTimeout time.Duration
	disableUploadTimeout    bool
	asyncTimeout            time.Duration
	compression             int8
	compressionMinSize      int64
	gzipLevel               int
	compressibleTypes       map[string]bool
	noCompressionUserAgents *regexp.Regexp
	restrictedUserAgents    *regexp.Regexp
	allowHostHeaderMismatch bool
	rejectIllegalHeader     bool
	allowedTrailers         map[string]bool
	continueImmediately     bool
	socketBufferSize        int32
	server                  string
	upgrades                map[string]UpgradeProtocol
	processors              sync.Pool
	paused                  atomic.Bool
	lastID                  atomic.Int64
	live                    *xsync.MapOf[int64, *http1Processor]
	stats                   protocolStats
}

type protocolStats struct {
	requests      *xsync.Counter
	errors        *xsync.Counter
	bytesReceived *xsync.Counter
	bytesSent     *xsync.Counter
}

// ProtocolStats
type ProtocolStats struct {
	Requests      int64
	Errors        int64
	BytesReceived int64
	BytesSent     int64
	Connections   int
}

// NewHTTP1Protocol creates a protocol with default settings. Call Configure to apply a config section.
func NewHTTP1Protocol(adapter Adapter) *HTTP1Protocol {
	p := new(HTTP1Protocol)
	p.adapter = adapter
	if accessLogger, ok := adapter.(AccessLogger); ok {
		p.accessLogger = accessLogger
	}
	p.logger = DefaultLogger()
	p.upgrades = make(map[string]UpgradeProtocol)
	p.live = xsync.NewMapOf[int64, *http1Processor]()
	p.stats = protocolStats{
		requests:      xsync.NewCounter(),
		errors:        xsync.NewCounter(),
		bytesReceived: xsync.NewCounter(),
		bytesSent:     xsync.NewCounter(),
	}
	if err := p.Configure(NewConfig(nil, "http1")); err != nil {
		BugExitln(err.Error())
	}
	return p
}

// Configure applies the [http1] section. Invalid values are reported and replaced by defaults.
func (p *HTTP1Protocol) Configure(c *Config) error {
	checkHeadSize := func(value int32) error {
		if value >= _1K && value <= _64K1 {
			return nil
		}
		return errors.New("must be in [1K, 64K1]")
	}
	checkNonNegative := func(value int32) error {
		if value >= 0 {
			return nil
		}
		return errors.New("must not be negative")
	}
	checkPositiveDuration := func(value time.Duration) error {
		if value > 0 {
			return nil
		}
		return errors.New("must be positive")
	}

	// maxHeaderSize
	c.ConfigureInt32("maxHeaderSize", &p.maxHeaderSize, checkHeadSize, _8K)
	// maxResponseHeaderSize
	c.ConfigureInt32("maxResponseHeaderSize", &p.maxResponseHeaderSize, checkHeadSize, _8K)
	// maxTrailerSize
	c.ConfigureInt32("maxTrailerSize", &p.maxTrailerSize, checkNonNegative, _8K)
	// maxExtensionSize
	c.ConfigureInt32("maxExtensionSize", &p.maxExtensionSize, checkNonNegative, _8K)
	// maxSwallowSize
	c.ConfigureInt64("maxSwallowSize", &p.maxSwallowSize, func(value int64) error {
		if value >= -1 {
			return nil
		}
		return errors.New("must be -1 or a size")
	}, _2M)
	// maxSavePostSize
	c.ConfigureInt32("maxSavePostSize", &p.maxSavePostSize, checkNonNegative, _4K)
	// maxKeepAliveRequests
	c.ConfigureInt32("maxKeepAliveRequests", &p.maxKeepAliveRequests, func(value int32) error {
		if value >= -1 && value != 0 {
			return nil
		}
		return errors.New("must be -1 or positive")
	}, 100)

	// connectionTimeout
	c.ConfigureDuration("connectionTimeout", &p.connectionTimeout, checkPositiveDuration, 20*time.Second)
	// keepAliveTimeout
	c.ConfigureDuration("keepAliveTimeout", &p.keepAliveTimeout, checkPositiveDuration, p.connectionTimeout)
	// connectionUploadTimeout
	c.ConfigureDuration("connectionUploadTimeout", &p.connectionUploadTimeout, checkPositiveDuration, 5*time.Minute)
	// disableUploadTimeout
	c.ConfigureBool("disableUploadTimeout", &p.disableUploadTimeout, true)
	// asyncTimeout
	c.ConfigureDuration("asyncTimeout", &p.asyncTimeout, checkPositiveDuration, 30*time.Second)

	// compression
	var compression string
	c.ConfigureString("compression", &compression, func(value string) error {
		switch strings.ToLower(value) {
		case "off", "on", "force":
			return nil
		}
		return errors.New("must be off, on or force")
	}, "off")
	switch strings.ToLower(compression) {
	case "on":
		p.compression = compressionOn
	case "force":
		p.compression = compressionForce
	default:
		p.compression = compressionOff
	}
	// compressionMinSize
	c.ConfigureInt64("compressionMinSize", &p.compressionMinSize, func(value int64) error {
		if value >= 0 {
			return nil
		}
		return errors.New("must not be negative")
	}, _2K)
	// compressionLevel
	var level int32
	c.ConfigureInt32("compressionLevel", &level, func(value int32) error {
		if value >= gzip.HuffmanOnly && value <= gzip.BestCompression {
			return nil
		}
		return errors.New("invalid gzip level")
	}, gzip.DefaultCompression)
	p.gzipLevel = int(level)
	// compressibleMimeTypes
	var mimeTypes []string
	c.ConfigureStringList("compressibleMimeTypes", &mimeTypes, nil, strings.Split(defaultCompressibleTypes, ";"))
	p.compressibleTypes = make(map[string]bool, len(mimeTypes))
	for _, mimeType := range mimeTypes {
		p.compressibleTypes[strings.ToLower(mimeType)] = true
	}
	// noCompressionUserAgents
	p.noCompressionUserAgents = p._configureRegexp(c, "noCompressionUserAgents")
	// restrictedUserAgents
	p.restrictedUserAgents = p._configureRegexp(c, "restrictedUserAgents")

	// allowHostHeaderMismatch
	c.ConfigureBool("allowHostHeaderMismatch", &p.allowHostHeaderMismatch, false)
	// rejectIllegalHeader
	c.ConfigureBool("rejectIllegalHeader", &p.rejectIllegalHeader, true)
	// allowedTrailerHeaders
	var trailers []string
	c.ConfigureStringList("allowedTrailerHeaders", &trailers, nil, nil)
	p.allowedTrailers = make(map[string]bool, len(trailers))
	for _, trailer := range trailers {
		p.allowedTrailers[strings.ToLower(trailer)] = true
	}
	// continueResponseTiming
	var timing string
	c.ConfigureString("continueResponseTiming", &timing, func(value string) error {
		if value == "immediately" || value == "onRead" {
			return nil
		}
		return errors.New("must be immediately or onRead")
	}, "onRead")
	p.continueImmediately = timing == "immediately"

	// socketBufferSize
	c.ConfigureInt32("socketBufferSize", &p.socketBufferSize, func(value int32) error {
		if value > 0 {
			return nil
		}
		return errors.New("must be positive")
	}, 9000)
	// server
	c.ConfigureString("server", &p.server, nil, "")
	// upgradeProtocols
	var upgrades []string
	c.ConfigureStringList("upgradeProtocols", &upgrades, nil, nil)
	for _, name := range upgrades {
		upgrade, err := createUpgrade(name)
		if err != nil {
			return err
		}
		p.RegisterUpgradeProtocol(upgrade)
	}

	return c.Err()
}
func (p *HTTP1Protocol) _configureRegexp(c *Config, name string) *regexp.Regexp {
	var re *regexp.Regexp
	var pattern string
	c.ConfigureString(name, &pattern, func(value string) error {
		compiled, err := regexp.Compile(value)
		re = compiled
		return err
	}, "")
	if pattern == "" {
		return nil
	}
	return re
}

func (p *HTTP1Protocol) Logger() Logger          { return p.logger }
func (p *HTTP1Protocol) SetLogger(logger Logger) { p.logger = logger }

// RegisterUpgradeProtocol makes upgrade available to requests with a matching Upgrade header.
func (p *HTTP1Protocol) RegisterUpgradeProtocol(upgrade UpgradeProtocol) {
	p.upgrades[strings.ToLower(upgrade.Name())] = upgrade
}

// Pause makes new requests fail with 503 and idle connections close.
func (p *HTTP1Protocol) Pause()         { p.paused.Store(true) }
func (p *HTTP1Protocol) Resume()        { p.paused.Store(false) }
func (p *HTTP1Protocol) IsPaused() bool { return p.paused.Load() }

func (p *HTTP1Protocol) isCompressible(contentType string) bool {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	return contentType != "" && p.compressibleTypes[contentType]
}

func (p *HTTP1Protocol) getProcessor(transport Transport, notifier func(event SocketEvent)) *http1Processor {
	var proc *http1Processor
	if x := p.processors.Get(); x == nil {
		proc = new(http1Processor)
	} else {
		proc = x.(*http1Processor)
	}
	id := p.lastID.Add(1)
	proc.onUse(p, id, transport, notifier)
	p.live.Store(id, proc)
	return proc
}
func (p *HTTP1Protocol) putProcessor(proc *http1Processor) {
	p.live.Delete(proc.id)
	proc.onEnd()
	p.processors.Put(proc)
}

// Snapshot returns the state of every live connection.
func (p *HTTP1Protocol) Snapshot() []RequestInfo {
	infos := make([]RequestInfo, 0, p.live.Size())
	p.live.Range(func(id int64, proc *http1Processor) bool {
		infos = append(infos, proc.snapshot())
		return true
	})
	return infos
}

// Stats returns protocol-wide counters.
func (p *HTTP1Protocol) Stats() ProtocolStats {
	return ProtocolStats{
		Requests:      p.stats.requests.Value(),
		Errors:        p.stats.errors.Value(),
		BytesReceived: p.stats.bytesReceived.Value(),
		BytesSent:     p.stats.bytesSent.Value(),
		Connections:   p.live.Size(),
	}
}
