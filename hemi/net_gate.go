// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Gates accept connections and drive processors on them.

package hemi

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"
)

// Gate
type Gate interface {
	// Open starts listening.
	Open() error
	// Serve accepts connections until Shut is called.
	Serve() error
	// Shut stops accepting and waits for live connections until ctx is done.
	Shut(ctx context.Context) error
	Addr() net.Addr
}

// GateConfig holds the [gate] section.
type GateConfig struct {
	Kind         string // tcp or gnet
	Address      string
	TLSCert      string
	TLSKey       string
	MaxConns     int32 // 0 means no limit
	WriteTimeout time.Duration
}

var errUnknownGate = errors.New("unknown gate kind")

func (g *GateConfig) Configure(c *Config) error {
	c.ConfigureString("kind", &g.Kind, func(value string) error {
		if value == "tcp" || value == "gnet" {
			return nil
		}
		return errUnknownGate
	}, "tcp")
	c.ConfigureString("address", &g.Address, func(value string) error {
		if _, _, err := net.SplitHostPort(value); err != nil {
			return err
		}
		return nil
	}, ":8080")
	c.ConfigureString("tlsCert", &g.TLSCert, nil, "")
	c.ConfigureString("tlsKey", &g.TLSKey, nil, "")
	c.ConfigureInt32("maxConns", &g.MaxConns, func(value int32) error {
		if value >= 0 {
			return nil
		}
		return errors.New("must not be negative")
	}, 0)
	c.ConfigureDuration("writeTimeout", &g.WriteTimeout, func(value time.Duration) error {
		if value > 0 {
			return nil
		}
		return errors.New("must be positive")
	}, 60*time.Second)
	if (g.TLSCert == "") != (g.TLSKey == "") {
		return errors.New("tlsCert and tlsKey must be set together")
	}
	if g.TLSCert != "" && g.Kind == "gnet" {
		return errors.New("tls is supported by the tcp gate only")
	}
	return c.Err()
}

// NewGate creates a gate of config.Kind serving protocol.
func NewGate(protocol *HTTP1Protocol, config *GateConfig) (Gate, error) {
	switch config.Kind {
	case "", "tcp":
		var tlsConfig *tls.Config
		if config.TLSCert != "" {
			certificate, err := tls.LoadX509KeyPair(config.TLSCert, config.TLSKey)
			if err != nil {
				return nil, err
			}
			tlsConfig = &tls.Config{Certificates: []tls.Certificate{certificate}, NextProtos: []string{"http/1.1"}}
		}
		return NewTCPGate(protocol, config, tlsConfig), nil
	case "gnet":
		return NewGnetGate(protocol, config), nil
	default:
		return nil, errUnknownGate
	}
}
