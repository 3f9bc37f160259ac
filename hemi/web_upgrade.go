// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Upgrade protocols take over a connection after a 101 response, or after an HTTP/2 client preface.

package hemi

import (
	"errors"
	"strings"
	"sync"
)

// UpgradeProtocol
type UpgradeProtocol interface {
	// Name is the token matched against the Upgrade header, like "h2c" or "websocket". Lowercase.
	Name() string
	// Accept tells whether the request can be upgraded. It is not called for a client preface.
	Accept(req *Request) bool
	// Serve owns the transport from now on and must close it when done.
	Serve(token *UpgradeToken)
}

// UpgradeToken carries what an upgrade protocol needs to continue on the connection.
type UpgradeToken struct {
	Protocol  UpgradeProtocol
	Transport Transport
	Request   RequestSnapshot // empty for a client preface
	Leftover  []byte          // bytes read ahead of the head, owned by the token
	Preface   bool            // the connection started with the HTTP/2 client preface
}

var errUnknownUpgrade = errors.New("unknown upgrade protocol")

var (
	upgradeCreators = make(map[string]func() UpgradeProtocol)
	upgradeLock     sync.RWMutex
)

// RegisterUpgrade makes an upgrade protocol available to the upgradeProtocols config key.
func RegisterUpgrade(name string, create func() UpgradeProtocol) {
	name = strings.ToLower(name)
	upgradeLock.Lock()
	defer upgradeLock.Unlock()
	if _, ok := upgradeCreators[name]; ok {
		BugExitln("upgrade protocol conflicted")
	}
	upgradeCreators[name] = create
}
func createUpgrade(name string) (UpgradeProtocol, error) {
	upgradeLock.RLock()
	create := upgradeCreators[strings.ToLower(name)]
	upgradeLock.RUnlock()
	if create == nil {
		return nil, errUnknownUpgrade
	}
	return create(), nil
}
