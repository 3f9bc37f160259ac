// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

//go:build !linux

// Net for other platforms.

package system

import (
	"errors"
	"os"
	"syscall"
)

func SetDeferAccept(rawConn syscall.RawConn) (err error) {
	return
}

func SetReusePort(rawConn syscall.RawConn) (err error) {
	return
}

const SendfileSupported = false

func Sendfile(rawConn syscall.RawConn, file *os.File, offset int64, size int64) (int64, error) {
	return 0, errors.ErrUnsupported
}
