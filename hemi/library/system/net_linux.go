// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Net for Linux.

package system

import (
	"io"
	"os"
	"syscall"
)

func SetDeferAccept(rawConn syscall.RawConn) (err error) {
	rawConn.Control(func(fd uintptr) {
		err = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_DEFER_ACCEPT, 1)
	})
	return
}

func SetReusePort(rawConn syscall.RawConn) (err error) {
	const SO_REUSEPORT = 0xf // for amd64, arm64, riscv64, loong64
	rawConn.Control(func(fd uintptr) {
		err = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, SO_REUSEPORT, 1)
	})
	return
}

const SendfileSupported = true

// Sendfile copies size bytes of file starting at offset to the socket behind rawConn.
func Sendfile(rawConn syscall.RawConn, file *os.File, offset int64, size int64) (written int64, err error) {
	src := int(file.Fd())
	var sendErr error
	err = rawConn.Write(func(fd uintptr) bool {
		for size > 0 {
			chunk := size
			if chunk > 1<<30 {
				chunk = 1 << 30
			}
			n, e := syscall.Sendfile(int(fd), src, &offset, int(chunk))
			if n > 0 {
				written += int64(n)
				size -= int64(n)
			}
			switch e {
			case nil:
				if n == 0 { // file is shorter than expected
					sendErr = io.ErrUnexpectedEOF
					return true
				}
			case syscall.EINTR:
			case syscall.EAGAIN:
				return false // wait for writable
			default:
				sendErr = e
				return true
			}
		}
		return true
	})
	if err == nil {
		err = sendErr
	}
	return
}
