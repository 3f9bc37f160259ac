// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Common elements.

package hemi

import (
	"sync"
	"unsafe"
)

const ( // units
	K = 1 << 10
	M = 1 << 20
	G = 1 << 30
)

const ( // sizes
	_1K   = 1 * K    // mostly used by stock buffers
	_2K   = 2 * K    // mostly used by stock buffers
	_4K   = 4 * K    // mostly used by pooled buffers
	_8K   = 8 * K    // default limits
	_16K  = 16 * K   // mostly used by pooled buffers
	_64K1 = 64*K - 1 // mostly used by pooled buffers

	_2M  = 2 * M
	_2G1 = 2*G - 1 // suitable for max int32 [-2147483648, 2147483647]
)

var ( // pools
	pool4K   sync.Pool
	pool16K  sync.Pool
	pool64K1 sync.Pool
)

func Get16K() []byte  { return getNK(&pool16K, _16K) }
func Get64K1() []byte { return getNK(&pool64K1, _64K1) }
func GetNK(n int64) []byte {
	if n <= _4K {
		return getNK(&pool4K, _4K)
	} else if n <= _16K {
		return getNK(&pool16K, _16K)
	} else if n <= _64K1 {
		return getNK(&pool64K1, _64K1)
	} else { // not pooled
		return make([]byte, n)
	}
}
func getNK(pool *sync.Pool, size int) []byte {
	if x := pool.Get(); x != nil {
		return x.([]byte)
	}
	return make([]byte, size)
}
func PutNK(p []byte) {
	switch cap(p) {
	case _4K:
		pool4K.Put(p[:_4K])
	case _16K:
		pool16K.Put(p[:_16K])
	case _64K1:
		pool64K1.Put(p[:_64K1])
	default:
		if cap(p) < _64K1 {
			BugExitln("bad buffer")
		}
		// larger buffers are left to gc
	}
}

func ConstBytes(s string) (p []byte) { // WARNING: *DO NOT* mutate s through p!
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
func WeakString(p []byte) (s string) { // WARNING: *DO NOT* mutate p while s is in use!
	return unsafe.String(unsafe.SliceData(p), len(p))
}

// span is a [from, edge) range of bytes in a buffer.
type span struct {
	from int32
	edge int32
}

func (s *span) set(from, edge int32) { s.from, s.edge = from, edge }

func decToI64(dec []byte) (int64, bool) {
	if n := len(dec); n == 0 || n > 19 { // the max number of int64 is 19 bytes
		return 0, false
	}
	var i64 int64
	for _, b := range dec {
		if b >= '0' && b <= '9' {
			b = b - '0'
		} else {
			return 0, false
		}
		i64 = i64*10 + int64(b)
		if i64 < 0 {
			return 0, false
		}
	}
	return i64, true
}

const hexDigits = "0123456789abcdef"

func i64ToHex(i64 int64, hex []byte) int { return intToHex(i64, hex, 16) }
func intToHex[T int32 | int64](ixx T, hex []byte, bufSize int) int {
	if len(hex) < bufSize {
		BugExitln("hex is too small")
	}
	if ixx < 0 {
		BugExitln("negative numbers are not supported")
	}
	n := 1
	for i := ixx; i >= 0x10; i >>= 4 {
		n++
	}
	j := n - 1
	for ixx >= 0x10 {
		t := ixx >> 4
		hex[j] = hexDigits[ixx-t<<4]
		j--
		ixx = t
	}
	hex[j] = hexDigits[ixx]
	return n
}

func i64ToDec(i64 int64, dec []byte) int { return intToDec(i64, dec, 19) } // 19 bytes are enough to hold a positive int64
func intToDec[T int32 | int64](ixx T, dec []byte, bufSize int) int {
	if len(dec) < bufSize {
		BugExitln("dec is too small")
	}
	if ixx < 0 {
		BugExitln("negative numbers are not supported")
	}
	n := 1
	for i := ixx; i >= 10; i /= 10 {
		n++
	}
	j := n - 1
	for ixx >= 10 {
		t := ixx / 10
		dec[j] = byte(ixx - t*10 + '0')
		j--
		ixx = t
	}
	dec[j] = byte(ixx + '0')
	return n
}

func byteIsDigit(b byte) bool { return b >= '0' && b <= '9' }

func byteFromHex(b byte) (n byte, ok bool) {
	if b >= '0' && b <= '9' {
		return b - '0', true
	}
	if b >= 'A' && b <= 'F' {
		return b - 'A' + 10, true
	}
	if b >= 'a' && b <= 'f' {
		return b - 'a' + 10, true
	}
	return 0, false
}

func bytesToLower(p []byte) {
	for i := 0; i < len(p); i++ {
		if b := p[i]; b >= 'A' && b <= 'Z' {
			p[i] = b + 0x20 // to lower
		}
	}
}
func bytesHash(p []byte) uint16 {
	hash := uint16(0)
	for _, b := range p {
		hash += uint16(b)
	}
	return hash
}
func stringHash(s string) uint16 {
	hash := uint16(0)
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'A' && b <= 'Z' {
			b += 0x20
		}
		hash += uint16(b)
	}
	return hash
}

// bytesEqualLower reports whether p equals s where s may contain uppercase letters and p is lowercase.
func bytesEqualLower(p []byte, s string) bool {
	if len(p) != len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'A' && b <= 'Z' {
			b += 0x20
		}
		if p[i] != b {
			return false
		}
	}
	return true
}
