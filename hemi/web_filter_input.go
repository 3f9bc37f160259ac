// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Input filters.

package hemi

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// identityInputFilter yields exactly contentLength bytes.
type identityInputFilter struct {
	// Assocs
	prev inputStage
	// States
	maxSwallowSize int64 // -1 means no limit
	contentLength  int64
	remaining      int64
}

func (f *identityInputFilter) kind() int8              { return filterIdentity }
func (f *identityInputFilter) setPrev(prev inputStage) { f.prev = prev }
func (f *identityInputFilter) setLength(size int64) {
	f.contentLength = size
	f.remaining = size
}

func (f *identityInputFilter) fetch() ([]byte, error) {
	if f.remaining <= 0 {
		return nil, io.EOF
	}
	p, err := f.prev.fetch()
	if err != nil {
		if err == io.EOF {
			err = errEndOfStream
		}
		return nil, err
	}
	if len(p) == 0 {
		return nil, nil
	}
	if int64(len(p)) > f.remaining { // bytes of the next message
		f.prev.unread(len(p) - int(f.remaining))
		p = p[:f.remaining]
	}
	f.remaining -= int64(len(p))
	return p, nil
}
func (f *identityInputFilter) unread(n int) {
	f.remaining += int64(n)
	f.prev.unread(n)
}

func (f *identityInputFilter) finish() error {
	if f.maxSwallowSize >= 0 && f.remaining > f.maxSwallowSize {
		return errSwallowTooLarge
	}
	for f.remaining > 0 {
		if _, err := f.fetch(); err != nil && err != io.EOF {
			return err
		}
	}
	return nil
}
func (f *identityInputFilter) isFinished() bool { return f.remaining <= 0 }

func (f *identityInputFilter) recycle() {
	f.prev = nil
	f.contentLength = 0
	f.remaining = 0
}

const ( // chunked decoding states
	chunkSize = iota
	chunkExtension
	chunkSizeLF
	chunkData
	chunkDataCR
	chunkDataLF
	chunkTrailer
	chunkDone
)

// chunkedInputFilter decodes the chunked transfer coding, including extensions and trailers.
type chunkedInputFilter struct {
	// Assocs
	prev inputStage
	// States
	maxExtensionSize int64
	maxTrailerSize   int64
	maxSwallowSize   int64
	state            int8
	sizeDigits       int8
	chunkRemain      int64  // bytes left in current chunk
	extensionSize    int64  // cumulative extension bytes of this message
	trailerSize      int64  // cumulative trailer bytes of this message
	swallowed        int64  // bytes consumed by finish()
	line             []byte // current trailer line
	trailerBuf       []byte // names and values of trailers
	trailers         []trailerField
}

type trailerField struct {
	name  span // in trailerBuf
	value span // in trailerBuf
}

func (f *chunkedInputFilter) kind() int8              { return filterChunked }
func (f *chunkedInputFilter) setPrev(prev inputStage) { f.prev = prev }

func (f *chunkedInputFilter) fetch() ([]byte, error) {
	if f.state == chunkDone {
		return nil, io.EOF
	}
	for {
		p, err := f.prev.fetch()
		if err != nil {
			if err == io.EOF {
				err = errEndOfStream
			}
			return nil, err
		}
		if len(p) == 0 {
			return nil, nil
		}
		for i := 0; i < len(p); {
			if f.state == chunkData {
				n := int64(len(p) - i)
				if n > f.chunkRemain {
					n = f.chunkRemain
				}
				data := p[i : i+int(n)]
				if f.chunkRemain -= n; f.chunkRemain == 0 {
					f.state = chunkDataCR
				}
				if rest := len(p) - i - int(n); rest > 0 {
					f.prev.unread(rest)
				}
				return data, nil
			}
			if err := f._step(p[i]); err != nil {
				return nil, err
			}
			i++
			if f.state == chunkDone {
				if rest := len(p) - i; rest > 0 { // pipelined bytes
					f.prev.unread(rest)
				}
				return nil, io.EOF
			}
		}
	}
}
func (f *chunkedInputFilter) unread(n int) {
	f.chunkRemain += int64(n)
	f.state = chunkData
	f.prev.unread(n)
}

func (f *chunkedInputFilter) _step(b byte) error {
	switch f.state {
	case chunkSize:
		if n, ok := byteFromHex(b); ok {
			if f.sizeDigits++; f.sizeDigits > 16 {
				return errBadChunk
			}
			f.chunkRemain = f.chunkRemain<<4 | int64(n)
			if f.chunkRemain < 0 {
				return errBadChunk
			}
		} else if f.sizeDigits == 0 {
			return errBadChunk
		} else if b == ';' || b == ' ' || b == '\t' {
			f.state = chunkExtension
			return f._countExtension()
		} else if b == '\r' {
			f.state = chunkSizeLF
		} else if b == '\n' {
			f._endSizeLine()
		} else {
			return errBadChunk
		}
	case chunkExtension:
		if b == '\r' {
			f.state = chunkSizeLF
		} else if b == '\n' {
			f._endSizeLine()
		} else if byteIsCtl(b) {
			return errBadChunk
		} else {
			return f._countExtension()
		}
	case chunkSizeLF:
		if b != '\n' {
			return errBadChunk
		}
		f._endSizeLine()
	case chunkDataCR:
		if b == '\r' {
			f.state = chunkDataLF
		} else if b == '\n' {
			f._newChunk()
		} else {
			return errBadChunk
		}
	case chunkDataLF:
		if b != '\n' {
			return errBadChunk
		}
		f._newChunk()
	case chunkTrailer:
		if f.trailerSize++; f.maxTrailerSize >= 0 && f.trailerSize > f.maxTrailerSize {
			return errTrailersTooLarge
		}
		if b != '\n' {
			f.line = append(f.line, b)
			return nil
		}
		line := f.line
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		f.line = f.line[:0]
		if len(line) == 0 {
			f.state = chunkDone
			return nil
		}
		return f._addTrailer(line)
	default:
		BugExitln("unknown chunk state")
	}
	return nil
}
func (f *chunkedInputFilter) _countExtension() error {
	if f.extensionSize++; f.maxExtensionSize >= 0 && f.extensionSize > f.maxExtensionSize {
		return errExtensionTooLarge
	}
	return nil
}
func (f *chunkedInputFilter) _endSizeLine() {
	if f.chunkRemain == 0 { // last-chunk
		f.state = chunkTrailer
	} else {
		f.state = chunkData
	}
}
func (f *chunkedInputFilter) _newChunk() {
	f.state = chunkSize
	f.sizeDigits = 0
	f.chunkRemain = 0
}
func (f *chunkedInputFilter) _addTrailer(line []byte) error {
	colon := -1
	for i, b := range line {
		if b == ':' {
			colon = i
			break
		}
		if webTchar[b] == 0 {
			return errBadTrailer
		}
	}
	if colon <= 0 {
		return errBadTrailer
	}
	value := line[colon+1:]
	for len(value) > 0 && (value[0] == ' ' || value[0] == '\t') {
		value = value[1:]
	}
	for n := len(value); n > 0 && (value[n-1] == ' ' || value[n-1] == '\t'); n-- {
		value = value[:n-1]
	}
	for _, b := range value {
		if byteIsCtl(b) {
			return errBadTrailer
		}
	}
	var field trailerField
	from := int32(len(f.trailerBuf))
	f.trailerBuf = append(f.trailerBuf, line[:colon]...)
	bytesToLower(f.trailerBuf[from:])
	field.name.set(from, int32(len(f.trailerBuf)))
	from = int32(len(f.trailerBuf))
	f.trailerBuf = append(f.trailerBuf, value...)
	field.value.set(from, int32(len(f.trailerBuf)))
	f.trailers = append(f.trailers, field)
	return nil
}

// trailer returns the first trailer named name, which must be lowercase.
func (f *chunkedInputFilter) trailer(name string) (value []byte, ok bool) {
	for i := range f.trailers {
		field := &f.trailers[i]
		if WeakString(f.trailerBuf[field.name.from:field.name.edge]) == name {
			return f.trailerBuf[field.value.from:field.value.edge], true
		}
	}
	return nil, false
}

func (f *chunkedInputFilter) finish() error {
	for f.state != chunkDone {
		p, err := f.fetch()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if f.swallowed += int64(len(p)); f.maxSwallowSize >= 0 && f.swallowed > f.maxSwallowSize {
			return errSwallowTooLarge
		}
	}
	return nil
}
func (f *chunkedInputFilter) isFinished() bool { return f.state == chunkDone }

func (f *chunkedInputFilter) recycle() {
	f.prev = nil
	f._newChunk()
	f.extensionSize = 0
	f.trailerSize = 0
	f.swallowed = 0
	f.line = f.line[:0]
	f.trailerBuf = f.trailerBuf[:0]
	f.trailers = f.trailers[:0]
}

// voidInputFilter yields no bytes.
type voidInputFilter struct{}

func (f *voidInputFilter) kind() int8              { return filterVoid }
func (f *voidInputFilter) setPrev(prev inputStage) {}
func (f *voidInputFilter) fetch() ([]byte, error)  { return nil, io.EOF }
func (f *voidInputFilter) unread(n int)            {}
func (f *voidInputFilter) finish() error           { return nil }
func (f *voidInputFilter) isFinished() bool        { return true }
func (f *voidInputFilter) recycle()                {}

// bufferedInputFilter drains the previous stage into memory, up to a limit, and replays it.
// It is activated before the transport renegotiates, when unread content would otherwise be lost.
type bufferedInputFilter struct {
	// Assocs
	prev inputStage
	// States
	limit  int64
	buffer *bytebufferpool.ByteBuffer
	filled bool
	offset int
}

func (f *bufferedInputFilter) kind() int8              { return filterBuffered }
func (f *bufferedInputFilter) setPrev(prev inputStage) { f.prev = prev }

// fill saves all remaining content of the message.
func (f *bufferedInputFilter) fill() error {
	if f.buffer == nil {
		f.buffer = bytebufferpool.Get()
	}
	for !f.filled {
		p, err := f.prev.fetch()
		if err == io.EOF {
			f.filled = true
			break
		}
		if err != nil {
			return err
		}
		if len(p) == 0 {
			continue
		}
		if int64(f.buffer.Len()+len(p)) > f.limit {
			return errSaveTooLarge
		}
		f.buffer.Write(p)
	}
	return nil
}

func (f *bufferedInputFilter) fetch() ([]byte, error) {
	if !f.filled {
		if err := f.fill(); err != nil {
			return nil, err
		}
	}
	if f.offset == f.buffer.Len() {
		return nil, io.EOF
	}
	p := f.buffer.B[f.offset:]
	f.offset = f.buffer.Len()
	return p, nil
}
func (f *bufferedInputFilter) unread(n int) { f.offset -= n }

func (f *bufferedInputFilter) finish() error {
	if err := f.fill(); err != nil {
		return err
	}
	f.offset = f.buffer.Len()
	return nil
}
func (f *bufferedInputFilter) isFinished() bool { return f.filled && f.offset == f.buffer.Len() }

func (f *bufferedInputFilter) recycle() {
	f.prev = nil
	if f.buffer != nil {
		bytebufferpool.Put(f.buffer)
		f.buffer = nil
	}
	f.filled = false
	f.offset = 0
}
