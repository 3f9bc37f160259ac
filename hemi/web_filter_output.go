// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Output filters and the socket stage they end up in.

package hemi

import (
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

// socketStage coalesces small writes and hands them to the transport. Bytes the transport
// could not take yet stay pending until the transport becomes writable again.
type socketStage struct {
	// Assocs
	transport Transport
	// States
	bufferSize int // flush threshold
	buffer     *bytebufferpool.ByteBuffer
	written    int64 // bytes accepted by the transport
	onWrite    func(n int)
}

func (s *socketStage) onUse(transport Transport, bufferSize int) {
	s.transport = transport
	s.bufferSize = bufferSize
	s.buffer = bytebufferpool.Get()
}
func (s *socketStage) onEnd() {
	if s.buffer != nil {
		bytebufferpool.Put(s.buffer)
		s.buffer = nil
	}
	s.transport = nil
	s.written = 0
}

func (s *socketStage) write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.buffer.Len()+len(p) <= s.bufferSize {
		s.buffer.Write(p)
		return len(p), nil
	}
	if err := s.flush(); err != nil {
		return 0, err
	}
	if s.buffer.Len() > 0 || len(p) < s.bufferSize { // keep order behind pending bytes
		s.buffer.Write(p)
		return len(p), nil
	}
	n, err := s.transport.Write(p)
	s._account(n)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		s.buffer.Write(p[n:])
		s.transport.RegisterWriteInterest()
	}
	return len(p), nil
}
func (s *socketStage) flush() error {
	if s.buffer.Len() == 0 {
		return nil
	}
	n, err := s.transport.Write(s.buffer.B)
	s._account(n)
	if err != nil {
		return err
	}
	if n < s.buffer.Len() {
		s.buffer.Set(s.buffer.B[n:])
		s.transport.RegisterWriteInterest()
	} else {
		s.buffer.Reset()
	}
	return nil
}
func (s *socketStage) end() error { return s.flush() }

func (s *socketStage) hasPending() bool { return s.buffer != nil && s.buffer.Len() > 0 }

func (s *socketStage) _account(n int) {
	if n > 0 {
		s.written += int64(n)
		if s.onWrite != nil {
			s.onWrite(n)
		}
	}
}

// identityOutputFilter passes bytes through. With a known length, bytes beyond it are dropped.
type identityOutputFilter struct {
	// Assocs
	next outputStage
	// States
	contentLength int64 // -1 means until close
	remaining     int64
}

func (f *identityOutputFilter) kind() int8               { return filterIdentity }
func (f *identityOutputFilter) setNext(next outputStage) { f.next = next }
func (f *identityOutputFilter) setLength(size int64) {
	f.contentLength = size
	f.remaining = size
}

func (f *identityOutputFilter) write(p []byte) (int, error) {
	size := len(p)
	if f.contentLength >= 0 {
		if f.remaining <= 0 {
			return size, nil
		}
		if int64(len(p)) > f.remaining {
			p = p[:f.remaining]
		}
		f.remaining -= int64(len(p))
	}
	if _, err := f.next.write(p); err != nil {
		return 0, err
	}
	return size, nil
}
func (f *identityOutputFilter) flush() error { return f.next.flush() }
func (f *identityOutputFilter) end() error   { return f.next.end() }

func (f *identityOutputFilter) recycle() {
	f.next = nil
	f.contentLength = -1
	f.remaining = 0
}

// chunkedOutputFilter writes every piece as a chunk and ends with the last-chunk plus trailers.
type chunkedOutputFilter struct {
	// Assocs
	next outputStage
	// States
	trailers func(p []byte) []byte // appends "name: value\r\n" lines
	scratch  []byte
}

func (f *chunkedOutputFilter) kind() int8               { return filterChunked }
func (f *chunkedOutputFilter) setNext(next outputStage) { f.next = next }

func (f *chunkedOutputFilter) write(p []byte) (int, error) {
	if len(p) == 0 { // a zero-size chunk would end the message
		return 0, nil
	}
	var size [18]byte
	n := i64ToHex(int64(len(p)), size[:])
	size[n] = '\r'
	size[n+1] = '\n'
	if _, err := f.next.write(size[:n+2]); err != nil {
		return 0, err
	}
	if _, err := f.next.write(p); err != nil {
		return 0, err
	}
	if _, err := f.next.write(bytesCRLF); err != nil {
		return 0, err
	}
	return len(p), nil
}
func (f *chunkedOutputFilter) flush() error { return f.next.flush() }
func (f *chunkedOutputFilter) end() error {
	var last []byte
	if f.trailers != nil {
		f.scratch = append(f.scratch[:0], http1BytesZeroCRLF...)
		f.scratch = f.trailers(f.scratch)
		last = append(f.scratch, bytesCRLF...)
	} else {
		last = http1BytesZeroCRLFCRLF
	}
	if _, err := f.next.write(last); err != nil {
		return err
	}
	return f.next.end()
}

func (f *chunkedOutputFilter) recycle() {
	f.next = nil
	f.trailers = nil
	f.scratch = f.scratch[:0]
}

// voidOutputFilter drops all bytes.
type voidOutputFilter struct {
	// Assocs
	next outputStage
}

func (f *voidOutputFilter) kind() int8                  { return filterVoid }
func (f *voidOutputFilter) setNext(next outputStage)    { f.next = next }
func (f *voidOutputFilter) write(p []byte) (int, error) { return len(p), nil }
func (f *voidOutputFilter) flush() error                { return f.next.flush() }
func (f *voidOutputFilter) end() error                  { return f.next.end() }
func (f *voidOutputFilter) recycle()                    { f.next = nil }

// gzipWriterPools keeps one pool per level, since gzip.Writer.Reset keeps the level of the writer.
var gzipWriterPools [gzip.BestCompression - gzip.HuffmanOnly + 1]sync.Pool

func gzipWriterPool(level int) *sync.Pool { return &gzipWriterPools[level-gzip.HuffmanOnly] }

// gzipOutputFilter compresses bytes into the next stage.
type gzipOutputFilter struct {
	// Assocs
	next outputStage
	// States
	level  int
	writer *gzip.Writer
}

func (f *gzipOutputFilter) kind() int8               { return filterGzip }
func (f *gzipOutputFilter) setNext(next outputStage) { f.next = next }

// Write lets gzip.Writer use the filter as its sink.
func (f *gzipOutputFilter) Write(p []byte) (int, error) { return f.next.write(p) }

func (f *gzipOutputFilter) write(p []byte) (int, error) {
	if f.writer == nil {
		if x := gzipWriterPool(f.level).Get(); x != nil {
			f.writer = x.(*gzip.Writer)
			f.writer.Reset(f)
		} else {
			writer, err := gzip.NewWriterLevel(f, f.level)
			if err != nil {
				return 0, err
			}
			f.writer = writer
		}
	}
	return f.writer.Write(p)
}
func (f *gzipOutputFilter) flush() error {
	if f.writer != nil {
		if err := f.writer.Flush(); err != nil {
			return err
		}
	}
	return f.next.flush()
}
func (f *gzipOutputFilter) end() error {
	if f.writer == nil { // nothing written, still emit a valid empty member
		if _, err := f.write(nil); err != nil {
			return err
		}
	}
	if err := f.writer.Close(); err != nil {
		return err
	}
	return f.next.end()
}

func (f *gzipOutputFilter) recycle() {
	if f.writer != nil {
		gzipWriterPool(f.level).Put(f.writer)
		f.writer = nil
	}
	f.next = nil
}
