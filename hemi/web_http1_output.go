// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// HTTP/1 outgoing side: status line and header window, commit, and the body path through output filters.

package hemi

// http1Output writes the head of a response into its own window, commits it once, and then
// passes body bytes through the active output filters down to the socket stage.
type http1Output struct {
	// Assocs
	transport Transport
	// States (stocks)
	stockHead [_1K]byte
	// States (controlled)
	socket   socketStage
	identity identityOutputFilter
	chunked  chunkedOutputFilter
	void     voidOutputFilter
	gzip     gzipOutputFilter
	// States (non-zeros)
	head        window
	maxHeadSize int32
	// States (zeros)
	http1Output0
}
type http1Output0 struct { // for fast reset, entirely
	active       [maxActiveFilters]outputFilter
	numActive    int8
	committed    bool
	ended        bool  // body finished, later ends are no-ops
	http09       bool  // no status line and no headers
	bytesWritten int64 // body bytes given to filters
	headSize     int32 // bytes of the committed head
	headErr      error // sticky, set when the head outgrows maxHeadSize
}

func (out *http1Output) onUse(transport Transport, maxHeadSize int32, socketBufferSize int, gzipLevel int) {
	out.transport = transport
	out.head.init(out.stockHead[:])
	out.maxHeadSize = maxHeadSize
	out.socket.onUse(transport, socketBufferSize)
	out.gzip.level = gzipLevel
	out.identity.contentLength = -1
}
func (out *http1Output) onEnd() {
	out._resetFilters()
	out.head.reset()
	out.socket.onEnd()
	out.http1Output0 = http1Output0{}
	out.transport = nil
}
func (out *http1Output) nextRequest() {
	out._resetFilters()
	out.head.reset()
	out.http1Output0 = http1Output0{}
}

func (out *http1Output) sendStatus(status int16) error {
	var line [64]byte
	return out._append(http1StatusLine(line[:0], status))
}

// sendHeader writes "name: value\r\n". Control bytes other than HTAB in value are replaced by spaces.
func (out *http1Output) sendHeader(name string, value string) error {
	if err := out._reserve(len(name) + 2 + len(value) + 2); err != nil {
		return err
	}
	w := &out.head
	w.lim += int32(copy(w.buffer[w.lim:], name))
	w.buffer[w.lim] = ':'
	w.buffer[w.lim+1] = ' '
	w.lim += 2
	for i := 0; i < len(value); i++ {
		b := value[i]
		if byteIsCtl(b) {
			b = ' '
		}
		w.buffer[w.lim] = b
		w.lim++
	}
	w.buffer[w.lim] = '\r'
	w.buffer[w.lim+1] = '\n'
	w.lim += 2
	return nil
}

// sendLine writes a prepared header line.
func (out *http1Output) sendLine(line []byte) error { return out._append(line) }

func (out *http1Output) endHeaders() error { return out._append(bytesCRLF) }

func (out *http1Output) _append(p []byte) error {
	if err := out._reserve(len(p)); err != nil {
		return err
	}
	w := &out.head
	w.lim += int32(copy(w.buffer[w.lim:], p))
	return nil
}
func (out *http1Output) _reserve(size int) error {
	if out.headErr != nil {
		return out.headErr
	}
	w := &out.head
	if int64(w.lim)+int64(size) > int64(out.maxHeadSize) {
		out.headErr = errHeadersTooLarge
		return out.headErr
	}
	w.ensureSpace(int32(size))
	return nil
}

// resetHead drops uncommitted head bytes.
func (out *http1Output) resetHead() {
	if out.committed {
		BugExitln("reset head after commit")
	}
	out.head.reset()
	out.headErr = nil
}

// commit hands the head to the socket stage. Only the first call has effect.
func (out *http1Output) commit() error {
	if out.committed {
		return nil
	}
	out.committed = true
	if out.http09 {
		return nil
	}
	w := &out.head
	out.headSize = w.lim
	_, err := out.socket.write(w.buffer[:w.lim])
	return err
}
func (out *http1Output) isCommitted() bool { return out.committed }

// sendContinue writes the interim 100 response right away.
func (out *http1Output) sendContinue() error {
	if out.committed {
		return errAlreadyCommitted
	}
	if _, err := out.socket.write(http1BytesContinue); err != nil {
		return err
	}
	return out.socket.flush()
}

func (out *http1Output) flushSocket() error { return out.socket.flush() }

func (out *http1Output) addActiveFilter(kind int8) outputFilter {
	var filter outputFilter
	switch kind {
	case filterIdentity:
		filter = &out.identity
	case filterChunked:
		filter = &out.chunked
	case filterVoid:
		filter = &out.void
	case filterGzip:
		filter = &out.gzip
	default:
		BugExitln("unknown output filter")
	}
	if out.numActive == maxActiveFilters {
		BugExitln("too many output filters")
	}
	if out.numActive == 0 {
		filter.setNext(&out.socket)
	} else {
		filter.setNext(out.active[out.numActive-1])
	}
	out.active[out.numActive] = filter
	out.numActive++
	return filter
}
func (out *http1Output) _resetFilters() {
	for i := int8(0); i < out.numActive; i++ {
		out.active[i].recycle()
		out.active[i] = nil
	}
	out.numActive = 0
}

func (out *http1Output) _last() outputStage {
	if out.numActive == 0 {
		return &out.socket
	}
	return out.active[out.numActive-1]
}

func (out *http1Output) write(p []byte) (int, error) {
	n, err := out._last().write(p)
	out.bytesWritten += int64(n)
	return n, err
}
func (out *http1Output) flush() error { return out._last().flush() }

// end finishes the body and flushes everything to the transport. Only the first call has effect.
func (out *http1Output) end() error {
	if out.ended {
		return nil
	}
	out.ended = true
	return out._last().end()
}

func (out *http1Output) hasPending() bool { return out.socket.hasPending() }
