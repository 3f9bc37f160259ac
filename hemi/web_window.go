// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Byte window used by the input and output paths.

package hemi

// window is a growable byte buffer with a position, a limit, and an optional mark.
// Bytes in [pos, lim) are not consumed yet. When mark is set, bytes in [mark, pos) are kept by compaction and growth as well.
type window struct {
	buffer []byte // current storage, stock or pooled
	stock  []byte // initial storage, owned by the container
	pooled bool   // buffer is from GetNK()
	pos    int32  // next byte to consume
	lim    int32  // end of valid bytes
	mark   int32  // -1 if not set
}

func (w *window) init(stock []byte) {
	w.stock = stock
	w.buffer = stock
	w.pooled = false
	w.pos, w.lim, w.mark = 0, 0, -1
}
func (w *window) reset() {
	w.free()
	w.pos, w.lim, w.mark = 0, 0, -1
}
func (w *window) free() {
	if w.pooled {
		PutNK(w.buffer)
		w.pooled = false
	}
	w.buffer = w.stock
}

func (w *window) remaining() int32 { return w.lim - w.pos }
func (w *window) space() int32     { return int32(len(w.buffer)) - w.lim }
func (w *window) unread() []byte   { return w.buffer[w.pos:w.lim] }
func (w *window) tail() []byte     { return w.buffer[w.lim:] }
func (w *window) extend(n int32)   { w.lim += n }

func (w *window) setMark()   { w.mark = w.pos }
func (w *window) clearMark() { w.mark = -1 }
func (w *window) keepFrom() int32 {
	if w.mark >= 0 {
		return w.mark
	}
	return w.pos
}

// compact moves the kept bytes to the front and returns how far they moved.
func (w *window) compact() int32 {
	from := w.keepFrom()
	if from == 0 {
		return 0
	}
	copy(w.buffer, w.buffer[from:w.lim])
	w._shift(from)
	return from
}

// grow makes room for at least one more byte. Kept bytes are never dropped, so the
// window refuses to grow when they already reach maxSize.
func (w *window) grow(maxSize int32) (shift int32, ok bool) {
	from := w.keepFrom()
	used := w.lim - from
	if used >= maxSize {
		return 0, false
	}
	size := int32(len(w.buffer))
	if used < size { // compaction is enough
		return w.compact(), true
	}
	var next int32
	if size < _4K {
		next = _4K
	} else if size < _16K {
		next = _16K
	} else if size < _64K1 {
		next = _64K1
	} else {
		next = size * 2
	}
	buffer := GetNK(int64(next))
	copy(buffer, w.buffer[from:w.lim])
	if w.pooled {
		PutNK(w.buffer)
	}
	w.buffer = buffer
	w.pooled = true
	w._shift(from)
	return from, true
}

func (w *window) _shift(from int32) {
	w.lim -= from
	w.pos -= from
	if w.mark >= 0 {
		w.mark -= from
	}
}

// ensureSpace grows the window until at least n bytes fit after lim.
func (w *window) ensureSpace(n int32) {
	for w.space() < n {
		size := int32(len(w.buffer))
		buffer := GetNK(int64(w.lim + n))
		if int32(len(buffer)) <= size {
			buffer = make([]byte, size*2)
		}
		copy(buffer, w.buffer[:w.lim])
		if w.pooled {
			PutNK(w.buffer)
		}
		w.buffer = buffer
		w.pooled = cap(buffer) == _4K || cap(buffer) == _16K || cap(buffer) == _64K1
	}
}
