// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Filters are codec stages between the transport and the parser or the writer.
// Every connection owns a fixed library of filters, one per kind, and a small stack of
// active filters that is rebuilt for every message.

package hemi

const ( // filter kinds
	filterIdentity = iota
	filterChunked
	filterVoid
	filterBuffered // input only
	filterGzip     // output only
)

const maxActiveFilters = 4

// inputStage produces decoded bytes as borrowed views. A view stays valid until the next fetch.
type inputStage interface {
	// fetch returns the next decoded bytes. (nil, nil) means no bytes are available right now.
	// io.EOF marks the end of the message body.
	fetch() ([]byte, error)
	// unread gives back the last n bytes of the latest view.
	unread(n int)
}

// inputFilter is an inputStage pulling from a previous stage.
type inputFilter interface {
	inputStage
	kind() int8
	setPrev(prev inputStage)
	// finish consumes and discards the rest of the message. Bytes beyond the message are given back to the previous stage.
	finish() error
	isFinished() bool
	recycle()
}

// outputStage consumes raw body bytes.
type outputStage interface {
	write(p []byte) (int, error)
	flush() error
	// end terminates the message, e.g. with the last chunk.
	end() error
}

// outputFilter is an outputStage encoding into a next stage.
type outputFilter interface {
	outputStage
	kind() int8
	setNext(next outputStage)
	recycle()
}
