// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package port

import (
	"time"

	"github.com/kinetos/sniff/cmd/sniff/frame"
)

const readSize = 256

// Reader performs bounded reads on one device and stamps every result with
// its arrival time.
type Reader struct {
	dev    Device
	source frame.Source
	buf    []byte
	now    func() time.Time
}

// NewReader returns a reader tagging chunks with src. A nil clock means
// time.Now.
func NewReader(dev Device, src frame.Source, clock func() time.Time) *Reader {
	if clock == nil {
		clock = time.Now
	}
	return &Reader{
		dev:    dev,
		source: src,
		buf:    make([]byte, readSize),
		now:    clock,
	}
}

// Read returns the bytes of one read call. An empty chunk means the read
// timed out. Bytes received together with an error are still returned.
func (r *Reader) Read() (frame.Chunk, error) {
	n, err := r.dev.Read(r.buf)
	c := frame.Chunk{Source: r.source, Time: r.now()}
	if n > 0 {
		c.Data = make([]byte, n)
		copy(c.Data, r.buf[:n])
	}
	if err != nil {
		return c, classify(r.source.Device, err)
	}
	return c, nil
}
