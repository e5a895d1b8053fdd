// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package frame

import (
	"bytes"
	"time"
)

const (
	// StartMarker opens a RAPI command line.
	StartMarker = '$'
	// EndMarker closes a RAPI command line.
	EndMarker = '^'

	// maxPending bounds the bytes kept while waiting for a marker.
	maxPending = 4096
)

// DelimitedAssembler frames a text stream by start and end marker bytes.
// Timing plays no role.
type DelimitedAssembler struct {
	start, end byte
	src        Source
	buf        []byte
}

func NewDelimitedAssembler(start, end byte) *DelimitedAssembler {
	return &DelimitedAssembler{start: start, end: end}
}

// Pending returns the number of buffered bytes.
func (a *DelimitedAssembler) Pending() int {
	return len(a.buf)
}

func (a *DelimitedAssembler) Feed(c Chunk) []Frame {
	if c.Tick() {
		return nil
	}
	a.src = c.Source
	a.buf = append(a.buf, c.Data...)

	var frames []Frame
	for {
		i := bytes.IndexByte(a.buf, a.start)
		if i < 0 {
			break
		}
		j := bytes.IndexByte(a.buf[i+1:], a.end)
		if j < 0 {
			// Keep everything, the end marker may still arrive.
			break
		}
		end := i + 1 + j + 1
		data := make([]byte, end-i)
		copy(data, a.buf[i:end])
		frames = append(frames, Frame{Source: a.src, Time: c.Time, Data: data})
		a.buf = a.buf[end:]
	}
	a.trim()
	return frames
}

// Flush returns the pending bytes from the first start marker on as one last
// frame. Bytes without any start marker are noise and are dropped.
func (a *DelimitedAssembler) Flush(now time.Time) []Frame {
	defer func() { a.buf = nil }()
	i := bytes.IndexByte(a.buf, a.start)
	if i < 0 {
		return nil
	}
	data := make([]byte, len(a.buf)-i)
	copy(data, a.buf[i:])
	return []Frame{{Source: a.src, Time: now, Data: data}}
}

func (a *DelimitedAssembler) trim() {
	if len(a.buf) == 0 {
		a.buf = nil
		return
	}
	if len(a.buf) <= maxPending {
		return
	}
	keep := a.buf[len(a.buf)-maxPending:]
	if i := bytes.LastIndexByte(a.buf, a.start); i >= 0 && len(a.buf)-i <= maxPending {
		keep = a.buf[i:]
	}
	a.buf = append([]byte(nil), keep...)
}
