// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package frame turns timestamped byte chunks read from one serial line into
// discrete protocol frames.
package frame

import (
	"fmt"
	"time"
)

// Source identifies the physical serial line a chunk or frame came from.
type Source struct {
	// ID is the short direction label, "TX" or "RX".
	ID string
	// Detail describes who talks on the line, e.g. "ESP32->Meter".
	Detail string
	// Device is the serial device path.
	Device string
}

func (s Source) String() string {
	if s.Detail == "" {
		return s.ID
	}
	return fmt.Sprintf("%s (%s)", s.ID, s.Detail)
}

// Chunk is the result of one read call on a port. A chunk without data is a
// poll tick: the read timed out and nothing arrived.
type Chunk struct {
	Source Source
	// Time carries both the wall clock and the monotonic reading.
	Time time.Time
	Data []byte
}

// Tick reports whether the chunk carries no bytes.
func (c Chunk) Tick() bool {
	return len(c.Data) == 0
}

// Frame is a completed protocol message. Data is never empty.
type Frame struct {
	Source Source
	Time   time.Time
	Data   []byte
}

// Assembler groups chunks of a single source into frames. Implementations are
// not safe for concurrent use; every port owns its own assembler.
type Assembler interface {
	// Feed consumes one chunk and returns the frames it completed, in order.
	Feed(c Chunk) []Frame
	// Flush returns whatever is still buffered, used on shutdown.
	Flush(now time.Time) []Frame
}
