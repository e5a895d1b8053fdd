// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package frame

import "time"

// DefaultGap is the inactivity gap used when none (or a non-positive one) is
// configured.
const DefaultGap = 20 * time.Millisecond

// NormalizeGap replaces a non-positive gap with DefaultGap.
func NormalizeGap(gap time.Duration) time.Duration {
	if gap <= 0 {
		return DefaultGap
	}
	return gap
}

// GapAssembler frames a binary stream by silence: bytes accumulate until a
// poll tick observes that no byte arrived for at least the gap.
//
// It has two states. IDLE when the buffer is empty, ACCUMULATING otherwise.
// Only a flush moves it back to IDLE.
type GapAssembler struct {
	gap  time.Duration
	src  Source
	buf  []byte
	last time.Time
}

func NewGapAssembler(gap time.Duration) *GapAssembler {
	return &GapAssembler{gap: NormalizeGap(gap)}
}

// Gap returns the effective inactivity gap.
func (a *GapAssembler) Gap() time.Duration {
	return a.gap
}

// Pending returns the number of buffered bytes.
func (a *GapAssembler) Pending() int {
	return len(a.buf)
}

func (a *GapAssembler) Feed(c Chunk) []Frame {
	if !c.Tick() {
		a.src = c.Source
		a.buf = append(a.buf, c.Data...)
		a.last = c.Time
		return nil
	}
	if len(a.buf) == 0 || c.Time.Sub(a.last) < a.gap {
		return nil
	}
	return a.emit(c.Time)
}

func (a *GapAssembler) Flush(now time.Time) []Frame {
	if len(a.buf) == 0 {
		return nil
	}
	return a.emit(now)
}

// emit hands the buffer over to the frame; the next byte starts a new one.
func (a *GapAssembler) emit(at time.Time) []Frame {
	f := Frame{Source: a.src, Time: at, Data: a.buf}
	a.buf = nil
	return []Frame{f}
}
