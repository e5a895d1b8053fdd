// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package frame

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	tx = Source{ID: "TX", Detail: "ESP32->Meter", Device: "/dev/ttyUSB0"}
)

func chunk(at time.Duration, data string) Chunk {
	var b []byte
	if data != "" {
		b = []byte(data)
	}
	return Chunk{Source: tx, Time: t0.Add(at), Data: b}
}

func TestNormalizeGap(t *testing.T) {
	assert.Equal(t, DefaultGap, NormalizeGap(0))
	assert.Equal(t, DefaultGap, NormalizeGap(-5*time.Millisecond))
	assert.Equal(t, 5*time.Millisecond, NormalizeGap(5*time.Millisecond))
	assert.Equal(t, DefaultGap, NewGapAssembler(0).Gap())
}

func TestGapAssemblerFlushesAfterSilence(t *testing.T) {
	a := NewGapAssembler(20 * time.Millisecond)

	assert.Empty(t, a.Feed(chunk(0, "\x01\x03")))
	assert.Empty(t, a.Feed(chunk(2*time.Millisecond, "\x00\x00")))
	// A tick shorter than the gap keeps accumulating.
	assert.Empty(t, a.Feed(chunk(10*time.Millisecond, "")))
	assert.Equal(t, 4, a.Pending())

	frames := a.Feed(chunk(22*time.Millisecond, ""))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x00}, frames[0].Data)
	assert.Equal(t, t0.Add(22*time.Millisecond), frames[0].Time, "stamped at flush time")
	assert.Equal(t, tx, frames[0].Source)
	assert.Equal(t, 0, a.Pending())

	// Back in IDLE, ticks produce nothing.
	assert.Empty(t, a.Feed(chunk(500*time.Millisecond, "")))
}

func TestGapAssemblerGapIsInclusive(t *testing.T) {
	a := NewGapAssembler(20 * time.Millisecond)
	a.Feed(chunk(0, "\x01"))
	assert.Len(t, a.Feed(chunk(20*time.Millisecond, "")), 1)
}

func TestGapAssemblerNoTickMeansOneFrame(t *testing.T) {
	a := NewGapAssembler(20 * time.Millisecond)

	assert.Empty(t, a.Feed(chunk(0, "\x01\x02")))
	// The second chunk arrives late, but no empty poll happened in between.
	assert.Empty(t, a.Feed(chunk(50*time.Millisecond, "\x03\x04\xAA\xBB")))

	frames := a.Flush(t0.Add(time.Second))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0xAA, 0xBB}, frames[0].Data)
}

func TestGapAssemblerFlushEmpty(t *testing.T) {
	a := NewGapAssembler(DefaultGap)
	assert.Empty(t, a.Flush(t0))
}

func TestGapAssemblerFramesDoNotShareMemory(t *testing.T) {
	a := NewGapAssembler(DefaultGap)
	a.Feed(chunk(0, "\x01\x02"))
	first := a.Feed(chunk(time.Second, ""))
	a.Feed(chunk(2*time.Second, "\x09"))
	second := a.Flush(t0.Add(3 * time.Second))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, []byte{0x01, 0x02}, first[0].Data)
	assert.Equal(t, []byte{0x09}, second[0].Data)
}

func frameStrings(frames []Frame) []string {
	var res []string
	for _, f := range frames {
		res = append(res, string(f.Data))
	}
	return res
}

func TestDelimitedAssembler(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		frames  []string
		pending int
	}{
		{
			name:   "back to back",
			chunks: []string{"$GET 1 2^$SET^"},
			frames: []string{"$GET 1 2^", "$SET^"},
		},
		{
			name:   "split across reads",
			chunks: []string{"$G", "ET 1", " 2^"},
			frames: []string{"$GET 1 2^"},
		},
		{
			name:   "noise before start is dropped",
			chunks: []string{"\r\nxx$OK 5^\r\n"},
			frames: []string{"$OK 5^"},
			// The trailing CR LF has no start marker yet and is retained.
			pending: 2,
		},
		{
			name:    "unmatched start keeps preceding bytes",
			chunks:  []string{"ab$GE"},
			pending: 5,
		},
		{
			name:   "end before start is skipped",
			chunks: []string{"^junk^$FP 1^"},
			frames: []string{"$FP 1^"},
		},
		{
			name:   "second start inside frame",
			chunks: []string{"$a$b^"},
			frames: []string{"$a$b^"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := NewDelimitedAssembler(StartMarker, EndMarker)
			var frames []Frame
			for i, c := range test.chunks {
				frames = append(frames, a.Feed(chunk(time.Duration(i)*time.Millisecond, c))...)
			}
			assert.Equal(t, test.frames, frameStrings(frames))
			assert.Equal(t, test.pending, a.Pending())
		})
	}
}

func TestDelimitedAssemblerIgnoresTicks(t *testing.T) {
	a := NewDelimitedAssembler(StartMarker, EndMarker)
	a.Feed(chunk(0, "$GS"))
	assert.Empty(t, a.Feed(chunk(time.Hour, "")))
	assert.Equal(t, 3, a.Pending())
}

func TestDelimitedAssemblerFlush(t *testing.T) {
	a := NewDelimitedAssembler(StartMarker, EndMarker)
	a.Feed(chunk(0, "xx$GS 1"))
	frames := a.Flush(t0)
	assert.Equal(t, []string{"$GS 1"}, frameStrings(frames))
	assert.Equal(t, 0, a.Pending())

	a.Feed(chunk(0, "noise"))
	assert.Empty(t, a.Flush(t0))
	assert.Equal(t, 0, a.Pending())
}

func TestDelimitedAssemblerBoundsPending(t *testing.T) {
	a := NewDelimitedAssembler(StartMarker, EndMarker)
	a.Feed(chunk(0, strings.Repeat("x", maxPending+100)))
	assert.Equal(t, maxPending, a.Pending())

	a.Feed(chunk(0, "$ST"))
	a.Feed(chunk(0, strings.Repeat("y", 10)))
	assert.LessOrEqual(t, a.Pending(), maxPending)
	frames := a.Feed(chunk(0, "^"))
	require.Len(t, frames, 1)
	assert.Equal(t, "$ST"+strings.Repeat("y", 10)+"^", string(frames[0].Data))
}
