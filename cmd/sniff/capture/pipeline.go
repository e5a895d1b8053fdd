// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package capture runs one read, assemble, decode and render loop per serial
// port.
package capture

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kinetos/sniff/cmd/sniff/frame"
	"github.com/kinetos/sniff/cmd/sniff/port"
	"github.com/kinetos/sniff/cmd/sniff/trace"
	"github.com/rs/zerolog"
)

// TransientPause is how long a pipeline waits after a failed read.
const TransientPause = 100 * time.Millisecond

// Decoder turns a frame into a record. It must be pure.
type Decoder func(frame.Frame) trace.Record

// Renderer receives the records of all pipelines.
type Renderer interface {
	Render(trace.Record)
}

// Opener opens a device; port.Open in production.
type Opener func(port.Options) (port.Device, error)

type Pipeline struct {
	Source    frame.Source
	Options   port.Options
	Assembler frame.Assembler
	Decode    Decoder
	Sink      Renderer
	Log       zerolog.Logger

	// Optional.
	Open  Opener
	Clock func() time.Time
	Pause time.Duration

	Stats Stats
}

// Run captures until ctx is done, the device reports end of stream, or a
// fatal error occurs. Buffered bytes are always flushed before returning.
// Only fatal errors are returned.
func (p *Pipeline) Run(ctx context.Context) error {
	open := p.Open
	if open == nil {
		open = port.Open
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	pause := p.Pause
	if pause <= 0 {
		pause = TransientPause
	}

	dev, err := open(p.Options)
	if err != nil {
		p.Log.Error().Err(err).Msgf("Failed to open %s", p.Options.Device)
		return err
	}
	defer dev.Close()

	ev := p.Log.Info().
		Str("device", p.Options.Device).
		Str("as", p.Source.String()).
		Int("baud", p.Options.Baud).
		Stringer("parity", p.Options.Parity).
		Int("stop", p.Options.StopBits).
		Int("bits", p.Options.DataBits).
		Dur("read_timeout", p.Options.ReadTimeout)
	if g, ok := p.Assembler.(*frame.GapAssembler); ok {
		ev = ev.Dur("frame_timeout", g.Gap())
	}
	ev.Msgf("Opened %s as %s", p.Options.Device, p.Source.ID)

	r := port.NewReader(dev, p.Source, clock)
	defer func() { p.emit(p.Assembler.Flush(clock())) }()

	for ctx.Err() == nil {
		chunk, err := r.Read()
		p.Stats.Bytes.Add(int64(len(chunk.Data)))
		p.emit(p.Assembler.Feed(chunk))
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			p.Log.Debug().Msg("End of stream")
			return nil
		}
		if port.IsFatal(err) {
			p.Log.Error().Err(err).Msg("Capture stopped")
			return err
		}
		p.Stats.Transient.Inc()
		p.Log.Warn().Err(err).Msg("Read failed, retrying")
		select {
		case <-ctx.Done():
		case <-time.After(pause):
		}
	}
	return nil
}

func (p *Pipeline) emit(frames []frame.Frame) {
	for _, f := range frames {
		if len(f.Data) == 0 {
			continue
		}
		rec := p.Decode(f)
		p.Stats.Frames.Inc()
		if !rec.OK() {
			p.Stats.Bad.Inc()
		}
		p.Sink.Render(rec)
	}
}
