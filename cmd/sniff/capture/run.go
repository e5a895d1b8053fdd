// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package capture

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Stats counts what one pipeline saw. Safe to read while the pipeline runs.
type Stats struct {
	Frames    atomic.Int64
	Bytes     atomic.Int64
	Bad       atomic.Int64
	Transient atomic.Int64
}

// Log writes a one line summary of s.
func (s *Stats) Log(ev *zerolog.Event) {
	ev.Int64("frames", s.Frames.Load()).
		Int64("bytes", s.Bytes.Load()).
		Int64("bad", s.Bad.Load()).
		Int64("read_errors", s.Transient.Load()).
		Msgf("Captured %d frames", s.Frames.Load())
}

// Run starts every pipeline in its own goroutine and waits for all of them.
// Once ctx is done the wait is bounded by grace; pipelines still running
// after that are abandoned and counted in the first result.
func Run(ctx context.Context, grace time.Duration, pipelines ...*Pipeline) (abandoned int, err error) {
	results := make(chan error, len(pipelines))
	for _, p := range pipelines {
		go func(p *Pipeline) {
			results <- p.Run(ctx)
		}(p)
	}

	var deadline <-chan time.Time
	done := ctx.Done()
	for pending := len(pipelines); pending > 0; {
		select {
		case e := <-results:
			err = multierr.Append(err, e)
			pending--
		case <-done:
			done = nil
			deadline = time.After(grace)
		case <-deadline:
			return pending, err
		}
	}
	return 0, err
}
