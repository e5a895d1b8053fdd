// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kinetos/sniff/cmd/sniff/capture"
	"github.com/kinetos/sniff/cmd/sniff/logging"
	"github.com/kinetos/sniff/cmd/sniff/trace"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// joinGrace bounds the wait for pipelines after an interrupt. A read that
// ignores its timeout must not keep the process alive.
const joinGrace = time.Second

// runCapture runs pipelines until they end or the process is interrupted,
// rendering all of them to stdout.
func runCapture(cmd *cobra.Command, format trace.Format, pipelines []*capture.Pipeline) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.Configure(logging.ProfileRuntime)
	stopped := context.AfterFunc(ctx, func() {
		log.Info().Msg("Stopping capture")
	})
	defer stopped()

	session := uuid.New().String()
	sink := trace.NewSink(os.Stdout, trace.Options{
		Format:  format,
		Color:   trace.IsTerminal(os.Stdout),
		Session: session,
	})
	for _, p := range pipelines {
		p.Sink = sink
		p.Log = log.With().Str("port", p.Source.ID).Logger()
	}

	log.Debug().Str("session", session).Msgf("Capturing on %d ports", len(pipelines))
	stuck, err := capture.Run(ctx, joinGrace, pipelines...)
	if stuck > 0 {
		log.Warn().Int("pipelines", stuck).Msg("Gave up waiting for blocked reads")
	}
	err = multierr.Append(err, sink.Close())

	for _, p := range pipelines {
		p.Stats.Log(p.Log.Info())
	}
	if err != nil {
		return &ExitError{Code: exitFailure, Err: err}
	}
	return nil
}
