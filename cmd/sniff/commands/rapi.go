// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"time"

	"github.com/kinetos/sniff/cmd/sniff/capture"
	"github.com/kinetos/sniff/cmd/sniff/frame"
	"github.com/kinetos/sniff/cmd/sniff/rapi"
	"github.com/kinetos/sniff/cmd/sniff/trace"
	"github.com/spf13/cobra"
)

// rapiReadTimeout only bounds how quickly an interrupt is noticed, RAPI
// frames are delimited and never wait for silence.
const rapiReadTimeout = 100 * time.Millisecond

func RapiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rapi",
		Short: "Sniff RAPI command lines",
		Long: "Listen on one or both lines of a RAPI link and print every '$'...'^' command\n" +
			"line with its arguments. Lines that do not parse are printed as malformed\n" +
			"together with their raw bytes.",
		Example:      "  sniff rapi --tx /dev/ttyUSB1 --rx /dev/ttyUSB0",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, rapiSection)
			if err != nil {
				return err
			}
			if err := s.check(false); err != nil {
				return err
			}

			var pipelines []*capture.Pipeline
			for _, src := range []frame.Source{
				{ID: "TX", Device: s.TX},
				{ID: "RX", Device: s.RX},
			} {
				if src.Device == "" {
					continue
				}
				pipelines = append(pipelines, &capture.Pipeline{
					Source:    src,
					Options:   s.options(src.Device, rapiReadTimeout),
					Assembler: frame.NewDelimitedAssembler(frame.StartMarker, frame.EndMarker),
					Decode:    decodeRapi,
				})
			}
			return runCapture(cmd, s.format, pipelines)
		},
	}

	addLineFlags(cmd, "", "", 115200)
	return cmd
}

func decodeRapi(f frame.Frame) trace.Record {
	return rapi.NewRecord(f)
}
