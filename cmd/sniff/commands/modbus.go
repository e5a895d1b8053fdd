// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"time"

	"github.com/kinetos/sniff/cmd/sniff/capture"
	"github.com/kinetos/sniff/cmd/sniff/frame"
	"github.com/kinetos/sniff/cmd/sniff/modbus"
	"github.com/kinetos/sniff/cmd/sniff/port"
	"github.com/kinetos/sniff/cmd/sniff/trace"
	"github.com/spf13/cobra"
)

func ModbusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modbus",
		Short: "Sniff Modbus RTU traffic between the ESP32 and the meter",
		Long: "Listen on the TX line (ESP32 to meter) and the RX line (meter to ESP32) and print\n" +
			"one row per Modbus RTU frame with its slave address, function code, payload\n" +
			"and CRC check.\n\n" +
			"A frame ends once the line has been silent for --gap-ms milliseconds.",
		Example:      "  sniff modbus --tx /dev/ttyUSB0 --rx /dev/ttyUSB1 --baud 9600 --parity E",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, modbusSection)
			if err != nil {
				return err
			}
			if err := s.check(true); err != nil {
				return err
			}

			gap := frame.NormalizeGap(time.Duration(s.GapMS * float64(time.Millisecond)))
			sources := []frame.Source{
				{ID: "TX", Detail: "ESP32->Meter", Device: s.TX},
				{ID: "RX", Detail: "Meter->ESP32", Device: s.RX},
			}
			var pipelines []*capture.Pipeline
			for _, src := range sources {
				pipelines = append(pipelines, &capture.Pipeline{
					Source:    src,
					Options:   s.options(src.Device, port.PollInterval(gap)),
					Assembler: frame.NewGapAssembler(gap),
					Decode:    decodeModbus,
				})
			}
			return runCapture(cmd, s.format, pipelines)
		},
	}

	addLineFlags(cmd, "/dev/ttyUSB0", "/dev/ttyUSB1", 9600)
	cmd.Flags().Float64("gap-ms", 20, "silence in milliseconds that ends a frame")
	return cmd
}

func decodeModbus(f frame.Frame) trace.Record {
	return modbus.NewRecord(f)
}
