// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"

	"github.com/kinetos/sniff/cmd/sniff/logging"
	"github.com/spf13/cobra"
)

type ctxKey string

const (
	ctxKeyInfo ctxKey = "info"
)

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

func GetInfo(ctx context.Context) Info {
	return ctx.Value(ctxKeyInfo).(Info)
}

func SniffCmd(info Info, isReleaseBuild bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sniff",
		Short: "Watch the traffic on a pair of serial lines",
		Long: "Sniff listens read-only on the two wires of a serial link, one port per direction,\n" +
			"and prints every frame it sees with a millisecond timestamp.\n\n" +
			"Modbus RTU frames are split on line silence and have their CRC checked. RAPI\n" +
			"command lines are split on their '$' and '^' markers.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Configure(logging.ProfileRuntime)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return configError(err)
	})

	cmd.AddCommand(
		ModbusCmd(),
		RapiCmd(),
		PortsCmd(),
		ConfigCmd(),
		VersionCmd(info, isReleaseBuild),
	)
	return cmd
}
