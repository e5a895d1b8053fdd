// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"strings"

	"github.com/kinetos/sniff/cmd/sniff/directory"
	"github.com/kinetos/sniff/cmd/sniff/port"
	"github.com/kinetos/sniff/cmd/sniff/trace"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure sniff",
		Long: "Show and edit the defaults stored in the user config.\n\n" +
			"Keys are '<command>.<flag>', e.g. 'modbus.baud' or 'rapi.tx'. Flags given on the\n" +
			"command line and SNIFF_<COMMAND>_<FLAG> environment variables take precedence\n" +
			"over the stored values.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:          "show",
			Short:        "Print the stored settings",
			Args:         cobra.NoArgs,
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := directory.GetUserConfig()
				if err != nil {
					return err
				}
				settings := cfg.AllSettings()
				if len(settings) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No stored settings in '%s'.\n", cfg.ConfigFileUsed())
					return nil
				}
				b, err := yaml.Marshal(settings)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			},
		},
		&cobra.Command{
			Use:          "set <key> <value>",
			Short:        "Store a default, e.g. 'sniff config set modbus.parity E'",
			Args:         cobra.ExactArgs(2),
			SilenceUsage: true,
			RunE: func(_ *cobra.Command, args []string) error {
				value, err := normalizeSetting(args[0], args[1])
				if err != nil {
					return configError(err)
				}
				cfg, err := directory.GetUserConfig()
				if err != nil {
					return err
				}
				cfg.Set(strings.ToLower(args[0]), value)
				return directory.WriteConfig(cfg)
			},
		},
		&cobra.Command{
			Use:          "unset <key>",
			Short:        "Remove a stored default",
			Args:         cobra.ExactArgs(1),
			SilenceUsage: true,
			RunE: func(_ *cobra.Command, args []string) error {
				cfg, err := directory.GetUserConfig()
				if err != nil {
					return err
				}
				if !cfg.IsSet(args[0]) {
					return fmt.Errorf("the key '%s' is not set", args[0])
				}
				pruned, err := withoutKey(cfg, args[0])
				if err != nil {
					return err
				}
				return directory.WriteConfig(pruned)
			},
		},
	)
	return cmd
}

// normalizeSetting checks that key is known and converts value to the type
// stored in the config file.
func normalizeSetting(key string, value string) (interface{}, error) {
	section, name, ok := strings.Cut(strings.ToLower(key), ".")
	if !ok || (section != modbusSection && section != rapiSection) {
		return nil, fmt.Errorf("unknown key '%s', keys start with 'modbus.' or 'rapi.'", key)
	}
	if !isSettingKey(name) || (section == rapiSection && name == "gap-ms") {
		return nil, fmt.Errorf("unknown key '%s'", key)
	}

	switch name {
	case "baud", "stopbits", "bytesize":
		n, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return n, nil
	case "gap-ms":
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return f, nil
	case "parity":
		p, err := port.ParseParity(value)
		if err != nil {
			return nil, err
		}
		return p.String(), nil
	case "format":
		f, err := trace.ParseFormat(value)
		if err != nil {
			return nil, err
		}
		return f.String(), nil
	default:
		return value, nil
	}
}

// withoutKey returns a copy of cfg, bound to the same file, that lacks key.
// viper has no way to delete a key in place.
func withoutKey(cfg *viper.Viper, key string) (*viper.Viper, error) {
	settings := cfg.AllSettings()
	parts := strings.Split(strings.ToLower(key), ".")
	m := settings
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("the key '%s' is not set", key)
		}
		m = next
	}
	delete(m, parts[len(parts)-1])

	res := viper.New()
	res.SetConfigType("yaml")
	res.SetConfigFile(cfg.ConfigFileUsed())
	if err := res.MergeConfigMap(settings); err != nil {
		return nil, err
	}
	return res, nil
}
