// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/kinetos/sniff/cmd/sniff/directory"
	"github.com/kinetos/sniff/cmd/sniff/port"
	"github.com/kinetos/sniff/cmd/sniff/trace"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const (
	modbusSection = "modbus"
	rapiSection   = "rapi"
)

// Settings are the line parameters of one capture command. They are read
// from flags, SNIFF_<SECTION>_<KEY> environment variables and the user
// config, in that order.
type Settings struct {
	TX       string      `mapstructure:"tx" yaml:"tx"`
	RX       string      `mapstructure:"rx" yaml:"rx"`
	Baud     int         `mapstructure:"baud" yaml:"baud"`
	Parity   port.Parity `mapstructure:"parity" yaml:"parity"`
	StopBits int         `mapstructure:"stopbits" yaml:"stopbits"`
	ByteSize int         `mapstructure:"bytesize" yaml:"bytesize"`
	GapMS    float64     `mapstructure:"gap-ms" yaml:"gap-ms"`
	Format   string      `mapstructure:"format" yaml:"format"`

	format trace.Format
}

var settingKeys = []string{"tx", "rx", "baud", "parity", "stopbits", "bytesize", "gap-ms", "format"}

func isSettingKey(key string) bool {
	for _, k := range settingKeys {
		if k == key {
			return true
		}
	}
	return false
}

func addLineFlags(cmd *cobra.Command, tx, rx string, baud int) {
	cmd.Flags().String("tx", tx, "serial port listening on the TX line")
	cmd.Flags().String("rx", rx, "serial port listening on the RX line")
	cmd.Flags().Int("baud", baud, "baud rate of both lines")
	cmd.Flags().String("parity", "N", "parity of both lines: N, E or O")
	cmd.Flags().Int("stopbits", 1, "stop bits: 1 or 2")
	cmd.Flags().Int("bytesize", 8, "data bits: 7 or 8")
	cmd.Flags().String("format", "text", "output format: text, json or yaml")
}

// loadSettings binds the line flags of cmd to section of the user config and
// decodes the result.
func loadSettings(cmd *cobra.Command, section string) (Settings, error) {
	cfg, err := directory.GetUserConfig()
	if err != nil {
		return Settings{}, configError(err)
	}
	directory.BindEnv(cfg)

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if isSettingKey(f.Name) {
			bindErr = multierr.Append(bindErr, cfg.BindPFlag(section+"."+f.Name, f))
		}
	})
	if bindErr != nil {
		return Settings{}, bindErr
	}
	return decodeSettings(cfg, section)
}

// decodeSettings reads section of cfg key by key. viper's own Unmarshal only
// sees nested keys that occur in the config file, flags and environment
// overrides bound to them would be lost.
func decodeSettings(cfg *viper.Viper, section string) (Settings, error) {
	raw := map[string]interface{}{}
	for _, k := range settingKeys {
		if v := cfg.Get(section + "." + k); v != nil {
			raw[k] = v
		}
	}

	var s Settings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       parityHook,
		WeaklyTypedInput: true,
		Result:           &s,
	})
	if err != nil {
		return Settings{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Settings{}, configError(fmt.Errorf("invalid %s settings: %w", section, err))
	}
	return s, nil
}

func parityHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(port.ParityNone) || from.Kind() != reflect.String {
		return data, nil
	}
	return port.ParseParity(data.(string))
}

// check validates s before any port is opened. With both set, a capture
// needs the TX and the RX port, otherwise one of them suffices.
func (s *Settings) check(both bool) error {
	switch {
	case both && (s.TX == "" || s.RX == ""):
		return configError(fmt.Errorf("both --tx and --rx are required"))
	case s.TX == "" && s.RX == "":
		return configError(fmt.Errorf("at least one of --tx and --rx is required"))
	case s.TX != "" && s.RX != "" && samePort(s.TX, s.RX):
		return configError(fmt.Errorf("--tx and --rx both refer to the port '%s'", s.TX))
	}

	format, err := trace.ParseFormat(s.Format)
	if err != nil {
		return configError(err)
	}
	s.format = format

	for _, dev := range []string{s.TX, s.RX} {
		if dev == "" {
			continue
		}
		if err := s.options(dev, 0).Validate(); err != nil {
			return configError(err)
		}
	}
	return nil
}

func (s *Settings) options(device string, readTimeout time.Duration) port.Options {
	return port.Options{
		Device:      device,
		Baud:        s.Baud,
		Parity:      s.Parity,
		StopBits:    s.StopBits,
		DataBits:    s.ByteSize,
		ReadTimeout: readTimeout,
	}
}

// samePort reports whether a and b name the same device, following symlinks
// such as /dev/serial/by-id entries.
func samePort(a, b string) bool {
	return canonicalPort(a) == canonicalPort(b)
}

func canonicalPort(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return filepath.Clean(p)
}
