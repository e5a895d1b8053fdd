// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

type encoder interface {
	Encode(interface{}) error
}

func parseOutputFlag(cmd *cobra.Command, w io.Writer) (encoder, error) {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(output) {
	case "json":
		return json.NewEncoder(w), nil
	case "yaml":
		return yamlEncoder{w: w}, nil
	case "short":
		return newShortEncoder(w), nil
	default:
		return nil, configError(fmt.Errorf("--output flag '%s' was not recognized. Must be either json, yaml or short", output))
	}
}

// yamlEncoder writes each value as soon as it is encoded. yaml.Encoder only
// flushes on Close.
type yamlEncoder struct {
	w io.Writer
}

func (e yamlEncoder) Encode(v interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = e.w.Write(b)
	return err
}

type shortEncoder struct {
	w io.Writer
}

func newShortEncoder(w io.Writer) *shortEncoder {
	return &shortEncoder{
		w: w,
	}
}

type Elements interface {
	Elements() []Short
}

type Short interface {
	Short() string
}

func (s *shortEncoder) Encode(v interface{}) error {
	es, ok := v.(Elements)
	if !ok {
		return fmt.Errorf("value type %T was not compatible with the Elements interface", v)
	}
	for _, e := range es.Elements() {
		fmt.Fprintln(s.w, e.Short())
	}
	return nil
}
