// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package rapi decodes RAPI command lines: "$" command [" " argument]... "^".
package rapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kinetos/sniff/cmd/sniff/frame"
)

var (
	ErrMarkers   = errors.New("missing start or end marker")
	ErrEmptyBody = errors.New("empty command")
)

// Command is a well-formed RAPI line.
type Command struct {
	Name string
	Args []string
}

// Response reports whether the line is a reply from the controller.
func (c Command) Response() bool {
	return c.Name == "OK" || c.Name == "NK"
}

// Parse decodes one line. Bytes outside ASCII are replaced by U+FFFD.
// Arguments are split on single spaces, so empty arguments survive.
func Parse(line []byte) (Command, error) {
	if len(line) < 2 || line[0] != frame.StartMarker || line[len(line)-1] != frame.EndMarker {
		return Command{}, ErrMarkers
	}
	body := decodeASCII(line[1 : len(line)-1])
	if body == "" {
		return Command{}, ErrEmptyBody
	}
	parts := strings.Split(body, " ")
	if parts[0] == "" {
		return Command{}, ErrEmptyBody
	}
	return Command{Name: parts[0], Args: parts[1:]}, nil
}

func decodeASCII(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c < utf8.RuneSelf {
			sb.WriteByte(c)
		} else {
			sb.WriteRune(utf8.RuneError)
		}
	}
	return sb.String()
}

// Record is one rendered trace row of the RAPI sniffer.
type Record struct {
	At        time.Time `json:"-" yaml:"-"`
	Dir       string    `json:"-" yaml:"-"`
	Command   string    `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string  `json:"args,omitempty" yaml:"args,omitempty"`
	Response  bool      `json:"response,omitempty" yaml:"response,omitempty"`
	Malformed bool      `json:"malformed,omitempty" yaml:"malformed,omitempty"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Raw       string    `json:"raw" yaml:"raw"`
	text      string
}

// NewRecord decodes f. A frame that does not parse becomes a malformed
// record carrying a hex and ASCII dump of its bytes.
func NewRecord(f frame.Frame) *Record {
	r := &Record{
		At:  f.Time,
		Dir: f.Source.ID,
		Raw: hexString(f.Data),
	}
	cmd, err := Parse(f.Data)
	if err != nil {
		r.Malformed = true
		r.Reason = err.Error()
		r.text = printable(f.Data)
		return r
	}
	r.Command = cmd.Name
	r.Args = cmd.Args
	r.Response = cmd.Response()
	return r
}

func (r *Record) Protocol() string     { return "rapi" }
func (r *Record) Timestamp() time.Time { return r.At }
func (r *Record) Direction() string    { return r.Dir }
func (r *Record) Header() string       { return "" }
func (r *Record) OK() bool             { return !r.Malformed }

func (r *Record) Fields() string {
	if r.Malformed {
		return fmt.Sprintf("Malformed RAPI (%s): %s |%s|", r.Reason, r.Raw, r.text)
	}
	kind := "Command"
	if r.Response {
		kind = "Response"
	}
	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = strconv.Quote(a)
	}
	return fmt.Sprintf("RAPI %s: %s Args: [%s]", kind, r.Command, strings.Join(args, " "))
}

func printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 0x20 && c < 0x7F {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

func hexString(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}
