// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package trace writes decoded frames of all capture pipelines to a single
// output stream.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"
)

// Record is a decoded frame ready to be rendered.
type Record interface {
	Protocol() string
	Timestamp() time.Time
	Direction() string
	// Header returns the column header printed once before the first row,
	// or "" if the protocol has none.
	Header() string
	// Fields returns the protocol specific part of a text row.
	Fields() string
	// OK is false for frames failing validation.
	OK() bool
}

type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatYAML
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return FormatText, fmt.Errorf("--format '%s' was not recognized. Must be either text, json or yaml", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "text"
	}
}

// TimeLayout renders row timestamps with millisecond resolution.
const TimeLayout = "15:04:05.000"

type Options struct {
	Format Format
	// Color enables highlighting of the direction label in text rows.
	Color bool
	// Session is attached to every structured record.
	Session string
	// Buffer is the number of rows that may be queued before Render blocks.
	Buffer int
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Sink owns the output writer. Rows handed to Render are queued on a channel
// and written by a single goroutine, so lines never interleave.
type Sink struct {
	w    io.Writer
	opts Options

	rows chan Record
	quit chan struct{}
	done chan struct{}
	once sync.Once

	// Only touched by the writer goroutine.
	headerDone bool
	err        error
	labels     map[string]*color.Color
}

func NewSink(w io.Writer, opts Options) *Sink {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	s := &Sink{
		w:    w,
		opts: opts,
		rows: make(chan Record, opts.Buffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		labels: map[string]*color.Color{
			"TX": color.New(color.FgHiGreen),
			"RX": color.New(color.FgHiBlue),
		},
	}
	for _, c := range s.labels {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	go s.run()
	return s
}

// Render queues r for output. It is safe for concurrent use. Records rendered
// after Close are dropped.
func (s *Sink) Render(r Record) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.rows <- r:
	case <-s.quit:
	}
}

// Close writes the queued rows, stops the writer and returns the first write
// error, if any.
func (s *Sink) Close() error {
	s.once.Do(func() { close(s.quit) })
	<-s.done
	return s.err
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		select {
		case r := <-s.rows:
			s.write(r)
		case <-s.quit:
			for {
				select {
				case r := <-s.rows:
					s.write(r)
				default:
					return
				}
			}
		}
	}
}

type entry struct {
	Session   string `json:"session,omitempty" yaml:"session,omitempty"`
	Protocol  string `json:"protocol" yaml:"protocol"`
	Time      string `json:"time" yaml:"time"`
	Direction string `json:"direction" yaml:"direction"`
	Valid     bool   `json:"valid" yaml:"valid"`
	Frame     Record `json:"frame" yaml:"frame"`
}

func (s *Sink) write(r Record) {
	var err error
	switch s.opts.Format {
	case FormatJSON, FormatYAML:
		err = s.writeStructured(r)
	default:
		err = s.writeText(r)
	}
	if err != nil && s.err == nil {
		s.err = err
	}
}

func (s *Sink) writeText(r Record) error {
	var sb strings.Builder
	if h := r.Header(); h != "" && !s.headerDone {
		sb.WriteString(h)
		sb.WriteByte('\n')
		sb.WriteString(strings.Repeat("-", len(h)))
		sb.WriteByte('\n')
	}
	s.headerDone = true
	fmt.Fprintf(&sb, "%s  %s %s\n", r.Timestamp().Format(TimeLayout), s.label(r.Direction()), r.Fields())
	_, err := io.WriteString(s.w, sb.String())
	return err
}

func (s *Sink) label(dir string) string {
	padded := fmt.Sprintf("%-3s", dir)
	if c, ok := s.labels[dir]; ok && s.opts.Color {
		return c.Sprint(padded)
	}
	return padded
}

func (s *Sink) writeStructured(r Record) error {
	e := entry{
		Session:   s.opts.Session,
		Protocol:  r.Protocol(),
		Time:      r.Timestamp().Format(time.RFC3339Nano),
		Direction: r.Direction(),
		Valid:     r.OK(),
		Frame:     r,
	}
	if s.opts.Format == FormatJSON {
		return json.NewEncoder(s.w).Encode(e)
	}
	out, err := yaml.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "---\n%s", out)
	return err
}
