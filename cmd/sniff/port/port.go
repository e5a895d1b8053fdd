// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package port opens serial devices for read-only capture and turns their
// reads into timestamped chunks.
package port

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Parity of the serial line.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// ParseParity accepts the short forms N, E, O as well as none, even, odd.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "none", "":
		return ParityNone, nil
	case "e", "even":
		return ParityEven, nil
	case "o", "odd":
		return ParityOdd, nil
	default:
		return ParityNone, &Error{Kind: KindConfig, Err: fmt.Errorf("unsupported parity '%s', use one of: N, E, O", s)}
	}
}

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "E"
	case ParityOdd:
		return "O"
	default:
		return "N"
	}
}

func (p Parity) serial() serial.Parity {
	switch p {
	case ParityEven:
		return serial.EvenParity
	case ParityOdd:
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

const (
	minPoll = time.Millisecond
	maxPoll = 10 * time.Millisecond
)

// PollInterval derives the read timeout from the frame inactivity gap: a fifth
// of the gap, kept between 1ms and 10ms.
func PollInterval(gap time.Duration) time.Duration {
	d := gap / 5
	if d < minPoll {
		return minPoll
	}
	if d > maxPoll {
		return maxPoll
	}
	return d
}

// Options are the line parameters of one serial device.
type Options struct {
	Device      string
	Baud        int
	Parity      Parity
	StopBits    int
	DataBits    int
	ReadTimeout time.Duration
}

// Validate reports parameters the capture cannot use as a configuration error.
func (o Options) Validate() error {
	var err error
	switch {
	case o.Device == "":
		err = fmt.Errorf("no serial port given")
	case o.Baud <= 0:
		err = fmt.Errorf("invalid baud rate %d", o.Baud)
	case o.StopBits != 1 && o.StopBits != 2:
		err = fmt.Errorf("unsupported stopbits %d, use 1 or 2", o.StopBits)
	case o.DataBits != 7 && o.DataBits != 8:
		err = fmt.Errorf("unsupported bytesize %d, use 7 or 8", o.DataBits)
	case o.Parity < ParityNone || o.Parity > ParityOdd:
		err = fmt.Errorf("unsupported parity %d", o.Parity)
	}
	if err != nil {
		return &Error{Kind: KindConfig, Device: o.Device, Err: err}
	}
	return nil
}

func (o Options) mode() *serial.Mode {
	stop := serial.OneStopBit
	if o.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: o.Baud,
		DataBits: o.DataBits,
		Parity:   o.Parity.serial(),
		StopBits: stop,
	}
}

func (o Options) String() string {
	return fmt.Sprintf("baud=%d parity=%s stop=%d bits=%d", o.Baud, o.Parity, o.StopBits, o.DataBits)
}

// Device is the part of a serial port the capture needs.
type Device interface {
	io.Reader
	io.Closer
}

// Open opens the device for reading with the configured line parameters and
// read timeout. On unix the port is opened in exclusive mode. All failures
// are fatal for this device only.
func Open(opts Options) (Device, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dev, err := serial.Open(opts.Device, opts.mode())
	if os.IsNotExist(err) {
		return nil, &Error{Kind: KindFatal, Device: opts.Device, Err: fmt.Errorf("the port '%s' was not found", opts.Device)}
	}
	if err != nil {
		return nil, &Error{Kind: KindFatal, Device: opts.Device, Err: fmt.Errorf("failed to open: %w", err)}
	}

	if err := dev.SetReadTimeout(opts.ReadTimeout); err != nil {
		dev.Close()
		return nil, &Error{Kind: KindFatal, Device: opts.Device, Err: fmt.Errorf("failed to set read timeout: %w", err)}
	}
	return dev, nil
}
