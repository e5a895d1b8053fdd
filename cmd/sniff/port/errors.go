// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package port

import (
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Kind tells the caller which policy applies to an error.
type Kind int

const (
	// KindConfig is a bad parameter, detected before anything is opened.
	KindConfig Kind = iota
	// KindFatal ends the pipeline of the affected device.
	KindFatal
	// KindTransient is a read hiccup; capture pauses briefly and resumes.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindFatal:
		return "fatal"
	case KindTransient:
		return "transient"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Error struct {
	Kind   Kind
	Device string
	Err    error
}

func (e *Error) Error() string {
	if e.Device == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Device, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or false if err is not a *Error.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err ends the pipeline of its device.
func IsFatal(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindFatal
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConfig
}

// classify wraps a read error. io.EOF and errors that already carry a kind
// are passed through untouched.
func classify(device string, err error) error {
	if _, ok := KindOf(err); ok || errors.Is(err, io.EOF) {
		return err
	}
	var se *serial.PortError
	if errors.As(err, &se) && se.Code() == serial.PortClosed {
		return &Error{Kind: KindFatal, Device: device, Err: err}
	}
	return &Error{Kind: KindTransient, Device: device, Err: err}
}
