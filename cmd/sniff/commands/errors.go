// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"errors"

	"github.com/kinetos/sniff/cmd/sniff/port"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

// ExitError carries the process exit code for Err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func configError(err error) error {
	return &ExitError{Code: exitConfig, Err: err}
}

// ExitCode maps the error returned by a command to the exit code of the
// process.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if port.IsConfig(err) {
		return exitConfig
	}
	return exitFailure
}
