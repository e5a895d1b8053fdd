// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package modbus decodes Modbus RTU frames captured off the wire.
package modbus

import (
	"fmt"

	"github.com/sigurn/crc16"
)

// MinFrameLen is the shortest frame that carries a checksum: address,
// function and the two checksum bytes.
const MinFrameLen = 4

// CRC-16/MODBUS: reflected polynomial 0xA001, initial value 0xFFFF.
var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC-16/MODBUS of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// Status is the outcome of a checksum validation.
type Status int

const (
	// StatusUnavailable means the frame is too short to carry a checksum.
	StatusUnavailable Status = iota
	StatusOK
	StatusMismatch
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMismatch:
		return "mismatch"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Status) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Verify recomputes the checksum over everything but the trailing two bytes
// and compares it with those bytes, read low byte first.
func Verify(raw []byte) (computed, given uint16, status Status) {
	if len(raw) < MinFrameLen {
		return 0, 0, StatusUnavailable
	}
	n := len(raw) - 2
	computed = Checksum(raw[:n])
	given = uint16(raw[n]) | uint16(raw[n+1])<<8
	if computed != given {
		return computed, given, StatusMismatch
	}
	return computed, given, StatusOK
}
