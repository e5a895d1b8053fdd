// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package modbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/kinetos/sniff/cmd/sniff/frame"
)

// Decoded holds the fields of one RTU frame: [address][function][payload...][crc lo][crc hi].
type Decoded struct {
	HasAddress  bool
	Address     byte
	HasFunction bool
	Function    byte
	Payload     []byte
	Computed    uint16
	Given       uint16
	Status      Status
}

// Decode splits a raw frame into its fields. Frames shorter than MinFrameLen
// have no checksum; whatever follows the function byte is payload.
func Decode(raw []byte) Decoded {
	var d Decoded
	if len(raw) >= 1 {
		d.HasAddress = true
		d.Address = raw[0]
	}
	if len(raw) >= 2 {
		d.HasFunction = true
		d.Function = raw[1]
	}
	switch {
	case len(raw) >= MinFrameLen:
		d.Payload = raw[2 : len(raw)-2]
		d.Computed, d.Given, d.Status = Verify(raw)
	case len(raw) > 2:
		d.Payload = raw[2:]
	}
	return d
}

const none = "--"

// Record is one rendered trace row of the Modbus sniffer.
type Record struct {
	At       time.Time `json:"-" yaml:"-"`
	Dir      string    `json:"-" yaml:"-"`
	Address  string    `json:"address,omitempty" yaml:"address,omitempty"`
	Function string    `json:"function,omitempty" yaml:"function,omitempty"`
	Payload  string    `json:"payload" yaml:"payload"`
	CRC      string    `json:"crc,omitempty" yaml:"crc,omitempty"`
	Status   Status    `json:"checksum" yaml:"checksum"`
	Computed string    `json:"computed,omitempty" yaml:"computed,omitempty"`
	Given    string    `json:"given,omitempty" yaml:"given,omitempty"`
	Raw      string    `json:"raw" yaml:"raw"`
}

// NewRecord decodes f into a trace record.
func NewRecord(f frame.Frame) *Record {
	d := Decode(f.Data)
	r := &Record{
		At:      f.Time,
		Dir:     f.Source.ID,
		Payload: hexString(d.Payload),
		Status:  d.Status,
		Raw:     hexString(f.Data),
	}
	if d.HasAddress {
		r.Address = fmt.Sprintf("0x%02X", d.Address)
	}
	if d.HasFunction {
		r.Function = fmt.Sprintf("0x%02X", d.Function)
	}
	if d.Status != StatusUnavailable {
		n := len(f.Data)
		r.CRC = fmt.Sprintf("%02X %02X", f.Data[n-2], f.Data[n-1])
		r.Computed = fmt.Sprintf("%04X", d.Computed)
		r.Given = fmt.Sprintf("%04X", d.Given)
	}
	return r
}

func (r *Record) Protocol() string     { return "modbus" }
func (r *Record) Timestamp() time.Time { return r.At }
func (r *Record) Direction() string    { return r.Dir }

// OK is false only for a checksum mismatch. Short frames are not invalid.
func (r *Record) OK() bool {
	return r.Status != StatusMismatch
}

func (r *Record) Header() string {
	return fmt.Sprintf("%-12s  %-3s %-5s %-5s %-6s %-6s %s", "Time", "Dir", "Slave", "Func", "CRC", "Check", "Data")
}

func (r *Record) Fields() string {
	check := none
	switch r.Status {
	case StatusOK:
		check = "OK"
	case StatusMismatch:
		check = fmt.Sprintf("BAD(%s/%s)", r.Computed, r.Given)
	}
	payload := r.Payload
	if payload == "" {
		payload = "-"
	}
	return fmt.Sprintf("%-5s %-5s %-6s %-6s %s", orNone(r.Address), orNone(r.Function), orNone(r.CRC), check, payload)
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}

func hexString(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}
