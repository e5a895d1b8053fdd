// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

type serialPort struct {
	Name         string `json:"name" yaml:"name"`
	USB          bool   `json:"usb,omitempty" yaml:"usb,omitempty"`
	VID          string `json:"vid,omitempty" yaml:"vid,omitempty"`
	PID          string `json:"pid,omitempty" yaml:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	Product      string `json:"product,omitempty" yaml:"product,omitempty"`
}

func (p serialPort) Short() string {
	if !p.USB {
		return p.Name
	}
	res := fmt.Sprintf("%s\t%s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		res += "\t" + p.Product
	}
	if p.SerialNumber != "" {
		res += "\t" + p.SerialNumber
	}
	return res
}

type serialPorts struct {
	Ports []serialPort `json:"ports" yaml:"ports"`
}

func (s serialPorts) Elements() []Short {
	var res []Short
	for _, p := range s.Ports {
		res = append(res, p)
	}
	return res
}

func PortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ports",
		Short:        "List the serial ports you can sniff on",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			details, err := cmd.Flags().GetBool("details")
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd, os.Stdout)
			if err != nil {
				return err
			}

			ports, err := listPorts(details)
			if err != nil {
				return err
			}
			if !all {
				ports = filterPorts(ports)
			}
			if len(ports) == 0 {
				return fmt.Errorf("no serial ports detected. Is the USB serial adapter connected?")
			}
			return enc.Encode(serialPorts{Ports: ports})
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	cmd.Flags().Bool("details", false, "if set, will show the USB vendor and product of each port")
	cmd.Flags().StringP("output", "o", "short", "set output format to json, yaml or short")
	return cmd
}

func listPorts(details bool) ([]serialPort, error) {
	var res []serialPort
	if !details {
		names, err := serial.GetPortsList()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			res = append(res, serialPort{Name: n})
		}
		return res, nil
	}

	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		res = append(res, serialPort{
			Name:         p.Name,
			USB:          p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return res, nil
}

func filterPorts(ports []serialPort) []serialPort {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}

	var keep []string
	switch runtime.GOOS {
	case "darwin":
		keep = darwinFilterPaths(names)
	case "linux":
		keep = linuxFilterPaths(names)
	default:
		return ports
	}

	kept := map[string]struct{}{}
	for _, k := range keep {
		kept[k] = struct{}{}
	}
	var res []serialPort
	for _, p := range ports {
		if _, ok := kept[p.Name]; ok {
			res = append(res, p)
		}
	}
	return res
}

func darwinFilterPaths(paths []string) []string {
	existing := map[string]struct{}{}
	for _, p := range paths {
		existing[p] = struct{}{}
	}
	var res []string
	for _, path := range paths {
		if strings.HasPrefix(path, "/dev/cu") && !strings.Contains(path, "Bluetooth") {
			res = append(res, path)
		} else if strings.HasPrefix(path, "/dev/tty") && !strings.Contains(path, "Bluetooth") {
			candidate := "/dev/cu" + strings.TrimPrefix(path, "/dev/tty")
			if _, exists := existing[candidate]; !exists {
				res = append(res, path)
			}
		}
	}
	return res
}

// linuxFilterPaths keeps USB adapters and CDC ACM devices, the usual way to
// tap an RS-485 or TTL line.
func linuxFilterPaths(paths []string) []string {
	res := []string(nil)
	for _, path := range paths {
		if strings.Contains(path, "tty") {
			if strings.Contains(path, "USB") || strings.Contains(path, "ACM") {
				res = append(res, path)
			}
		}
	}
	return res
}
