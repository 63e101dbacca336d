// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultW1Root is where the Linux w1 subsystem exposes bus devices
const DefaultW1Root = "/sys/bus/w1/devices"

// W1 reads DS18B20 probes through the Linux w1_therm sysfs interface.
// Each device's temperature file holds milli-degrees Celsius; the kernel
// performs the conversion on read, so RequestConversion is a no-op.
type W1 struct {
	Root    string
	Devices []string
}

// NewW1 creates a driver for the given device ids (e.g. "28-0316a2795bff").
// With no ids it discovers every 28-family device under root.
func NewW1(root string, devices []string) (*W1, error) {
	if root == "" {
		root = DefaultW1Root
	}
	if len(devices) == 0 {
		found, err := filepath.Glob(filepath.Join(root, "28-*"))
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			devices = append(devices, filepath.Base(p))
		}
	}
	return &W1{Root: root, Devices: devices}, nil
}

func (w *W1) RequestConversion() error { return nil }

func (w *W1) Probes() int { return len(w.Devices) }

func (w *W1) ReadCelsius(index int) (float64, error) {
	if index < 0 || index >= len(w.Devices) {
		return DisconnectedC, ErrNoProbe
	}

	data, err := os.ReadFile(filepath.Join(w.Root, w.Devices[index], "temperature"))
	if errors.Is(err, fs.ErrNotExist) {
		return DisconnectedC, nil
	}
	if err != nil {
		return DisconnectedC, fmt.Errorf("read %s: %w", w.Devices[index], err)
	}

	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return DisconnectedC, fmt.Errorf("parse %s: %w", w.Devices[index], err)
	}
	return float64(milli) / 1000, nil
}
