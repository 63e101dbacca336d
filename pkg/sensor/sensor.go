// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sensor reads local temperature probes.
package sensor

import (
	"errors"
	"fmt"
	"math"
)

// DisconnectedC is the reading a DS18B20 bus reports for a missing probe
const DisconnectedC = -127.0

// ErrNoProbe is returned for a probe index the sensor does not have
var ErrNoProbe = errors.New("sensor: no such probe")

// Sensor is a bank of temperature probes read in two steps
type Sensor interface {
	// RequestConversion starts a measurement on every probe.
	RequestConversion() error
	// ReadCelsius returns the last conversion of probe index.
	// A disconnected probe reads DisconnectedC.
	ReadCelsius(index int) (float64, error)
	// Probes returns the number of probes.
	Probes() int
}

// Normalize maps the disconnect sentinel (and anything non-finite) to NaN
func Normalize(c float64) float64 {
	if c == DisconnectedC || math.IsInf(c, 0) {
		return math.NaN()
	}
	return c
}

// Reading is one conversion of up to three probes, NaN where unavailable
type Reading struct {
	Temps [3]float64
	// Fault is set when the primary probe is disconnected or unreadable.
	Fault bool
}

// Read requests a conversion and collects up to three normalized probe readings
func Read(s Sensor) (Reading, error) {
	r := Reading{Temps: [3]float64{math.NaN(), math.NaN(), math.NaN()}}
	if err := s.RequestConversion(); err != nil {
		r.Fault = true
		return r, fmt.Errorf("request conversion: %w", err)
	}

	var firstErr error
	n := s.Probes()
	if n > len(r.Temps) {
		n = len(r.Temps)
	}
	for i := 0; i < n; i++ {
		c, err := s.ReadCelsius(i)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("probe %d: %w", i, err)
			}
			continue
		}
		r.Temps[i] = Normalize(c)
	}
	r.Fault = n == 0 || math.IsNaN(r.Temps[0])
	return r, firstErr
}
