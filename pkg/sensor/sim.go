// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensor

import (
	"math/rand"
	"sync"
)

// Sim is a simulated probe bank: each probe does a bounded random walk
type Sim struct {
	mu           sync.Mutex
	rng          *rand.Rand
	temps        []float64
	min, max     float64
	step         float64
	disconnected map[int]bool
}

// NewSim creates n probes starting at start °C
func NewSim(seed int64, n int, start float64) *Sim {
	s := &Sim{
		rng:          rand.New(rand.NewSource(seed)),
		temps:        make([]float64, n),
		min:          start - 5,
		max:          start + 5,
		step:         0.25,
		disconnected: make(map[int]bool),
	}
	for i := range s.temps {
		s.temps[i] = start
	}
	return s
}

// SetBounds limits the walk to [min, max]
func (s *Sim) SetBounds(min, max float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.min, s.max = min, max
}

// Disconnect makes probe index read DisconnectedC until reconnected
func (s *Sim) Disconnect(index int, disconnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected[index] = disconnected
}

func (s *Sim) RequestConversion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.temps {
		t += (s.rng.Float64()*2 - 1) * s.step
		if t < s.min {
			t = s.min
		}
		if t > s.max {
			t = s.max
		}
		s.temps[i] = t
	}
	return nil
}

func (s *Sim) ReadCelsius(index int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.temps) {
		return DisconnectedC, ErrNoProbe
	}
	if s.disconnected[index] {
		return DisconnectedC, nil
	}
	return s.temps[index], nil
}

func (s *Sim) Probes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.temps)
}
