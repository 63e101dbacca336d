// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"math/rand"
	"sync"
)

// Air is an in-memory broadcast medium for simulated nodes.
// Every transmit reaches every other attached radio that is in receive mode,
// minus whatever the configured loss rate drops.
type Air struct {
	mu     sync.Mutex
	radios []*AirRadio
	loss   float64
	rng    *rand.Rand
}

// NewAir creates an empty medium; seed drives packet loss
func NewAir(seed int64) *Air {
	return &Air{rng: rand.New(rand.NewSource(seed))}
}

// SetLoss sets the per-receiver drop probability in [0,1]
func (a *Air) SetLoss(p float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}
	a.loss = p
}

// Attach adds a radio to the medium. It starts in standby.
func (a *Air) Attach(name string) *AirRadio {
	r := &AirRadio{air: a, name: name}
	a.mu.Lock()
	a.radios = append(a.radios, r)
	a.mu.Unlock()
	return r
}

func (a *Air) broadcast(from *AirRadio, data []byte) {
	a.mu.Lock()
	targets := make([]*AirRadio, 0, len(a.radios))
	for _, r := range a.radios {
		if r == from {
			continue
		}
		if a.loss > 0 && a.rng.Float64() < a.loss {
			continue
		}
		targets = append(targets, r)
	}
	a.mu.Unlock()

	for _, r := range targets {
		r.deliver(data)
	}
}

// AirRadio is one transceiver attached to an Air
type AirRadio struct {
	air  *Air
	name string

	mu        sync.Mutex
	receiving bool
	closed    bool
	pending   []byte
	handler   func()
	sent      int
	heard     int
}

// Name returns the label given at Attach
func (r *AirRadio) Name() string { return r.name }

// Transmit broadcasts data and leaves the radio in standby
func (r *AirRadio) Transmit(data []byte) error {
	if len(data) > MaxPacketSize {
		return ErrTooLong
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.receiving = false
	r.sent++
	r.mu.Unlock()

	r.air.broadcast(r, append([]byte(nil), data...))
	return nil
}

// StartReceive puts the radio into receive mode
func (r *AirRadio) StartReceive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.receiving = true
	return nil
}

// Receiving reports whether the radio is in receive mode
func (r *AirRadio) Receiving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receiving
}

func (r *AirRadio) deliver(data []byte) {
	r.mu.Lock()
	if !r.receiving || r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = data
	r.heard++
	handler := r.handler
	r.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// PacketLength returns the size of the buffered packet, or 0
func (r *AirRadio) PacketLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// ReadData copies the buffered packet into buf and clears the buffer
func (r *AirRadio) ReadData(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return 0, ErrNoPacket
	}
	if len(buf) < len(r.pending) {
		return 0, ErrBufferTooSmall
	}
	n := copy(buf, r.pending)
	r.pending = nil
	return n, nil
}

// SetPacketHandler registers the packet-available callback
func (r *AirRadio) SetPacketHandler(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = fn
}

// Counters returns how many packets this radio sent and heard
func (r *AirRadio) Counters() (sent, heard int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent, r.heard
}

// Close detaches the radio from further traffic
func (r *AirRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.receiving = false
	return nil
}

var (
	_ Radio = (*AirRadio)(nil)
	_ Radio = (*Modem)(nil)
)
