// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Thermoquad/coldmesh/pkg/envelope"
	"github.com/Thermoquad/coldmesh/pkg/kic"
	"github.com/Thermoquad/coldmesh/pkg/radio"
)

// Transmitter broadcasts the local status on a jittered schedule
type Transmitter struct {
	radio  radio.Radio
	sealer *envelope.Sealer
	period time.Duration
	jitter time.Duration
	rng    *rand.Rand
	next   time.Time
	stats  *Statistics
	log    *slog.Logger
}

// NewTransmitter creates a scheduler firing every period plus U[0, jitter)
func NewTransmitter(r radio.Radio, sealer *envelope.Sealer, period, jitter time.Duration, rng *rand.Rand, stats *Statistics, logger *slog.Logger) *Transmitter {
	return &Transmitter{
		radio:  r,
		sealer: sealer,
		period: period,
		jitter: jitter,
		rng:    rng,
		stats:  stats,
		log:    logger,
	}
}

// Schedule sets the next fire time relative to now, drawing fresh jitter
func (t *Transmitter) Schedule(now time.Time) time.Time {
	delay := t.period
	if t.jitter > 0 {
		delay += time.Duration(t.rng.Int63n(int64(t.jitter)))
	}
	t.next = now.Add(delay)
	return t.next
}

// Due reports whether the next fire time has arrived
func (t *Transmitter) Due(now time.Time) bool { return !now.Before(t.next) }

// Next returns the scheduled fire time
func (t *Transmitter) Next() time.Time { return t.next }

// Broadcast encodes, seals and transmits m. The radio is put back into
// receive mode afterwards whatever happened. Failures are counted and
// returned; the caller never retries before the next scheduled fire.
func (t *Transmitter) Broadcast(m kic.Message) error {
	defer func() {
		if err := t.radio.StartReceive(); err != nil {
			t.log.Warn("failed to re-arm receive", "err", err)
		}
	}()

	line := kic.Encode(m)
	env, err := t.sealer.Seal([]byte(line))
	if err != nil {
		t.stats.SealErrors++
		return fmt.Errorf("seal %s: %w", m.Kind(), err)
	}

	if err := t.radio.Transmit(env); err != nil {
		t.stats.TxErrors++
		return fmt.Errorf("transmit %s: %w", m.Kind(), err)
	}
	t.stats.Sent++
	t.log.Debug("broadcast", "kind", m.Kind().String(), "len", len(env))
	return nil
}
