// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"bytes"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/coldmesh/pkg/envelope"
	"github.com/Thermoquad/coldmesh/pkg/kic"
	"github.com/Thermoquad/coldmesh/pkg/radio"
)

// Receiver runs the receive pipeline when the radio signals a packet
type Receiver struct {
	radio radio.Radio
	key   envelope.Key
	state *State
	stats *Statistics
	log   *slog.Logger

	ready atomic.Bool
	buf   [radio.MaxPacketSize]byte
}

// NewReceiver creates a receive pipeline feeding state
func NewReceiver(r radio.Radio, key envelope.Key, state *State, stats *Statistics, logger *slog.Logger) *Receiver {
	return &Receiver{radio: r, key: key, state: state, stats: stats, log: logger}
}

// Notify marks a packet as available. Safe from any goroutine.
func (r *Receiver) Notify() { r.ready.Store(true) }

// Pending reports whether a packet is flagged without clearing the flag
func (r *Receiver) Pending() bool { return r.ready.Load() }

// Poll processes one packet if the flag was set, clearing it first.
// It returns the decoded message, or nil when nothing usable arrived.
func (r *Receiver) Poll(host time.Time) kic.Message {
	if !r.ready.Swap(false) {
		return nil
	}
	defer func() {
		if err := r.radio.StartReceive(); err != nil {
			r.log.Warn("failed to re-arm receive", "err", err)
		}
	}()
	return r.process(host)
}

func (r *Receiver) process(host time.Time) kic.Message {
	r.stats.Received++

	if r.radio.PacketLength() == 0 {
		r.stats.ReadErrors++
		r.log.Warn("packet signalled but radio buffer is empty")
		return nil
	}
	n, err := r.radio.ReadData(r.buf[:])
	if err != nil {
		r.stats.ReadErrors++
		r.log.Warn("radio read failed", "err", err)
		return nil
	}

	msg, line, err := OpenPacket(r.key, r.buf[:n])
	switch {
	case errors.Is(err, kic.ErrUnknown):
		r.stats.Unknown++
		r.log.Info("unrecognized message", "line", line)
		return nil
	case errors.Is(err, kic.ErrMalformed):
		r.stats.ParseErrors++
		r.log.Info("malformed message", "err", err)
		return nil
	case err != nil:
		r.stats.DecryptErrors++
		r.log.Debug("frame discarded", "len", n, "err", err)
		return nil
	}

	awaiting := r.state.Clock.AwaitingSync()
	applied, err := r.state.ApplyMessage(msg, host)
	if err != nil {
		r.log.Warn("failed to persist update", "err", err)
	}
	if awaiting && !r.state.Clock.AwaitingSync() {
		r.stats.ClockAdopted++
	}
	switch applied {
	case AppliedPeer:
		r.stats.Merged++
	case AppliedSelfEcho:
		r.stats.SelfEchoes++
	case AppliedRoster:
		r.stats.RosterUpdates++
	case AppliedAlarm:
		r.stats.AlarmNotices++
	}
	return msg
}

// OpenPacket decrypts a radio packet and decodes the line it carries. The
// line ends at the first NUL, if any. Decryption failures wrap the envelope
// errors; decode failures wrap kic.ErrUnknown or kic.ErrMalformed.
func OpenPacket(key envelope.Key, packet []byte) (kic.Message, string, error) {
	plain, err := envelope.Decrypt(key, packet)
	if err != nil {
		return nil, "", err
	}
	if i := bytes.IndexByte(plain, 0); i >= 0 {
		plain = plain[:i]
	}
	line := string(plain)
	msg, err := kic.Decode(line)
	return msg, line, err
}
