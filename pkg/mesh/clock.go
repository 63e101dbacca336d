// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import "time"

// Clock is the node's wall clock: host time plus an offset.
//
// A node without a trusted clock starts awaiting sync and adopts the time of
// the first peer that claims a trusted clock. Adoption happens once and is
// never re-armed; a single peer can set the time of every untrusted node.
type Clock struct {
	offset       time.Duration
	trusted      bool
	awaitingSync bool
}

// NewClock creates a clock offset from host time
func NewClock(trusted bool, offset time.Duration) *Clock {
	return &Clock{offset: offset, trusted: trusted, awaitingSync: !trusted}
}

// Now returns the node time at host time host
func (c *Clock) Now(host time.Time) time.Time { return host.Add(c.offset) }

func (c *Clock) Trusted() bool { return c.trusted }

func (c *Clock) AwaitingSync() bool { return c.awaitingSync }

func (c *Clock) Offset() time.Duration { return c.offset }

// Adopt sets the clock to unix seconds if it is untrusted and still awaiting sync
func (c *Clock) Adopt(unix int64, host time.Time) bool {
	if c.trusted || !c.awaitingSync {
		return false
	}
	c.offset = time.Unix(unix, 0).Sub(host)
	c.awaitingSync = false
	return true
}

// Set is a manual time sync; it ends any wait for a peer's time
func (c *Clock) Set(t, host time.Time) {
	c.offset = t.Sub(host)
	c.awaitingSync = false
}

// Silence is an alarm suppression window
type Silence struct {
	until time.Time
}

// Active reports whether now is before the expiry
func (s *Silence) Active(now time.Time) bool { return now.Before(s.until) }

// Set silences alarms for d from now and returns the expiry
func (s *Silence) Set(now time.Time, d time.Duration) time.Time {
	s.until = now.Add(d)
	return s.until
}

func (s *Silence) Until() time.Time { return s.until }
