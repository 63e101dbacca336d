// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for a day window outside 0-24 or inverted
var ErrInvalidWindow = errors.New("mesh: invalid day window")

// Health is a roster member's liveness
type Health int

const (
	// HealthUnknown: in the roster but never heard. Counts as down.
	HealthUnknown Health = iota
	HealthLive
	HealthDown
)

func (h Health) String() string {
	switch h {
	case HealthLive:
		return "LIVE"
	case HealthDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// IsDown reports whether h raises a node-down alarm
func (h Health) IsDown() bool { return h != HealthLive }

// PeerHealth is one roster member's evaluation
type PeerHealth struct {
	ID     string
	Health Health
	// Age is now minus the peer's LastUpdate; zero when never seen.
	Age time.Duration
}

// AlarmKind classifies an alarm
type AlarmKind int

const (
	AlarmNodeDown AlarmKind = iota
	AlarmProbeFault
)

func (k AlarmKind) String() string {
	if k == AlarmProbeFault {
		return "PROBE_FAULT"
	}
	return "NODE_DOWN"
}

// Alarm is one alarm to present. Visual presentation is implied;
// Audible is false outside the daytime window.
type Alarm struct {
	Kind    AlarmKind
	Node    string
	Audible bool
}

// DayWindow is the local [StartHour, EndHour) range in which alarms sound.
// An empty window (StartHour == EndHour) keeps alarms quiet all day.
type DayWindow struct {
	StartHour int
	EndHour   int
}

// DefaultDayWindow is 08:00-20:00
var DefaultDayWindow = DayWindow{StartHour: 8, EndHour: 20}

func (w DayWindow) Validate() error {
	if w.StartHour < 0 || w.EndHour > 24 || w.StartHour > w.EndHour {
		return fmt.Errorf("%w: [%d,%d)", ErrInvalidWindow, w.StartHour, w.EndHour)
	}
	return nil
}

// Monitor evaluates roster liveness and alarm gating
type Monitor struct {
	Freshness    time.Duration
	DayStartHour int
	DayEndHour   int
	Location     *time.Location
}

// DefaultMonitor returns the 300s / 08:00-20:00 monitor
func DefaultMonitor() Monitor {
	return Monitor{Freshness: 300 * time.Second, DayStartHour: 8, DayEndHour: 20, Location: time.Local}
}

// Evaluate reports every roster member except self.
// A peer is live when now - LastUpdate < Freshness, in whole seconds.
func (m Monitor) Evaluate(s *State, now time.Time) []PeerHealth {
	nowUnix := now.Unix()
	limit := int64(m.Freshness / time.Second)

	var out []PeerHealth
	for _, id := range s.Roster.IDs() {
		if id == s.Self {
			continue
		}
		r, ok := s.Peers.Get(id)
		if !ok {
			out = append(out, PeerHealth{ID: id, Health: HealthUnknown})
			continue
		}
		age := nowUnix - r.LastUpdate
		h := HealthDown
		if age < limit {
			h = HealthLive
		}
		out = append(out, PeerHealth{ID: id, Health: h, Age: time.Duration(age) * time.Second})
	}
	return out
}

// Daytime reports whether now falls in [DayStartHour, DayEndHour) local time
func (m Monitor) Daytime(now time.Time) bool {
	loc := m.Location
	if loc == nil {
		loc = time.Local
	}
	h := now.In(loc).Hour()
	return h >= m.DayStartHour && h < m.DayEndHour
}

// Alarms turns health and probe state into alarms. Nothing is raised
// while silenced. Alarms are level-triggered: every call while a
// condition holds returns it again.
func (m Monitor) Alarms(now time.Time, health []PeerHealth, probeFault, silenced bool) []Alarm {
	if silenced {
		return nil
	}
	audible := m.Daytime(now)

	var out []Alarm
	for _, h := range health {
		if h.Health.IsDown() {
			out = append(out, Alarm{Kind: AlarmNodeDown, Node: h.ID, Audible: audible})
		}
	}
	if probeFault {
		out = append(out, Alarm{Kind: AlarmProbeFault, Audible: audible})
	}
	return out
}
