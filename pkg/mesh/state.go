// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/coldmesh/pkg/kic"
)

// Persister stores the parts of State that survive a restart
type Persister interface {
	SaveRoster(ids []string) error
	SaveSilence(until time.Time) error
	TouchCheckin(at time.Time) error
	SetNodeID(id string) error
}

// Applied describes what a received message did to State
type Applied int

const (
	AppliedNothing Applied = iota
	AppliedPeer
	AppliedSelfEcho
	AppliedRoster
	AppliedRosterUnchanged
	AppliedAlarm
)

func (a Applied) String() string {
	switch a {
	case AppliedPeer:
		return "peer"
	case AppliedSelfEcho:
		return "self-echo"
	case AppliedRoster:
		return "roster"
	case AppliedRosterUnchanged:
		return "roster-unchanged"
	case AppliedAlarm:
		return "alarm"
	default:
		return "nothing"
	}
}

// State is the mesh session owned by the control loop. It is not safe for
// concurrent use; other goroutines reach it through Node.Submit.
type State struct {
	Self    string
	Peers   *PeerTable
	Roster  *Roster
	Silence Silence
	Clock   *Clock

	persist Persister
	log     *slog.Logger
}

// NewState seeds the peer table with an empty self entry
func NewState(self string, roster []string, clock *Clock, persist Persister, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{
		Self:    self,
		Peers:   NewPeerTable(),
		Roster:  NewRoster(roster),
		Clock:   clock,
		persist: persist,
		log:     logger,
	}
	self0 := NewRecord(self)
	self0.TrustedClock = clock.Trusted()
	s.Peers.Merge(self0)
	return s
}

// UpsertSelf records a local sensor reading stamped with the node clock
func (s *State) UpsertSelf(temps [3]float64, host time.Time) StatusRecord {
	r := StatusRecord{
		ID:           s.Self,
		Temps:        temps,
		LastUpdate:   s.Clock.Now(host).Unix(),
		TrustedClock: s.Clock.Trusted(),
	}
	s.Peers.Merge(r)
	return r
}

// SelfRecord returns the local node's entry
func (s *State) SelfRecord() StatusRecord {
	r, ok := s.Peers.Get(s.Self)
	if !ok {
		return NewRecord(s.Self)
	}
	return r
}

// ApplyMessage folds a decoded message into the session.
// The returned error is a persistence failure; the in-memory change stands.
func (s *State) ApplyMessage(msg kic.Message, host time.Time) (Applied, error) {
	switch m := msg.(type) {
	case kic.NodeList:
		if !s.Roster.Replace(m.IDs) {
			return AppliedRosterUnchanged, nil
		}
		s.log.Info("roster replaced by announcement", "roster", s.Roster.String())
		return AppliedRoster, s.saveRoster()

	case kic.Status:
		if m.ID == s.Self {
			return AppliedSelfEcho, nil
		}
		s.Peers.Merge(RecordFromStatus(m))
		if m.TrustedClock && s.Clock.Adopt(m.LastUpdate, host) {
			s.log.Warn("clock adopted from peer", "peer", m.ID, "time", time.Unix(m.LastUpdate, 0).UTC())
		}
		return AppliedPeer, nil

	case kic.Alarm:
		s.log.Warn("peer reports node down", "peer", m.From, "down", m.Down)
		return AppliedAlarm, nil
	}
	return AppliedNothing, nil
}

// AddNode appends id to the roster and persists it
func (s *State) AddNode(id string) error {
	if err := s.Roster.Add(id); err != nil {
		return err
	}
	return s.saveRoster()
}

// SetSilence suppresses alarms for d and persists the expiry
func (s *State) SetSilence(host time.Time, d time.Duration) (time.Time, error) {
	until := s.Silence.Set(host, d)
	if s.persist != nil {
		if err := s.persist.SaveSilence(until); err != nil {
			return until, fmt.Errorf("persist silence: %w", err)
		}
	}
	return until, nil
}

// Checkin records a dashboard visit
func (s *State) Checkin(host time.Time) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.TouchCheckin(host); err != nil {
		return fmt.Errorf("persist check-in: %w", err)
	}
	return nil
}

// Rename changes the local node id. The old self entry stays in the table.
func (s *State) Rename(id string) error {
	if !kic.ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if s.persist != nil {
		if err := s.persist.SetNodeID(id); err != nil {
			return fmt.Errorf("persist node id: %w", err)
		}
	}
	s.Self = id
	if _, ok := s.Peers.Get(id); !ok {
		r := NewRecord(id)
		r.TrustedClock = s.Clock.Trusted()
		s.Peers.Merge(r)
	}
	return nil
}

func (s *State) saveRoster() error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.SaveRoster(s.Roster.IDs()); err != nil {
		return fmt.Errorf("persist roster: %w", err)
	}
	return nil
}
