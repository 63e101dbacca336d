// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package admin exposes a node over local JSON-RPC.
//
// Methods live under the "node" service and take positional string
// parameters, e.g.
//
//	{"jsonrpc":"2.0","id":1,"method":"node.AddNode","params":["BBB222"]}
//
// Every mutation runs on the node's control loop.
package admin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/coldmesh/pkg/mesh"
)

// ServiceName is the method prefix, as in "node.Temps"
const ServiceName = "node"

var (
	errParams = errors.New("invalid parameters")
	errNoWiFi = errors.New("wifi settings are not available on this node")
)

// WiFiStore persists access point credentials
type WiFiStore interface {
	SetWiFi(ssid, pass string) error
}

// PeerReply is one table entry. Unavailable temperatures are null.
type PeerReply struct {
	ID           string      `json:"id"`
	Temps        [3]*float64 `json:"temps"`
	LastUpdate   int64       `json:"last_update"`
	TrustedClock bool        `json:"trusted_clock"`
	InRoster     bool        `json:"in_roster"`
	Health       string      `json:"health,omitempty"`
	AgeSeconds   int64       `json:"age_seconds,omitempty"`
}

// AlarmReply is one active alarm
type AlarmReply struct {
	Kind    string `json:"kind"`
	Node    string `json:"node,omitempty"`
	Audible bool   `json:"audible"`
}

// StatusReply is the full node view
type StatusReply struct {
	Self         string       `json:"self"`
	Time         time.Time    `json:"time"`
	ClockTrusted bool         `json:"clock_trusted"`
	AwaitingSync bool         `json:"awaiting_sync"`
	Silenced     bool         `json:"silenced"`
	SilenceUntil time.Time    `json:"silence_until"`
	ProbeFault   bool         `json:"probe_fault"`
	Roster       []string     `json:"roster"`
	Peers        []PeerReply  `json:"peers"`
	Alarms       []AlarmReply `json:"alarms"`
	Sent         uint64       `json:"sent"`
	Received     uint64       `json:"received"`
	Merged       uint64       `json:"merged"`
}

// Service implements the node RPC methods
type Service struct {
	node *mesh.Node
	wifi WiFiStore
}

// NewService creates the RPC service for node; wifi may be nil
func NewService(node *mesh.Node, wifi WiFiStore) *Service {
	return &Service{node: node, wifi: wifi}
}

// Status returns the full node view
func (s *Service) Status(ctx context.Context, _ []string) (StatusReply, error) {
	snap, err := s.node.Status(ctx)
	if err != nil {
		return StatusReply{}, err
	}
	return statusReply(snap), nil
}

// Temps lists the peer table and counts as a dashboard check-in
func (s *Service) Temps(ctx context.Context, _ []string) ([]PeerReply, error) {
	snap, err := s.node.Checkin(ctx)
	if err != nil {
		return nil, err
	}
	return peerReplies(snap), nil
}

// Roster returns the roster
func (s *Service) Roster(ctx context.Context, _ []string) ([]string, error) {
	snap, err := s.node.Status(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Roster, nil
}

// AddNode takes one id and returns the new roster
func (s *Service) AddNode(ctx context.Context, vals []string) ([]string, error) {
	if len(vals) != 1 {
		return nil, errParams
	}
	if err := s.node.AddNode(ctx, strings.TrimSpace(vals[0])); err != nil {
		return nil, err
	}
	return s.Roster(ctx, nil)
}

// Silence suppresses alarms and returns the expiry (RFC 3339)
func (s *Service) Silence(ctx context.Context, _ []string) (string, error) {
	until, err := s.node.Silence(ctx)
	if err != nil {
		return "", err
	}
	return until.Format(time.RFC3339), nil
}

// SetTime takes either RFC 3339 or "YYYY,MM,DD,HH,mm" local time
func (s *Service) SetTime(ctx context.Context, vals []string) (string, error) {
	if len(vals) != 1 {
		return "", errParams
	}
	t, err := ParseSetTime(vals[0], time.Local)
	if err != nil {
		return "", err
	}
	if err := s.node.SetTime(ctx, t); err != nil {
		return "", err
	}
	return t.Format(time.RFC3339), nil
}

// SetNodeID takes one id
func (s *Service) SetNodeID(ctx context.Context, vals []string) (string, error) {
	if len(vals) != 1 {
		return "", errParams
	}
	id := strings.TrimSpace(vals[0])
	if err := s.node.Rename(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// SetWiFi takes an SSID and a password
func (s *Service) SetWiFi(ctx context.Context, vals []string) (string, error) {
	if len(vals) != 2 {
		return "", errParams
	}
	if s.wifi == nil {
		return "", errNoWiFi
	}
	err := s.node.Submit(ctx, func(time.Time) error {
		return s.wifi.SetWiFi(vals[0], vals[1])
	})
	if err != nil {
		return "", err
	}
	return vals[0], nil
}

// ParseSetTime accepts RFC 3339 or the serial console form "YYYY,MM,DD,HH,mm"
func ParseSetTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}

	parts := strings.Split(v, ",")
	if len(parts) != 5 {
		return time.Time{}, fmt.Errorf("%w: time %q (want RFC 3339 or YYYY,MM,DD,HH,mm)", errParams, v)
	}
	var n [5]int
	for i, p := range parts {
		x, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: time field %q", errParams, p)
		}
		n[i] = x
	}
	if n[1] < 1 || n[1] > 12 || n[2] < 1 || n[2] > 31 || n[3] > 23 || n[4] > 59 || n[3] < 0 || n[4] < 0 {
		return time.Time{}, fmt.Errorf("%w: time %q out of range", errParams, v)
	}
	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], 0, 0, loc), nil
}

func statusReply(snap mesh.Snapshot) StatusReply {
	r := StatusReply{
		Self:         snap.Self,
		Time:         snap.Time,
		ClockTrusted: snap.ClockTrusted,
		AwaitingSync: snap.AwaitingSync,
		Silenced:     snap.Silenced,
		SilenceUntil: snap.SilenceUntil,
		ProbeFault:   snap.ProbeFault,
		Roster:       snap.Roster,
		Peers:        peerReplies(snap),
		Sent:         snap.Stats.Sent,
		Received:     snap.Stats.Received,
		Merged:       snap.Stats.Merged,
	}
	for _, a := range snap.Alarms {
		r.Alarms = append(r.Alarms, AlarmReply{Kind: a.Kind.String(), Node: a.Node, Audible: a.Audible})
	}
	return r
}

func peerReplies(snap mesh.Snapshot) []PeerReply {
	health := make(map[string]mesh.PeerHealth, len(snap.Health))
	for _, h := range snap.Health {
		health[h.ID] = h
	}
	roster := make(map[string]bool, len(snap.Roster))
	for _, id := range snap.Roster {
		roster[id] = true
	}

	out := make([]PeerReply, 0, len(snap.Peers))
	for _, p := range snap.Peers {
		pr := PeerReply{
			ID:           p.ID,
			LastUpdate:   p.LastUpdate,
			TrustedClock: p.TrustedClock,
			InRoster:     roster[p.ID],
		}
		for i, c := range p.Temps {
			if !math.IsNaN(c) {
				v := c
				pr.Temps[i] = &v
			}
		}
		if h, ok := health[p.ID]; ok {
			pr.Health = h.Health.String()
			pr.AgeSeconds = int64(h.Age / time.Second)
		}
		out = append(out, pr)
	}
	return out
}
