// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"math"

	"github.com/Thermoquad/coldmesh/pkg/kic"
)

// StatusRecord is one node's last-known measurement snapshot
type StatusRecord struct {
	ID    string
	Temps [3]float64
	// LastUpdate is the sender's clock in unix seconds. It comes off the
	// wire unchecked and may move in either direction.
	LastUpdate   int64
	TrustedClock bool
}

// NewRecord returns a record with every temperature unavailable
func NewRecord(id string) StatusRecord {
	return StatusRecord{ID: id, Temps: [3]float64{math.NaN(), math.NaN(), math.NaN()}}
}

// RecordFromStatus converts a decoded KIC message
func RecordFromStatus(s kic.Status) StatusRecord {
	return StatusRecord{
		ID:           s.ID,
		Temps:        [3]float64{s.Temp1, s.Temp2, s.Temp3},
		LastUpdate:   s.LastUpdate,
		TrustedClock: s.TrustedClock,
	}
}

// Status converts the record to its KIC message
func (r StatusRecord) Status() kic.Status {
	return kic.Status{
		ID:           r.ID,
		Temp1:        r.Temps[0],
		Temp2:        r.Temps[1],
		Temp3:        r.Temps[2],
		LastUpdate:   r.LastUpdate,
		TrustedClock: r.TrustedClock,
	}
}

// PeerTable maps node ids to their latest record, remembering first-seen order
type PeerTable struct {
	order []string
	byID  map[string]*StatusRecord
}

// NewPeerTable creates an empty table
func NewPeerTable() *PeerTable {
	return &PeerTable{byID: make(map[string]*StatusRecord)}
}

// Merge overwrites or inserts r. Last writer wins: there is no check
// against the existing LastUpdate. Reports whether r was a new entry.
func (t *PeerTable) Merge(r StatusRecord) (inserted bool) {
	if cur, ok := t.byID[r.ID]; ok {
		*cur = r
		return false
	}
	rec := r
	t.byID[r.ID] = &rec
	t.order = append(t.order, r.ID)
	return true
}

// Get returns the record for id
func (t *PeerTable) Get(id string) (StatusRecord, bool) {
	r, ok := t.byID[id]
	if !ok {
		return StatusRecord{}, false
	}
	return *r, true
}

// Len returns the number of entries
func (t *PeerTable) Len() int { return len(t.order) }

// Snapshot copies every record in first-seen order
func (t *PeerTable) Snapshot() []StatusRecord {
	out := make([]StatusRecord, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}
