// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Thermoquad/coldmesh/pkg/kic"
)

var (
	// ErrInvalidID is returned for ids that are not 6 alphanumerics
	ErrInvalidID = errors.New("invalid node id")
	// ErrDuplicateID is returned when adding an id already in the roster
	ErrDuplicateID = errors.New("node already in roster")
)

// Roster is the ordered list of nodes expected in the mesh
type Roster struct {
	ids []string
}

// NewRoster copies ids into a roster
func NewRoster(ids []string) *Roster {
	return &Roster{ids: slices.Clone(ids)}
}

// IDs returns a copy of the roster
func (r *Roster) IDs() []string { return slices.Clone(r.ids) }

func (r *Roster) Len() int { return len(r.ids) }

func (r *Roster) Contains(id string) bool { return slices.Contains(r.ids, id) }

// Replace swaps in ids and reports whether the content changed
func (r *Roster) Replace(ids []string) bool {
	if slices.Equal(r.ids, ids) {
		return false
	}
	r.ids = slices.Clone(ids)
	return true
}

// Add appends id
func (r *Roster) Add(id string) error {
	if !kic.ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if r.Contains(id) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.ids = append(r.ids, id)
	return nil
}

// String returns the comma-joined roster
func (r *Roster) String() string { return strings.Join(r.ids, ",") }
