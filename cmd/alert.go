// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"

	"github.com/Thermoquad/coldmesh/pkg/mesh"
)

// bellAlerter rings the terminal bell once per monitor tick while an
// audible alarm is active. It stands in for the buzzer on the node board.
type bellAlerter struct {
	enabled bool
	out     io.Writer
}

func (b *bellAlerter) Alert(alarms []mesh.Alarm) {
	if !b.enabled {
		return
	}
	for _, a := range alarms {
		if a.Audible {
			b.out.Write([]byte{'\a'})
			return
		}
	}
}
