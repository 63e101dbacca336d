// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Coldmesh - Keep-It-Cold LoRa temperature mesh node
//
// Reads temperature probes, shares them over an encrypted LoRa broadcast
// mesh and raises alarms when a node stops reporting.

package main

import (
	"os"

	"github.com/Thermoquad/coldmesh/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
