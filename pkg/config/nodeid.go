// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net"
)

// fallbackNodeID is used on hosts without a hardware address
const fallbackNodeID = "000000"

// DefaultNodeID derives an id from the last three bytes of the first
// non-loopback hardware address, as 6 upper-case hex digits
func DefaultNodeID() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fallbackNodeID
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if id, ok := nodeIDFromMAC(iface.HardwareAddr); ok {
			return id
		}
	}
	return fallbackNodeID
}

func nodeIDFromMAC(mac net.HardwareAddr) (string, bool) {
	if len(mac) < 6 {
		return "", false
	}
	return fmt.Sprintf("%02X%02X%02X", mac[3], mac[4], mac[5]), true
}
