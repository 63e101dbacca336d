// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package kic

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatMessage renders a decoded message for humans, e.g. in the sniff log
func FormatMessage(ts time.Time, m Message) string {
	timestamp := ts.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s\n", timestamp, m.Kind())

	switch v := m.(type) {
	case NodeList:
		result += fmt.Sprintf("  Nodes (%d): %s\n", len(v.IDs), strings.Join(v.IDs, " "))

	case Status:
		clock := "uptime"
		lastUpdate := fmt.Sprintf("%d", v.LastUpdate)
		if v.TrustedClock {
			clock = "rtc"
			lastUpdate = time.Unix(v.LastUpdate, 0).Format("2006-01-02 15:04:05")
		}
		result += fmt.Sprintf("  Node: %s, Temps: %s / %s / %s\n",
			v.ID, formatCelsius(v.Temp1), formatCelsius(v.Temp2), formatCelsius(v.Temp3))
		result += fmt.Sprintf("  Last Update: %s (%s)\n", lastUpdate, clock)

	case Alarm:
		result += fmt.Sprintf("  From: %s, Down: %s\n", v.From, v.Down)
	}

	return result
}

// formatCelsius renders a temperature with one decimal, or "-" when unavailable
func formatCelsius(t float64) string {
	if math.IsNaN(t) {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", t)
}
