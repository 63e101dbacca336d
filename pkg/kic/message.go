// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package kic

import (
	"math"
	"strconv"
	"strings"
)

// Message is any decoded mesh line
type Message interface {
	Kind() Kind
}

// NodeList announces a full roster replacement
type NodeList struct {
	IDs []string
}

// Kind implements Message
func (NodeList) Kind() Kind { return KindNodeList }

// Status is a node's self-reported measurement snapshot.
// Temperatures are NaN when a probe is missing or disconnected.
type Status struct {
	ID           string
	Temp1        float64
	Temp2        float64
	Temp3        float64
	LastUpdate   int64
	TrustedClock bool
}

// Kind implements Message
func (Status) Kind() Kind { return KindStatus }

// Alarm is a peer-originated node-down notice
type Alarm struct {
	From string
	Down string
}

// Kind implements Message
func (Alarm) Kind() Kind { return KindAlarm }

// Encode renders a message as its wire line
func Encode(m Message) string {
	switch v := m.(type) {
	case NodeList:
		return NodeListPrefix + strings.Join(v.IDs, ",")
	case *NodeList:
		return Encode(*v)
	case Status:
		var b strings.Builder
		b.WriteString(StatusPrefix)
		b.WriteString(v.ID)
		for _, t := range []float64{v.Temp1, v.Temp2, v.Temp3} {
			b.WriteByte(',')
			b.WriteString(FormatTemp(t))
		}
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(v.LastUpdate, 10))
		if v.TrustedClock {
			b.WriteString(",1")
		} else {
			b.WriteString(",0")
		}
		return b.String()
	case *Status:
		return Encode(*v)
	case Alarm:
		return v.From + AlarmMarker + v.Down
	case *Alarm:
		return Encode(*v)
	}
	return ""
}

// FormatTemp renders a temperature with two decimals; NaN is written as "NaN"
func FormatTemp(t float64) string {
	if math.IsNaN(t) {
		return "NaN"
	}
	return strconv.FormatFloat(t, 'f', 2, 64)
}

// ValidID reports whether s is a 6-character alphanumeric node identifier
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		default:
			return false
		}
	}
	return true
}
