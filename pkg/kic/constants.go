// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package kic implements the Keep-It-Cold mesh message codec.
//
// Messages are single ASCII lines of comma separated fields carried inside an encrypted
// envelope. Three shapes exist:
//
//	NODELIST,<id>,<id>,...
//	KIC,<id>,<temp1>,<temp2>,<temp3>,<lastUpdate>,<trustedClock 0|1>
//	<id>,ALARM,<downId>
package kic

// Line markers, checked in this order when decoding
const (
	NodeListPrefix = "NODELIST,"
	AlarmMarker    = ",ALARM,"
	StatusPrefix   = "KIC,"
)

// IDLength is the fixed length of a node identifier
const IDLength = 6

// Field counts per message shape
const (
	statusFields = 7
	alarmFields  = 3
)

// Kind identifies a decoded message shape
type Kind int

// Message kinds
const (
	KindNodeList Kind = iota
	KindStatus
	KindAlarm
)

// String returns the wire tag for a kind
func (k Kind) String() string {
	switch k {
	case KindNodeList:
		return "NODELIST"
	case KindStatus:
		return "KIC"
	case KindAlarm:
		return "ALARM"
	default:
		return "UNKNOWN"
	}
}
