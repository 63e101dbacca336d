// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"fmt"
	"time"
)

// Statistics counts radio traffic and its outcomes
type Statistics struct {
	StartTime time.Time

	// Receive path
	Received      uint64
	ReadErrors    uint64
	DecryptErrors uint64
	ParseErrors   uint64
	Unknown       uint64
	SelfEchoes    uint64
	Merged        uint64
	RosterUpdates uint64
	AlarmNotices  uint64
	ClockAdopted  uint64

	// Transmit path
	Sent       uint64
	SealErrors uint64
	TxErrors   uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics(now time.Time) *Statistics {
	return &Statistics{StartTime: now}
}

// Valid is the number of frames that decrypted and parsed
func (s *Statistics) Valid() uint64 {
	return s.Received - s.ReadErrors - s.DecryptErrors - s.ParseErrors - s.Unknown
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	elapsed := time.Since(s.StartTime)

	var validPercent float64
	if s.Received > 0 {
		validPercent = float64(s.Valid()) * 100.0 / float64(s.Received)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Heard:    %8d\n", s.Received)
	result += fmt.Sprintf("Valid Messages:  %8d (%.1f%%)\n", s.Valid(), validPercent)

	if s.ReadErrors > 0 {
		result += fmt.Sprintf("Read Errors:     %8d\n", s.ReadErrors)
	}
	if s.DecryptErrors > 0 {
		result += fmt.Sprintf("Decrypt Errors:  %8d\n", s.DecryptErrors)
	}
	if s.ParseErrors > 0 {
		result += fmt.Sprintf("Parse Errors:    %8d\n", s.ParseErrors)
	}
	if s.Unknown > 0 {
		result += fmt.Sprintf("Unrecognized:    %8d\n", s.Unknown)
	}
	if s.SelfEchoes > 0 {
		result += fmt.Sprintf("Self Echoes:     %8d\n", s.SelfEchoes)
	}
	result += fmt.Sprintf("Peer Updates:    %8d\n", s.Merged)
	if s.RosterUpdates > 0 {
		result += fmt.Sprintf("Roster Updates:  %8d\n", s.RosterUpdates)
	}
	if s.AlarmNotices > 0 {
		result += fmt.Sprintf("Alarm Notices:   %8d\n", s.AlarmNotices)
	}
	if s.ClockAdopted > 0 {
		result += "Clock:           synced from peer\n"
	}

	result += fmt.Sprintf("Broadcasts Sent: %8d\n", s.Sent)
	if s.TxErrors+s.SealErrors > 0 {
		result += fmt.Sprintf("  Failed:        %8d\n", s.TxErrors+s.SealErrors)
	}
	result += "================================\n"

	return result
}
