// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package kic

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnknown is returned for lines matching none of the known shapes
	ErrUnknown = errors.New("kic: unrecognized message")
	// ErrMalformed is returned for lines with a known marker but bad fields
	ErrMalformed = errors.New("kic: malformed message")
)

// Decode parses a plaintext line. The marker checks run in a fixed order:
// NODELIST prefix, then the ALARM marker, then the KIC prefix. A line that
// matches an earlier marker never falls through to a later one.
func Decode(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")

	if strings.HasPrefix(line, NodeListPrefix) {
		ids, err := ParseIDList(line[len(NodeListPrefix):])
		if err != nil {
			return nil, err
		}
		return NodeList{IDs: ids}, nil
	}

	if strings.Index(line, AlarmMarker) > 0 {
		return decodeAlarm(line)
	}

	if strings.HasPrefix(line, StatusPrefix) {
		return decodeStatus(line)
	}

	return nil, ErrUnknown
}

// ParseIDList splits a comma joined identifier list, rejecting empty or invalid entries
func ParseIDList(s string) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty node list", ErrMalformed)
	}
	ids := strings.Split(s, ",")
	for i, id := range ids {
		if !ValidID(id) {
			return nil, fmt.Errorf("%w: node list entry %d %q", ErrMalformed, i, id)
		}
	}
	return ids, nil
}

func decodeAlarm(line string) (Message, error) {
	fields := strings.Split(line, ",")
	if len(fields) != alarmFields {
		return nil, fmt.Errorf("%w: ALARM has %d fields (want %d)", ErrMalformed, len(fields), alarmFields)
	}
	if !ValidID(fields[0]) || !ValidID(fields[2]) {
		return nil, fmt.Errorf("%w: ALARM ids %q, %q", ErrMalformed, fields[0], fields[2])
	}
	return Alarm{From: fields[0], Down: fields[2]}, nil
}

func decodeStatus(line string) (Message, error) {
	fields := strings.Split(line, ",")
	if len(fields) != statusFields {
		return nil, fmt.Errorf("%w: KIC has %d fields (want %d)", ErrMalformed, len(fields), statusFields)
	}

	id := fields[1]
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: KIC id %q", ErrMalformed, id)
	}

	var temps [3]float64
	for i := range temps {
		t, err := parseTemp(fields[2+i])
		if err != nil {
			return nil, fmt.Errorf("%w: temp%d: %v", ErrMalformed, i+1, err)
		}
		temps[i] = t
	}

	lu, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lastUpdate: %v", ErrMalformed, err)
	}
	if lu < 0 {
		return nil, fmt.Errorf("%w: lastUpdate %d is negative", ErrMalformed, lu)
	}

	var trusted bool
	switch fields[6] {
	case "0":
	case "1":
		trusted = true
	default:
		return nil, fmt.Errorf("%w: clock flag %q", ErrMalformed, fields[6])
	}

	return Status{
		ID:           id,
		Temp1:        temps[0],
		Temp2:        temps[1],
		Temp3:        temps[2],
		LastUpdate:   lu,
		TrustedClock: trusted,
	}, nil
}

// parseTemp accepts decimal numbers and NaN in any case; infinities are rejected
func parseTemp(s string) (float64, error) {
	t, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(t, 0) {
		return 0, fmt.Errorf("infinite value %q", s)
	}
	return t, nil
}
