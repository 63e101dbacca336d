// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package kic

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Encode Tests
// ============================================================

func TestEncode_Status(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		expected string
	}{
		{
			name:     "all probes",
			status:   Status{ID: "A1B2C3", Temp1: 3.456, Temp2: -18, Temp3: 0.5, LastUpdate: 1700000000, TrustedClock: true},
			expected: "KIC,A1B2C3,3.46,-18.00,0.50,1700000000,1",
		},
		{
			name:     "missing probes",
			status:   Status{ID: "A1B2C3", Temp1: 4, Temp2: math.NaN(), Temp3: math.NaN(), LastUpdate: 42},
			expected: "KIC,A1B2C3,4.00,NaN,NaN,42,0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.status); got != tt.expected {
				t.Errorf("Encode = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestEncode_NodeListAndAlarm(t *testing.T) {
	if got := Encode(NodeList{IDs: []string{"AAA111", "BBB222"}}); got != "NODELIST,AAA111,BBB222" {
		t.Errorf("NodeList encode = %q", got)
	}
	if got := Encode(&Alarm{From: "AAA111", Down: "BBB222"}); got != "AAA111,ALARM,BBB222" {
		t.Errorf("Alarm encode = %q", got)
	}
}

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_Status(t *testing.T) {
	msg, err := Decode("KIC,A1B2C3,3.46,-18.00,nan,1700000000,1")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	st, ok := msg.(Status)
	if !ok {
		t.Fatalf("expected Status, got %T", msg)
	}
	if st.ID != "A1B2C3" || st.Temp1 != 3.46 || st.Temp2 != -18 || !math.IsNaN(st.Temp3) {
		t.Errorf("unexpected fields: %+v", st)
	}
	if st.LastUpdate != 1700000000 || !st.TrustedClock {
		t.Errorf("unexpected clock fields: %+v", st)
	}
}

func TestDecode_StatusRoundTrip(t *testing.T) {
	in := Status{ID: "zz9Z00", Temp1: -40.25, Temp2: math.NaN(), Temp3: 100, LastUpdate: 0}
	msg, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := msg.(Status)
	if out.ID != in.ID || out.Temp1 != in.Temp1 || !math.IsNaN(out.Temp2) || out.Temp3 != in.Temp3 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestDecode_NodeList(t *testing.T) {
	msg, err := Decode("NODELIST,AAA111,BBB222")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	nl, ok := msg.(NodeList)
	if !ok {
		t.Fatalf("expected NodeList, got %T", msg)
	}
	if !reflect.DeepEqual(nl.IDs, []string{"AAA111", "BBB222"}) {
		t.Errorf("ids = %v", nl.IDs)
	}
}

func TestDecode_Alarm(t *testing.T) {
	msg, err := Decode("AAA111,ALARM,BBB222")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg != (Alarm{From: "AAA111", Down: "BBB222"}) {
		t.Errorf("unexpected alarm %+v", msg)
	}
}

func TestDecode_Precedence(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind Kind
		err  error
	}{
		// NODELIST wins even when the list contains the alarm marker text
		{name: "nodelist before alarm", line: "NODELIST,AAA111,ALARM,BBB222", err: ErrMalformed},
		// ALARM marker is checked before the KIC prefix
		{name: "alarm before kic", line: "KIC,ALARM,BBB222", err: ErrMalformed},
		{name: "alarm marker at start ignored", line: ",ALARM,BBB222", err: ErrUnknown},
		{name: "plain kic", line: "KIC,AAA111,1.00,2.00,3.00,5,0", kind: KindStatus},
		{name: "crlf trimmed", line: "NODELIST,AAA111\r\n", kind: KindNodeList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.line)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v (%v)", tt.err, err, msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if msg.Kind() != tt.kind {
				t.Errorf("kind = %v, want %v", msg.Kind(), tt.kind)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	lines := []string{
		"KIC,",
		"KIC,AAA111,1.00,2.00,3.00,5",
		"KIC,AAA111,1.00,2.00,3.00,5,0,extra",
		"KIC,AAA11,1.00,2.00,3.00,5,0",
		"KIC,AAA111,warm,2.00,3.00,5,0",
		"KIC,AAA111,1.00,2.00,+Inf,5,0",
		"KIC,AAA111,1.00,2.00,3.00,-5,0",
		"KIC,AAA111,1.00,2.00,3.00,later,0",
		"KIC,AAA111,1.00,2.00,3.00,5,2",
		"KIC,AAA111,1.00,2.00,3.00,5,",
		"NODELIST,",
		"NODELIST,AAA111,,BBB222",
		"NODELIST,AAA111,B B222",
		"AAA111,ALARM,BBB222,CCC333",
		"AAA111,ALARM,BB",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			msg, err := Decode(line)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
			if msg != nil {
				t.Errorf("expected no message, got %+v", msg)
			}
		})
	}
}

func TestDecode_Unknown(t *testing.T) {
	for _, line := range []string{"", "HELLO", "A1B2C3,TEMP,4.5", "kic,AAA111,1,2,3,4,0"} {
		if _, err := Decode(line); !errors.Is(err, ErrUnknown) {
			t.Errorf("%q: expected ErrUnknown, got %v", line, err)
		}
	}
}

func TestValidID(t *testing.T) {
	valid := []string{"A1B2C3", "abcdef", "000000"}
	invalid := []string{"", "A1B2C", "A1B2C3D", "A1-2C3", "A1 2C3", "ÄBCDEF"}
	for _, id := range valid {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false", id)
		}
	}
	for _, id := range invalid {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true", id)
		}
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	out := FormatMessage(ts, Status{ID: "A1B2C3", Temp1: 4.3, Temp2: math.NaN(), Temp3: math.NaN(), LastUpdate: 99})
	if !strings.Contains(out, "KIC") || !strings.Contains(out, "A1B2C3") || !strings.Contains(out, "4.3°C") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "99 (uptime)") {
		t.Errorf("expected uptime clock marker:\n%s", out)
	}
}
