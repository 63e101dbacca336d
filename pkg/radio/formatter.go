// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"fmt"
	"strings"
)

// Data returns the radio packet carried by TX_REQUEST and RX_PACKET frames
func (f Frame) Data() ([]byte, bool) {
	if f.Type != FrameTxRequest && f.Type != FrameRxPacket {
		return nil, false
	}
	return f.Bytes(keyData)
}

// Status returns the status code of TX_DONE and RX_STARTED frames
func (f Frame) Status() (int, bool) {
	if f.Type != FrameTxDone && f.Type != FrameRxStarted {
		return 0, false
	}
	v, ok := f.Int(keyStatus)
	return int(v), ok
}

// Signal returns RSSI (dBm) and SNR (dB) of an RX_PACKET frame
func (f Frame) Signal() (rssi, snr int) {
	r, _ := f.Int(keyRSSI)
	s, _ := f.Int(keySNR)
	return int(r), int(s)
}

// FormatFrameType returns the human-readable name of a frame type
func FormatFrameType(t uint8) string {
	switch t {
	case FrameTxRequest:
		return "TX_REQUEST"
	case FrameRxStart:
		return "RX_START"
	case FrameTxDone:
		return "TX_DONE"
	case FrameRxStarted:
		return "RX_STARTED"
	case FrameRxPacket:
		return "RX_PACKET"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame renders a frame for the raw log
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X)\n", timestamp, FormatFrameType(f.Type), f.Type)

	switch f.Type {
	case FrameTxDone, FrameRxStarted:
		code, _ := f.Status()
		result += fmt.Sprintf("  Status: %s (%d)\n", StatusName(code), code)

	case FrameTxRequest, FrameRxPacket:
		data, _ := f.Data()
		if f.Type == FrameRxPacket {
			rssi, snr := f.Signal()
			result += fmt.Sprintf("  RSSI: %d dBm, SNR: %d dB\n", rssi, snr)
		}
		result += fmt.Sprintf("  Length: %d\n", len(data))
		result += hexDump(data)
	}

	return result
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("  Data: ")
	for i, c := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n        ")
		}
		fmt.Fprintf(&b, "%02X ", c)
	}
	b.WriteString("\n")
	return b.String()
}
