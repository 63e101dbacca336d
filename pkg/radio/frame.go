// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Frame is one message on the host/modem link: a type and a small integer-keyed map.
//
// Wire format: START | stuffed(length(2, BE) | CBOR [type, map] | CRC16(BE)) | END.
// The CRC covers the length and CBOR bytes.
type Frame struct {
	Type      uint8
	Fields    map[int]interface{}
	Timestamp time.Time
}

// NewTxRequest creates a TX_REQUEST frame carrying one radio packet
func NewTxRequest(data []byte) Frame {
	return Frame{Type: FrameTxRequest, Fields: map[int]interface{}{keyData: data}}
}

// NewRxStart creates an RX_START frame
func NewRxStart() Frame {
	return Frame{Type: FrameRxStart}
}

// NewTxDone creates a TX_DONE frame (modem side, used by bridges and tests)
func NewTxDone(status int) Frame {
	return Frame{Type: FrameTxDone, Fields: map[int]interface{}{keyStatus: int64(status)}}
}

// NewRxStarted creates an RX_STARTED frame (modem side)
func NewRxStarted(status int) Frame {
	return Frame{Type: FrameRxStarted, Fields: map[int]interface{}{keyStatus: int64(status)}}
}

// NewRxPacket creates an RX_PACKET frame (modem side)
func NewRxPacket(data []byte, rssi, snr int) Frame {
	return Frame{Type: FrameRxPacket, Fields: map[int]interface{}{
		keyData: data,
		keyRSSI: int64(rssi),
		keySNR:  int64(snr),
	}}
}

// EncodeFrame creates a complete wire-formatted frame including framing and byte stuffing
func EncodeFrame(f Frame) ([]byte, error) {
	var msg interface{}
	if len(f.Fields) == 0 {
		msg = []interface{}{uint64(f.Type), nil}
	} else {
		msg = []interface{}{uint64(f.Type), f.Fields}
	}

	payload, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(payload), MaxFramePayload)
	}

	data := make([]byte, 2, 2+len(payload)+2)
	binary.BigEndian.PutUint16(data, uint16(len(payload)))
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)
	out := make([]byte, 0, len(stuffed)+2)
	out = append(out, StartByte)
	out = append(out, stuffed...)
	out = append(out, EndByte)
	return out, nil
}

// parseFrame decodes a CBOR frame payload: [type, map|nil]
func parseFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return Frame{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(msg) != 2 {
		return Frame{}, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	var f Frame
	switch v := msg[0].(type) {
	case uint64:
		if v > 255 {
			return Frame{}, fmt.Errorf("frame type out of range: %d", v)
		}
		f.Type = uint8(v)
	default:
		return Frame{}, fmt.Errorf("expected uint for frame type, got %T", msg[0])
	}

	if msg[1] == nil {
		return f, nil
	}

	m, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return Frame{}, fmt.Errorf("expected map or nil for fields, got %T", msg[1])
	}
	f.Fields = make(map[int]interface{}, len(m))
	for key, val := range m {
		switch k := key.(type) {
		case uint64:
			f.Fields[int(k)] = val
		case int64:
			f.Fields[int(k)] = val
		default:
			return Frame{}, fmt.Errorf("expected integer map key, got %T", key)
		}
	}
	return f, nil
}

// Int extracts an integer field
func (f Frame) Int(key int) (int64, bool) {
	v, ok := f.Fields[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	}
	return 0, false
}

// Bytes extracts a byte string field
func (f Frame) Bytes(key int) ([]byte, bool) {
	v, ok := f.Fields[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// CalculateCRC computes the CRC-16-CCITT (poly 0x1021, init 0xFFFF) of data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// stuffBytes escapes START, END and ESC bytes as ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}
