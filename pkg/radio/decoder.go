// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"fmt"
	"time"
)

// Decoder reassembles modem link frames from a byte stream
type Decoder struct {
	state      int
	buffer     []byte
	length     int
	crc        uint16
	escapeNext bool
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, maxFrameData),
	}
}

// Reset returns the decoder to idle, dropping any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.length = 0
	d.crc = 0
	d.escapeNext = false
}

// DecodeByte feeds one byte to the decoder.
// It returns a frame when one completes, nil while incomplete, and an error
// for a corrupt frame (after which the decoder waits for the next START).
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	// Framing bytes are never stuffed, so they resynchronise unconditionally
	if b == StartByte {
		d.Reset()
		d.state = stateLength1
		return nil, nil
	}

	if b == EndByte {
		if d.state != stateIdle && d.escapeNext {
			d.Reset()
			return nil, fmt.Errorf("END byte after escape")
		}
		return d.finish()
	}

	if d.state == stateIdle {
		return nil, nil
	}

	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateLength1:
		d.buffer = append(d.buffer, b)
		d.length = int(b) << 8
		d.state = stateLength2

	case stateLength2:
		d.buffer = append(d.buffer, b)
		d.length |= int(b)
		if d.length > MaxFramePayload {
			n := d.length
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", n, MaxFramePayload)
		}
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) == 2+d.length {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd

	default:
		// Data after the CRC and before END
		d.Reset()
		return nil, fmt.Errorf("frame overrun: expected END byte")
	}
	return nil, nil
}

func (d *Decoder) finish() (*Frame, error) {
	if d.state == stateIdle {
		return nil, nil
	}
	if d.state != stateEnd {
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("unexpected END byte in state %d", state)
	}

	expected := CalculateCRC(d.buffer)
	if d.crc != expected {
		got := d.crc
		d.Reset()
		return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", expected, got)
	}

	payload := append([]byte(nil), d.buffer[2:]...)
	d.Reset()
	f, err := parseFrame(payload)
	if err != nil {
		return nil, err
	}
	f.Timestamp = time.Now()
	return &f, nil
}
