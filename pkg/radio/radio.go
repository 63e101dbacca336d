// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package radio provides the LoRa radio collaborators used by coldmesh nodes.
//
// A Radio is a half-duplex broadcast transceiver: it transmits one frame at a time,
// and after every transmit it must be re-armed with StartReceive before it hears
// anything again. Received frames are announced through the packet handler, which
// may run on any goroutine.
package radio

import (
	"errors"
	"fmt"
)

// MaxPacketSize is the largest frame the transceiver buffers
const MaxPacketSize = 256

// Radio is the transceiver interface consumed by the mesh control loop
type Radio interface {
	// Transmit sends one frame and blocks until the transceiver reports completion.
	Transmit(data []byte) error
	// StartReceive puts the transceiver back into receive mode.
	StartReceive() error
	// PacketLength returns the length of the buffered frame, or 0.
	PacketLength() int
	// ReadData copies the buffered frame into buf and clears it.
	ReadData(buf []byte) (int, error)
	// SetPacketHandler registers the packet-available callback.
	SetPacketHandler(fn func())
	// Close releases the transceiver.
	Close() error
}

// Radio status codes reported by the modem firmware
const (
	StatusOK            = 0
	StatusUnknown       = -1
	StatusPacketTooLong = -4
	StatusTxTimeout     = -5
	StatusRxTimeout     = -6
	StatusCRCMismatch   = -7
)

var (
	// ErrNoPacket is returned by ReadData when nothing is buffered
	ErrNoPacket = errors.New("radio: no packet buffered")
	// ErrBufferTooSmall is returned by ReadData when buf cannot hold the frame
	ErrBufferTooSmall = errors.New("radio: read buffer too small")
	// ErrTooLong is returned by Transmit for frames over MaxPacketSize
	ErrTooLong = errors.New("radio: packet too long")
	// ErrTxTimeout is returned when no transmit completion arrives in time
	ErrTxTimeout = errors.New("radio: transmit timeout")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("radio: closed")
)

// StatusError carries a non-success status code from the transceiver
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("radio: %s failed, code %d (%s)", e.Op, e.Code, StatusName(e.Code))
}

// StatusName returns the human-readable name for a status code
func StatusName(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusPacketTooLong:
		return "PACKET_TOO_LONG"
	case StatusTxTimeout:
		return "TX_TIMEOUT"
	case StatusRxTimeout:
		return "RX_TIMEOUT"
	case StatusCRCMismatch:
		return "CRC_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// statusErr maps a status code to an error, nil on success
func statusErr(op string, code int) error {
	if code == StatusOK {
		return nil
	}
	return &StatusError{Op: op, Code: code}
}
