// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

// Modem link framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Modem link size limits
const (
	MaxFramePayload = 512 // CBOR bytes
	maxFrameData    = 2 + MaxFramePayload
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Frame types - Host → Modem 0x10-0x1F
const (
	FrameTxRequest = 0x10
	FrameRxStart   = 0x11
)

// Frame types - Modem → Host 0x20-0x2F
const (
	FrameTxDone    = 0x20
	FrameRxStarted = 0x21
	FrameRxPacket  = 0x22
)

// Frame field keys
const (
	keyData   = 0
	keyStatus = 0
	keyRSSI   = 1
	keySNR    = 2
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength1
	stateLength2
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
