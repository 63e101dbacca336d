// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng seeds from FUZZ_SEED or the clock and logs the seed
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func decodeAll(t *testing.T, d *Decoder, wire []byte) []*Frame {
	t.Helper()
	var frames []*Frame
	for _, b := range wire {
		f, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC(nil); crc != 0xFFFF {
		t.Errorf("CRC of empty data = 0x%04X, want 0xFFFF", crc)
	}
}

func TestCalculateCRC_CheckValue(t *testing.T) {
	if crc := CalculateCRC([]byte("123456789")); crc != 0x29B1 {
		t.Errorf("CRC check value = 0x%04X, want 0x29B1", crc)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeFrame_Framing(t *testing.T) {
	wire, err := EncodeFrame(NewRxStart())
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if wire[0] != StartByte {
		t.Errorf("first byte = 0x%02X, want START", wire[0])
	}
	if wire[len(wire)-1] != EndByte {
		t.Errorf("last byte = 0x%02X, want END", wire[len(wire)-1])
	}
	for i, b := range wire[1 : len(wire)-1] {
		if b == StartByte || b == EndByte {
			t.Errorf("unstuffed framing byte 0x%02X at offset %d", b, i+1)
		}
	}
}

func TestEncodeFrame_PayloadTooLarge(t *testing.T) {
	if _, err := EncodeFrame(NewTxRequest(make([]byte, MaxFramePayload))); err == nil {
		t.Error("expected error for oversized payload")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_TxRequestRoundTrip(t *testing.T) {
	data := []byte("KIC,ABC123,4.0,5.0,6.0,1700000000,1")
	wire, err := EncodeFrame(NewTxRequest(data))
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	frames := decodeAll(t, NewDecoder(), wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.Type != FrameTxRequest {
		t.Errorf("Type = 0x%02X, want 0x%02X", f.Type, FrameTxRequest)
	}
	got, ok := f.Bytes(keyData)
	if !ok || !bytes.Equal(got, data) {
		t.Errorf("data = %q, want %q", got, data)
	}
	if f.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestDecoder_EmptyFields(t *testing.T) {
	wire, _ := EncodeFrame(NewRxStart())
	frames := decodeAll(t, NewDecoder(), wire)
	if len(frames) != 1 || frames[0].Type != FrameRxStart {
		t.Fatalf("frames = %+v", frames)
	}
	if len(frames[0].Fields) != 0 {
		t.Errorf("expected no fields, got %v", frames[0].Fields)
	}
}

func TestDecoder_SignedFields(t *testing.T) {
	wire, _ := EncodeFrame(NewRxPacket([]byte{1, 2, 3}, -97, -8))
	frames := decodeAll(t, NewDecoder(), wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames", len(frames))
	}
	rssi, _ := frames[0].Int(keyRSSI)
	snr, _ := frames[0].Int(keySNR)
	if rssi != -97 || snr != -8 {
		t.Errorf("rssi=%d snr=%d, want -97 -8", rssi, snr)
	}
}

func TestDecoder_ByteStuffing(t *testing.T) {
	// Payload deliberately full of framing bytes
	data := []byte{StartByte, EndByte, EscByte, StartByte ^ EscXor, 0x00}
	wire, _ := EncodeFrame(NewTxRequest(data))

	frames := decodeAll(t, NewDecoder(), wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got, _ := frames[0].Bytes(keyData)
	if !bytes.Equal(got, data) {
		t.Errorf("data = % X, want % X", got, data)
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	payload, err := cbor.Marshal([]interface{}{uint64(FrameTxDone), nil})
	if err != nil {
		t.Fatal(err)
	}
	data := []byte{0x00, byte(len(payload))}
	data = append(data, payload...)
	crc := CalculateCRC(data) ^ 0x0101
	data = append(data, byte(crc>>8), byte(crc))

	wire := append([]byte{StartByte}, stuffBytes(data)...)
	wire = append(wire, EndByte)

	d := NewDecoder()
	var gotErr error
	for _, b := range wire {
		f, err := d.DecodeByte(b)
		if f != nil {
			t.Fatal("corrupt frame was accepted")
		}
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Error("expected CRC mismatch error")
	}
}

func TestDecoder_InvalidLength(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0xFF)
	if _, err := d.DecodeByte(0xFF); err == nil {
		t.Error("expected error for length over MaxFramePayload")
	}
}

func TestDecoder_StartByteResynchronises(t *testing.T) {
	wire, _ := EncodeFrame(NewTxDone(StatusOK))
	// Half a frame of junk, then a full frame
	stream := append([]byte{StartByte, 0x00, 0x05, 0x82}, wire...)

	d := NewDecoder()
	var frames []*Frame
	for _, b := range stream {
		f, _ := d.DecodeByte(b)
		if f != nil {
			frames = append(frames, f)
		}
	}
	if len(frames) != 1 || frames[0].Type != FrameTxDone {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestDecoder_UnexpectedEnd(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0x00)
	if _, err := d.DecodeByte(EndByte); err == nil {
		t.Error("expected error for END mid-frame")
	}
	// Bare END while idle is ignored
	if f, err := d.DecodeByte(EndByte); f != nil || err != nil {
		t.Errorf("idle END: f=%v err=%v", f, err)
	}
}

func TestDecoder_BackToBack(t *testing.T) {
	a, _ := EncodeFrame(NewTxDone(StatusOK))
	b, _ := EncodeFrame(NewRxStarted(StatusCRCMismatch))
	frames := decodeAll(t, NewDecoder(), append(a, b...))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	code, _ := frames[1].Int(keyStatus)
	if frames[1].Type != FrameRxStarted || code != StatusCRCMismatch {
		t.Errorf("second frame = %+v", frames[1])
	}
}

// ============================================================
// Fuzz Tests
// ============================================================

func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		data := make([]byte, rng.Intn(1024)+1)
		rng.Read(data)
		for _, b := range data {
			d.DecodeByte(b)
		}
	}
}

func TestFuzzDecoder_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(MaxPacketSize+1))
		rng.Read(data)
		wire, err := EncodeFrame(NewTxRequest(data))
		if err != nil {
			t.Fatalf("round %d: EncodeFrame: %v", i, err)
		}

		frames := decodeAll(t, NewDecoder(), wire)
		if len(frames) != 1 {
			t.Fatalf("round %d: got %d frames", i, len(frames))
		}
		got, _ := frames[0].Bytes(keyData)
		if !bytes.Equal(got, data) {
			t.Fatalf("round %d: payload mismatch", i)
		}
	}
}

// ============================================================================
// Formatting
// ============================================================================

func TestFrameAccessors(t *testing.T) {
	rx := NewRxPacket([]byte{1, 2, 3}, -90, 7)
	data, ok := rx.Data()
	if !ok || len(data) != 3 {
		t.Fatalf("Data() = %v, %v", data, ok)
	}
	if rssi, snr := rx.Signal(); rssi != -90 || snr != 7 {
		t.Errorf("Signal() = %d, %d", rssi, snr)
	}
	if _, ok := rx.Status(); ok {
		t.Error("RX_PACKET must not report a status")
	}

	done := NewTxDone(StatusTxTimeout)
	if code, ok := done.Status(); !ok || code != StatusTxTimeout {
		t.Errorf("Status() = %d, %v", code, ok)
	}
	if _, ok := done.Data(); ok {
		t.Error("TX_DONE must not carry data")
	}
}

func TestFormatFrame(t *testing.T) {
	rx := NewRxPacket([]byte{0xAB, 0xCD}, -80, 5)
	out := FormatFrame(&rx)
	for _, want := range []string{"RX_PACKET (0x22)", "RSSI: -80 dBm", "Length: 2", "AB CD"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame() missing %q:\n%s", want, out)
		}
	}

	done := NewTxDone(StatusOK)
	if out := FormatFrame(&done); !strings.Contains(out, "TX_DONE") {
		t.Errorf("FormatFrame() = %q", out)
	}
	if FormatFrameType(0x99) != "UNKNOWN" {
		t.Error("unknown frame type must format as UNKNOWN")
	}
}
