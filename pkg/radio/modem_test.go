// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeModem plays the firmware side of the link over a net.Pipe
type fakeModem struct {
	conn     net.Conn
	frames   chan Frame
	txStatus int
	silent   bool
	writeMu  sync.Mutex
}

func newFakeModem(conn net.Conn) *fakeModem {
	f := &fakeModem{conn: conn, frames: make(chan Frame, 16)}
	go f.run()
	return f
}

func (f *fakeModem) run() {
	d := NewDecoder()
	buf := make([]byte, 64)
	for {
		n, err := f.conn.Read(buf)
		if err != nil {
			close(f.frames)
			return
		}
		for i := 0; i < n; i++ {
			fr, _ := d.DecodeByte(buf[i])
			if fr == nil {
				continue
			}
			if fr.Type == FrameTxRequest && !f.silent {
				// Reply from a separate goroutine: net.Pipe writes block until read
				go f.send(NewTxDone(f.txStatus))
			}
			f.frames <- *fr
		}
	}
}

func (f *fakeModem) send(fr Frame) {
	wire, _ := EncodeFrame(fr)
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.conn.Write(wire)
}

func (f *fakeModem) next(t *testing.T) Frame {
	t.Helper()
	select {
	case fr, ok := <-f.frames:
		if !ok {
			t.Fatal("fake modem link closed")
		}
		return fr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame from host")
	}
	return Frame{}
}

func newTestModem(t *testing.T, opts ModemOptions) (*Modem, *fakeModem) {
	t.Helper()
	host, dev := net.Pipe()
	fake := newFakeModem(dev)

	dialed := false
	m, err := NewModem(context.Background(), func(ctx context.Context) (Connection, error) {
		if dialed {
			return nil, errors.New("no more links")
		}
		dialed = true
		return host, nil
	}, opts)
	if err != nil {
		t.Fatalf("NewModem: %v", err)
	}
	t.Cleanup(func() {
		m.Close()
		dev.Close()
	})
	return m, fake
}

// ============================================================
// Transmit Tests
// ============================================================

func TestModem_TransmitSendsTxRequest(t *testing.T) {
	m, fake := newTestModem(t, ModemOptions{})

	if err := m.Transmit([]byte("hello")); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	fr := fake.next(t)
	if fr.Type != FrameTxRequest {
		t.Fatalf("Type = 0x%02X, want TX_REQUEST", fr.Type)
	}
	if data, _ := fr.Bytes(keyData); string(data) != "hello" {
		t.Errorf("data = %q", data)
	}
}

func TestModem_TransmitStatusError(t *testing.T) {
	m, fake := newTestModem(t, ModemOptions{})
	fake.txStatus = StatusTxTimeout

	err := m.Transmit([]byte("x"))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != StatusTxTimeout {
		t.Errorf("Code = %d, want %d", se.Code, StatusTxTimeout)
	}
}

func TestModem_TransmitTimeout(t *testing.T) {
	m, fake := newTestModem(t, ModemOptions{TxTimeout: 50 * time.Millisecond})
	fake.silent = true

	if err := m.Transmit([]byte("x")); !errors.Is(err, ErrTxTimeout) {
		t.Errorf("err = %v, want ErrTxTimeout", err)
	}
}

func TestModem_TransmitTooLong(t *testing.T) {
	m, _ := newTestModem(t, ModemOptions{})
	if err := m.Transmit(make([]byte, MaxPacketSize+1)); !errors.Is(err, ErrTooLong) {
		t.Errorf("err = %v, want ErrTooLong", err)
	}
}

func TestModem_StartReceive(t *testing.T) {
	m, fake := newTestModem(t, ModemOptions{})
	go m.StartReceive()
	if fr := fake.next(t); fr.Type != FrameRxStart {
		t.Errorf("Type = 0x%02X, want RX_START", fr.Type)
	}
}

// ============================================================
// Receive Tests
// ============================================================

func TestModem_RxPacketBuffersAndSignals(t *testing.T) {
	m, fake := newTestModem(t, ModemOptions{})

	var signalled atomic.Int32
	got := make(chan struct{}, 1)
	m.SetPacketHandler(func() {
		signalled.Add(1)
		got <- struct{}{}
	})

	if m.PacketLength() != 0 {
		t.Fatal("expected empty buffer")
	}

	go fake.send(NewRxPacket([]byte("payload"), -80, 7))
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	if n := m.PacketLength(); n != 7 {
		t.Errorf("PacketLength = %d, want 7", n)
	}
	rssi, snr := m.LastSignal()
	if rssi != -80 || snr != 7 {
		t.Errorf("signal = %d/%d, want -80/7", rssi, snr)
	}

	small := make([]byte, 3)
	if _, err := m.ReadData(small); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("err = %v, want ErrBufferTooSmall", err)
	}

	buf := make([]byte, MaxPacketSize)
	n, err := m.ReadData(buf)
	if err != nil || string(buf[:n]) != "payload" {
		t.Fatalf("ReadData = %q, %v", buf[:n], err)
	}
	if _, err := m.ReadData(buf); !errors.Is(err, ErrNoPacket) {
		t.Errorf("second read err = %v, want ErrNoPacket", err)
	}
	if signalled.Load() != 1 {
		t.Errorf("handler called %d times", signalled.Load())
	}
}

func TestModem_ClosedOperations(t *testing.T) {
	m, _ := newTestModem(t, ModemOptions{})
	m.Close()

	if err := m.Transmit([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Transmit err = %v, want ErrClosed", err)
	}
	if err := m.StartReceive(); !errors.Is(err, ErrClosed) {
		t.Errorf("StartReceive err = %v, want ErrClosed", err)
	}
}

// ============================================================
// Reconnect Tests
// ============================================================

func TestModem_ReconnectRearmsReceive(t *testing.T) {
	host1, dev1 := net.Pipe()
	host2, dev2 := net.Pipe()
	newFakeModem(dev1)
	fake2 := newFakeModem(dev2)

	links := make(chan Connection, 2)
	links <- host1
	links <- host2

	m, err := NewModem(context.Background(), func(ctx context.Context) (Connection, error) {
		select {
		case c := <-links:
			return c, nil
		default:
			return nil, errors.New("no more links")
		}
	}, ModemOptions{MaxBackoff: time.Second})
	if err != nil {
		t.Fatalf("NewModem: %v", err)
	}
	defer m.Close()
	defer dev2.Close()

	// Drop the first link from the modem side
	dev1.Close()

	select {
	case fr, ok := <-fake2.frames:
		if !ok || fr.Type != FrameRxStart {
			t.Fatalf("after reconnect got %+v, want RX_START", fr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("modem did not reconnect")
	}
}
