// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DialFunc opens a fresh modem link; it is called again after the link drops
type DialFunc func(ctx context.Context) (Connection, error)

// ModemOptions tunes a Modem
type ModemOptions struct {
	// TxTimeout bounds the wait for TX_DONE. Zero means 2s.
	TxTimeout time.Duration
	// MaxBackoff caps the reconnect delay. Zero means 30s.
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// Modem drives a LoRa transceiver that sits behind a framed serial or WebSocket link
type Modem struct {
	dial DialFunc
	opts ModemOptions
	log  *slog.Logger

	connMu sync.RWMutex
	conn   Connection

	writeMu sync.Mutex
	txDone  chan int

	mu      sync.Mutex
	pending []byte
	rssi    int
	snr     int
	handler func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewModem dials the link and starts the reader
func NewModem(ctx context.Context, dial DialFunc, opts ModemOptions) (*Modem, error) {
	if opts.TxTimeout == 0 {
		opts.TxTimeout = 2 * time.Second
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	m := &Modem{
		dial:   dial,
		opts:   opts,
		log:    opts.Logger.With("component", "modem"),
		conn:   conn,
		txDone: make(chan int, 1),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.readerLoop()
	return m, nil
}

func (m *Modem) getConn() Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.conn
}

func (m *Modem) setConn(conn Connection) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.conn = conn
}

func (m *Modem) send(f Frame) error {
	wire, err := EncodeFrame(f)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn := m.getConn()
	if conn == nil {
		return ErrClosed
	}
	if _, err := conn.Write(wire); err != nil {
		return fmt.Errorf("modem write: %w", err)
	}
	return nil
}

// Transmit sends one radio packet and waits for TX_DONE
func (m *Modem) Transmit(data []byte) error {
	if len(data) > MaxPacketSize {
		return ErrTooLong
	}
	if m.ctx.Err() != nil {
		return ErrClosed
	}

	// Drop a stale completion left by a previous timed-out transmit
	select {
	case <-m.txDone:
	default:
	}

	if err := m.send(NewTxRequest(data)); err != nil {
		return err
	}

	timer := time.NewTimer(m.opts.TxTimeout)
	defer timer.Stop()

	select {
	case code := <-m.txDone:
		return statusErr("transmit", code)
	case <-timer.C:
		return ErrTxTimeout
	case <-m.ctx.Done():
		return ErrClosed
	}
}

// StartReceive asks the modem to enter continuous receive
func (m *Modem) StartReceive() error {
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	return m.send(NewRxStart())
}

// PacketLength returns the size of the buffered packet, or 0
func (m *Modem) PacketLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ReadData copies the buffered packet into buf and clears the buffer
func (m *Modem) ReadData(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return 0, ErrNoPacket
	}
	if len(buf) < len(m.pending) {
		return 0, ErrBufferTooSmall
	}
	n := copy(buf, m.pending)
	m.pending = nil
	return n, nil
}

// SetPacketHandler registers the packet-available callback.
// It runs on the reader goroutine and must not block.
func (m *Modem) SetPacketHandler(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// LastSignal returns RSSI (dBm) and SNR (dB) of the most recent packet
func (m *Modem) LastSignal() (rssi, snr int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rssi, m.snr
}

// Close stops the reader and closes the link
func (m *Modem) Close() error {
	m.cancel()

	var err error
	if conn := m.getConn(); conn != nil {
		err = conn.Close()
	}
	m.wg.Wait()
	return err
}

// readerLoop reads frames until shutdown, reconnecting when the link drops
func (m *Modem) readerLoop() {
	defer m.wg.Done()

	for {
		m.readFromConnection()

		if m.ctx.Err() != nil {
			return
		}
		m.log.Warn("modem link lost, reconnecting")
		if !m.reconnect() {
			return
		}
	}
}

// readFromConnection decodes frames until the connection fails
func (m *Modem) readFromConnection() {
	decoder := NewDecoder()
	buf := make([]byte, 128)

	for {
		conn := m.getConn()
		if conn == nil {
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			if m.ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) {
				return
			}
			if isPermanent(err) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			f, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				m.log.Debug("modem frame dropped", "error", decodeErr)
				continue
			}
			if f != nil {
				m.handleFrame(f)
			}
		}
	}
}

func (m *Modem) handleFrame(f *Frame) {
	switch f.Type {
	case FrameTxDone:
		code, _ := f.Int(keyStatus)
		select {
		case m.txDone <- int(code):
		default:
		}

	case FrameRxStarted:
		code, _ := f.Int(keyStatus)
		if code != StatusOK {
			m.log.Warn("modem failed to start receive", "status", StatusName(int(code)))
		}

	case FrameRxPacket:
		data, ok := f.Bytes(keyData)
		if !ok {
			m.log.Debug("RX_PACKET without data")
			return
		}
		if len(data) > MaxPacketSize {
			m.log.Debug("RX_PACKET too long", "length", len(data))
			return
		}
		rssi, _ := f.Int(keyRSSI)
		snr, _ := f.Int(keySNR)

		m.mu.Lock()
		m.pending = append([]byte(nil), data...)
		m.rssi, m.snr = int(rssi), int(snr)
		handler := m.handler
		m.mu.Unlock()

		if handler != nil {
			handler()
		}

	default:
		m.log.Debug("unknown modem frame", "type", fmt.Sprintf("0x%02X", f.Type))
	}
}

// reconnect redials with exponential backoff.
// Returns false if the modem was closed while waiting.
func (m *Modem) reconnect() bool {
	if conn := m.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	for {
		select {
		case <-m.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := m.dial(m.ctx)
		if err == nil {
			if m.ctx.Err() != nil {
				conn.Close()
				return false
			}
			m.setConn(conn)
			m.log.Info("modem link restored")
			// The transceiver may have reset; put it back into receive
			if err := m.StartReceive(); err != nil {
				m.log.Warn("failed to re-arm receive", "error", err)
			}
			return true
		}
		m.log.Debug("modem redial failed", "error", err, "backoff", backoff)

		backoff *= 2
		if backoff > m.opts.MaxBackoff {
			backoff = m.opts.MaxBackoff
		}
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
