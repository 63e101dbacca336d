// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/coldmesh/pkg/kic"
	"github.com/Thermoquad/coldmesh/pkg/mesh"
	"github.com/Thermoquad/coldmesh/pkg/radio"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the link by waiting for a decryptable mesh packet",
	Long: `Wait for a mesh packet on the modem link until timeout.

This command connects to a serial port or WebSocket, arms receive and waits
for a radio packet that decrypts with the mesh passphrase and decodes as a
KIC message. Modem frames with bad CRCs and packets from other meshes are
skipped.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error

Useful for checking the modem wiring and the passphrase.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 60, "Timeout in seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, link, key, err := openLink(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Coldmesh - Packet Test\n")
	fmt.Printf("Connection: %s\n", link.Describe())
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for a mesh packet...\n\n")

	type result struct {
		msg        kic.Message
		rssi, snr  int
		rejected   int
		frameError int
	}
	resultChan := make(chan result, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		decoder := radio.NewDecoder()
		buf := make([]byte, 256)
		var res result
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					res.frameError++
					continue
				}
				if frame == nil || frame.Type != radio.FrameRxPacket {
					continue
				}
				data, _ := frame.Data()
				msg, _, err := mesh.OpenPacket(key, data)
				if err != nil {
					res.rejected++
					startReceive(conn)
					continue
				}
				res.msg = msg
				res.rssi, res.snr = frame.Signal()
				resultChan <- res
				return
			}
		}
	}()

	// Wait for packet or timeout
	select {
	case res := <-resultChan:
		fmt.Printf("SUCCESS: Received mesh packet\n")
		fmt.Printf("  Type: %s\n", res.msg.Kind())
		fmt.Printf("  Message: %s\n", kic.Encode(res.msg))
		fmt.Printf("  RSSI: %d dBm, SNR: %d dB\n", res.rssi, res.snr)
		if res.rejected > 0 || res.frameError > 0 {
			fmt.Printf("  (skipped %d undecodable packets, %d bad frames)\n", res.rejected, res.frameError)
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No mesh packet received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
