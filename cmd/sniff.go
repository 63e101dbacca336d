// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/coldmesh/pkg/envelope"
	"github.com/Thermoquad/coldmesh/pkg/kic"
	"github.com/Thermoquad/coldmesh/pkg/mesh"
	"github.com/Thermoquad/coldmesh/pkg/radio"
)

var sniffShowFrames bool

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Decrypt and display every mesh packet heard",
	Long: `Put the modem in receive mode and display each packet as it arrives,
decrypted with the mesh passphrase and decoded as a KIC message.

Packets that fail to decrypt or parse are shown with the reason. With
--frames every modem frame is also dumped.

Supports both serial and WebSocket connections.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&sniffShowFrames, "frames", false, "Also dump raw modem frames")
}

// openLink opens the configured modem link and arms receive
func openLink(ctx context.Context) (radio.Connection, radio.LinkConfig, envelope.Key, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, radio.LinkConfig{}, envelope.Key{}, err
	}
	link, err := linkConfig(cfg)
	if err != nil {
		return nil, link, envelope.Key{}, err
	}
	key, err := meshKey(cfg)
	if err != nil {
		return nil, link, key, err
	}
	conn, err := radio.Dial(ctx, link)
	if err != nil {
		return nil, link, key, err
	}
	if err := startReceive(conn); err != nil {
		conn.Close()
		return nil, link, key, err
	}
	return conn, link, key, nil
}

func startReceive(conn radio.Connection) error {
	wire, err := radio.EncodeFrame(radio.NewRxStart())
	if err != nil {
		return err
	}
	if _, err := conn.Write(wire); err != nil {
		return fmt.Errorf("failed to send RX_START: %w", err)
	}
	return nil
}

func runSniff(cmd *cobra.Command, args []string) error {
	conn, link, key, err := openLink(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Coldmesh - Packet Sniffer\n")
	fmt.Printf("Connection: %s\n", link.Describe())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := radio.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, radio.ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame == nil {
				continue
			}
			if sniffShowFrames {
				fmt.Print(radio.FormatFrame(frame))
			}
			if frame.Type != radio.FrameRxPacket {
				continue
			}
			data, _ := frame.Data()
			fmt.Print(formatPacket(frame.Timestamp, key, data))
			// The modem drops to standby after each packet
			if err := startReceive(conn); err != nil {
				log.Printf("%v", err)
			}
		}
	}
}

func formatPacket(ts time.Time, key envelope.Key, data []byte) string {
	msg, line, err := mesh.OpenPacket(key, data)
	switch {
	case err == nil:
		return kic.FormatMessage(ts, msg)
	case errors.Is(err, kic.ErrUnknown), errors.Is(err, kic.ErrMalformed):
		return fmt.Sprintf("[%s] UNPARSED (%d bytes)\n  Line: %q\n  Error: %v\n", ts.Format("15:04:05.000"), len(data), line, err)
	default:
		return fmt.Sprintf("[%s] UNDECRYPTABLE (%d bytes)\n  Error: %v\n", ts.Format("15:04:05.000"), len(data), err)
	}
}
