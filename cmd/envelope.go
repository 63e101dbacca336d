// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/coldmesh/pkg/config"
	"github.com/Thermoquad/coldmesh/pkg/envelope"
	"github.com/Thermoquad/coldmesh/pkg/kic"
	"github.com/Thermoquad/coldmesh/pkg/mesh"
)

var envelopePassphrase string

var envelopeCmd = &cobra.Command{
	Use:   "envelope",
	Short: "Encrypt and decrypt mesh packets",
	Long: `Tools for the mesh envelope: AES-128-CBC with a random IV prepended.

The key is the first 16 bytes of SHA-256 of the passphrase. The passphrase
comes from COLDMESH_PASSPHRASE, the config file, or --passphrase.`,
}

var envelopeEncryptCmd = &cobra.Command{
	Use:   "encrypt <line>",
	Short: "Encrypt a line and print the packet as hex",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := envelopeKey()
		if err != nil {
			return err
		}
		packet, err := envelope.NewSealer(key).Seal([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(packet))
		return nil
	},
}

var envelopeDecryptCmd = &cobra.Command{
	Use:   "decrypt <hex>",
	Short: "Decrypt a hex packet and decode the line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := envelopeKey()
		if err != nil {
			return err
		}
		packet, err := hex.DecodeString(strings.Join(strings.Fields(args[0]), ""))
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}
		msg, line, err := mesh.OpenPacket(key, packet)
		if line != "" || err == nil {
			fmt.Printf("%q\n", line)
		}
		if err != nil {
			return err
		}
		fmt.Print(kic.FormatMessage(time.Now(), msg))
		return nil
	},
}

var envelopeKeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Print the derived AES key as hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := envelopeKey()
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(key[:]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envelopeCmd)
	envelopeCmd.AddCommand(envelopeEncryptCmd, envelopeDecryptCmd, envelopeKeyCmd)
	envelopeCmd.PersistentFlags().StringVar(&envelopePassphrase, "passphrase", "", "Mesh passphrase (overrides config and environment)")
}

func envelopeKey() (envelope.Key, error) {
	if envelopePassphrase != "" {
		return envelope.DeriveKey(envelopePassphrase), nil
	}
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return envelope.Key{}, err
	}
	return meshKey(cfg)
}
