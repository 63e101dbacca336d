// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/coldmesh/pkg/config"
	"github.com/Thermoquad/coldmesh/pkg/logging"
	"github.com/Thermoquad/coldmesh/pkg/radio"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	logLevel  string
	logFormat string

	askPassphrase bool
)

var rootCmd = &cobra.Command{
	Use:   "coldmesh",
	Short: "Keep-It-Cold LoRa temperature mesh node",
	Long: `Coldmesh - a temperature monitoring node for the Keep-It-Cold LoRa mesh.

Each node reads its probes, broadcasts an encrypted status every 30 seconds,
keeps a table of every node it hears and raises an alarm when a roster
member goes quiet for five minutes.

Connection modes (LoRa modem):
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the COLDMESH_PASSWORD
environment variable, or prompted interactively if not set. The mesh
passphrase may be supplied in COLDMESH_PASSPHRASE. Neither has a flag, to
avoid leaking secrets in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Node configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only, default from config)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&askPassphrase, "ask-passphrase", false, "Prompt for the mesh passphrase")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default from config)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, exists, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !exists && configPath != config.DefaultPath {
		return nil, fmt.Errorf("config file %s not found", configPath)
	}

	if portName != "" {
		cfg.Radio.Port = portName
		cfg.Radio.URL = ""
	}
	if wsURL != "" {
		cfg.Radio.URL = wsURL
		cfg.Radio.Port = ""
	}
	if baudRate != 0 {
		cfg.Radio.Baud = baudRate
	}
	if wsUsername != "" {
		cfg.Radio.Username = wsUsername
	}
	if wsNoSSLVerify {
		cfg.Radio.NoSSLVerify = true
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

// linkConfig builds the modem link, prompting for the WebSocket password if needed
func linkConfig(cfg *config.Config) (radio.LinkConfig, error) {
	link := radio.LinkConfig{
		Port:        cfg.Radio.Port,
		Baud:        cfg.Radio.Baud,
		URL:         cfg.Radio.URL,
		Username:    cfg.Radio.Username,
		NoSSLVerify: cfg.Radio.NoSSLVerify,
	}
	if link.URL == "" && link.Port == "" {
		return link, fmt.Errorf("either --port or --url must be specified")
	}
	if link.URL != "" && link.Username != "" {
		pw, err := GetPassword()
		if err != nil {
			return link, err
		}
		link.Password = pw
	}
	return link, nil
}
