// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/coldmesh/pkg/config"
	"github.com/Thermoquad/coldmesh/pkg/envelope"
)

const (
	passwordEnv   = "COLDMESH_PASSWORD"
	passphraseEnv = "COLDMESH_PASSPHRASE"
)

// GetPassword retrieves the WebSocket password from environment or prompts user
func GetPassword() (string, error) {
	return readSecret(passwordEnv, "Password: ")
}

func readSecret(env, prompt string) (string, error) {
	// First check environment variable
	if v := os.Getenv(env); env != "" && v != "" {
		return v, nil
	}

	// Prompt user (hide input)
	fmt.Fprint(os.Stderr, prompt)

	secret, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(line), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(secret), nil
}

// meshKey resolves the passphrase: a prompt when --ask-passphrase is set,
// then the environment, then the config, then the firmware default
func meshKey(cfg *config.Config) (envelope.Key, error) {
	if askPassphrase {
		v, err := readSecret("", "Mesh passphrase: ")
		if err != nil {
			return envelope.Key{}, err
		}
		return envelope.DeriveKey(v), nil
	}
	if v := os.Getenv(passphraseEnv); v != "" {
		return envelope.DeriveKey(v), nil
	}
	if cfg.Node.Passphrase != "" {
		return envelope.DeriveKey(cfg.Node.Passphrase), nil
	}
	return envelope.DeriveKey(config.DefaultPassphrase), nil
}
