// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"sync"
	"time"
)

// Store is a config file that is rewritten on every persisted change
type Store struct {
	path string

	mu  sync.Mutex
	cfg *Config
}

// NewStore wraps an already loaded config
func NewStore(path string, cfg *Config) *Store {
	return &Store{path: path, cfg: cfg}
}

// Open loads path, creating it with defaults when missing
func Open(path string) (*Store, error) {
	cfg, exists, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(path, cfg)
	if !exists {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string { return s.path }

// Config returns a copy of the current config
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.cfg
	c.Roster = append([]string(nil), s.cfg.Roster...)
	c.Sensor.Devices = append([]string(nil), s.cfg.Sensor.Devices...)
	return c
}

func (s *Store) update(fn func(c *Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cfg
	next.Roster = append([]string(nil), s.cfg.Roster...)
	if err := fn(&next); err != nil {
		return err
	}
	if err := Save(s.path, &next); err != nil {
		return err
	}
	*s.cfg = next
	return nil
}

// SaveRoster persists the roster
func (s *Store) SaveRoster(ids []string) error {
	for _, id := range ids {
		if !ValidNodeID(id) {
			return fmt.Errorf("roster entry %q: %w", id, ErrInvalidNodeID)
		}
	}
	return s.update(func(c *Config) error {
		c.Roster = append([]string(nil), ids...)
		return nil
	})
}

// SaveSilence persists the silence expiry
func (s *Store) SaveSilence(until time.Time) error {
	return s.update(func(c *Config) error {
		c.SilenceUntil = until.Unix()
		return nil
	})
}

// TouchCheckin records a web dashboard visit
func (s *Store) TouchCheckin(at time.Time) error {
	return s.update(func(c *Config) error {
		c.LastWebCheckin = at.Unix()
		return nil
	})
}

// SetNodeID changes the node id. The Wi-Fi password follows the id when it
// was the old id, empty, or shorter than 6 characters.
func (s *Store) SetNodeID(id string) error {
	if !ValidNodeID(id) {
		return fmt.Errorf("node id %q: %w", id, ErrInvalidNodeID)
	}
	return s.update(func(c *Config) error {
		if c.WiFi.Pass == c.Node.ID || c.WiFi.Pass == "" || len(c.WiFi.Pass) < 6 {
			c.WiFi.Pass = id
		}
		c.Node.ID = id
		return nil
	})
}

// SetWiFi replaces the access point credentials
func (s *Store) SetWiFi(ssid, pass string) error {
	if ssid == "" {
		return fmt.Errorf("%w: empty SSID", ErrInvalidConfig)
	}
	return s.update(func(c *Config) error {
		c.WiFi.SSID = ssid
		c.WiFi.Pass = pass
		return nil
	})
}
