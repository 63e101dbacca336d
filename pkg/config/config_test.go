// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.True(t, ValidNodeID(cfg.Node.ID))
	assert.Equal(t, WiFiSSIDPrefix+cfg.Node.ID, cfg.WiFi.SSID)
	assert.Equal(t, DefaultWiFiPass, cfg.WiFi.Pass)
	assert.Equal(t, []string{cfg.Node.ID}, cfg.Roster)
	assert.Equal(t, 30*time.Second, cfg.Timing.Broadcast)
	assert.Equal(t, 5*time.Second, cfg.Timing.Jitter)
	assert.Equal(t, 300*time.Second, cfg.Timing.Freshness)
	assert.Equal(t, 15*time.Minute, cfg.Timing.Log)
	start, end := cfg.Alarm.DayWindow()
	assert.Equal(t, 8, start)
	assert.Equal(t, 20, end)
	assert.Equal(t, time.Hour, cfg.Alarm.Silence)
	assert.Equal(t, "fast", cfg.Crypto.IVSource)
}

func TestApplyDefaults_ShortWiFiPass(t *testing.T) {
	cfg := &Config{Node: NodeConfig{ID: "ABC123"}, WiFi: WiFiConfig{SSID: "mine", Pass: "short"}}
	cfg.ApplyDefaults()
	assert.Equal(t, "mine", cfg.WiFi.SSID)
	assert.Equal(t, DefaultWiFiPass, cfg.WiFi.Pass)

	cfg = &Config{Node: NodeConfig{ID: "ABC123"}, WiFi: WiFiConfig{Pass: "longenough"}}
	cfg.ApplyDefaults()
	assert.Equal(t, "KIC-ABC123", cfg.WiFi.SSID)
	assert.Equal(t, "longenough", cfg.WiFi.Pass)
}

func TestNodeIDFromMAC(t *testing.T) {
	mac, err := net.ParseMAC("24:6f:28:a1:b2:0c")
	require.NoError(t, err)
	id, ok := nodeIDFromMAC(mac)
	require.True(t, ok)
	assert.Equal(t, "A1B20C", id)

	_, ok = nodeIDFromMAC(nil)
	assert.False(t, ok)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad id", func(c *Config) { c.Node.ID = "AB-123" }},
		{"too many probes", func(c *Config) { c.Node.Probes = 4 }},
		{"bad roster id", func(c *Config) { c.Roster = []string{"ABC123", "nope"} }},
		{"duplicate roster id", func(c *Config) { c.Roster = []string{"ABC123", "ABC123"} }},
		{"port and url", func(c *Config) { c.Radio.Port, c.Radio.URL = "/dev/ttyUSB0", "ws://x" }},
		{"bad driver", func(c *Config) { c.Sensor.Driver = "i2c" }},
		{"inverted day", func(c *Config) { c.Alarm.DayStartHour, c.Alarm.DayEndHour = intPtr(20), intPtr(8) }},
		{"day end past midnight", func(c *Config) { c.Alarm.DayEndHour = intPtr(25) }},
		{"bad timezone", func(c *Config) { c.Alarm.Timezone = "Mars/Olympus" }},
		{"bad iv source", func(c *Config) { c.Crypto.IVSource = "dice" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Node: NodeConfig{ID: "ABC123"}}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, exists, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NotNil(t, cfg)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coldmesh.yaml")

	cfg := &Config{Node: NodeConfig{ID: "ABC123", TrustedClock: true, Probes: 2}}
	cfg.Roster = []string{"ABC123", "DEF456"}
	cfg.SilenceUntil = 1700000000
	cfg.ApplyDefaults()
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, cfg, got)
}

func TestLoad_SchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "node:\n  id: ABC123\n  colour: blue\n"},
		{"bad roster id", "roster: [ABC123, toolongid]\n"},
		{"bad duration", "timing:\n  broadcast: soon\n"},
		{"bad level", "log:\n  level: chatty\n"},
		{"bad url", "radio:\n  url: http://bridge\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, _, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	yaml := "node:\n  id: XYZ789\ntiming:\n  broadcast: 10s\nsensor:\n  driver: sim\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "XYZ789", cfg.Node.ID)
	assert.Equal(t, 10*time.Second, cfg.Timing.Broadcast)
	assert.Equal(t, []string{"XYZ789"}, cfg.Roster)
	assert.Equal(t, "KIC-XYZ789", cfg.WiFi.SSID)
}

func TestLoad_QuietAllDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	yaml := "node:\n  id: XYZ789\nalarm:\n  day_start_hour: 0\n  day_end_hour: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	start, end := cfg.Alarm.DayWindow()
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
}

func TestLoad_DayWindowPartlySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	yaml := "node:\n  id: XYZ789\nalarm:\n  day_start_hour: 6\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	start, end := cfg.Alarm.DayWindow()
	assert.Equal(t, 6, start)
	assert.Equal(t, 20, end)
}

// ============================================================
// Store
// ============================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coldmesh.yaml")
	cfg := &Config{Node: NodeConfig{ID: "ABC123"}}
	cfg.ApplyDefaults()
	require.NoError(t, Save(path, cfg))
	s, err := Open(path)
	require.NoError(t, err)
	return s
}

func reload(t *testing.T, s *Store) *Config {
	t.Helper()
	cfg, _, err := Load(s.Path())
	require.NoError(t, err)
	return cfg
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	_, err := Open(path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStore_SaveRoster(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveRoster([]string{"ABC123", "BBB222"}))
	assert.Equal(t, []string{"ABC123", "BBB222"}, reload(t, s).Roster)

	assert.ErrorIs(t, s.SaveRoster([]string{"bad"}), ErrInvalidNodeID)
	assert.Equal(t, []string{"ABC123", "BBB222"}, s.Config().Roster)
}

func TestStore_SilenceAndCheckin(t *testing.T) {
	s := newTestStore(t)
	until := time.Unix(1700003600, 0)
	require.NoError(t, s.SaveSilence(until))
	require.NoError(t, s.TouchCheckin(time.Unix(1700000000, 0)))

	cfg := reload(t, s)
	assert.Equal(t, int64(1700003600), cfg.SilenceUntil)
	assert.Equal(t, int64(1700000000), cfg.LastWebCheckin)
}

func TestStore_SetNodeID_PasswordFollows(t *testing.T) {
	s := newTestStore(t)

	// Default pass is long and unrelated: it stays
	require.NoError(t, s.SetNodeID("DEF456"))
	assert.Equal(t, "DEF456", s.Config().Node.ID)
	assert.Equal(t, DefaultWiFiPass, s.Config().WiFi.Pass)

	// Pass equal to the old id follows the new id
	require.NoError(t, s.SetWiFi("KIC-DEF456", "DEF456"))
	require.NoError(t, s.SetNodeID("GHI789"))
	assert.Equal(t, "GHI789", s.Config().WiFi.Pass)

	// Short pass follows too
	require.NoError(t, s.SetWiFi("net", "abc"))
	require.NoError(t, s.SetNodeID("JKL012"))
	assert.Equal(t, "JKL012", s.Config().WiFi.Pass)

	assert.ErrorIs(t, s.SetNodeID("x"), ErrInvalidNodeID)
}

func TestStore_SetWiFi(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetWiFi("Cooler", "supersecret"))
	cfg := reload(t, s)
	assert.Equal(t, "Cooler", cfg.WiFi.SSID)
	assert.Equal(t, "supersecret", cfg.WiFi.Pass)

	assert.ErrorIs(t, s.SetWiFi("", "x"), ErrInvalidConfig)
}
