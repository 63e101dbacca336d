// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads, validates and persists node configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when none is given
const DefaultPath = "coldmesh.yaml"

// Firmware-compatible defaults
const (
	DefaultPassphrase = "bowman#1"
	DefaultWiFiPass   = "KeepItCold"
	WiFiSSIDPrefix    = "KIC-"
	minWiFiPass       = 8
)

var (
	// ErrInvalidNodeID is returned for ids that are not 6 alphanumerics
	ErrInvalidNodeID = errors.New("node id must be 6 alphanumeric characters")
	// ErrInvalidConfig wraps all validation failures
	ErrInvalidConfig = errors.New("invalid config")
)

var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

// ValidNodeID reports whether id is a well-formed node identifier
func ValidNodeID(id string) bool {
	return nodeIDPattern.MatchString(id)
}

// Config is the on-disk node configuration
type Config struct {
	Node           NodeConfig   `yaml:"node"`
	WiFi           WiFiConfig   `yaml:"wifi"`
	Roster         []string     `yaml:"roster"`
	SilenceUntil   int64        `yaml:"silence_until"`
	LastWebCheckin int64        `yaml:"last_web_checkin"`
	Radio          RadioConfig  `yaml:"radio"`
	Sensor         SensorConfig `yaml:"sensor"`
	Timing         TimingConfig `yaml:"timing"`
	Alarm          AlarmConfig  `yaml:"alarm"`
	Log            LogConfig    `yaml:"log"`
	Admin          AdminConfig  `yaml:"admin"`
	Crypto         CryptoConfig `yaml:"crypto"`
}

// NodeConfig identifies the node and its mesh secret
type NodeConfig struct {
	ID         string `yaml:"id"`
	Passphrase string `yaml:"passphrase,omitempty"`
	// TrustedClock marks the host clock as authoritative (NTP-synced).
	TrustedClock   bool `yaml:"trusted_clock"`
	Probes         int  `yaml:"probes"`
	AnnounceRoster bool `yaml:"announce_roster"`
}

// WiFiConfig holds access point credentials served to the web dashboard
type WiFiConfig struct {
	SSID string `yaml:"ssid"`
	Pass string `yaml:"pass"`
}

// RadioConfig selects the modem link
type RadioConfig struct {
	Port        string        `yaml:"port,omitempty"`
	Baud        int           `yaml:"baud"`
	URL         string        `yaml:"url,omitempty"`
	Username    string        `yaml:"username,omitempty"`
	NoSSLVerify bool          `yaml:"no_ssl_verify,omitempty"`
	TxTimeout   time.Duration `yaml:"tx_timeout"`
}

// SensorConfig selects the probe driver
type SensorConfig struct {
	Driver  string   `yaml:"driver"`
	Root    string   `yaml:"root,omitempty"`
	Devices []string `yaml:"devices,omitempty"`
}

// TimingConfig holds the control loop cadences
type TimingConfig struct {
	Tick      time.Duration `yaml:"tick"`
	Read      time.Duration `yaml:"read"`
	Broadcast time.Duration `yaml:"broadcast"`
	Jitter    time.Duration `yaml:"jitter"`
	Monitor   time.Duration `yaml:"monitor"`
	Freshness time.Duration `yaml:"freshness"`
	Log       time.Duration `yaml:"log"`
}

// AlarmConfig gates alarm presentation
type AlarmConfig struct {
	DayStartHour *int          `yaml:"day_start_hour"`
	DayEndHour   *int          `yaml:"day_end_hour"`
	Silence      time.Duration `yaml:"silence"`
	Timezone     string        `yaml:"timezone,omitempty"`
	Bell         bool          `yaml:"bell"`
}

// LogConfig configures the process log and the temperature CSV
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	CSV    string `yaml:"csv,omitempty"`
}

// AdminConfig configures the local admin RPC listener
type AdminConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// CryptoConfig selects the IV source
type CryptoConfig struct {
	IVSource string `yaml:"iv_source"`
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with firmware-compatible defaults
func (c *Config) ApplyDefaults() {
	if !ValidNodeID(c.Node.ID) {
		c.Node.ID = DefaultNodeID()
	}
	if c.Node.Probes == 0 {
		c.Node.Probes = 1
	}
	if c.WiFi.SSID == "" {
		c.WiFi.SSID = WiFiSSIDPrefix + c.Node.ID
	}
	if len(c.WiFi.Pass) < minWiFiPass {
		c.WiFi.Pass = DefaultWiFiPass
	}
	if len(c.Roster) == 0 {
		c.Roster = []string{c.Node.ID}
	}

	if c.Radio.Baud == 0 {
		c.Radio.Baud = 115200
	}
	if c.Radio.TxTimeout == 0 {
		c.Radio.TxTimeout = 2 * time.Second
	}
	if c.Sensor.Driver == "" {
		c.Sensor.Driver = "w1"
	}

	t := &c.Timing
	if t.Tick == 0 {
		t.Tick = 100 * time.Millisecond
	}
	if t.Read == 0 {
		t.Read = 5 * time.Second
	}
	if t.Broadcast == 0 {
		t.Broadcast = 30 * time.Second
	}
	if t.Jitter == 0 {
		t.Jitter = 5 * time.Second
	}
	if t.Monitor == 0 {
		t.Monitor = time.Second
	}
	if t.Freshness == 0 {
		t.Freshness = 300 * time.Second
	}
	if t.Log == 0 {
		t.Log = 15 * time.Minute
	}

	if c.Alarm.DayStartHour == nil {
		c.Alarm.DayStartHour = intPtr(8)
	}
	if c.Alarm.DayEndHour == nil {
		c.Alarm.DayEndHour = intPtr(20)
	}
	if c.Alarm.Silence == 0 {
		c.Alarm.Silence = time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Crypto.IVSource == "" {
		c.Crypto.IVSource = "fast"
	}
}

// Validate checks the config for consistency
func (c *Config) Validate() error {
	var errs []error

	if !ValidNodeID(c.Node.ID) {
		errs = append(errs, fmt.Errorf("node.id %q: %w", c.Node.ID, ErrInvalidNodeID))
	}
	if c.Node.Probes < 1 || c.Node.Probes > 3 {
		errs = append(errs, fmt.Errorf("node.probes must be 1-3, got %d", c.Node.Probes))
	}
	seen := make(map[string]bool, len(c.Roster))
	for _, id := range c.Roster {
		if !ValidNodeID(id) {
			errs = append(errs, fmt.Errorf("roster entry %q: %w", id, ErrInvalidNodeID))
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("roster entry %q is duplicated", id))
		}
		seen[id] = true
	}
	if c.Radio.Port != "" && c.Radio.URL != "" {
		errs = append(errs, errors.New("radio.port and radio.url are mutually exclusive"))
	}
	switch c.Sensor.Driver {
	case "w1", "sim":
	default:
		errs = append(errs, fmt.Errorf("sensor.driver must be w1 or sim, got %q", c.Sensor.Driver))
	}
	if c.Timing.Freshness <= 0 || c.Timing.Broadcast <= 0 || c.Timing.Tick <= 0 {
		errs = append(errs, errors.New("timing intervals must be positive"))
	}
	if c.Timing.Jitter < 0 {
		errs = append(errs, errors.New("timing.jitter must not be negative"))
	}
	a := c.Alarm
	if start, end := a.DayWindow(); start < 0 || start > 23 || end < 0 || end > 24 || start > end {
		errs = append(errs, fmt.Errorf("alarm day window [%d,%d) is invalid", start, end))
	}
	if a.Timezone != "" {
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("alarm.timezone: %w", err))
		}
	}
	switch c.Crypto.IVSource {
	case "fast", "secure":
	default:
		errs = append(errs, fmt.Errorf("crypto.iv_source must be fast or secure, got %q", c.Crypto.IVSource))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// DayWindow returns the audible hours [start, end). Equal hours keep alarms
// quiet all day.
func (a AlarmConfig) DayWindow() (start, end int) {
	start, end = 8, 20
	if a.DayStartHour != nil {
		start = *a.DayStartHour
	}
	if a.DayEndHour != nil {
		end = *a.DayEndHour
	}
	return start, end
}

func intPtr(v int) *int { return &v }

// Location returns the alarm time zone, local time when unset
func (c *Config) Location() *time.Location {
	if c.Alarm.Timezone != "" {
		if loc, err := time.LoadLocation(c.Alarm.Timezone); err == nil {
			return loc
		}
	}
	return time.Local
}

// Load reads, schema-checks and validates a config file.
// A missing file yields the defaults with exists == false.
func Load(path string) (cfg *Config, exists bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read config: %w", err)
	}

	if err := ValidateSchema(path, data); err != nil {
		return nil, true, err
	}

	cfg = &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, true, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}

// Save writes the config with 0600 permissions
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
