// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Atlas AtlasConfig `yaml:"atlas"`
}

type AtlasConfig struct {
	Device   DeviceConfig    `yaml:"device"`
	Simulate *SimulateConfig `yaml:"simulate"` // optional, replaces BLE
	Poll     PollConfig      `yaml:"poll"`
	Export   *ExportConfig   `yaml:"export"` // optional Modbus export
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	LocalName     string `yaml:"local_name"` // optional scan filter
	ScanTimeoutMs int    `yaml:"scan_timeout_ms"` // 0 selects the default
	OpTimeoutMs   int    `yaml:"op_timeout_ms"`

	// Reproduce the deployed client's Parameters byte 5 decode.
	FaithfulParamsDecode bool `yaml:"faithful_params_decode"`
}

func (d DeviceConfig) ScanTimeout() time.Duration {
	return time.Duration(d.ScanTimeoutMs) * time.Millisecond
}

func (d DeviceConfig) OpTimeout() time.Duration {
	return time.Duration(d.OpTimeoutMs) * time.Millisecond
}

// ---- SIMULATOR ----

type SimulateConfig struct {
	Generation string `yaml:"generation"` // 1.0 | 1.1 | 1.2 | 1.3
	Format     string `yaml:"format"`     // launcher | measure
	Switch     string `yaml:"switch"`     // none | slide | tactile
	Motors     int    `yaml:"motors"`     // 1 | 2
}

// simulated firmware version per generation
var simVersions = map[string]uint16{
	"1.0": 0x1000,
	"1.1": 0x1100,
	"1.2": 0x1205,
	"1.3": 0x1301,
}

// Version returns the firmware version simulated for Generation.
func (s SimulateConfig) Version() uint16 {
	return simVersions[s.Generation]
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"` // 0 disables polling
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// ---- EXPORT ----

type ExportConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	BaseSlot   uint16 `yaml:"base_slot"`
	DeviceName string `yaml:"device_name"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

func (e ExportConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// ---- SERVER ----

type ServerConfig struct {
	Addr string `yaml:"addr"` // empty disables the HTTP API
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads a YAML configuration file.
// Unknown keys are rejected. Load does not validate.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}
