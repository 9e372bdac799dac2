// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/shark-minister/atlas-bey/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	a := cfg.Atlas

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	if a.Device.ScanTimeoutMs < 0 {
		return fmt.Errorf("device: scan_timeout_ms must be >= 0 (got %d)", a.Device.ScanTimeoutMs)
	}
	if a.Device.OpTimeoutMs < 0 {
		return fmt.Errorf("device: op_timeout_ms must be >= 0 (got %d)", a.Device.OpTimeoutMs)
	}

	// ------------------------------------------------------------
	// SIMULATOR (OPT-IN)
	// ------------------------------------------------------------

	if s := a.Simulate; s != nil {
		if _, ok := simVersions[s.Generation]; !ok {
			return fmt.Errorf("simulate: generation %q is not one of 1.0, 1.1, 1.2, 1.3", s.Generation)
		}
		switch s.Format {
		case "", "launcher", "measure":
		default:
			return fmt.Errorf("simulate: format %q must be launcher or measure", s.Format)
		}
		switch s.Switch {
		case "", "none", "slide", "tactile":
		default:
			return fmt.Errorf("simulate: switch %q must be none, slide or tactile", s.Switch)
		}
		if s.Motors < 0 || s.Motors > 2 {
			return fmt.Errorf("simulate: motors must be 1 or 2 (got %d)", s.Motors)
		}
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if a.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll: interval_ms must be >= 0 (got %d)", a.Poll.IntervalMs)
	}

	// ------------------------------------------------------------
	// EXPORT (OPT-IN)
	// ------------------------------------------------------------

	if e := a.Export; e != nil {
		if e.Endpoint == "" {
			return errors.New("export: endpoint is required")
		}
		if _, _, err := net.SplitHostPort(e.Endpoint); err != nil {
			return fmt.Errorf("export: endpoint %q: %v", e.Endpoint, err)
		}
		if e.TimeoutMs < 0 {
			return fmt.Errorf("export: timeout_ms must be >= 0 (got %d)", e.TimeoutMs)
		}

		// whole block must be addressable
		if int(e.BaseSlot)+status.SlotsPerDevice > 0x10000 {
			return fmt.Errorf(
				"export: base_slot %d leaves no room for %d slots",
				e.BaseSlot,
				status.SlotsPerDevice,
			)
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(e.DeviceName); i++ {
			if e.DeviceName[i] > 0x7F {
				return errors.New("export: device_name must contain ASCII characters only")
			}
		}
	}

	// ------------------------------------------------------------
	// SERVER (OPT-IN)
	// ------------------------------------------------------------

	if a.Server.Addr != "" {
		if _, _, err := net.SplitHostPort(a.Server.Addr); err != nil {
			return fmt.Errorf("server: addr %q: %v", a.Server.Addr, err)
		}
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if a.Log.Level != "" {
		if _, err := zerolog.ParseLevel(a.Log.Level); err != nil {
			return fmt.Errorf("log: %v", err)
		}
	}

	return nil
}
