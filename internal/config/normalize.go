// internal/config/normalize.go
package config

const (
	defaultScanTimeoutMs   = 10000
	defaultOpTimeoutMs     = 5000
	defaultExportTimeoutMs = 2000
	defaultLogLevel        = "info"
	maxDeviceNameLen       = 16
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	a := &cfg.Atlas

	if a.Device.ScanTimeoutMs == 0 {
		a.Device.ScanTimeoutMs = defaultScanTimeoutMs
	}
	if a.Device.OpTimeoutMs == 0 {
		a.Device.OpTimeoutMs = defaultOpTimeoutMs
	}

	if s := a.Simulate; s != nil {
		if s.Format == "" {
			s.Format = "launcher"
		}
		if s.Switch == "" {
			s.Switch = "slide"
		}
		if s.Motors == 0 {
			s.Motors = 1
		}
	}

	if e := a.Export; e != nil {
		if e.UnitID == 0 {
			e.UnitID = 1
		}
		if e.TimeoutMs == 0 {
			e.TimeoutMs = defaultExportTimeoutMs
		}

		// ASCII already validated
		if len(e.DeviceName) > maxDeviceNameLen {
			e.DeviceName = e.DeviceName[:maxDeviceNameLen]
		}
	}

	if a.Log.Level == "" {
		a.Log.Level = defaultLogLevel
	}
}
