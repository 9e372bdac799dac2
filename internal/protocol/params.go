// internal/protocol/params.go
package protocol

import (
	"fmt"
)

// ---- ELECTRIC LAUNCHER ----

const (
	launcherFlagManual  byte = 0x01
	launcherFlagCounter byte = 0x10
)

// ElectricLauncherConfig is the per-motor launcher configuration.
type ElectricLauncherConfig struct {
	ManualModeEnabled bool   `json:"manualModeEnabled"`
	SpinClockwise     bool   `json:"spinClockwise"`
	ShootPower        uint32 `json:"shootPower"` // rpm, wire unit 100
}

// DefaultElectricLauncherConfig returns the firmware defaults.
func DefaultElectricLauncherConfig() ElectricLauncherConfig {
	return ElectricLauncherConfig{
		ManualModeEnabled: false,
		SpinClockwise:     true,
		ShootPower:        10000,
	}
}

func (l ElectricLauncherConfig) flagByte() byte {
	var b byte
	if l.ManualModeEnabled {
		b |= launcherFlagManual
	}
	if !l.SpinClockwise {
		b |= launcherFlagCounter
	}
	return b
}

func (l *ElectricLauncherConfig) setFlags(b byte) {
	l.ManualModeEnabled = b&launcherFlagManual != 0
	l.SpinClockwise = b&launcherFlagCounter == 0
}

// ---- PARAMETERS ----

const (
	paramFlagSecondLauncher byte = 0b0001
	paramFlagMeasuredMain   byte = 0b1000
)

// Parameters is the device configuration block.
type Parameters struct {
	AutoModeUsesSecondLauncher  bool                   `json:"autoModeUsesSecondLauncher"`
	DisplayMeasuredPowerPrimary bool                   `json:"displayMeasuredPowerPrimary"`
	LaunchLatencyMs             uint32                 `json:"launchLatencyMs"` // wire unit 10 ms
	ShootDelayMs                uint32                 `json:"shootDelayMs"`    // wire unit 2 ms
	Launcher1                   ElectricLauncherConfig `json:"launcher1"`
	Launcher2                   ElectricLauncherConfig `json:"launcher2"`
}

// DefaultParameters returns the client-side defaults.
func DefaultParameters() Parameters {
	return Parameters{
		LaunchLatencyMs: 2000,
		ShootDelayMs:    0,
		Launcher1:       DefaultElectricLauncherConfig(),
		Launcher2:       DefaultElectricLauncherConfig(),
	}
}

// DecodeMode selects where byte 5 of the Parameters payload lands.
type DecodeMode uint8

const (
	// DecodeCorrected maps byte 5 to Launcher2's flags.
	DecodeCorrected DecodeMode = iota

	// DecodeFaithful reproduces the deployed client: byte 5 overwrites
	// Launcher1's flags and Launcher2's flags keep their defaults.
	DecodeFaithful
)

func (m DecodeMode) String() string {
	switch m {
	case DecodeCorrected:
		return "corrected"
	case DecodeFaithful:
		return "faithful"
	default:
		return fmt.Sprintf("DecodeMode(%d)", uint8(m))
	}
}

// DecodeParameters decodes the 7-byte Parameters payload.
//
// Layout:
//
//	[0] flags: bit0 auto mode uses launcher 2, bit3 measured power primary
//	[1] launch latency / 10 ms
//	[2] shoot delay / 2 ms
//	[3] launcher 1 flags: bit0 manual, bit4 counter-clockwise
//	[4] launcher 1 shoot power / 100 rpm
//	[5] launcher 2 flags
//	[6] launcher 2 shoot power / 100 rpm
func DecodeParameters(buf []byte, mode DecodeMode) (Parameters, error) {
	if len(buf) < ParametersLen {
		return Parameters{}, fmt.Errorf("%w: parameters need %d bytes, got %d",
			ErrMalformedPayload, ParametersLen, len(buf))
	}

	p := DefaultParameters()

	p.AutoModeUsesSecondLauncher = buf[0]&paramFlagSecondLauncher != 0
	p.DisplayMeasuredPowerPrimary = buf[0]&paramFlagMeasuredMain != 0

	p.LaunchLatencyMs = uint32(buf[1]) * LatencyUnitMs
	p.ShootDelayMs = uint32(buf[2]) * DelayUnitMs

	p.Launcher1.setFlags(buf[3])
	p.Launcher1.ShootPower = uint32(buf[4]) * PowerUnitRPM

	switch mode {
	case DecodeFaithful:
		p.Launcher1.setFlags(buf[5])
	default:
		p.Launcher2.setFlags(buf[5])
	}
	p.Launcher2.ShootPower = uint32(buf[6]) * PowerUnitRPM

	return p, nil
}

// EncodeParameters builds the 7-byte Parameters payload.
// Every scaled field must divide exactly by its wire unit and fit one byte.
func EncodeParameters(p Parameters) ([]byte, error) {
	latency, err := scale("launch latency", p.LaunchLatencyMs, LatencyUnitMs)
	if err != nil {
		return nil, err
	}
	delay, err := scale("shoot delay", p.ShootDelayMs, DelayUnitMs)
	if err != nil {
		return nil, err
	}
	power1, err := scale("launcher 1 shoot power", p.Launcher1.ShootPower, PowerUnitRPM)
	if err != nil {
		return nil, err
	}
	power2, err := scale("launcher 2 shoot power", p.Launcher2.ShootPower, PowerUnitRPM)
	if err != nil {
		return nil, err
	}

	var flags byte
	if p.AutoModeUsesSecondLauncher {
		flags |= paramFlagSecondLauncher
	}
	if p.DisplayMeasuredPowerPrimary {
		flags |= paramFlagMeasuredMain
	}

	return []byte{
		flags,
		latency,
		delay,
		p.Launcher1.flagByte(),
		power1,
		p.Launcher2.flagByte(),
		power2,
	}, nil
}

// scale divides v by unit, failing on a remainder or a result above 255.
func scale(field string, v uint32, unit uint32) (byte, error) {
	if v%unit != 0 {
		return 0, fmt.Errorf("%w: %s %d is not a multiple of %d",
			ErrEncodeInvariant, field, v, unit)
	}
	q := v / unit
	if q > 0xFF {
		return 0, fmt.Errorf("%w: %s %d exceeds %d",
			ErrEncodeInvariant, field, v, 0xFF*unit)
	}
	return byte(q), nil
}
