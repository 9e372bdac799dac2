// internal/protocol/deviceinfo.go
package protocol

import (
	"encoding/binary"
	"fmt"
)

// DeviceInfo is a generation-dependent snapshot of device capabilities.
type DeviceInfo struct {
	Version      uint16 `json:"version"`
	Format       uint8  `json:"format"`
	SwitchType   uint8  `json:"switchType"`
	MotorCount   uint8  `json:"motorCount"`
	Motor1MaxRPM uint8  `json:"motor1MaxRpm"` // wire unit: 100 rpm
	Motor2MaxRPM uint8  `json:"motor2MaxRpm"` // wire unit: 100 rpm
}

// DefaultDeviceInfo is the state before identification.
// Format defaults to measurement-only; Version is below every real firmware.
func DefaultDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Version:    VersionUnknown,
		Format:     FormatMeasurementOnly,
		SwitchType: SwitchSlide,
		MotorCount: 1,
	}
}

func (d DeviceInfo) Major() uint8    { return uint8(d.Version >> 12) }
func (d DeviceInfo) Minor() uint8    { return uint8((d.Version >> 8) & 0xF) }
func (d DeviceInfo) Revision() uint8 { return uint8(d.Version & 0xFF) }

// VersionString renders the version as major.minor.revision.
func (d DeviceInfo) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", d.Major(), d.Minor(), d.Revision())
}

// IsLauncherController reports whether the device drives electric launchers.
func (d DeviceInfo) IsLauncherController() bool {
	return d.Format == FormatLauncherController
}

// UsesSoftwareSwitch reports whether auto mode must be selected over the link.
func (d DeviceInfo) UsesSoftwareSwitch() bool {
	return d.SwitchType == SwitchNone || d.SwitchType == SwitchTactile
}

// DecodeDeviceInfo decodes the DeviceInfo endpoint (firmware 0x1200+).
//
// Layout:
//
//	[0-1] version (LE)
//	[2-3] condition (LE): format bits 0-1, switch bits 2-4, motors bits 3-4
//	[4]   motor 1 max rpm / 100
//	[5]   motor 2 max rpm / 100
//
// Below 0x1300 bit 2 of the condition only says "no switch"; from 0x1300 the
// three switch bits are copied verbatim.
func DecodeDeviceInfo(buf []byte) (DeviceInfo, error) {
	if len(buf) < DeviceInfoLen {
		return DeviceInfo{}, fmt.Errorf("%w: device info needs %d bytes, got %d",
			ErrMalformedPayload, DeviceInfoLen, len(buf))
	}

	info := DeviceInfo{}
	info.Version = binary.LittleEndian.Uint16(buf[0:2])
	cond := binary.LittleEndian.Uint16(buf[2:4])

	info.Format = uint8(cond & 0b11)

	if info.Version < Version130 {
		if cond&0b100 != 0 {
			info.SwitchType = SwitchNone
		} else {
			info.SwitchType = SwitchSlide
		}
	} else {
		info.SwitchType = uint8(cond & 0b11100)
	}

	info.MotorCount = uint8((cond&0b11000)>>3) + 1
	info.Motor1MaxRPM = buf[4]
	info.Motor2MaxRPM = buf[5]

	return info, nil
}

// DecodeDeviceInfoLegacy11x derives DeviceInfo from the first Parameters byte
// of a 1.1.x device, which has no DeviceInfo endpoint.
//
// The format flag sits at bit 1 here, not bits 0-1 as in DecodeDeviceInfo.
// Fields the byte does not carry keep their defaults.
func DecodeDeviceInfoLegacy11x(buf []byte) (DeviceInfo, error) {
	if len(buf) < 1 {
		return DeviceInfo{}, fmt.Errorf("%w: legacy device info needs 1 byte", ErrMalformedPayload)
	}

	b := buf[0]
	info := DefaultDeviceInfo()
	info.Version = Version110

	if b&0b10 != 0 {
		info.Format = FormatMeasurementOnly
	} else {
		info.Format = FormatLauncherController
	}

	if b&0b100 != 0 {
		info.SwitchType = SwitchNone
	} else {
		info.SwitchType = SwitchSlide
	}

	if b&0b10000 != 0 {
		info.MotorCount = 2
	} else {
		info.MotorCount = 1
	}

	return info, nil
}
