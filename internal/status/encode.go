// internal/status/encode.go
package status

import "math"

// Encode converts a Snapshot, Telemetry and device name into a full block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot, t Telemetry, name string) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	copy(regs[SlotHealthCode:], EncodeHealth(s))
	copy(regs[TelemetryStart:], EncodeTelemetry(t))
	copy(regs[SlotDeviceNameStart:], EncodeName(name))

	return regs
}

// EncodeHealth returns slots SlotHealthCode..SlotSecondsInError.
func EncodeHealth(s Snapshot) []uint16 {
	regs := make([]uint16, HealthSlots)
	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	return regs
}

// EncodeTelemetry returns TelemetrySlots registers starting at TelemetryStart.
func EncodeTelemetry(t Telemetry) []uint16 {
	block := make([]uint16, SlotsPerDevice)

	block[SlotGeneration] = t.Generation
	block[SlotFirmwareVersion] = t.Info.Version
	block[SlotFormat] = uint16(t.Info.Format)
	block[SlotSwitchType] = uint16(t.Info.SwitchType)
	block[SlotMotorCount] = uint16(t.Info.MotorCount)
	block[SlotMotor1MaxRPM] = uint16(t.Info.Motor1MaxRPM)
	block[SlotMotor2MaxRPM] = uint16(t.Info.Motor2MaxRPM)

	st := t.Statistics
	block[SlotTotalShots] = st.TotalShots
	block[SlotMaxPower] = st.MaxPower
	block[SlotMinPower] = st.MinPower
	block[SlotAvgPower] = st.AvgPower
	block[SlotStdDevPower] = st.StdDevPower
	block[SlotBinStart] = uint16(st.HistogramBinStart)
	block[SlotBinEnd] = uint16(st.HistogramBinEnd)

	block[SlotSummaryMean] = clampRound(t.Summary.Mean)
	block[SlotSummaryStdDev] = clampRound(t.Summary.StdDev)

	// histogram counts are index-aligned from the populated start bin
	if !t.Histogram.Empty() {
		start := int(st.HistogramBinStart)
		for i, c := range t.Histogram.Counts {
			bin := start + i
			if bin >= SlotHistogramSlots {
				break
			}
			if c > math.MaxUint16 {
				c = math.MaxUint16
			}
			block[SlotHistogramStart+bin] = uint16(c)
		}
	}

	return block[TelemetryStart : TelemetryStart+TelemetrySlots]
}

// EncodeName packs up to DeviceNameMaxChars ASCII characters, two per
// register, high byte first. Unused bytes are zero.
func EncodeName(name string) []uint16 {
	regs := make([]uint16, SlotDeviceNameSlots)

	if len(name) > DeviceNameMaxChars {
		name = name[:DeviceNameMaxChars]
	}
	for i := 0; i < len(name); i++ {
		if i%2 == 0 {
			regs[i/2] |= uint16(name[i]) << 8
		} else {
			regs[i/2] |= uint16(name[i])
		}
	}

	return regs
}

func clampRound(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(math.Round(v))
	}
}
