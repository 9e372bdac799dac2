// internal/writer/types.go
package writer

import "github.com/shark-minister/atlas-bey/internal/status"

// Plan is the fully-built export plan for one device.
type Plan struct {
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16 // register address of slot 0
	DeviceName string
}

// StatusWriter is the delivery-only contract for link health.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// TelemetryWriter delivers the device data region.
type TelemetryWriter interface {
	WriteTelemetry(t status.Telemetry) error
}

// endpointClient is the exact contract the writer uses.
// IMPORTANT: There must be NO other version of this interface anywhere.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}
