// internal/status/snapshot.go
package status

import "github.com/shark-minister/atlas-bey/internal/protocol"

// Snapshot represents exactly what the status writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}

// Telemetry is the device data region of the block.
type Telemetry struct {
	Generation uint16
	Info       protocol.DeviceInfo
	Statistics protocol.Statistics
	Histogram  protocol.Histogram
	Summary    protocol.Summary
}
