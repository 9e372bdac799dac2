// internal/protocol/endpoint.go
package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// ServiceID is the primary GATT service advertised by every generation.
var ServiceID = uuid.MustParse("32150000-9a86-43ac-b15f-200ed1b7a72a")

// Endpoint is a logical role of a device characteristic.
type Endpoint uint8

const (
	EndpointParameters Endpoint = iota + 1
	EndpointLegacyRomStore
	EndpointManualLaunch
	EndpointStatisticsHeader
	EndpointHistogramChunk
	EndpointClearStatistics
	EndpointSwitchToAutoMode
	EndpointDeviceInfo
)

// Endpoints lists every role in table order.
var Endpoints = []Endpoint{
	EndpointParameters,
	EndpointLegacyRomStore,
	EndpointManualLaunch,
	EndpointStatisticsHeader,
	EndpointHistogramChunk,
	EndpointClearStatistics,
	EndpointSwitchToAutoMode,
	EndpointDeviceInfo,
}

var endpointIDs = map[Endpoint]uuid.UUID{
	EndpointParameters:       uuid.MustParse("32150001-9a86-43ac-b15f-200ed1b7a72a"),
	EndpointLegacyRomStore:   uuid.MustParse("32150010-9a86-43ac-b15f-200ed1b7a72a"),
	EndpointManualLaunch:     uuid.MustParse("32150020-9a86-43ac-b15f-200ed1b7a72a"),
	EndpointStatisticsHeader: uuid.MustParse("32150030-9a86-43ac-b15f-200ed1b7a72a"),
	EndpointHistogramChunk:   uuid.MustParse("32150031-9a86-43ac-b15f-200ed1b7a72a"),
	EndpointClearStatistics:  uuid.MustParse("32150040-9a86-43ac-b15f-200ed1b7a72a"),
	EndpointSwitchToAutoMode: uuid.MustParse("32150050-9a86-43ac-b15f-200ed1b7a72a"),
	EndpointDeviceInfo:       uuid.MustParse("32150060-9a86-43ac-b15f-200ed1b7a72a"),
}

// ID returns the characteristic identifier of the role.
func (e Endpoint) ID() uuid.UUID {
	return endpointIDs[e]
}

// String returns a readable name of the role.
func (e Endpoint) String() string {
	switch e {
	case EndpointParameters:
		return "Parameters"
	case EndpointLegacyRomStore:
		return "LegacyRomStore"
	case EndpointManualLaunch:
		return "ManualLaunch"
	case EndpointStatisticsHeader:
		return "StatisticsHeader"
	case EndpointHistogramChunk:
		return "HistogramChunk"
	case EndpointClearStatistics:
		return "ClearStatistics"
	case EndpointSwitchToAutoMode:
		return "SwitchToAutoMode"
	case EndpointDeviceInfo:
		return "DeviceInfo"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(e))
	}
}

// EndpointByID maps a characteristic identifier back to its role.
func EndpointByID(id uuid.UUID) (Endpoint, bool) {
	for e, v := range endpointIDs {
		if v == id {
			return e, true
		}
	}
	return 0, false
}

// CommandPayload is the single byte written to trigger-style endpoints
// (LegacyRomStore, ManualLaunch, ClearStatistics, SwitchToAutoMode).
func CommandPayload() []byte {
	return []byte{commandTrigger}
}
