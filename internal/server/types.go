// internal/server/types.go
package server

import (
	"time"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

// APIError is the canonical error envelope returned by JSON endpoints.
type APIError struct {
	Error string `json:"error"`
	Code  uint16 `json:"code,omitempty"`
}

// HealthResponse is returned by /api/health to confirm the server is running.
type HealthResponse struct {
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanResponse is returned by /api/scan.
type ScanResponse struct {
	Device transport.DeviceHandle `json:"device"`
}

// DeviceInfoResponse is returned by /api/connect and /api/device-info.
type DeviceInfoResponse struct {
	Info       protocol.DeviceInfo `json:"deviceInfo"`
	Version    string              `json:"version"`
	Generation string              `json:"generation"`
}

// StatisticsResponse is returned by /api/statistics.
//
// On an incomplete histogram the header is still present and Error is set.
type StatisticsResponse struct {
	Statistics protocol.Statistics `json:"statistics"`
	Histogram  protocol.Histogram  `json:"histogram"`
	Summary    protocol.Summary    `json:"summary"`
	Error      string              `json:"error,omitempty"`
}

// OKResponse acknowledges commands.
type OKResponse struct {
	OK bool `json:"ok"`
}
