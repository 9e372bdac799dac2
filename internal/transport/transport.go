// internal/transport/transport.go
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Transport errors.
// Implementations wrap these so callers can test with errors.Is.
var (
	ErrNotFound         = errors.New("transport: device not found")
	ErrUserCancelled    = errors.New("transport: cancelled")
	ErrConnectionFailed = errors.New("transport: connection failed")
	ErrNotAvailable     = errors.New("transport: endpoint not available")
	ErrWriteFailed      = errors.New("transport: write failed")
	ErrDisconnected     = errors.New("transport: disconnected")
)

// DeviceHandle identifies a device found by Scan.
type DeviceHandle struct {
	ID   string `json:"id"` // transport-specific address
	Name string `json:"name,omitempty"`
	RSSI int16  `json:"rssi,omitempty"`
}

// Transport discovers and connects to a device exposing a service.
type Transport interface {
	Scan(ctx context.Context, service uuid.UUID) (DeviceHandle, error)
	Connect(ctx context.Context, h DeviceHandle) (Conn, error)
}

// Conn is one live connection.
//
// A Conn does not tolerate overlapping requests; callers serialize access.
type Conn interface {
	Disconnect() error

	// OnDisconnected registers fn to run when the link drops.
	// fn runs at most once per connection, from an arbitrary goroutine.
	OnDisconnected(fn func())

	// HasEndpoint is an existence check. Absence is not an error.
	HasEndpoint(ctx context.Context, id uuid.UUID) bool

	ReadEndpoint(ctx context.Context, id uuid.UUID) ([]byte, error)
	WriteEndpoint(ctx context.Context, id uuid.UUID, b []byte) error
}
