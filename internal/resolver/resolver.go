// internal/resolver/resolver.go
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shark-minister/atlas-bey/internal/protocol"
)

// Generation is a firmware protocol family.
type Generation uint8

const (
	Unidentified Generation = iota
	Gen100
	Gen110
	Gen120Plus
)

func (g Generation) String() string {
	switch g {
	case Unidentified:
		return "unidentified"
	case Gen100:
		return "1.0"
	case Gen110:
		return "1.1"
	case Gen120Plus:
		return "1.2+"
	default:
		return fmt.Sprintf("Generation(%d)", uint8(g))
	}
}

// MarshalText renders the generation by name.
func (g Generation) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// ErrUnidentified is returned when an operation needs an identified device.
var ErrUnidentified = errors.New("resolver: generation unidentified")

// Link is the part of a connection the resolver needs.
type Link interface {
	HasEndpoint(ctx context.Context, id uuid.UUID) bool
	ReadEndpoint(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// Result is the outcome of a resolution.
type Result struct {
	Generation Generation
	Info       protocol.DeviceInfo
}

// Resolve infers the generation of a freshly connected device from the
// endpoints it exposes and decodes its DeviceInfo accordingly.
//
// The order matters: only 1.2+ has DeviceInfo, only 1.0 has the ROM store,
// and 1.1 is whatever remains. A DeviceInfo endpoint that is listed but
// cannot be read does not identify 1.2+; resolution continues with the
// older checks. A DeviceInfo that reads but does not decode is an error.
func Resolve(ctx context.Context, p Link) (Result, error) {
	if p.HasEndpoint(ctx, protocol.EndpointDeviceInfo.ID()) {
		buf, err := p.ReadEndpoint(ctx, protocol.EndpointDeviceInfo.ID())
		if err == nil {
			info, err := protocol.DecodeDeviceInfo(buf)
			if err != nil {
				return Result{}, err
			}
			return Result{Generation: Gen120Plus, Info: info}, nil
		}
	}

	// existence alone identifies 1.0
	if p.HasEndpoint(ctx, protocol.EndpointLegacyRomStore.ID()) {
		return Result{Generation: Gen100, Info: info100()}, nil
	}

	info, err := readInfo(ctx, p, Gen110)
	if err != nil {
		return Result{}, err
	}
	return Result{Generation: Gen110, Info: info}, nil
}

// Refresh re-reads DeviceInfo for an identified generation.
func Refresh(ctx context.Context, p Link, g Generation) (protocol.DeviceInfo, error) {
	if g == Unidentified {
		return protocol.DeviceInfo{}, ErrUnidentified
	}
	return readInfo(ctx, p, g)
}

func readInfo(ctx context.Context, p Link, g Generation) (protocol.DeviceInfo, error) {
	switch g {
	case Gen120Plus:
		buf, err := p.ReadEndpoint(ctx, protocol.EndpointDeviceInfo.ID())
		if err != nil {
			return protocol.DeviceInfo{}, fmt.Errorf("read %s: %w", protocol.EndpointDeviceInfo, err)
		}
		return protocol.DecodeDeviceInfo(buf)

	case Gen110:
		buf, err := p.ReadEndpoint(ctx, protocol.EndpointParameters.ID())
		if err != nil {
			return protocol.DeviceInfo{}, fmt.Errorf("read %s: %w", protocol.EndpointParameters, err)
		}
		return protocol.DecodeDeviceInfoLegacy11x(buf)

	case Gen100:
		return info100(), nil

	default:
		return protocol.DeviceInfo{}, fmt.Errorf("%w: %s", ErrUnidentified, g)
	}
}

// 1.0 exposes nothing about itself.
func info100() protocol.DeviceInfo {
	info := protocol.DefaultDeviceInfo()
	info.Version = protocol.Version100
	return info
}
