// internal/resolver/resolver_test.go
package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shark-minister/atlas-bey/internal/protocol"
)

// ---- fake link ----

type fakeLink struct {
	present map[protocol.Endpoint][]byte
	readErr error
	failOn  map[protocol.Endpoint]error

	lookups []protocol.Endpoint
	reads  []protocol.Endpoint
}

func newFake(present map[protocol.Endpoint][]byte) *fakeLink {
	return &fakeLink{present: present}
}

func (f *fakeLink) HasEndpoint(_ context.Context, id uuid.UUID) bool {
	e, _ := protocol.EndpointByID(id)
	f.lookups = append(f.lookups, e)
	_, ok := f.present[e]
	return ok
}

func (f *fakeLink) ReadEndpoint(_ context.Context, id uuid.UUID) ([]byte, error) {
	e, _ := protocol.EndpointByID(id)
	f.reads = append(f.reads, e)
	if f.readErr != nil {
		return nil, f.readErr
	}
	if err := f.failOn[e]; err != nil {
		return nil, err
	}
	b, ok := f.present[e]
	if !ok {
		return nil, errors.New("absent")
	}
	return b, nil
}

// ---- tests ----

func TestResolve_Gen120Plus(t *testing.T) {
	f := newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointDeviceInfo: {0x05, 0x13, 0b01000, 0x00, 249, 0},
		protocol.EndpointParameters: make([]byte, 7),
	})

	res, err := Resolve(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, Gen120Plus, res.Generation)
	assert.Equal(t, uint16(0x1305), res.Info.Version)
	assert.Equal(t, uint8(0b01000), res.Info.SwitchType)
	assert.Equal(t, []protocol.Endpoint{protocol.EndpointDeviceInfo}, f.reads)
}

func TestResolve_Gen100ChecksWithoutReading(t *testing.T) {
	f := newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointLegacyRomStore: nil,
		protocol.EndpointParameters:     make([]byte, 7),
	})

	res, err := Resolve(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, Gen100, res.Generation)
	assert.Equal(t, protocol.Version100, res.Info.Version)
	assert.Equal(t, protocol.FormatMeasurementOnly, res.Info.Format)
	assert.Empty(t, f.reads)
	assert.Equal(t, []protocol.Endpoint{protocol.EndpointDeviceInfo, protocol.EndpointLegacyRomStore}, f.lookups)
}

func TestResolve_Gen110UsesLegacyDecode(t *testing.T) {
	f := newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointParameters: {0b10100, 130, 0, 0, 100, 0, 100},
	})

	res, err := Resolve(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, Gen110, res.Generation)
	assert.Equal(t, protocol.Version110, res.Info.Version)
	assert.Equal(t, protocol.FormatLauncherController, res.Info.Format)
	assert.Equal(t, protocol.SwitchNone, res.Info.SwitchType)
	assert.Equal(t, uint8(2), res.Info.MotorCount)
	assert.Equal(t, []protocol.Endpoint{protocol.EndpointParameters}, f.reads)
}

func TestResolve_ReadFailureLeavesUnidentified(t *testing.T) {
	boom := errors.New("boom")

	f := newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointDeviceInfo: {0, 0x12, 0, 0, 0, 0},
	})
	f.readErr = boom

	res, err := Resolve(context.Background(), f)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Unidentified, res.Generation)

	f = newFake(map[protocol.Endpoint][]byte{})
	res, err = Resolve(context.Background(), f)
	require.Error(t, err)
	assert.Equal(t, Unidentified, res.Generation)
}

func TestResolve_UnreadableDeviceInfoFallsThrough(t *testing.T) {
	// listed but unreadable DeviceInfo, no ROM store: the legacy decode decides
	f := newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointDeviceInfo: {0x05, 0x13, 0, 0, 0, 0},
		protocol.EndpointParameters: {0b10010, 0, 0, 0, 0, 0, 0},
	})
	f.failOn = map[protocol.Endpoint]error{protocol.EndpointDeviceInfo: errors.New("gatt read refused")}

	res, err := Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Gen110, res.Generation)
	assert.Equal(t, uint8(2), res.Info.MotorCount)
	assert.Equal(t, []protocol.Endpoint{
		protocol.EndpointDeviceInfo,
		protocol.EndpointLegacyRomStore,
	}, f.lookups)

	// with the ROM store present the device is 1.0
	f = newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointDeviceInfo:     {0x05, 0x13, 0, 0, 0, 0},
		protocol.EndpointLegacyRomStore: nil,
	})
	f.failOn = map[protocol.Endpoint]error{protocol.EndpointDeviceInfo: errors.New("gatt read refused")}

	res, err = Resolve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Gen100, res.Generation)
}

func TestResolve_ShortDeviceInfo(t *testing.T) {
	f := newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointDeviceInfo: {0x00, 0x12},
	})

	_, err := Resolve(context.Background(), f)
	require.ErrorIs(t, err, protocol.ErrMalformedPayload)
}

func TestRefresh(t *testing.T) {
	f := newFake(map[protocol.Endpoint][]byte{
		protocol.EndpointDeviceInfo: {0x00, 0x12, 0b001, 0x00, 249, 0},
	})

	info, err := Refresh(context.Background(), f, Gen120Plus)
	require.NoError(t, err)
	assert.Equal(t, protocol.FormatMeasurementOnly, info.Format)

	info, err = Refresh(context.Background(), f, Gen100)
	require.NoError(t, err)
	assert.Equal(t, protocol.Version100, info.Version)

	_, err = Refresh(context.Background(), f, Unidentified)
	require.ErrorIs(t, err, ErrUnidentified)
}

func TestGenerationString(t *testing.T) {
	assert.Equal(t, "unidentified", Unidentified.String())
	assert.Equal(t, "1.0", Gen100.String())
	assert.Equal(t, "1.1", Gen110.String())
	assert.Equal(t, "1.2+", Gen120Plus.String())
}
