// internal/transport/sim/sim_test.go
package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

func connect(t *testing.T, dev *Device) transport.Conn {
	t.Helper()

	tr := NewTransport(dev)
	h, err := tr.Scan(context.Background(), protocol.ServiceID)
	require.NoError(t, err)

	c, err := tr.Connect(context.Background(), h)
	require.NoError(t, err)
	return c
}

func TestScan_NoDevice(t *testing.T) {
	_, err := NewTransport(nil).Scan(context.Background(), protocol.ServiceID)
	require.ErrorIs(t, err, transport.ErrNotFound)
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTransport(New(protocol.Version130)).Scan(ctx, protocol.ServiceID)
	require.ErrorIs(t, err, transport.ErrUserCancelled)
}

func TestEndpointPresencePerGeneration(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		version    uint16
		deviceInfo bool
		romStore   bool
	}{
		{protocol.Version100, false, true},
		{protocol.Version110, false, false},
		{0x1205, true, false},
		{0x1301, true, false},
	}

	for _, tc := range cases {
		c := connect(t, New(tc.version))
		assert.Equal(t, tc.deviceInfo, c.HasEndpoint(ctx, protocol.EndpointDeviceInfo.ID()), "0x%04x", tc.version)
		assert.Equal(t, tc.romStore, c.HasEndpoint(ctx, protocol.EndpointLegacyRomStore.ID()), "0x%04x", tc.version)
		assert.True(t, c.HasEndpoint(ctx, protocol.EndpointParameters.ID()))
	}
}

func TestDeviceInfoPayloadDecodes(t *testing.T) {
	ctx := context.Background()

	dev := New(0x1205, WithFormat(protocol.FormatMeasurementOnly), WithSwitchType(protocol.SwitchNone),
		WithMotors(2, 249, 180))
	c := connect(t, dev)

	buf, err := c.ReadEndpoint(ctx, protocol.EndpointDeviceInfo.ID())
	require.NoError(t, err)

	info, err := protocol.DecodeDeviceInfo(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1205), info.Version)
	assert.Equal(t, protocol.FormatMeasurementOnly, info.Format)
	assert.Equal(t, protocol.SwitchNone, info.SwitchType)
	assert.Equal(t, uint8(2), info.MotorCount)
	assert.Equal(t, uint8(180), info.Motor2MaxRPM)
}

func TestLegacyCapabilityBitsInParameters(t *testing.T) {
	ctx := context.Background()

	dev := New(protocol.Version110, WithFormat(protocol.FormatMeasurementOnly), WithMotors(2, 249, 249))
	c := connect(t, dev)

	buf, err := c.ReadEndpoint(ctx, protocol.EndpointParameters.ID())
	require.NoError(t, err)

	info, err := protocol.DecodeDeviceInfoLegacy11x(buf)
	require.NoError(t, err)
	assert.Equal(t, protocol.FormatMeasurementOnly, info.Format)
	assert.Equal(t, protocol.SwitchSlide, info.SwitchType)
	assert.Equal(t, uint8(2), info.MotorCount)

	// a client write cannot clear the capability bits
	require.NoError(t, c.WriteEndpoint(ctx, protocol.EndpointParameters.ID(), make([]byte, protocol.ParametersLen)))
	buf, err = c.ReadEndpoint(ctx, protocol.EndpointParameters.ID())
	require.NoError(t, err)
	assert.Equal(t, legacyFlagMeasureOnly|legacyFlagTwoMotors, buf[0]&legacyCapabilityMask)
}

func TestParameterRegulation(t *testing.T) {
	ctx := context.Background()
	c := connect(t, New(protocol.Version130))

	// power 25500 / 1000, latency 100 ms, delay 510 ms, auto mode on launcher 2
	raw := []byte{0b1, 10, 255, 0, 255, 0, 10}
	require.NoError(t, c.WriteEndpoint(ctx, protocol.EndpointParameters.ID(), raw))

	buf, err := c.ReadEndpoint(ctx, protocol.EndpointParameters.ID())
	require.NoError(t, err)

	p, err := protocol.DecodeParameters(buf, protocol.DecodeCorrected)
	require.NoError(t, err)
	assert.Equal(t, uint32(latencyLower), p.LaunchLatencyMs)
	assert.Equal(t, uint32(delayUpper), p.ShootDelayMs)
	assert.Equal(t, uint32(launcherPowerUpper), p.Launcher1.ShootPower)
	// single motor: launcher 2 is not regulated and auto mode stays on launcher 1
	assert.False(t, p.AutoModeUsesSecondLauncher)
	assert.Equal(t, uint32(1000), p.Launcher2.ShootPower)
}

func TestStatisticsAndChunks(t *testing.T) {
	ctx := context.Background()
	dev := New(protocol.Version130)
	c := connect(t, dev)

	for _, p := range []uint16{7600, 7700, 8000, 8400, 20000} {
		dev.Shoot(p)
	}

	hb, err := c.ReadEndpoint(ctx, protocol.EndpointStatisticsHeader.ID())
	require.NoError(t, err)
	stats, err := protocol.DecodeStatistics(hb)
	require.NoError(t, err)

	assert.Equal(t, uint16(5), stats.TotalShots)
	assert.Equal(t, uint16(20000), stats.MaxPower)
	assert.Equal(t, uint16(7600), stats.MinPower)
	assert.Equal(t, uint8(18), stats.HistogramBinStart)
	assert.Equal(t, uint8(22), stats.HistogramBinEnd)

	chunks := make([][]byte, 0, protocol.HistogramChunkCount)
	for i := 0; i < protocol.HistogramChunkCount; i++ {
		b, err := c.ReadEndpoint(ctx, protocol.EndpointHistogramChunk.ID())
		require.NoError(t, err)
		chunks = append(chunks, b)
	}

	h, err := protocol.DecodeHistogram(stats, chunks)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 0, 1, 0, 1}, h.Counts)
	assert.Equal(t, "8000", h.Labels[2])
}

func TestClearStatistics(t *testing.T) {
	ctx := context.Background()
	dev := New(protocol.Version130)
	c := connect(t, dev)

	dev.Shoot(9000)
	require.NoError(t, c.WriteEndpoint(ctx, protocol.EndpointClearStatistics.ID(), protocol.CommandPayload()))

	hb, err := c.ReadEndpoint(ctx, protocol.EndpointStatisticsHeader.ID())
	require.NoError(t, err)
	stats, err := protocol.DecodeStatistics(hb)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalShots)
	assert.Equal(t, uint8(protocol.HistogramBins-1), stats.HistogramBinStart)
	assert.Zero(t, stats.HistogramBinEnd)
}

func TestFailChunk(t *testing.T) {
	ctx := context.Background()
	dev := New(protocol.Version130)
	c := connect(t, dev)
	dev.FailChunk(1)

	_, err := c.ReadEndpoint(ctx, protocol.EndpointStatisticsHeader.ID())
	require.NoError(t, err)

	_, err = c.ReadEndpoint(ctx, protocol.EndpointHistogramChunk.ID())
	require.NoError(t, err)
	_, err = c.ReadEndpoint(ctx, protocol.EndpointHistogramChunk.ID())
	require.ErrorIs(t, err, transport.ErrNotAvailable)
}

func TestLegacyRomStoreGated(t *testing.T) {
	ctx := context.Background()

	c := connect(t, New(protocol.Version100))
	require.NoError(t, c.WriteEndpoint(ctx, protocol.EndpointLegacyRomStore.ID(), protocol.CommandPayload()))

	c = connect(t, New(protocol.Version110))
	err := c.WriteEndpoint(ctx, protocol.EndpointLegacyRomStore.ID(), protocol.CommandPayload())
	require.ErrorIs(t, err, transport.ErrNotAvailable)
}

func TestDropFiresOnceAndKillsLink(t *testing.T) {
	ctx := context.Background()
	dev := New(protocol.Version130)
	c := connect(t, dev)

	fired := 0
	c.OnDisconnected(func() { fired++ })

	dev.Drop()
	dev.Drop()
	require.NoError(t, c.Disconnect())

	assert.Equal(t, 1, fired)

	_, err := c.ReadEndpoint(ctx, protocol.EndpointParameters.ID())
	require.ErrorIs(t, err, transport.ErrDisconnected)
	assert.False(t, c.HasEndpoint(ctx, protocol.EndpointParameters.ID()))
}

func TestOnDisconnectedAfterDropFiresImmediately(t *testing.T) {
	dev := New(protocol.Version130)
	c := connect(t, dev)

	dev.Drop()

	fired := 0
	c.OnDisconnected(func() { fired++ })
	assert.Equal(t, 1, fired)

	dev.Drop()
	require.NoError(t, c.Disconnect())
	assert.Equal(t, 1, fired)
}

func TestCommandsAreRecorded(t *testing.T) {
	ctx := context.Background()
	dev := New(protocol.Version130)
	c := connect(t, dev)

	require.NoError(t, c.WriteEndpoint(ctx, protocol.EndpointSwitchToAutoMode.ID(), protocol.CommandPayload()))
	require.NoError(t, c.WriteEndpoint(ctx, protocol.EndpointManualLaunch.ID(), protocol.CommandPayload()))

	assert.True(t, dev.AutoMode())

	w := dev.Writes()
	require.Len(t, w, 2)
	assert.Equal(t, protocol.EndpointSwitchToAutoMode, w[0].Endpoint)
	assert.Equal(t, protocol.EndpointManualLaunch, w[1].Endpoint)

	// the manual launch shot at the default power
	hb, err := c.ReadEndpoint(ctx, protocol.EndpointStatisticsHeader.ID())
	require.NoError(t, err)
	stats, err := protocol.DecodeStatistics(hb)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), stats.TotalShots)
	assert.Equal(t, uint16(10000), stats.AvgPower)
}
