// cmd/atlasbey/app_test.go
package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shark-minister/atlas-bey/internal/config"
	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/transport/sim"
)

func TestApplySetting(t *testing.T) {
	p := protocol.DefaultParameters()

	require.NoError(t, applySetting(&p, "latency", "1500"))
	require.NoError(t, applySetting(&p, "l2.cw", "false"))
	require.NoError(t, applySetting(&p, "auto2", "true"))

	assert.Equal(t, uint32(1500), p.LaunchLatencyMs)
	assert.False(t, p.Launcher2.SpinClockwise)
	assert.True(t, p.AutoModeUsesSecondLauncher)

	assert.Error(t, applySetting(&p, "nope", "1"))
	assert.Error(t, applySetting(&p, "delay", "-2"))
	assert.Error(t, applySetting(&p, "l1.manual", "maybe"))
}

func newSimApp(t *testing.T) (*app, *sim.Device, *bytes.Buffer) {
	t.Helper()

	cfg := &config.Config{Atlas: config.AtlasConfig{Simulate: &config.SimulateConfig{Generation: "1.0"}}}
	config.Normalize(cfg)

	tr, dev, err := buildTransport(cfg.Atlas, zerolog.Nop())
	require.NoError(t, err)

	a := newApp(cfg.Atlas, dev, zerolog.Nop())
	var out bytes.Buffer
	a.out = &out
	a.sess = session.New(tr, session.WithObserver(a.observe))
	t.Cleanup(a.sess.Close)
	return a, dev, &out
}

func TestCommands_SetWriteOnLegacyDevice(t *testing.T) {
	a, dev, out := newSimApp(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, "connect", nil))
	assert.Contains(t, out.String(), "firmware 1.0.0 (generation 1.0)")

	require.NoError(t, a.run(ctx, "set", []string{"delay", "100"}))
	require.NoError(t, a.run(ctx, "write", nil))

	w := dev.Writes()
	require.Len(t, w, 2)
	assert.Equal(t, protocol.EndpointParameters, w[0].Endpoint)
	assert.Equal(t, protocol.EndpointLegacyRomStore, w[1].Endpoint)
	assert.Equal(t, byte(50), dev.Params()[2])
}

func TestCommands_Stats(t *testing.T) {
	a, _, out := newSimApp(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, "connect", nil))
	require.NoError(t, a.run(ctx, "shoot", []string{"8000"}))
	require.NoError(t, a.run(ctx, "stats", nil))

	assert.Contains(t, out.String(), "shots 1")
	assert.Contains(t, out.String(), "8000 # 1")
}

func TestCommands_UsageAndUnknown(t *testing.T) {
	a, _, _ := newSimApp(t)
	ctx := context.Background()

	assert.ErrorContains(t, a.run(ctx, "fly", nil), "unknown command")
	assert.ErrorContains(t, a.run(ctx, "shoot", nil), "usage: shoot <power>")
	assert.ErrorIs(t, a.run(ctx, "launch", nil), session.ErrNotConnected)
}

func TestOneShot_ConnectsOnDemand(t *testing.T) {
	a, dev, out := newSimApp(t)
	a.autoConnect = true
	ctx := context.Background()

	dev.Shoot(8000)
	require.NoError(t, a.run(ctx, "stats", nil))
	assert.Contains(t, out.String(), "shots 1")
	assert.True(t, a.sess.State().Connected)

	// without auto-connect the same command needs a link
	b, _, _ := newSimApp(t)
	assert.ErrorIs(t, b.run(ctx, "stats", nil), session.ErrNotConnected)
}

func TestSet_StartsFromDeviceBlock(t *testing.T) {
	a, dev, _ := newSimApp(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, "connect", nil))
	require.NoError(t, a.run(ctx, "set", []string{"delay", "100"}))
	require.NoError(t, a.run(ctx, "write", nil))

	// latency was never edited; the device's 1300 ms survives the write
	assert.Equal(t, byte(130), dev.Params()[1])
	assert.Equal(t, byte(50), dev.Params()[2])
}
