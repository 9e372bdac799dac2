// cmd/atlasbey/daemon_test.go
package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shark-minister/atlas-bey/internal/poller"
	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/resolver"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/status"
)

type recorder struct {
	snaps []status.Snapshot
	tels  []status.Telemetry
}

func (r *recorder) WriteStatus(s status.Snapshot) error {
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recorder) WriteTelemetry(t status.Telemetry) error {
	r.tels = append(r.tels, t)
	return nil
}

func newExporter(r *recorder) *exporter {
	return &exporter{tracker: status.NewTracker(), status: r, telemetry: r, log: zerolog.Nop()}
}

func TestExporter_SuccessWritesTelemetryThenOK(t *testing.T) {
	r := &recorder{}
	e := newExporter(r)

	st := session.State{Generation: resolver.Gen120Plus, Info: protocol.DeviceInfo{Version: 0x1301}}
	e.handle(poller.PollResult{Statistics: protocol.Statistics{TotalShots: 4}}, st)

	require.Len(t, r.tels, 1)
	assert.Equal(t, uint16(resolver.Gen120Plus), r.tels[0].Generation)
	assert.Equal(t, uint16(0x1301), r.tels[0].Info.Version)
	assert.Equal(t, uint16(4), r.tels[0].Statistics.TotalShots)

	require.Len(t, r.snaps, 1)
	assert.Equal(t, status.HealthOK, r.snaps[0].Health)

	// unchanged health writes nothing more
	e.handle(poller.PollResult{}, st)
	assert.Len(t, r.snaps, 1)
	assert.Len(t, r.tels, 2)
}

func TestExporter_ErrorTicksAndRecovers(t *testing.T) {
	r := &recorder{}
	e := newExporter(r)

	err := fmt.Errorf("read statistics: %w", session.ErrIncompleteHistogram)
	e.handle(poller.PollResult{Err: err}, session.State{})

	require.Len(t, r.snaps, 1)
	assert.Equal(t, status.HealthError, r.snaps[0].Health)
	assert.Equal(t, uint16(6), r.snaps[0].LastErrorCode)
	assert.Empty(t, r.tels)

	e.tick()
	e.tick()
	assert.Equal(t, uint16(2), r.snaps[len(r.snaps)-1].SecondsInError)

	e.handle(poller.PollResult{}, session.State{})
	last := r.snaps[len(r.snaps)-1]
	assert.Equal(t, status.Snapshot{Health: status.HealthOK}, last)

	n := len(r.snaps)
	e.tick()
	assert.Len(t, r.snaps, n, "no tick while OK")
}

func TestExporter_SkippedAndDisconnected(t *testing.T) {
	r := &recorder{}
	e := newExporter(r)

	e.handle(poller.PollResult{Skipped: true, Err: session.ErrBusy}, session.State{})
	assert.Equal(t, status.HealthStale, r.snaps[len(r.snaps)-1].Health)

	e.handle(poller.PollResult{Err: fmt.Errorf("x: %w", session.ErrNotConnected)}, session.State{})
	assert.Equal(t, status.HealthDisabled, r.snaps[len(r.snaps)-1].Health)
}

func TestExporter_DisabledExportIsSilent(t *testing.T) {
	e := &exporter{tracker: status.NewTracker(), log: zerolog.Nop()}
	e.handle(poller.PollResult{Err: errors.New("boom")}, session.State{})
	e.tick()
	assert.Equal(t, status.HealthError, e.tracker.Snapshot().Health)
}
