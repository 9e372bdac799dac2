// internal/writer/device_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shark-minister/atlas-bey/internal/status"
)

// DeviceWriter owns one exported device block.
// It is used from a single goroutine.
type DeviceWriter struct {
	plan Plan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
	tel      status.Telemetry
}

var (
	_ StatusWriter    = (*DeviceWriter)(nil)
	_ TelemetryWriter = (*DeviceWriter)(nil)
)

// NewDeviceWriter builds a writer for plan over cli.
func NewDeviceWriter(plan Plan, cli endpointClient) *DeviceWriter {
	return &DeviceWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last: status.Snapshot{
			Health: status.HealthUnknown,
		},
	}
}

// WriteStatus delivers a health snapshot.
// On any write failure, the next successful call will re-assert the full block.
func (w *DeviceWriter) WriteStatus(s status.Snapshot) error {
	if w.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", w.plan.Endpoint)
	}

	if w.needFull {
		return w.writeFull(s, w.tel)
	}

	var errs []string

	// Slot 0: health_code
	if w.last.Health != s.Health {
		if err := w.writeSlot(status.SlotHealthCode, s.Health); err != nil {
			errs = append(errs, fmt.Sprintf("slot0 health write failed: %v", err))
		} else {
			w.last.Health = s.Health
		}
	}

	// Slot 1: last_error_code
	if w.last.LastErrorCode != s.LastErrorCode {
		if err := w.writeSlot(status.SlotLastErrorCode, s.LastErrorCode); err != nil {
			errs = append(errs, fmt.Sprintf("slot1 last_error write failed: %v", err))
		} else {
			w.last.LastErrorCode = s.LastErrorCode
		}
	}

	// Slot 2: seconds_in_error
	if w.last.SecondsInError != s.SecondsInError {
		if err := w.writeSlot(status.SlotSecondsInError, s.SecondsInError); err != nil {
			errs = append(errs, fmt.Sprintf("slot2 seconds write failed: %v", err))
		} else {
			w.last.SecondsInError = s.SecondsInError
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt; re-assert on next success.
		w.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

// WriteTelemetry delivers the device data region (slots 3..79).
func (w *DeviceWriter) WriteTelemetry(t status.Telemetry) error {
	if w.cli == nil {
		return fmt.Errorf("telemetry writer: missing client for endpoint %s", w.plan.Endpoint)
	}

	if w.needFull {
		return w.writeFull(w.last, t)
	}

	if err := w.cli.WriteRegisters(
		w.plan.UnitID,
		w.plan.BaseSlot+status.TelemetryStart,
		status.EncodeTelemetry(t),
	); err != nil {
		w.needFull = true
		return fmt.Errorf("telemetry writer: write failed: %w", err)
	}

	w.tel = t
	return nil
}

func (w *DeviceWriter) writeFull(s status.Snapshot, t status.Telemetry) error {
	regs := status.Encode(s, t, w.plan.DeviceName)

	if err := w.cli.WriteRegisters(w.plan.UnitID, w.plan.BaseSlot, regs); err != nil {
		w.needFull = true
		return fmt.Errorf("device writer: full block write failed: %w", err)
	}

	w.needFull = false
	w.last = s
	w.tel = t
	return nil
}

func (w *DeviceWriter) writeSlot(slot uint16, v uint16) error {
	return w.cli.WriteRegisters(w.plan.UnitID, w.plan.BaseSlot+slot, []uint16{v})
}
