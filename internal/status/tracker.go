// internal/status/tracker.go
package status

import "errors"

// Tracker folds poll outcomes into a Snapshot.
// It is owned by a single goroutine; it has no locking.
type Tracker struct {
	snap Snapshot
}

// NewTracker starts in HealthUnknown.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe applies one poll outcome and reports whether the snapshot changed.
// seconds_in_error is not touched here; it advances on Tick only.
func (t *Tracker) Observe(err error) bool {
	if err == nil {
		return t.set(HealthOK, 0, 0)
	}
	return t.set(HealthError, ErrorCode(err), t.snap.SecondsInError)
}

// MarkStale records a skipped cycle. The last error code is kept.
func (t *Tracker) MarkStale() bool {
	if t.snap.Health == HealthError {
		return false
	}
	return t.set(HealthStale, t.snap.LastErrorCode, t.snap.SecondsInError)
}

// MarkDisabled records that no device is connected.
func (t *Tracker) MarkDisabled() bool {
	return t.set(HealthDisabled, t.snap.LastErrorCode, t.snap.SecondsInError)
}

// Tick advances seconds_in_error while not OK. Call at 1 Hz.
func (t *Tracker) Tick() bool {
	if t.snap.Health == HealthOK || t.snap.Health == HealthUnknown {
		return false
	}
	if t.snap.SecondsInError == 65535 {
		return false
	}
	t.snap.SecondsInError++
	return true
}

func (t *Tracker) set(health, code, seconds uint16) bool {
	next := Snapshot{Health: health, LastErrorCode: code, SecondsInError: seconds}
	if next == t.snap {
		return false
	}
	t.snap = next
	return true
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return 1
}
