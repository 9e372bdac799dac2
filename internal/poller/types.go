// internal/poller/types.go
package poller

import (
	"time"

	"github.com/shark-minister/atlas-bey/internal/protocol"
)

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	At time.Time

	Statistics protocol.Statistics
	Histogram  protocol.Histogram
	Summary    protocol.Summary

	// Skipped means the link was busy with another operation.
	Skipped bool

	Err error // non-nil means the poll cycle failed
}
