// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/session"
)

// Client abstracts the device operation needed by the poller.
type Client interface {
	ReadStatistics(ctx context.Context) (protocol.Statistics, protocol.Histogram, error)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration // per cycle; 0 means none
}

// Poller is a dumb, clock-driven reader.
type Poller struct {
	cfg    Config
	client Client
}

// New creates a poller with immutable config.
func New(cfg Config, client Client) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("poller: timeout must be >= 0")
	}
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	return &Poller{cfg: cfg, client: client}, nil
}

// PollOnce performs exactly one poll cycle.
// All-or-nothing: a cycle without a complete histogram carries only Err.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	res := PollResult{At: time.Now()}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	stats, hist, err := p.client.ReadStatistics(ctx)
	if err != nil {
		// another operation owns the link; not a device fault
		if errors.Is(err, session.ErrBusy) {
			res.Skipped = true
		}
		res.Err = err
		return res
	}

	// Commit only if every read succeeded
	res.Statistics = stats
	res.Histogram = hist
	res.Summary = hist.Summary()
	return res
}
