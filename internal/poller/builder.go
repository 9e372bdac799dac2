// internal/poller/builder.go
package poller

import (
	cfg "github.com/shark-minister/atlas-bey/internal/config"
)

// Build constructs a Poller from configuration.
// It returns nil without error when polling is disabled.
func Build(c cfg.AtlasConfig, client Client) (*Poller, error) {
	if c.Poll.IntervalMs == 0 {
		return nil, nil
	}

	return New(
		Config{
			Interval: c.Poll.Interval(),
			Timeout:  c.Device.OpTimeout(),
		},
		client,
	)
}
