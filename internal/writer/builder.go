// internal/writer/builder.go
package writer

import (
	cfg "github.com/shark-minister/atlas-bey/internal/config"
	wmodbus "github.com/shark-minister/atlas-bey/internal/writer/modbus"
)

// BuildPlan converts the export config into a Plan.
// Assumes config has already passed validation and normalization.
// A nil export disables the writer.
func BuildPlan(e *cfg.ExportConfig) (Plan, bool) {
	if e == nil {
		return Plan{}, false
	}
	return Plan{
		Endpoint:   e.Endpoint,
		UnitID:     e.UnitID,
		BaseSlot:   e.BaseSlot,
		DeviceName: e.DeviceName,
	}, true
}

// Build connects to the export endpoint and returns a writer for plan.
// The returned closer releases the TCP connection.
func Build(plan Plan, e *cfg.ExportConfig) (*DeviceWriter, func() error, error) {
	c, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: plan.Endpoint,
		Timeout:  e.Timeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	return NewDeviceWriter(plan, c), c.Close, nil
}
