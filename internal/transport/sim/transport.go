// internal/transport/sim/transport.go
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

// Transport exposes a single simulated device.
type Transport struct {
	dev *Device
}

// NewTransport returns a transport that always finds dev.
// A nil dev makes every scan fail with ErrNotFound.
func NewTransport(dev *Device) *Transport {
	return &Transport{dev: dev}
}

// Device returns the simulated device.
func (t *Transport) Device() *Device { return t.dev }

func (t *Transport) Scan(ctx context.Context, service uuid.UUID) (transport.DeviceHandle, error) {
	if err := ctx.Err(); err != nil {
		return transport.DeviceHandle{}, fmt.Errorf("%w: %v", transport.ErrUserCancelled, err)
	}
	if t.dev == nil || service != protocol.ServiceID {
		return transport.DeviceHandle{}, fmt.Errorf("%w: service %s", transport.ErrNotFound, service)
	}

	return transport.DeviceHandle{
		ID:   "sim:" + t.dev.info.VersionString(),
		Name: t.dev.name,
		RSSI: -40,
	}, nil
}

func (t *Transport) Connect(ctx context.Context, h transport.DeviceHandle) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrConnectionFailed, err)
	}
	if t.dev == nil {
		return nil, fmt.Errorf("%w: no device behind %q", transport.ErrConnectionFailed, h.ID)
	}

	c := &conn{dev: t.dev}

	t.dev.mu.Lock()
	old := t.dev.conn
	t.dev.conn = c
	t.dev.mu.Unlock()

	// the device accepts one central at a time
	if old != nil {
		old.drop()
	}
	return c, nil
}

// conn is one simulated link.
type conn struct {
	dev *Device

	mu     sync.Mutex
	closed bool
	onDisc func()
	fired  bool
}

func (c *conn) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// drop closes the link and fires the disconnect callback once.
func (c *conn) drop() {
	c.mu.Lock()
	c.closed = true
	fn := c.onDisc
	fire := fn != nil && !c.fired
	if fire {
		c.fired = true
	}
	c.mu.Unlock()

	if fire {
		fn()
	}
}

func (c *conn) Disconnect() error {
	c.dev.mu.Lock()
	if c.dev.conn == c {
		c.dev.conn = nil
	}
	c.dev.mu.Unlock()

	c.drop()
	return nil
}

// OnDisconnected registers fn. A link that already dropped fires fn
// immediately, so a loss racing the registration is not missed.
func (c *conn) OnDisconnected(fn func()) {
	c.mu.Lock()
	c.onDisc = fn
	fire := c.closed && fn != nil && !c.fired
	if fire {
		c.fired = true
	}
	c.mu.Unlock()

	if fire {
		fn()
	}
}

func (c *conn) HasEndpoint(ctx context.Context, id uuid.UUID) bool {
	if !c.alive() || ctx.Err() != nil {
		return false
	}
	e, ok := protocol.EndpointByID(id)
	if !ok {
		return false
	}

	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return c.dev.has(e)
}

func (c *conn) ReadEndpoint(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	b, err := c.dev.read(id)
	if err != nil {
		return nil, err
	}
	// a drop while the request was in flight loses the response
	if !c.alive() {
		return nil, transport.ErrDisconnected
	}
	return b, nil
}

func (c *conn) WriteEndpoint(ctx context.Context, id uuid.UUID, b []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if err := c.dev.write(id, b); err != nil {
		return err
	}
	if !c.alive() {
		return transport.ErrDisconnected
	}
	return nil
}

func (c *conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.alive() {
		return transport.ErrDisconnected
	}
	return nil
}
