// internal/transport/ble/conn.go
package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"github.com/shark-minister/atlas-bey/internal/transport"
)

type conn struct {
	id    string
	dev   bluetooth.Device
	chars map[uuid.UUID]bluetooth.DeviceCharacteristic

	// serialises GATT requests on this link
	io sync.Mutex

	mu     sync.Mutex
	closed bool
	onDisc func()
	fired  bool
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) lost() {
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

func (c *conn) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *conn) Disconnect() error {
	err := c.dev.Disconnect()
	c.lost()
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", c.id, err)
	}
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
	if ctx.Err() != nil || !c.alive() {
		return false
	}
	_, ok := c.chars[id]
	return ok
}

func (c *conn) char(ctx context.Context, id uuid.UUID) (bluetooth.DeviceCharacteristic, error) {
	if err := ctx.Err(); err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}
	if !c.alive() {
		return bluetooth.DeviceCharacteristic{}, transport.ErrDisconnected
	}
	ch, ok := c.chars[id]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s", transport.ErrNotAvailable, id)
	}
	return ch, nil
}

// ReadEndpoint issues one GATT read. The underlying stack call does not
// take a context; cancellation is checked before it starts.
func (c *conn) ReadEndpoint(ctx context.Context, id uuid.UUID) ([]byte, error) {
	ch, err := c.char(ctx, id)
	if err != nil {
		return nil, err
	}

	c.io.Lock()
	defer c.io.Unlock()

	buf := make([]byte, maxReadLen)
	n, err := ch.Read(buf)
	if err != nil {
		if !c.alive() {
			return nil, transport.ErrDisconnected
		}
		return nil, fmt.Errorf("%w: read %s: %v", transport.ErrNotAvailable, id, err)
	}
	return buf[:n], nil
}

func (c *conn) WriteEndpoint(ctx context.Context, id uuid.UUID, b []byte) error {
	ch, err := c.char(ctx, id)
	if err != nil {
		return err
	}

	c.io.Lock()
	defer c.io.Unlock()

	if _, err := ch.Write(b); err != nil {
		if !c.alive() {
			return transport.ErrDisconnected
		}
		return fmt.Errorf("%w: write %s: %v", transport.ErrWriteFailed, id, err)
	}
	return nil
}
