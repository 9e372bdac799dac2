// internal/transport/ble/ble.go
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

// maxReadLen bounds a single characteristic read (ATT MTU ceiling).
const maxReadLen = 512

// Config tunes discovery.
type Config struct {
	// LocalName, when set, must match the advertised name exactly.
	LocalName string

	// ScanTimeout ends an unsuccessful scan with ErrNotFound.
	ScanTimeout time.Duration
}

// Transport is a BLE central on the host adapter.
type Transport struct {
	cfg     Config
	adapter *bluetooth.Adapter
	log     zerolog.Logger

	mu    sync.Mutex
	seen  map[string]bluetooth.Address
	links map[string]*conn
}

// New enables the default adapter.
func New(cfg Config, log zerolog.Logger) (*Transport, error) {
	t := &Transport{
		cfg:     cfg,
		adapter: bluetooth.DefaultAdapter,
		log:     log,
		seen:    make(map[string]bluetooth.Address),
		links:   make(map[string]*conn),
	}

	if err := t.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	t.adapter.SetConnectHandler(t.onConnectEvent)
	return t, nil
}

func toBLE(id uuid.UUID) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(id.String())
	if err != nil {
		// uuid.UUID always renders in canonical form
		panic(err)
	}
	return u
}

// Scan blocks until a matching advertisement is seen.
func (t *Transport) Scan(ctx context.Context, service uuid.UUID) (transport.DeviceHandle, error) {
	want := toBLE(service)

	var timeout <-chan time.Time
	if t.cfg.ScanTimeout > 0 {
		timer := time.NewTimer(t.cfg.ScanTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	found := make(chan bluetooth.ScanResult, 1)
	done := make(chan error, 1)

	go func() {
		done <- t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !r.HasServiceUUID(want) {
				return
			}
			if t.cfg.LocalName != "" && r.LocalName() != t.cfg.LocalName {
				return
			}
			select {
			case found <- r:
				_ = a.StopScan()
			default:
			}
		})
	}()

	stop := func() error {
		_ = t.adapter.StopScan()
		return <-done
	}

	select {
	case r := <-found:
		if err := <-done; err != nil {
			t.log.Debug().Err(err).Msg("scan ended with error after match")
		}
		h := transport.DeviceHandle{
			ID:   r.Address.String(),
			Name: r.LocalName(),
			RSSI: r.RSSI,
		}
		t.mu.Lock()
		t.seen[h.ID] = r.Address
		t.mu.Unlock()

		t.log.Debug().Str("device", h.ID).Int16("rssi", h.RSSI).Msg("advertisement matched")
		return h, nil

	case err := <-done:
		if err == nil {
			err = errors.New("scan stopped")
		}
		return transport.DeviceHandle{}, fmt.Errorf("%w: %v", transport.ErrNotFound, err)

	case <-timeout:
		_ = stop()
		return transport.DeviceHandle{}, fmt.Errorf("%w: no advertisement within %s", transport.ErrNotFound, t.cfg.ScanTimeout)

	case <-ctx.Done():
		_ = stop()
		return transport.DeviceHandle{}, fmt.Errorf("%w: %v", transport.ErrUserCancelled, ctx.Err())
	}
}

// Connect opens a link to a previously scanned device and discovers the
// ATLAS service.
func (t *Transport) Connect(ctx context.Context, h transport.DeviceHandle) (transport.Conn, error) {
	t.mu.Lock()
	addr, ok := t.seen[h.ID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: device %q was not scanned", transport.ErrConnectionFailed, h.ID)
	}

	type result struct {
		c   *conn
		err error
	}
	res := make(chan result, 1)

	go func() {
		dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			res <- result{err: err}
			return
		}
		c, err := discover(dev, h.ID)
		if err != nil {
			_ = dev.Disconnect()
			res <- result{err: err}
			return
		}
		res <- result{c: c}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", transport.ErrConnectionFailed, r.err)
		}
		t.mu.Lock()
		t.links[h.ID] = r.c
		t.mu.Unlock()

		t.log.Info().Str("device", h.ID).Int("characteristics", len(r.c.chars)).Msg("link up")
		return r.c, nil

	case <-ctx.Done():
		// release a link that completes after we gave up
		go func() {
			if r := <-res; r.c != nil {
				_ = r.c.Disconnect()
			}
		}()
		return nil, fmt.Errorf("%w: %v", transport.ErrConnectionFailed, ctx.Err())
	}
}

func discover(dev bluetooth.Device, id string) (*conn, error) {
	svcs, err := dev.DiscoverServices([]bluetooth.UUID{toBLE(protocol.ServiceID)})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, errors.New("ATLAS service not found")
	}

	// nil discovers every characteristic; absent ones are how the
	// generation is told apart
	chars, err := svcs[0].DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}

	c := &conn{
		id:    id,
		dev:   dev,
		chars: make(map[uuid.UUID]bluetooth.DeviceCharacteristic, len(chars)),
	}
	for _, ch := range chars {
		u, err := uuid.Parse(ch.UUID().String())
		if err != nil {
			continue
		}
		if _, known := protocol.EndpointByID(u); known {
			c.chars[u] = ch
		}
	}
	return c, nil
}

func (t *Transport) onConnectEvent(dev bluetooth.Device, connected bool) {
	if connected {
		return
	}
	id := dev.Address.String()

	t.mu.Lock()
	c := t.links[id]
	delete(t.links, id)
	t.mu.Unlock()

	if c != nil {
		t.log.Warn().Str("device", id).Msg("link lost")
		c.lost()
	}
}
