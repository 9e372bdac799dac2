// internal/session/operations.go
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/resolver"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

// Operation names, used in errors, logs and events.
const (
	OpRequestDevice    = "request device"
	OpConnect          = "connect"
	OpDisconnect       = "disconnect"
	OpReadDeviceInfo   = "read device info"
	OpReadParameters   = "read parameters"
	OpWriteParameters  = "write parameters"
	OpReadStatistics   = "read statistics"
	OpClearStatistics  = "clear statistics"
	OpLaunchManually   = "launch"
	OpSwitchToAutoMode = "switch to auto mode"
)

// runExclusive runs fn while holding the guard.
// A held guard fails immediately with ErrBusy; nothing waits.
func (s *Session) runExclusive(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	release, ok := s.guard.TryAcquire()
	if !ok {
		s.log.Debug().Str("op", op).Msg("refused while busy")
		return fmt.Errorf("%s: %w", op, ErrBusy)
	}
	defer release()

	if s.closed() {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}

	if err := fn(ctx); err != nil {
		s.log.Warn().Str("op", op).Err(err).Msg("operation failed")
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug().Str("op", op).Msg("operation done")
	return nil
}

func transportFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}

// commit applies a record update if the connection it was read on is
// still the active one.
func (s *Session) commit(ctx context.Context, epoch uint64, op string, apply func(*State)) error {
	applied, err := s.post(ctx, event{kind: EventCommitted, op: op, epoch: epoch, apply: apply})
	if errors.Is(err, ErrClosed) {
		return err
	}
	if err != nil {
		return transportFailure(err)
	}
	if applied == 0 {
		return transportFailure(transport.ErrDisconnected)
	}
	return nil
}

func (s *Session) requireLink() (transport.Conn, uint64, resolver.Generation, error) {
	conn, epoch, gen, ok := s.link()
	if !ok {
		return nil, 0, resolver.Unidentified, ErrNotConnected
	}
	return conn, epoch, gen, nil
}

// ---- discovery & connection ----

// RequestDevice scans for a device advertising the ATLAS service and
// selects it for the next Connect.
func (s *Session) RequestDevice(ctx context.Context) (transport.DeviceHandle, error) {
	var h transport.DeviceHandle

	err := s.runExclusive(ctx, OpRequestDevice, func(ctx context.Context) error {
		var err error
		h, err = s.scan(ctx)
		return err
	})
	return h, err
}

func (s *Session) scan(ctx context.Context) (transport.DeviceHandle, error) {
	h, err := s.tr.Scan(ctx, protocol.ServiceID)
	if err != nil {
		return transport.DeviceHandle{}, transportFailure(err)
	}
	if _, err := s.post(ctx, event{kind: EventSelected, op: OpRequestDevice, handle: h}); err != nil {
		return transport.DeviceHandle{}, err
	}

	s.log.Info().Str("device", h.ID).Str("name", h.Name).Msg("device selected")
	return h, nil
}

// Connect connects to the selected device, scanning first if none was
// selected, and identifies its firmware generation.
//
// If identification fails the link stays up but the generation stays
// unidentified; ReadDeviceInfo retries it.
func (s *Session) Connect(ctx context.Context) (protocol.DeviceInfo, error) {
	var info protocol.DeviceInfo

	err := s.runExclusive(ctx, OpConnect, func(ctx context.Context) error {
		if old, epoch, _, ok := s.link(); ok {
			_ = s.teardown(ctx, old, epoch)
		}

		s.mu.RLock()
		h, selected := s.st.Device, s.st.DeviceSelected
		s.mu.RUnlock()

		if !selected {
			var err error
			if h, err = s.scan(ctx); err != nil {
				return err
			}
		}

		conn, err := s.tr.Connect(ctx, h)
		if err != nil {
			return transportFailure(err)
		}

		epoch, err := s.post(ctx, event{kind: EventConnected, op: OpConnect, conn: conn})
		if err != nil {
			_ = conn.Disconnect()
			return err
		}
		conn.OnDisconnected(func() {
			s.notify(event{kind: EventDisconnected, op: "link lost", epoch: epoch})
		})

		res, err := resolver.Resolve(ctx, conn)
		if err != nil {
			return transportFailure(err)
		}

		if err := s.commit(ctx, epoch, OpConnect, func(st *State) {
			st.Generation = res.Generation
			st.Info = res.Info
		}); err != nil {
			return err
		}

		s.log.Info().
			Str("device", h.ID).
			Str("generation", res.Generation.String()).
			Str("version", res.Info.VersionString()).
			Msg("device identified")

		info = res.Info
		return nil
	})
	return info, err
}

// Disconnect closes the active link and resets the session records.
func (s *Session) Disconnect(ctx context.Context) error {
	return s.runExclusive(ctx, OpDisconnect, func(ctx context.Context) error {
		conn, epoch, _, err := s.requireLink()
		if err != nil {
			return err
		}
		if err := s.teardown(ctx, conn, epoch); err != nil {
			return transportFailure(err)
		}
		return nil
	})
}

func (s *Session) teardown(ctx context.Context, conn transport.Conn, epoch uint64) error {
	err := conn.Disconnect()
	// the transport callback usually gets here first; the loop drops the
	// second notice by epoch
	_, _ = s.post(ctx, event{kind: EventDisconnected, op: OpDisconnect, epoch: epoch})
	return err
}

// ---- records ----

// ReadDeviceInfo re-reads DeviceInfo for the identified generation, or
// runs identification if it previously failed.
func (s *Session) ReadDeviceInfo(ctx context.Context) (protocol.DeviceInfo, error) {
	var info protocol.DeviceInfo

	err := s.runExclusive(ctx, OpReadDeviceInfo, func(ctx context.Context) error {
		conn, epoch, gen, err := s.requireLink()
		if err != nil {
			return err
		}

		if gen == resolver.Unidentified {
			res, err := resolver.Resolve(ctx, conn)
			if err != nil {
				return transportFailure(err)
			}
			gen, info = res.Generation, res.Info
		} else {
			info, err = resolver.Refresh(ctx, conn, gen)
			if err != nil {
				return transportFailure(err)
			}
		}

		return s.commit(ctx, epoch, OpReadDeviceInfo, func(st *State) {
			st.Generation = gen
			st.Info = info
		})
	})
	return info, err
}

// ReadParameters reads and decodes the parameter block.
func (s *Session) ReadParameters(ctx context.Context) (protocol.Parameters, error) {
	var p protocol.Parameters

	err := s.runExclusive(ctx, OpReadParameters, func(ctx context.Context) error {
		conn, epoch, gen, err := s.requireLink()
		if err != nil {
			return err
		}

		buf, err := conn.ReadEndpoint(ctx, protocol.EndpointParameters.ID())
		if err != nil {
			return transportFailure(err)
		}
		p, err = protocol.DecodeParameters(buf, s.mode)
		if err != nil {
			return transportFailure(err)
		}

		if s.mode == protocol.DecodeFaithful && buf[5] != buf[3] {
			s.log.Warn().
				Uint8("byte3", buf[3]).
				Uint8("byte5", buf[5]).
				Msg("faithful decode: launcher 2 flags applied to launcher 1")
		}

		// 1.1.x carries its capabilities in the same block
		var legacy *protocol.DeviceInfo
		if gen == resolver.Gen110 {
			info, err := protocol.DecodeDeviceInfoLegacy11x(buf)
			if err != nil {
				return transportFailure(err)
			}
			legacy = &info
		}

		return s.commit(ctx, epoch, OpReadParameters, func(st *State) {
			st.Parameters = p
			st.HasParameters = true
			if legacy != nil {
				st.Info = *legacy
			}
		})
	})
	return p, err
}

// WriteParameters encodes and writes p. On 1.0 firmware the block is then
// persisted with an explicit ROM store command; later firmware persists on
// the write itself.
func (s *Session) WriteParameters(ctx context.Context, p protocol.Parameters) error {
	return s.runExclusive(ctx, OpWriteParameters, func(ctx context.Context) error {
		conn, epoch, gen, err := s.requireLink()
		if err != nil {
			return err
		}

		buf, err := protocol.EncodeParameters(p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEncodeInvariantViolation, err)
		}

		if err := conn.WriteEndpoint(ctx, protocol.EndpointParameters.ID(), buf); err != nil {
			return transportFailure(err)
		}

		if gen == resolver.Gen100 {
			if err := conn.WriteEndpoint(ctx, protocol.EndpointLegacyRomStore.ID(), protocol.CommandPayload()); err != nil {
				return transportFailure(err)
			}
		}

		return s.commit(ctx, epoch, OpWriteParameters, func(st *State) {
			st.Parameters = p
			st.HasParameters = true
		})
	})
}

// ReadStatistics reads the statistics header followed by the three
// histogram chunks.
//
// A failed chunk read stops reconstruction: the header is still committed
// and returned with ErrIncompleteHistogram, and the cached histogram is
// left as it was.
func (s *Session) ReadStatistics(ctx context.Context) (protocol.Statistics, protocol.Histogram, error) {
	var (
		stats protocol.Statistics
		hist  protocol.Histogram
	)

	err := s.runExclusive(ctx, OpReadStatistics, func(ctx context.Context) error {
		conn, epoch, _, err := s.requireLink()
		if err != nil {
			return err
		}

		buf, err := conn.ReadEndpoint(ctx, protocol.EndpointStatisticsHeader.ID())
		if err != nil {
			return transportFailure(err)
		}
		stats, err = protocol.DecodeStatistics(buf)
		if err != nil {
			return transportFailure(err)
		}

		commitHeader := func() error {
			return s.commit(ctx, epoch, OpReadStatistics, func(st *State) {
				st.Statistics = stats
				st.HasStatistics = true
			})
		}

		chunks := make([][]byte, 0, protocol.HistogramChunkCount)
		for i := 0; i < protocol.HistogramChunkCount; i++ {
			chunk, err := conn.ReadEndpoint(ctx, protocol.EndpointHistogramChunk.ID())
			if err != nil {
				if cerr := commitHeader(); cerr != nil {
					return cerr
				}
				return fmt.Errorf("%w: chunk %d: %w", ErrIncompleteHistogram, i, err)
			}
			chunks = append(chunks, chunk)
		}

		h, err := protocol.DecodeHistogram(stats, chunks)
		if err != nil {
			if cerr := commitHeader(); cerr != nil {
				return cerr
			}
			return transportFailure(err)
		}

		if err := s.commit(ctx, epoch, OpReadStatistics, func(st *State) {
			st.Statistics = stats
			st.HasStatistics = true
			st.Histogram = h
		}); err != nil {
			return err
		}

		hist = h
		return nil
	})
	return stats, hist, err
}

// ---- commands ----

// ClearStatistics resets the device-side statistics.
func (s *Session) ClearStatistics(ctx context.Context) error {
	return s.command(ctx, OpClearStatistics, protocol.EndpointClearStatistics)
}

// LaunchManually fires the launcher configured for manual mode.
func (s *Session) LaunchManually(ctx context.Context) error {
	return s.command(ctx, OpLaunchManually, protocol.EndpointManualLaunch)
}

// SwitchToAutoMode selects auto mode on devices without a hardware switch.
func (s *Session) SwitchToAutoMode(ctx context.Context) error {
	return s.command(ctx, OpSwitchToAutoMode, protocol.EndpointSwitchToAutoMode)
}

func (s *Session) command(ctx context.Context, op string, e protocol.Endpoint) error {
	return s.runExclusive(ctx, op, func(ctx context.Context) error {
		conn, _, _, err := s.requireLink()
		if err != nil {
			return err
		}
		if err := conn.WriteEndpoint(ctx, e.ID(), protocol.CommandPayload()); err != nil {
			return transportFailure(err)
		}
		return nil
	})
}
