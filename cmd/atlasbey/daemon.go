// cmd/atlasbey/daemon.go
package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/shark-minister/atlas-bey/internal/config"
	"github.com/shark-minister/atlas-bey/internal/poller"
	"github.com/shark-minister/atlas-bey/internal/server"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/status"
	"github.com/shark-minister/atlas-bey/internal/transport"
	"github.com/shark-minister/atlas-bey/internal/writer"
)

const reconnectEvery = 5 * time.Second

// runDaemon polls, exports and serves until ctx ends.
func runDaemon(ctx context.Context, cfg config.AtlasConfig, tr transport.Transport, opts []session.Option, a *app, log zerolog.Logger) error {
	// hub first: the observer is fixed when the session starts
	a.hub = server.NewWSHub()
	a.sess = session.New(tr, opts...)
	defer a.sess.Close()

	// --------------------
	// Export (optional)
	// --------------------

	exp := &exporter{tracker: status.NewTracker(), hub: a.hub, log: log}

	if plan, ok := writer.BuildPlan(cfg.Export); ok {
		dw, closeWriter, err := writer.Build(plan, cfg.Export)
		if err != nil {
			return err
		}
		defer closeWriter()

		exp.status = dw
		exp.telemetry = dw
		log.Info().
			Str("endpoint", plan.Endpoint).
			Uint8("unit", plan.UnitID).
			Uint16("base", plan.BaseSlot).
			Msg("modbus export enabled")
	}

	// --------------------
	// Server (optional)
	// --------------------

	if addr := cfg.Server.Addr; addr != "" {
		srv := server.New(a.sess, a.hub, server.Config{
			OpTimeout:   cfg.Device.OpTimeout(),
			ScanTimeout: cfg.Device.ScanTimeout(),
		}, log.With().Str("component", "server").Logger())

		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				log.Error().Err(err).Msg("http api stopped")
			}
		}()
	}

	go keepConnected(ctx, a.sess, cfg.Device, log)

	// --------------------
	// Poller (optional)
	// --------------------

	p, err := poller.Build(cfg, a.sess)
	if err != nil {
		return err
	}

	out := make(chan poller.PollResult)
	if p != nil {
		go p.Run(ctx, out)
	} else {
		log.Info().Msg("polling disabled")
	}

	exp.run(ctx, out, a.sess.State)
	log.Info().Msg("daemon stopped")
	return nil
}

// keepConnected reconnects whenever the link is down.
func keepConnected(ctx context.Context, sess *session.Session, d config.DeviceConfig, log zerolog.Logger) {
	ticker := time.NewTicker(reconnectEvery)
	defer ticker.Stop()

	for {
		if !sess.State().Connected {
			cctx, cancel := context.WithTimeout(ctx, d.ScanTimeout()+d.OpTimeout())
			info, err := sess.Connect(cctx)
			cancel()
			switch {
			case err == nil:
				log.Info().Str("version", info.VersionString()).Msg("device connected")
			case errors.Is(err, session.ErrBusy):
			default:
				log.Warn().Err(err).Msg("connect failed")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// exporter folds poll results into the exported block.
// Runner-owned state; only run's goroutine touches it.
type exporter struct {
	tracker   *status.Tracker
	status    writer.StatusWriter    // nil when export is disabled
	telemetry writer.TelemetryWriter // nil when export is disabled
	hub       *server.WSHub
	log       zerolog.Logger
}

func (e *exporter) run(ctx context.Context, in <-chan poller.PollResult, state func() session.State) {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	e.writeStatus()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			e.handle(res, state())
			if e.hub != nil {
				e.hub.PublishPoll(res)
			}

		case <-secTicker.C:
			e.tick()
		}
	}
}

func (e *exporter) handle(res poller.PollResult, st session.State) {
	var changed bool

	switch {
	case res.Skipped:
		changed = e.tracker.MarkStale()

	case errors.Is(res.Err, session.ErrNotConnected):
		changed = e.tracker.MarkDisabled()

	case res.Err != nil:
		e.log.Warn().Err(res.Err).Msg("poll failed")
		changed = e.tracker.Observe(res.Err)

	default:
		if e.telemetry != nil {
			if err := e.telemetry.WriteTelemetry(status.Telemetry{
				Generation: uint16(st.Generation),
				Info:       st.Info,
				Statistics: res.Statistics,
				Histogram:  res.Histogram,
				Summary:    res.Summary,
			}); err != nil {
				e.log.Error().Err(err).Msg("telemetry write failed")
			}
		}
		changed = e.tracker.Observe(nil)
	}

	if changed {
		e.writeStatus()
	}
}

// tick advances seconds_in_error at 1 Hz while not OK.
func (e *exporter) tick() {
	if e.tracker.Tick() {
		e.writeStatus()
	}
}

func (e *exporter) writeStatus() {
	if e.status == nil {
		return
	}
	if err := e.status.WriteStatus(e.tracker.Snapshot()); err != nil {
		e.log.Error().Err(err).Msg("status write failed")
	}
}
