// cmd/atlasbey/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shark-minister/atlas-bey/internal/config"
	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/transport"
	"github.com/shark-minister/atlas-bey/internal/transport/ble"
	"github.com/shark-minister/atlas-bey/internal/transport/sim"
)

func main() {
	cfgPath := flag.String("config", "", "path to the YAML configuration (empty: BLE with defaults)")
	daemon := flag.Bool("daemon", false, "poll, export and serve until interrupted")
	flag.Parse()

	// --------------------
	// Load + validate config
	// --------------------

	cfg := &config.Config{}
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
			os.Exit(1)
		}
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		os.Exit(1)
	}
	config.Normalize(cfg)

	log := newLogger(cfg.Atlas.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Transport + session
	// --------------------

	tr, dev, err := buildTransport(cfg.Atlas, log)
	if err != nil {
		log.Fatal().Err(err).Msg("transport init failed")
	}

	a := newApp(cfg.Atlas, dev, log)

	opts := []session.Option{
		session.WithLogger(log.With().Str("component", "session").Logger()),
		session.WithObserver(a.observe),
	}
	if cfg.Atlas.Device.FaithfulParamsDecode {
		opts = append(opts, session.WithDecodeMode(protocol.DecodeFaithful))
	}

	if *daemon {
		if err := runDaemon(ctx, cfg.Atlas, tr, opts, a, log); err != nil {
			log.Fatal().Err(err).Msg("daemon failed")
		}
		return
	}

	a.sess = session.New(tr, opts...)
	defer a.sess.Close()

	if flag.NArg() > 0 {
		a.autoConnect = true
		if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	a.shell(ctx)
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if c.Pretty {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(level).With().Timestamp().Logger()
}

// buildTransport returns the simulator when configured, BLE otherwise.
// The simulated device is returned for the shoot command.
func buildTransport(c config.AtlasConfig, log zerolog.Logger) (transport.Transport, *sim.Device, error) {
	if s := c.Simulate; s != nil {
		dev := sim.New(s.Version(),
			sim.WithFormat(simFormat(s.Format)),
			sim.WithSwitchType(simSwitch(s.Switch)),
			sim.WithMotors(uint8(s.Motors), 249, 249),
		)
		log.Info().
			Str("generation", s.Generation).
			Str("version", dev.Info().VersionString()).
			Msg("using simulated device")
		return sim.NewTransport(dev), dev, nil
	}

	tr, err := ble.New(ble.Config{
		LocalName:   c.Device.LocalName,
		ScanTimeout: c.Device.ScanTimeout(),
	}, log.With().Str("component", "ble").Logger())
	if err != nil {
		return nil, nil, err
	}
	return tr, nil, nil
}

func simFormat(s string) uint8 {
	if s == "measure" {
		return protocol.FormatMeasurementOnly
	}
	return protocol.FormatLauncherController
}

func simSwitch(s string) uint8 {
	switch s {
	case "none":
		return protocol.SwitchNone
	case "tactile":
		return protocol.SwitchTactile
	default:
		return protocol.SwitchSlide
	}
}
