// cmd/atlasbey/app.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shark-minister/atlas-bey/internal/config"
	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/server"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/transport/sim"
)

// app holds what the commands act on.
type app struct {
	cfg  config.AtlasConfig
	dev  *sim.Device // nil on BLE
	log  zerolog.Logger
	out  io.Writer
	sess *session.Session
	hub  *server.WSHub

	// edited by "set", sent by "write"
	pending *protocol.Parameters

	// connect before commands that need a link (one-shot mode)
	autoConnect bool
}

func newApp(cfg config.AtlasConfig, dev *sim.Device, log zerolog.Logger) *app {
	return &app{cfg: cfg, dev: dev, log: log, out: os.Stdout}
}

// observe is registered on the session before it starts.
func (a *app) observe(ev session.Event) {
	a.log.Debug().
		Str("event", ev.Kind.String()).
		Str("op", ev.Op).
		Bool("connected", ev.State.Connected).
		Str("generation", ev.State.Generation.String()).
		Msg("session event")

	if a.hub != nil {
		a.hub.Observe(ev)
	}
}

type command struct {
	Name        string
	Usage       string
	Description string
	MinArgs     int
	MaxArgs     int
	Handler     func(a *app, ctx context.Context, args []string) error
	NeedsLink   bool
}

var cliCommands = map[string]command{}

func init() {
	for _, c := range []command{
		{"scan", "scan", "find an ATLAS device and select it", 0, 0, (*app).cmdScan, false},
		{"connect", "connect", "connect and identify the firmware generation", 0, 0, (*app).cmdConnect, false},
		{"disconnect", "disconnect", "close the link", 0, 0, (*app).cmdDisconnect, false},
		{"info", "info", "read device info", 0, 0, (*app).cmdInfo, true},
		{"params", "params", "read the parameter block", 0, 0, (*app).cmdParams, true},
		{"set", "set <field> <value>", "edit a pending parameter (see 'set' without args)", 0, 2, (*app).cmdSet, false},
		{"write", "write", "write the pending parameters", 0, 0, (*app).cmdWrite, true},
		{"stats", "stats", "read statistics and the histogram", 0, 0, (*app).cmdStats, true},
		{"clear", "clear", "clear device statistics", 0, 0, (*app).cmdClear, true},
		{"launch", "launch", "fire the manual launcher", 0, 0, (*app).cmdLaunch, true},
		{"auto", "auto", "switch to auto mode", 0, 0, (*app).cmdAuto, true},
		{"state", "state", "print the session state as JSON", 0, 0, (*app).cmdState, false},
		{"shoot", "shoot <power>", "record a shot on the simulated device", 1, 1, (*app).cmdShoot, false},
	} {
		cliCommands[c.Name] = c
	}
}

func commandNames() []string {
	names := make([]string, 0, len(cliCommands)+2)
	for name := range cliCommands {
		names = append(names, name)
	}
	names = append(names, "help", "quit")
	sort.Strings(names)
	return names
}

func (a *app) run(ctx context.Context, name string, args []string) error {
	cmd, ok := cliCommands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if len(args) < cmd.MinArgs || len(args) > cmd.MaxArgs {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	if cmd.NeedsLink && a.autoConnect && !a.sess.State().Connected {
		if err := a.connect(ctx); err != nil {
			return err
		}
	}
	return cmd.Handler(a, ctx, args)
}

func (a *app) printHelp() {
	for _, name := range commandNames() {
		c, ok := cliCommands[name]
		if !ok {
			continue
		}
		fmt.Fprintf(a.out, "  %-22s %s\n", c.Usage, c.Description)
	}
	fmt.Fprintf(a.out, "  %-22s %s\n", "quit", "leave the shell")
}

func (a *app) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.Device.OpTimeout())
}

func (a *app) linkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.Device.ScanTimeout()+a.cfg.Device.OpTimeout())
}

// ---- handlers ----

func (a *app) cmdScan(ctx context.Context, _ []string) error {
	ctx, cancel := a.linkContext(ctx)
	defer cancel()

	h, err := a.sess.RequestDevice(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "selected %s %q (rssi %d)\n", h.ID, h.Name, h.RSSI)
	return nil
}

func (a *app) cmdConnect(ctx context.Context, _ []string) error {
	ctx, cancel := a.linkContext(ctx)
	defer cancel()

	info, err := a.sess.Connect(ctx)
	if err != nil {
		return err
	}
	a.printInfo(info)
	return nil
}

// connect links up quietly before a one-shot command.
func (a *app) connect(ctx context.Context) error {
	ctx, cancel := a.linkContext(ctx)
	defer cancel()

	info, err := a.sess.Connect(ctx)
	if err != nil {
		return err
	}
	a.log.Debug().Str("version", info.VersionString()).Msg("connected for one-shot command")
	return nil
}

func (a *app) cmdDisconnect(ctx context.Context, _ []string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.sess.Disconnect(ctx)
}

func (a *app) cmdInfo(ctx context.Context, _ []string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	info, err := a.sess.ReadDeviceInfo(ctx)
	if err != nil {
		return err
	}
	a.printInfo(info)
	return nil
}

func (a *app) printInfo(info protocol.DeviceInfo) {
	format := "measurement only"
	if info.IsLauncherController() {
		format = "launcher controller"
	}
	fmt.Fprintf(a.out, "firmware %s (generation %s)\n", info.VersionString(), a.sess.State().Generation)
	fmt.Fprintf(a.out, "  format      %s\n", format)
	fmt.Fprintf(a.out, "  switch      %d (software switch: %t)\n", info.SwitchType, info.UsesSoftwareSwitch())
	fmt.Fprintf(a.out, "  motors      %d (max %d / %d rpm)\n", info.MotorCount,
		int(info.Motor1MaxRPM)*100, int(info.Motor2MaxRPM)*100)
}

func (a *app) cmdParams(ctx context.Context, _ []string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	p, err := a.sess.ReadParameters(ctx)
	if err != nil {
		return err
	}
	a.pending = &p
	a.printParams(p)
	return nil
}

func (a *app) printParams(p protocol.Parameters) {
	fmt.Fprintf(a.out, "  latency     %d ms\n", p.LaunchLatencyMs)
	fmt.Fprintf(a.out, "  delay       %d ms\n", p.ShootDelayMs)
	fmt.Fprintf(a.out, "  auto2       %t\n", p.AutoModeUsesSecondLauncher)
	fmt.Fprintf(a.out, "  display     %t\n", p.DisplayMeasuredPowerPrimary)
	for i, l := range []protocol.ElectricLauncherConfig{p.Launcher1, p.Launcher2} {
		fmt.Fprintf(a.out, "  l%d          manual=%t cw=%t power=%d\n", i+1, l.ManualModeEnabled, l.SpinClockwise, l.ShootPower)
	}
}

// cmdSet edits a copy of the device's block. Without a cached block it
// reads one first, so untouched fields keep the device's values.
func (a *app) cmdSet(ctx context.Context, args []string) error {
	if len(args) != 2 {
		fmt.Fprintf(a.out, "fields: %s\n", strings.Join(settingNames(), ", "))
		return nil
	}
	if a.pending == nil {
		st := a.sess.State()
		p := st.Parameters
		if !st.HasParameters {
			rctx, cancel := a.opContext(ctx)
			var err error
			p, err = a.sess.ReadParameters(rctx)
			cancel()
			if err != nil {
				return fmt.Errorf("read parameters before editing: %w", err)
			}
		}
		a.pending = &p
	}
	return applySetting(a.pending, args[0], args[1])
}

func (a *app) cmdWrite(ctx context.Context, _ []string) error {
	if a.pending == nil {
		return errors.New("nothing to write; use 'params' or 'set' first")
	}
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	if err := a.sess.WriteParameters(ctx, *a.pending); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "parameters written")
	return nil
}

func (a *app) cmdStats(ctx context.Context, _ []string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()

	st, h, err := a.sess.ReadStatistics(ctx)
	if err != nil && !errors.Is(err, session.ErrIncompleteHistogram) {
		return err
	}

	fmt.Fprintf(a.out, "shots %d  max %d  min %d  avg %d  std %d\n",
		st.TotalShots, st.MaxPower, st.MinPower, st.AvgPower, st.StdDevPower)

	if err != nil {
		// header only
		return err
	}

	for i, c := range h.Counts {
		if c == 0 {
			continue
		}
		fmt.Fprintf(a.out, "  %6s %s %d\n", h.Labels[i], strings.Repeat("#", min(int(c), 40)), c)
	}
	if sum := h.Summary(); sum.Shots > 0 {
		fmt.Fprintf(a.out, "histogram: %d shots, mean %.0f, std %.0f\n", sum.Shots, sum.Mean, sum.StdDev)
	}
	return nil
}

func (a *app) cmdClear(ctx context.Context, _ []string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.sess.ClearStatistics(ctx)
}

func (a *app) cmdLaunch(ctx context.Context, _ []string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.sess.LaunchManually(ctx)
}

func (a *app) cmdAuto(ctx context.Context, _ []string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.sess.SwitchToAutoMode(ctx)
}

func (a *app) cmdState(_ context.Context, _ []string) error {
	b, err := json.MarshalIndent(a.sess.State(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}

func (a *app) cmdShoot(_ context.Context, args []string) error {
	if a.dev == nil {
		return errors.New("shoot needs a simulated device")
	}
	v, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("power: %w", err)
	}
	a.dev.Shoot(uint16(v))
	return nil
}

// ---- parameter editing ----

var settings = map[string]func(p *protocol.Parameters, v string) error{
	"latency":   uintSetting(func(p *protocol.Parameters) *uint32 { return &p.LaunchLatencyMs }),
	"delay":     uintSetting(func(p *protocol.Parameters) *uint32 { return &p.ShootDelayMs }),
	"l1.power":  uintSetting(func(p *protocol.Parameters) *uint32 { return &p.Launcher1.ShootPower }),
	"l2.power":  uintSetting(func(p *protocol.Parameters) *uint32 { return &p.Launcher2.ShootPower }),
	"auto2":     boolSetting(func(p *protocol.Parameters) *bool { return &p.AutoModeUsesSecondLauncher }),
	"display":   boolSetting(func(p *protocol.Parameters) *bool { return &p.DisplayMeasuredPowerPrimary }),
	"l1.manual": boolSetting(func(p *protocol.Parameters) *bool { return &p.Launcher1.ManualModeEnabled }),
	"l2.manual": boolSetting(func(p *protocol.Parameters) *bool { return &p.Launcher2.ManualModeEnabled }),
	"l1.cw":     boolSetting(func(p *protocol.Parameters) *bool { return &p.Launcher1.SpinClockwise }),
	"l2.cw":     boolSetting(func(p *protocol.Parameters) *bool { return &p.Launcher2.SpinClockwise }),
}

func settingNames() []string {
	names := make([]string, 0, len(settings))
	for k := range settings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// applySetting edits one field. Wire granularity is checked on write.
func applySetting(p *protocol.Parameters, field, value string) error {
	set, ok := settings[field]
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	if err := set(p, value); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

func uintSetting(field func(*protocol.Parameters) *uint32) func(*protocol.Parameters, string) error {
	return func(p *protocol.Parameters, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		*field(p) = uint32(n)
		return nil
	}
}

func boolSetting(field func(*protocol.Parameters) *bool) func(*protocol.Parameters, string) error {
	return func(p *protocol.Parameters, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(p) = b
		return nil
	}
}
