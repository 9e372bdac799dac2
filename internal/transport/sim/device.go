// internal/transport/sim/device.go
package sim

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

// Firmware regulation limits.
const (
	launcherPowerUpper = 24900
	launcherPowerLower = 3000
	latencyLower       = 500
	delayUpper         = 500

	histogramMaxPower = 16000
)

// 1.1.x capability bits carried in Parameters byte 0.
const (
	legacyFlagMeasureOnly byte = 0b00010
	legacyFlagSwitchless  byte = 0b00100
	legacyFlagTwoMotors   byte = 0b10000
	legacyCapabilityMask       = legacyFlagMeasureOnly | legacyFlagSwitchless | legacyFlagTwoMotors
)

// Hook runs before every endpoint access, outside the device lock.
// Tests use it to suspend an operation mid-flight.
type Hook func(op string, e protocol.Endpoint)

// Write records one accepted endpoint write.
type Write struct {
	Endpoint protocol.Endpoint
	Data     []byte
}

// Device is an in-memory ATLAS running a given firmware version.
// It is safe for concurrent use.
type Device struct {
	name string
	info protocol.DeviceInfo

	mu sync.Mutex

	params [protocol.ParametersLen]byte
	header protocol.Statistics
	hist   [protocol.HistogramBins]uint8
	sum    float64
	sum2   float64

	// chunk cursor; a header read rewinds it
	cursor int

	autoMode bool
	writes   []Write

	failChunk int
	failRead  map[protocol.Endpoint]error
	failWrite map[protocol.Endpoint]error
	hook      Hook

	conn *conn
}

// Option configures a Device.
type Option func(*Device)

// WithName sets the advertised local name.
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithFormat sets the device format (launcher controller or measurement only).
func WithFormat(format uint8) Option {
	return func(d *Device) { d.info.Format = format }
}

// WithSwitchType sets the mode switch hardware.
func WithSwitchType(t uint8) Option {
	return func(d *Device) { d.info.SwitchType = t }
}

// WithMotors sets the number of electric launchers and their max rpm (/100).
func WithMotors(count uint8, max1, max2 uint8) Option {
	return func(d *Device) {
		d.info.MotorCount = count
		d.info.Motor1MaxRPM = max1
		d.info.Motor2MaxRPM = max2
	}
}

// WithHook installs a hook run before each endpoint access.
func WithHook(h Hook) Option {
	return func(d *Device) { d.hook = h }
}

// New creates a device running firmware version.
func New(version uint16, opts ...Option) *Device {
	d := &Device{
		name: "ATLAS_AUTO_LAUNCHER",
		info: protocol.DeviceInfo{
			Version:      version,
			Format:       protocol.FormatLauncherController,
			SwitchType:   protocol.SwitchSlide,
			MotorCount:   1,
			Motor1MaxRPM: 249,
		},
		failChunk: -1,
		failRead:  make(map[protocol.Endpoint]error),
		failWrite: make(map[protocol.Endpoint]error),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.initParams()
	d.initStatistics()
	return d
}

// Name returns the advertised local name.
func (d *Device) Name() string { return d.name }

// Info returns the capabilities the device was built with.
func (d *Device) Info() protocol.DeviceInfo { return d.info }

func (d *Device) hasDeviceInfo() bool  { return d.info.Version >= protocol.Version120 }
func (d *Device) hasLegacyStore() bool { return d.info.Version < protocol.Version110 }

// ---- parameters ----

func (d *Device) initParams() {
	d.params = [protocol.ParametersLen]byte{
		0,
		1300 / protocol.LatencyUnitMs,
		0,
		0, 10000 / protocol.PowerUnitRPM,
		0, 10000 / protocol.PowerUnitRPM,
	}
	d.regulate()
}

// regulate applies the firmware software limits to the parameter block.
func (d *Device) regulate() {
	p := &d.params

	regulatePower := func(i int) {
		power := uint32(p[i]) * protocol.PowerUnitRPM
		switch {
		case power > launcherPowerUpper:
			p[i] = launcherPowerUpper / protocol.PowerUnitRPM
		case power < launcherPowerLower:
			p[i] = launcherPowerLower / protocol.PowerUnitRPM
		}
	}

	regulatePower(4)
	if d.info.MotorCount == 1 {
		p[0] &^= 0b1 // auto mode always uses launcher 1
	} else {
		regulatePower(6)
	}

	if uint32(p[1])*protocol.LatencyUnitMs < latencyLower {
		p[1] = latencyLower / protocol.LatencyUnitMs
	}
	if uint32(p[2])*protocol.DelayUnitMs > delayUpper {
		p[2] = delayUpper / protocol.DelayUnitMs
	}

	if d.info.Version >= protocol.Version110 && d.info.Version < protocol.Version120 {
		p[0] = p[0]&^legacyCapabilityMask | d.legacyCapabilities()
	}
}

func (d *Device) legacyCapabilities() byte {
	var b byte
	if d.info.Format == protocol.FormatMeasurementOnly {
		b |= legacyFlagMeasureOnly
	}
	if d.info.SwitchType == protocol.SwitchNone {
		b |= legacyFlagSwitchless
	}
	if d.info.MotorCount == 2 {
		b |= legacyFlagTwoMotors
	}
	return b
}

// conditionWord packs the DeviceInfo condition field the way the firmware
// generation does.
func (d *Device) conditionWord() uint16 {
	cond := uint16(d.info.Format & 0b11)
	motors := uint16(0)
	if d.info.MotorCount > 1 {
		motors = 1
	}

	if d.info.Version >= protocol.Version130 {
		cond |= uint16(d.info.SwitchType&0b111) << 2
		cond |= motors << 5
		return cond
	}

	if d.info.SwitchType == protocol.SwitchNone {
		cond |= 0b100
	}
	cond |= motors << 3
	return cond
}

func (d *Device) deviceInfoPayload() []byte {
	buf := make([]byte, protocol.DeviceInfoLen)
	binary.LittleEndian.PutUint16(buf[0:2], d.info.Version)
	binary.LittleEndian.PutUint16(buf[2:4], d.conditionWord())
	buf[4] = d.info.Motor1MaxRPM
	buf[5] = d.info.Motor2MaxRPM
	return buf
}

// ---- statistics ----

func (d *Device) initStatistics() {
	d.header = protocol.Statistics{
		HistogramBinStart: protocol.HistogramBins - 1,
		HistogramBinEnd:   0,
	}
	d.hist = [protocol.HistogramBins]uint8{}
	d.sum = 0
	d.sum2 = 0
	d.cursor = 0
}

// Shoot records one measured shot power.
func (d *Device) Shoot(power uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shoot(power)
}

func (d *Device) shoot(power uint16) {
	h := &d.header

	if power >= protocol.HistogramMinPower && power < histogramMaxPower {
		i := uint8((int(power) - protocol.HistogramMinPower) / protocol.HistogramBinWidth)
		d.hist[i]++
		if i < h.HistogramBinStart {
			h.HistogramBinStart = i
		}
		if i > h.HistogramBinEnd {
			h.HistogramBinEnd = i
		}
	}

	h.TotalShots++
	if power > h.MaxPower {
		h.MaxPower = power
	}
	if h.MinPower == 0 || power < h.MinPower {
		h.MinPower = power
	}

	p := float64(power)
	d.sum += p
	d.sum2 += p * p

	n := float64(h.TotalShots)
	avg := d.sum / n
	h.AvgPower = uint16(avg)
	h.StdDevPower = uint16(math.Sqrt(math.Max(d.sum2/n-avg*avg, 0)))
}

// ---- fault injection ----

// FailChunk makes histogram chunk n (0-based) fail on its next reads.
// A negative n clears the fault.
func (d *Device) FailChunk(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failChunk = n
}

// FailRead makes every read of e return err. A nil err clears the fault.
func (d *Device) FailRead(e protocol.Endpoint, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failRead, e)
		return
	}
	d.failRead[e] = err
}

// FailWrite makes every write to e return err. A nil err clears the fault.
func (d *Device) FailWrite(e protocol.Endpoint, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failWrite, e)
		return
	}
	d.failWrite[e] = err
}

// Drop severs the current connection as if the link was lost.
func (d *Device) Drop() {
	d.mu.Lock()
	c := d.conn
	d.conn = nil
	d.mu.Unlock()

	if c != nil {
		c.drop()
	}
}

// ---- observation ----

// Writes returns the accepted writes in order.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// ResetWrites clears the write log.
func (d *Device) ResetWrites() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
}

// AutoMode reports whether a SwitchToAutoMode command was received.
func (d *Device) AutoMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autoMode
}

// Params returns the raw parameter block.
func (d *Device) Params() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.params))
	copy(out, d.params[:])
	return out
}

// ---- endpoint access ----

func (d *Device) has(e protocol.Endpoint) bool {
	switch e {
	case protocol.EndpointDeviceInfo:
		return d.hasDeviceInfo()
	case protocol.EndpointLegacyRomStore:
		return d.hasLegacyStore()
	default:
		return true
	}
}

func (d *Device) runHook(op string, e protocol.Endpoint) {
	if d.hook != nil {
		d.hook(op, e)
	}
}

func (d *Device) read(id uuid.UUID) ([]byte, error) {
	e, ok := protocol.EndpointByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown endpoint %s", transport.ErrNotAvailable, id)
	}

	d.runHook("read", e)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.has(e) {
		return nil, fmt.Errorf("%w: %s", transport.ErrNotAvailable, e)
	}
	if err := d.failRead[e]; err != nil {
		return nil, err
	}

	switch e {
	case protocol.EndpointParameters:
		out := make([]byte, len(d.params))
		copy(out, d.params[:])
		return out, nil

	case protocol.EndpointDeviceInfo:
		return d.deviceInfoPayload(), nil

	case protocol.EndpointStatisticsHeader:
		d.cursor = 0
		return protocol.EncodeStatistics(d.header), nil

	case protocol.EndpointHistogramChunk:
		block := d.cursor
		d.cursor = (d.cursor + 1) % protocol.HistogramChunkCount
		if block == d.failChunk {
			return nil, fmt.Errorf("%w: histogram chunk %d", transport.ErrNotAvailable, block)
		}
		start := block * protocol.HistogramChunkLen
		out := make([]byte, protocol.HistogramChunkLen)
		copy(out, d.hist[start:start+protocol.HistogramChunkLen])
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s is write-only", transport.ErrNotAvailable, e)
	}
}

func (d *Device) write(id uuid.UUID, b []byte) error {
	e, ok := protocol.EndpointByID(id)
	if !ok {
		return fmt.Errorf("%w: unknown endpoint %s", transport.ErrWriteFailed, id)
	}

	d.runHook("write", e)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.has(e) {
		return fmt.Errorf("%w: %s", transport.ErrNotAvailable, e)
	}
	if err := d.failWrite[e]; err != nil {
		return err
	}

	switch e {
	case protocol.EndpointParameters:
		if len(b) != protocol.ParametersLen {
			return fmt.Errorf("%w: parameters need %d bytes, got %d",
				transport.ErrWriteFailed, protocol.ParametersLen, len(b))
		}
		copy(d.params[:], b)
		d.regulate()

	case protocol.EndpointLegacyRomStore:
		// persisted; nothing else to model

	case protocol.EndpointManualLaunch:
		d.shoot(uint16(uint32(d.params[4]) * protocol.PowerUnitRPM))

	case protocol.EndpointClearStatistics:
		d.initStatistics()

	case protocol.EndpointSwitchToAutoMode:
		d.autoMode = true

	default:
		return fmt.Errorf("%w: %s is read-only", transport.ErrWriteFailed, e)
	}

	data := make([]byte, len(b))
	copy(data, b)
	d.writes = append(d.writes, Write{Endpoint: e, Data: data})
	return nil
}
