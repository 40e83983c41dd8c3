// Package audio manages one output device, the goroutine rendering into it
// and the units mixed into each frame.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/output"
	"github.com/winramp/mixcore/internal/domain"
	"github.com/winramp/mixcore/internal/logger"
)

const (
	DefaultSafetyMargin = 2 * time.Millisecond
	DefaultStartupYield = time.Millisecond
)

var (
	ErrNoCallback    = errors.New("device has no callback configured")
	ErrAlreadyActive = errors.New("device configuration is already in use")
)

// Callback fills a whole interleaved frame in the device format. It runs on
// the render goroutine.
type Callback func(frame []byte)

// FrameObserver receives every frame accepted by the stream. It runs on the
// render goroutine and must not retain frame.
type FrameObserver func(cfg DeviceConfig, frame []byte)

// DeviceConfig is the device-wide stream configuration. It is fixed once the
// device has been negotiated.
type DeviceConfig struct {
	Format     format.SampleFormat
	SampleRate int
	Channels   int
	FrameSize  int // sample frames per render iteration
	Callback   Callback
}

// FrameBytes returns the size of one rendered frame.
func (c DeviceConfig) FrameBytes() int {
	return c.FrameSize * c.Channels * c.Format.Size()
}

// Period returns the playback time of one rendered frame.
func (c DeviceConfig) Period() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// Options tune a device. The zero value is usable.
type Options struct {
	// SafetyMargin is subtracted from the frame period when pacing the
	// render loop. Defaults to 2ms.
	SafetyMargin time.Duration

	// StartupYield is slept after spawning the render goroutine.
	// Defaults to 1ms.
	StartupYield time.Duration

	// KeepAliveWhenIdle keeps the device running, mixing silence, when the
	// last running unit is paused. By default the device pauses.
	KeepAliveWhenIdle bool

	Preferences Preferences
	Observer    FrameObserver

	// Spawn starts the render goroutine. Defaults to a plain go statement.
	Spawn func(run func()) error
}

func (o Options) withDefaults() Options {
	if o.SafetyMargin == 0 {
		o.SafetyMargin = DefaultSafetyMargin
	}
	if o.StartupYield == 0 {
		o.StartupYield = DefaultStartupYield
	}
	if o.Spawn == nil {
		o.Spawn = func(run func()) error {
			go run()
			return nil
		}
	}
	o.Preferences = o.Preferences.withDefaults()
	return o
}

// Device is one opened output device. A device whose Status is not
// StatusSuccess, including the zero Device and a closed one, panics on
// every operation except Status, State and Close.
type Device struct {
	id      uuid.UUID
	name    string
	backend string
	stream  output.Stream
	status  domain.Status
	opts    Options
	log     *logger.LoggerContext

	config     DeviceConfig
	explicit   bool
	negotiated bool
	frame      []byte

	state atomic.Int32

	// mu guards the unit table, unit state, done and broken, and backs
	// cond, which the render goroutine waits on while paused.
	mu     sync.Mutex
	cond   *sync.Cond
	units  table
	done   chan struct{}
	broken error
}

// Open opens the first of the backend's default devices that succeeds.
// On failure the returned device carries StatusDeviceNotFound.
func Open(b output.Backend, opts Options) (*Device, error) {
	names := b.DefaultDevices()
	for _, name := range names {
		s, err := b.Open(name)
		if err != nil {
			logger.Debug("default device unavailable",
				logger.String("backend", b.Name()),
				logger.String("device", name),
				logger.Error(err))
			continue
		}
		return newDevice(b, name, s, opts), nil
	}

	return &Device{status: domain.StatusDeviceNotFound},
		domain.NewDomainErrorWithDetails(domain.ErrCodeAudioDevice,
			"no default output device could be opened", b.Name(), domain.ErrDeviceNotFound)
}

// OpenID opens the named device.
func OpenID(b output.Backend, name string, opts Options) (*Device, error) {
	s, err := b.Open(name)
	if err != nil {
		if !errors.Is(err, domain.ErrDeviceNotFound) {
			err = fmt.Errorf("%w: %w", domain.ErrDeviceNotFound, err)
		}
		return &Device{status: domain.StatusDeviceNotFound},
			domain.NewDomainErrorWithDetails(domain.ErrCodeAudioDevice,
				"failed to open output device", name, err)
	}
	return newDevice(b, name, s, opts), nil
}

func newDevice(b output.Backend, name string, s output.Stream, opts Options) *Device {
	d := &Device{
		id:      uuid.New(),
		name:    name,
		backend: b.Name(),
		stream:  s,
		status:  domain.StatusSuccess,
		opts:    opts.withDefaults(),
	}
	d.cond = sync.NewCond(&d.mu)
	d.log = logger.With(
		logger.String("backend", d.backend),
		logger.String("device", name),
		logger.String("session", d.id.String()))
	d.log.Info("device opened")
	return d
}

func (d *Device) mustBeUsable(op string) {
	if d == nil {
		panic(fmt.Sprintf("audio: %s on nil device", op))
	}
	if d.status != domain.StatusSuccess {
		panic(fmt.Sprintf("audio: %s on unusable device (status: %s)", op, d.status))
	}
}

// ConfigInit marks the device as explicitly configured and returns its
// configuration for the caller to fill in before Start or the first Play.
func (d *Device) ConfigInit(kind DeviceType) (*DeviceConfig, error) {
	d.mustBeUsable("ConfigInit")
	if kind != DevicePlayback {
		return nil, domain.NewDomainErrorWithDetails(domain.ErrCodeAudioDevice,
			"unsupported device type", kind.String(), domain.ErrGeneric)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.negotiated || d.units.len() > 0 {
		return nil, ErrAlreadyActive
	}
	d.explicit = true
	return &d.config, nil
}

// Start negotiates the stream and starts rendering through the configured
// callback. Starting a device that is already rendering does nothing.
func (d *Device) Start() error {
	d.mustBeUsable("Start")

	d.mu.Lock()
	if d.config.Callback == nil {
		d.mu.Unlock()
		return ErrNoCallback
	}
	if d.done != nil {
		d.mu.Unlock()
		return nil
	}
	err := d.startLocked(nil)
	d.mu.Unlock()

	if err != nil {
		return err
	}
	time.Sleep(d.opts.StartupYield)
	return nil
}

// startLocked negotiates on first use and spawns the render goroutine.
// first is the unit that triggered the start, nil in callback mode.
func (d *Device) startLocked(first *Unit) error {
	if d.broken != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceClosed, d.broken)
	}

	if !d.negotiated {
		unitMode := d.config.Callback == nil
		cfg, err := negotiate(d.stream, d.config, d.opts.Preferences, unitMode, d.log)
		if err != nil {
			d.log.Error("negotiation failed", logger.Error(err))
			return err
		}
		d.config = cfg
		d.negotiated = true
		d.log.Info("device negotiated",
			logger.String("format", cfg.Format.String()),
			logger.Int("rate", cfg.SampleRate),
			logger.Int("channels", cfg.Channels),
			logger.Int("frame_size", cfg.FrameSize))
	}

	if first != nil {
		if err := d.acceptsLocked(first.format, first.rate); err != nil {
			return err
		}
	}

	if len(d.frame) != d.config.FrameBytes() {
		d.frame = make([]byte, d.config.FrameBytes())
	}

	prev := d.state.Swap(int32(StateRunning))
	done := make(chan struct{})
	if err := d.opts.Spawn(func() { d.render(done) }); err != nil {
		d.state.Store(prev)
		d.log.Error("failed to spawn render goroutine", logger.Error(err))
		return domain.NewDomainError(domain.ErrCodeThread,
			fmt.Sprintf("failed to start render goroutine: %v", err), domain.ErrThreadError)
	}
	d.done = done
	d.log.Debug("render goroutine started")
	return nil
}

// acceptsLocked checks that a unit can be mixed into the negotiated stream.
func (d *Device) acceptsLocked(f format.SampleFormat, rate int) error {
	if rate != d.config.SampleRate {
		return domain.NewDomainErrorWithDetails(domain.ErrCodeFormat, "unit rate differs from device",
			fmt.Sprintf("%d != %d", rate, d.config.SampleRate), domain.ErrRateMismatch)
	}
	if d.negotiated && d.config.Callback == nil && !mixable(d.config.Format, f) {
		return domain.NewDomainErrorWithDetails(domain.ErrCodeFormat, "unit format cannot be mixed",
			fmt.Sprintf("%s into %s", f, d.config.Format), domain.ErrFormatNotSupported)
	}
	return nil
}

// Pause stops rendering until Resume. The render goroutine blocks instead
// of mixing silence.
func (d *Device) Pause() {
	d.mustBeUsable("Pause")

	d.mu.Lock()
	d.pauseLocked()
	d.mu.Unlock()
}

func (d *Device) pauseLocked() {
	if d.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		d.log.Debug("device paused")
	}
}

// Resume restarts a paused device.
func (d *Device) Resume() {
	d.mustBeUsable("Resume")

	d.mu.Lock()
	d.resumeLocked()
	d.mu.Unlock()
}

func (d *Device) resumeLocked() {
	if d.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		d.cond.Broadcast()
		d.log.Debug("device resumed")
	}
}

// Close detaches and closes every unit, stops the render goroutine, closes
// the stream and resets the device to its zero value. Closing a device
// that failed to open, or was already closed, does nothing.
func (d *Device) Close() error {
	if d == nil || d.status != domain.StatusSuccess {
		return nil
	}

	d.mu.Lock()
	for _, u := range d.units.clear() {
		u.retire()
	}
	d.state.Store(int32(StateClosed))
	d.cond.Broadcast()
	done := d.done
	d.mu.Unlock()

	if a, ok := d.stream.(output.Aborter); ok {
		a.Abort()
	}
	if done != nil {
		<-done
	}

	err := d.stream.Close()
	if err != nil {
		d.log.Warn("failed to close stream", logger.Error(err))
		err = fmt.Errorf("failed to close stream: %w", err)
	}
	d.log.Info("device closed")

	*d = Device{}
	return err
}

// Config returns a copy of the current configuration.
func (d *Device) Config() DeviceConfig {
	d.mustBeUsable("Config")

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

func (d *Device) State() State { return State(d.state.Load()) }

func (d *Device) Status() domain.Status { return d.status }

func (d *Device) Name() string {
	d.mustBeUsable("Name")
	return d.name
}

// ID returns the session identifier assigned when the device was opened.
func (d *Device) ID() uuid.UUID {
	d.mustBeUsable("ID")
	return d.id
}

// Negotiated reports whether the stream has been configured.
func (d *Device) Negotiated() bool {
	d.mustBeUsable("Negotiated")

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.negotiated
}

// Sources returns the number of running units.
func (d *Device) Sources() int {
	d.mustBeUsable("Sources")

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runningLocked()
}

func (d *Device) runningLocked() int {
	n := 0
	for _, u := range d.units.units() {
		if u.state == StateRunning {
			n++
		}
	}
	return n
}

// Units returns the attached units in mixing order.
func (d *Device) Units() []*Unit {
	d.mustBeUsable("Units")

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.units.units()
}

// Rendering reports whether the render goroutine is alive.
func (d *Device) Rendering() bool {
	d.mustBeUsable("Rendering")

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done != nil
}
