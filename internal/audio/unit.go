package audio

import (
	"fmt"
	"time"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
	"github.com/winramp/mixcore/internal/domain"
	"github.com/winramp/mixcore/internal/logger"
)

// Unit is one sound mixed into a device. It reads from a caller-owned
// buffer that must not change while the unit is attached.
type Unit struct {
	dev *Device
	buf []byte

	format     format.SampleFormat
	rate       int
	channels   int
	frameBytes int
	bps        int

	// guarded by dev.mu
	start  int
	end    int
	offset int
	loops  int
	state  State
	handle Handle
}

func mixable(dst, src format.SampleFormat) bool {
	return mix.Supported(dst, src)
}

// NewUnit creates a closed unit over buf. Until the device is configured,
// each new unit widens the pending configuration: the more preferred format,
// the larger channel count, and the unit's rate when none is set yet.
func NewUnit(dev *Device, buf []byte, f format.SampleFormat, rate, channels int) (*Unit, error) {
	dev.mustBeUsable("NewUnit")

	if !f.IsNative() {
		return nil, domain.NewDomainErrorWithDetails(domain.ErrCodeFormat,
			"unit format must be native-endian", f.String(), domain.ErrFormatNotSupported)
	}
	if rate <= 0 || channels <= 0 {
		return nil, domain.NewDomainErrorWithDetails(domain.ErrCodeFormat, "invalid unit layout",
			fmt.Sprintf("%d Hz, %d channels", rate, channels), domain.ErrGeneric)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	cfg := &dev.config
	if !dev.explicit && !dev.negotiated {
		if cfg.Format == format.FormatUnknown || format.MorePreferred(f, cfg.Format) {
			cfg.Format = f
		}
		cfg.Channels = max(cfg.Channels, channels)
	}
	if cfg.SampleRate == 0 && !dev.negotiated {
		cfg.SampleRate = rate
	}
	if err := dev.acceptsLocked(f, rate); err != nil {
		return nil, err
	}

	frameBytes := channels * f.Size()
	return &Unit{
		dev:        dev,
		buf:        buf,
		format:     f,
		rate:       rate,
		channels:   channels,
		frameBytes: frameBytes,
		bps:        rate * frameBytes,
		end:        len(buf) - len(buf)%frameBytes,
	}, nil
}

// Play attaches the unit, starting the device when it is idle, and resumes
// a paused device. Playback continues from the current offset: a paused
// unit where it stopped, a new unit where Seek left it, a retired unit from
// its start offset.
func (u *Unit) Play() error {
	d := u.dev
	d.mustBeUsable("Play")

	d.mu.Lock()

	switch u.state {
	case StateRunning:
		d.mu.Unlock()
		return nil
	case StatePaused:
		if _, ok := d.units.get(u.handle); ok {
			u.state = StateRunning
			d.resumeLocked()
			d.mu.Unlock()
			return nil
		}
	}

	u.handle = d.units.insert(u)
	u.state = StateRunning

	if d.done == nil {
		if err := d.startLocked(u); err != nil {
			d.units.remove(u.handle)
			u.state = StateClosed
			u.handle = Handle{}
			d.mu.Unlock()
			return err
		}
		d.mu.Unlock()
		time.Sleep(d.opts.StartupYield)
		return nil
	}

	if err := d.acceptsLocked(u.format, u.rate); err != nil {
		d.units.remove(u.handle)
		u.state = StateClosed
		u.handle = Handle{}
		d.mu.Unlock()
		return err
	}
	d.resumeLocked()
	d.mu.Unlock()
	return nil
}

// Pause stops mixing the unit without detaching it. It reports whether the
// unit is now paused. Pausing the last running unit pauses the device
// unless Options.KeepAliveWhenIdle is set.
func (u *Unit) Pause() bool {
	d := u.dev
	d.mustBeUsable("Pause")

	d.mu.Lock()
	defer d.mu.Unlock()

	switch u.state {
	case StatePaused:
		return true
	case StateClosed:
		return false
	}

	u.state = StatePaused
	if !d.opts.KeepAliveWhenIdle && d.runningLocked() == 0 {
		d.pauseLocked()
	}
	return true
}

// Close detaches the unit. The buffer stays owned by the caller.
func (u *Unit) Close() bool {
	d := u.dev
	d.mustBeUsable("Close")

	d.mu.Lock()
	defer d.mu.Unlock()

	if u.state == StateClosed {
		return true
	}
	d.units.remove(u.handle)
	u.retire()
	d.log.Debug("unit closed", logger.Int("units", d.units.len()))
	return true
}

// retire marks a detached unit closed and rewinds it to its start offset.
// The caller holds dev.mu.
func (u *Unit) retire() {
	u.state = StateClosed
	u.handle = Handle{}
	u.offset = u.start
}

// mixInto accumulates the unit's current window into frame.
func (u *Unit) mixInto(frame []byte, cfg DeviceConfig) error {
	window := u.buf[u.offset:min(u.end, u.offset+cfg.FrameSize*u.frameBytes)]
	_, err := mix.Mix(frame, cfg.Format, cfg.Channels, window, u.format, u.channels, cfg.FrameSize)
	return err
}

// advance moves the offset by one frame and handles the end of a pass. It
// reports true when the unit finished its last pass.
func (u *Unit) advance(frameSize int) bool {
	u.offset = min(u.end, u.offset+frameSize*u.frameBytes)
	if u.offset < u.end {
		return false
	}

	u.offset = u.start
	switch {
	case u.loops < 0:
		return false
	case u.loops > 0:
		u.loops--
		return false
	default:
		return true
	}
}

func (u *Unit) toBytes(op string, pos time.Duration) int {
	if pos < 0 {
		panic(fmt.Sprintf("audio: %s to negative position %v", op, pos))
	}
	frames := int(pos * time.Duration(u.rate) / time.Second)
	return frames * u.frameBytes
}

func (u *Unit) toDuration(b int) time.Duration {
	return time.Duration(b) * time.Second / time.Duration(u.bps)
}

// Seek moves playback to pos from the start of the buffer. Positions before
// the start offset play from the start offset. Negative positions and
// positions past the end offset panic.
func (u *Unit) Seek(pos time.Duration) {
	d := u.dev
	d.mustBeUsable("Seek")

	b := u.toBytes("Seek", pos)

	d.mu.Lock()
	defer d.mu.Unlock()

	if b > u.end {
		panic(fmt.Sprintf("audio: seek to %v beyond end %v", pos, u.toDuration(u.end)))
	}
	u.offset = max(u.start, b)
}

// SetStart trims the beginning of the buffer. It panics on negative
// positions and beyond the end offset.
func (u *Unit) SetStart(pos time.Duration) {
	d := u.dev
	d.mustBeUsable("SetStart")

	b := u.toBytes("SetStart", pos)

	d.mu.Lock()
	defer d.mu.Unlock()

	if b > u.end {
		panic(fmt.Sprintf("audio: start %v beyond end %v", pos, u.toDuration(u.end)))
	}
	u.start = b
	u.offset = max(u.offset, b)
}

// SetEnd trims the end of the buffer, pulling start and offset into the new
// window. It panics on negative positions and beyond the buffer length.
func (u *Unit) SetEnd(pos time.Duration) {
	d := u.dev
	d.mustBeUsable("SetEnd")

	b := u.toBytes("SetEnd", pos)

	d.mu.Lock()
	defer d.mu.Unlock()

	if b > len(u.buf) {
		panic(fmt.Sprintf("audio: end %v beyond length %v", pos, u.toDuration(len(u.buf))))
	}
	u.end = b
	u.start = min(u.start, b)
	u.offset = min(max(u.offset, u.start), b)
}

// SetLoops sets the number of extra passes: 0 stops after the current pass,
// negative repeats until closed.
func (u *Unit) SetLoops(n int) {
	u.dev.mustBeUsable("SetLoops")
	u.dev.mu.Lock()
	u.loops = n
	u.dev.mu.Unlock()
}

func (u *Unit) Loops() int {
	u.dev.mustBeUsable("Loops")
	u.dev.mu.Lock()
	defer u.dev.mu.Unlock()
	return u.loops
}

// Start returns the start trim in bytes.
func (u *Unit) Start() int {
	u.dev.mustBeUsable("Start")
	u.dev.mu.Lock()
	defer u.dev.mu.Unlock()
	return u.start
}

// End returns the end trim in bytes.
func (u *Unit) End() int {
	u.dev.mustBeUsable("End")
	u.dev.mu.Lock()
	defer u.dev.mu.Unlock()
	return u.end
}

// Offset returns the playback position in bytes.
func (u *Unit) Offset() int {
	u.dev.mustBeUsable("Offset")
	u.dev.mu.Lock()
	defer u.dev.mu.Unlock()
	return u.offset
}

func (u *Unit) StartTime() time.Duration { return u.toDuration(u.Start()) }
func (u *Unit) EndTime() time.Duration   { return u.toDuration(u.End()) }

// Duration returns the playback time of the trim window.
func (u *Unit) Duration() time.Duration {
	u.dev.mustBeUsable("Duration")
	u.dev.mu.Lock()
	defer u.dev.mu.Unlock()
	return u.toDuration(u.end - u.start)
}

// State is the one accessor that stays valid after the device is closed,
// when it reports StateClosed.
func (u *Unit) State() State {
	u.dev.mu.Lock()
	defer u.dev.mu.Unlock()
	return u.state
}

// Handle returns the unit's key in the device table, zero when detached.
func (u *Unit) Handle() Handle {
	u.dev.mustBeUsable("Handle")
	u.dev.mu.Lock()
	defer u.dev.mu.Unlock()
	return u.handle
}

func (u *Unit) Format() format.SampleFormat { return u.format }
func (u *Unit) Rate() int                   { return u.rate }
func (u *Unit) Channels() int               { return u.channels }
func (u *Unit) Len() int                    { return len(u.buf) }
func (u *Unit) BytesPerSecond() int         { return u.bps }
