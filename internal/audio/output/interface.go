package output

import (
	"errors"
	"slices"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/domain"
)

var (
	ErrDeviceNotFound = domain.ErrDeviceNotFound
	ErrClosed         = domain.ErrDeviceClosed
	ErrNotConfigured  = domain.ErrNotConfigured
	ErrInvalidParams  = errors.New("invalid stream parameters")

	// ErrUnderrun is returned by Write when the hardware ran dry. The stream
	// stays usable after Recover.
	ErrUnderrun = errors.New("audio buffer underrun")
)

// Params is the negotiated stream configuration.
type Params struct {
	Format     format.SampleFormat
	Channels   int
	SampleRate int
	PeriodSize int // frames per Write
	Access     format.Access
}

// FrameBytes returns the size of one Write in bytes.
func (p Params) FrameBytes() int {
	return p.PeriodSize * p.Channels * p.Format.Size()
}

// DeviceInfo describes an output device
type DeviceInfo struct {
	ID          string
	Name        string
	Type        string // backend name
	IsDefault   bool
	MaxChannels int
	SampleRates []int
}

// Backend is a platform audio API able to enumerate and open output devices.
type Backend interface {
	// Name returns the backend identifier ("memory", "oto", ...)
	Name() string

	// DefaultDevices returns the device names probed, in order, when no
	// device is requested explicitly
	DefaultDevices() []string

	// Devices enumerates the available output devices
	Devices() ([]DeviceInfo, error)

	// Open opens a device by name
	Open(name string) (Stream, error)
}

// Stream is an opened output device. Supports* are queried during
// negotiation, before Configure. After Configure, Write is only called from
// one goroutine.
type Stream interface {
	SupportsFormat(f format.SampleFormat) bool
	SupportsChannels(n int) bool
	SupportsRate(rate int) bool

	// PeriodSize returns the natural period of the device in frames
	PeriodSize() int

	// Configure applies the negotiated parameters
	Configure(p Params) error

	// Write blocks until the interleaved frame was accepted. ErrUnderrun is
	// recoverable; every other error is fatal for the stream.
	Write(frame []byte) error

	// Recover re-prepares the stream after an underrun
	Recover() error

	Close() error
}

// Aborter is implemented by streams whose Write can block indefinitely.
// Abort makes pending and future writes return ErrClosed.
type Aborter interface {
	Abort()
}

// Capabilities is a static capability set used by streams that accept a
// fixed list of formats, channel counts and rates.
type Capabilities struct {
	Formats     []format.SampleFormat
	MaxChannels int
	Rates       []int
	Period      int
}

func (c Capabilities) SupportsFormat(f format.SampleFormat) bool {
	return slices.Contains(c.Formats, f)
}

func (c Capabilities) SupportsChannels(n int) bool {
	return n >= 1 && n <= c.MaxChannels
}

func (c Capabilities) SupportsRate(rate int) bool {
	return slices.Contains(c.Rates, rate)
}

// PeriodSize returns the natural period, 512 frames when unset.
func (c Capabilities) PeriodSize() int {
	if c.Period <= 0 {
		return 512
	}
	return c.Period
}

// Validate checks p against the capability set.
func (c Capabilities) Validate(p Params) error {
	switch {
	case !c.SupportsFormat(p.Format):
		return errors.Join(ErrInvalidParams, domain.ErrFormatNotSupported)
	case !c.SupportsChannels(p.Channels), !c.SupportsRate(p.SampleRate), p.PeriodSize <= 0:
		return ErrInvalidParams
	}
	return nil
}

// DefaultCapabilities accepts every known format, up to 8 channels and the
// standard rate list.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Formats:     slices.Clone(format.All),
		MaxChannels: 8,
		Rates:       slices.Clone(format.Rates),
		Period:      512,
	}
}
