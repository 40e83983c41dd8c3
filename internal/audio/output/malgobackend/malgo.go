// Package malgobackend plays the mixed output through miniaudio (malgo).
// miniaudio is callback driven, so frames written by the render loop are
// queued in a ring that the data callback drains.
package malgobackend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/output"
	"github.com/winramp/mixcore/internal/logger"
)

const (
	defaultDevice = "default"
	maxChannels   = 8
	periodFrames  = 512
	ringPeriods   = 4
)

// Backend enumerates and opens miniaudio playback devices.
type Backend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string { return "malgo" }

func (b *Backend) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		return b.ctx, nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", logger.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	b.ctx = ctx
	return ctx, nil
}

// Close releases the miniaudio context. Streams must be closed first.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func (b *Backend) DefaultDevices() []string {
	names := []string{defaultDevice}
	infos, err := b.Devices()
	if err != nil {
		return names
	}
	for _, info := range infos {
		if info.IsDefault {
			names = append(names, info.Name)
		}
	}
	return names
}

func (b *Backend) Devices() ([]output.DeviceInfo, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	out := make([]output.DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, output.DeviceInfo{
			ID:          info.ID.String(),
			Name:        info.Name(),
			Type:        b.Name(),
			IsDefault:   info.IsDefault != 0,
			MaxChannels: maxChannels,
			SampleRates: slices.Clone(format.Rates),
		})
	}
	return out, nil
}

func (b *Backend) Open(name string) (output.Stream, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	s := &stream{ctx: ctx, name: name}
	s.cond = sync.NewCond(&s.mu)
	if name == defaultDevice {
		return s, nil
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}
	for i := range infos {
		if infos[i].Name() == name || infos[i].ID.String() == name {
			s.id = infos[i].ID
			s.hasID = true
			return s, nil
		}
	}
	return nil, output.ErrDeviceNotFound
}

type stream struct {
	ctx   *malgo.AllocatedContext
	name  string
	id    malgo.DeviceID
	hasID bool

	device *malgo.Device
	params output.Params

	mu       sync.Mutex
	cond     *sync.Cond
	ring     []byte
	head     int
	size     int
	underrun bool
	started  bool
	aborted  bool
	closed   bool
}

func malgoFormat(f format.SampleFormat) (malgo.FormatType, bool) {
	switch f {
	case format.U8:
		return malgo.FormatU8, true
	case format.I16:
		return malgo.FormatS16, true
	case format.I24:
		return malgo.FormatS24, true
	case format.I32:
		return malgo.FormatS32, true
	case format.F32:
		return malgo.FormatF32, true
	default:
		return malgo.FormatUnknown, false
	}
}

func (s *stream) SupportsFormat(f format.SampleFormat) bool {
	_, ok := malgoFormat(f)
	return ok
}

func (s *stream) SupportsChannels(n int) bool { return n >= 1 && n <= maxChannels }

// miniaudio resamples internally, any standard rate is accepted.
func (s *stream) SupportsRate(rate int) bool { return slices.Contains(format.Rates, rate) }

func (s *stream) PeriodSize() int { return periodFrames }

func (s *stream) Configure(p output.Params) error {
	mf, ok := malgoFormat(p.Format)
	if !ok {
		return fmt.Errorf("malgo: %w: %s", output.ErrInvalidParams, p.Format)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = mf
	cfg.Playback.Channels = uint32(p.Channels)
	cfg.SampleRate = uint32(p.SampleRate)
	cfg.PeriodSizeInFrames = uint32(p.PeriodSize)
	cfg.Alsa.NoMMap = 1
	if s.hasID {
		cfg.Playback.DeviceID = s.id.Pointer()
	}

	s.mu.Lock()
	s.params = p
	s.ring = make([]byte, p.FrameBytes()*ringPeriods)
	s.mu.Unlock()

	device, err := malgo.InitDevice(s.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.fill,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device %s: %w", s.name, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start playback device %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	return nil
}

// fill is the miniaudio data callback.
func (s *stream) fill(out, _ []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(len(out), s.size)
	for i := range n {
		out[i] = s.ring[(s.head+i)%len(s.ring)]
	}
	s.head = (s.head + n) % len(s.ring)
	s.size -= n

	if n < len(out) {
		silence := s.params.Format.Silence()
		for i := n; i < len(out); i++ {
			out[i] = silence
		}
		if s.started {
			s.underrun = true
		}
	}
	s.cond.Broadcast()
}

func (s *stream) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.aborted {
		return output.ErrClosed
	}
	if s.device == nil {
		return output.ErrNotConfigured
	}
	if len(frame) > len(s.ring) {
		return fmt.Errorf("malgo: frame of %d bytes exceeds ring of %d", len(frame), len(s.ring))
	}

	for !s.closed && !s.aborted && len(s.ring)-s.size < len(frame) {
		s.cond.Wait()
	}
	if s.closed || s.aborted {
		return output.ErrClosed
	}
	if s.underrun {
		return output.ErrUnderrun
	}

	tail := (s.head + s.size) % len(s.ring)
	for i, b := range frame {
		s.ring[(tail+i)%len(s.ring)] = b
	}
	s.size += len(frame)
	s.started = true
	return nil
}

// Recover drops whatever is left of the stale queue.
func (s *stream) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return output.ErrClosed
	}
	s.underrun = false
	s.started = false
	s.head, s.size = 0, 0
	return nil
}

func (s *stream) Abort() {
	s.mu.Lock()
	s.aborted = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	device := s.device
	s.mu.Unlock()

	if device == nil {
		return nil
	}
	// Stop waits for the callback, so it must run without s.mu held.
	err := device.Stop()
	device.Uninit()
	if err != nil {
		return fmt.Errorf("failed to stop playback device %s: %w", s.name, err)
	}
	return nil
}
