// Package otobackend plays the mixed output through oto, which talks to
// the platform audio API (ALSA, CoreAudio, WASAPI) directly.
package otobackend

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/output"
	"github.com/winramp/mixcore/internal/logger"
)

const deviceName = "default"

// oto allows one context per process; it is created on the first Configure
// and shared by later streams with the same parameters.
var (
	ctxMu     sync.Mutex
	ctx       *oto.Context
	ctxParams output.Params
)

// Backend opens the system default output through oto.
type Backend struct {
	// Buffer is the hardware buffer duration requested from oto. Zero lets
	// oto pick.
	Buffer time.Duration
}

func New() *Backend {
	return &Backend{Buffer: 40 * time.Millisecond}
}

func (b *Backend) Name() string { return "oto" }

func (b *Backend) DefaultDevices() []string { return []string{deviceName} }

func (b *Backend) Devices() ([]output.DeviceInfo, error) {
	// oto does not enumerate devices, it always uses the system default
	return []output.DeviceInfo{{
		ID:          deviceName,
		Name:        "Default Audio Device",
		Type:        b.Name(),
		IsDefault:   true,
		MaxChannels: 2,
		SampleRates: format.Rates,
	}}, nil
}

func (b *Backend) Open(name string) (output.Stream, error) {
	if name != deviceName {
		return nil, output.ErrDeviceNotFound
	}
	return &stream{buffer: b.Buffer}, nil
}

type stream struct {
	buffer time.Duration

	mu     sync.Mutex
	player *oto.Player
	pr     *io.PipeReader
	pw     *io.PipeWriter
	closed bool
}

func otoFormat(f format.SampleFormat) (oto.Format, bool) {
	switch f {
	case format.U8:
		return oto.FormatUnsignedInt8, true
	case format.I16LE:
		return oto.FormatSignedInt16LE, true
	case format.F32LE:
		return oto.FormatFloat32LE, true
	default:
		return 0, false
	}
}

func (s *stream) SupportsFormat(f format.SampleFormat) bool {
	_, ok := otoFormat(f)
	return ok
}

func (s *stream) SupportsChannels(n int) bool { return n == 1 || n == 2 }

func (s *stream) SupportsRate(rate int) bool { return rate > 0 }

func (s *stream) PeriodSize() int { return 512 }

func (s *stream) Configure(p output.Params) error {
	f, ok := otoFormat(p.Format)
	if !ok {
		return fmt.Errorf("oto: %w: %s", output.ErrInvalidParams, p.Format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return output.ErrClosed
	}

	c, err := sharedContext(p, f, s.buffer)
	if err != nil {
		return err
	}

	// The player pulls from the pipe, so Write blocks until oto has room
	// for the frame.
	s.pr, s.pw = io.Pipe()
	s.player = c.NewPlayer(s.pr)
	s.player.Play()
	return nil
}

func sharedContext(p output.Params, f oto.Format, buffer time.Duration) (*oto.Context, error) {
	ctxMu.Lock()
	defer ctxMu.Unlock()

	if ctx != nil {
		if ctxParams.Format != p.Format || ctxParams.Channels != p.Channels || ctxParams.SampleRate != p.SampleRate {
			return nil, fmt.Errorf("oto: context already running at %s/%dch/%dHz",
				ctxParams.Format, ctxParams.Channels, ctxParams.SampleRate)
		}
		return ctx, nil
	}

	c, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   p.SampleRate,
		ChannelCount: p.Channels,
		Format:       f,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	logger.Info("oto context ready",
		logger.String("format", p.Format.String()),
		logger.Int("channels", p.Channels),
		logger.Int("rate", p.SampleRate))

	ctx = c
	ctxParams = p
	return ctx, nil
}

func (s *stream) Write(frame []byte) error {
	s.mu.Lock()
	pw, closed := s.pw, s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return output.ErrClosed
	case pw == nil:
		return output.ErrNotConfigured
	}

	if _, err := pw.Write(frame); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return output.ErrClosed
		}
		return err
	}
	return nil
}

func (s *stream) Recover() error { return nil }

// Abort fails a Write blocked on the pipe.
func (s *stream) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pr != nil {
		s.pr.CloseWithError(output.ErrClosed)
	}
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.pw != nil {
		s.pw.Close()
	}
	if s.player != nil {
		if err := s.player.Close(); err != nil {
			return fmt.Errorf("failed to close oto player: %w", err)
		}
	}
	return nil
}
