package output

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
)

const wavFormatPCM = 1

// WAVFile is a backend whose only device is a .wav file on disk. Writes
// never block, so the render loop's own pacing sets the speed.
type WAVFile struct {
	path string
	caps Capabilities
}

// NewWAVFile returns a backend writing to path.
func NewWAVFile(path string) *WAVFile {
	return &WAVFile{
		path: path,
		caps: Capabilities{
			Formats:     []format.SampleFormat{format.I16, format.I24, format.I32},
			MaxChannels: 8,
			Rates:       slices.Clone(format.Rates),
			Period:      1024,
		},
	}
}

func (w *WAVFile) Name() string { return "wav" }

func (w *WAVFile) DefaultDevices() []string { return []string{w.path} }

func (w *WAVFile) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{
		ID:          w.path,
		Name:        w.path,
		Type:        w.Name(),
		IsDefault:   true,
		MaxChannels: w.caps.MaxChannels,
		SampleRates: slices.Clone(w.caps.Rates),
	}}, nil
}

// Open accepts any path; the file is created by Configure.
func (w *WAVFile) Open(name string) (Stream, error) {
	if name == "" {
		return nil, ErrDeviceNotFound
	}
	return &wavStream{path: name, caps: w.caps}, nil
}

type wavStream struct {
	path string
	caps Capabilities

	mu     sync.Mutex
	params Params
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	closed bool
}

func (s *wavStream) SupportsFormat(f format.SampleFormat) bool { return s.caps.SupportsFormat(f) }
func (s *wavStream) SupportsChannels(n int) bool               { return s.caps.SupportsChannels(n) }
func (s *wavStream) SupportsRate(rate int) bool                { return s.caps.SupportsRate(rate) }
func (s *wavStream) PeriodSize() int                           { return s.caps.PeriodSize() }

func (s *wavStream) Configure(p Params) error {
	if err := s.caps.Validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.enc != nil {
		return fmt.Errorf("%s: already configured", s.path)
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	s.file = f
	s.params = p
	s.enc = wav.NewEncoder(f, p.SampleRate, p.Format.Bits(), p.Channels, wavFormatPCM)
	s.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		Data:           make([]int, p.PeriodSize*p.Channels),
		SourceBitDepth: p.Format.Bits(),
	}
	return nil
}

func (s *wavStream) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.enc == nil:
		return ErrNotConfigured
	}

	size := s.params.Format.Size()
	n := len(frame) / size
	if cap(s.buf.Data) < n {
		s.buf.Data = make([]int, n)
	}
	s.buf.Data = s.buf.Data[:n]
	for i := range n {
		s.buf.Data[i] = mix.Int(frame[i*size:], s.params.Format)
	}

	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("failed to write wav frame: %w", err)
	}
	return nil
}

func (s *wavStream) Recover() error { return nil }

// Close finalizes the RIFF header and closes the file.
func (s *wavStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.enc == nil {
		return nil
	}
	encErr := s.enc.Close()
	fileErr := s.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize wav file: %w", encErr)
	}
	return fileErr
}
