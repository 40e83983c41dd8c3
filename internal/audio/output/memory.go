package output

import (
	"slices"
	"sync"

	"github.com/winramp/mixcore/internal/audio/format"
)

// DefaultHistory is the number of recent frames a MemoryStream keeps.
const DefaultHistory = 64

// Memory is an in-process backend. Its streams accept frames without
// hardware and record them, which makes it the backend of choice for tests
// and dry runs.
type Memory struct {
	caps    Capabilities
	names   []string
	history int

	mu      sync.Mutex
	streams map[string]*MemoryStream
	broken  map[string]bool
}

// NewMemory creates a backend exposing the named devices. The first name
// is the default device; with no names a single "default" device exists.
func NewMemory(caps Capabilities, names ...string) *Memory {
	if len(names) == 0 {
		names = []string{"default"}
	}
	return &Memory{
		caps:    caps,
		names:   names,
		history: DefaultHistory,
		streams: make(map[string]*MemoryStream),
		broken:  make(map[string]bool),
	}
}

// Break makes Open fail for the named devices.
func (m *Memory) Break(names ...string) {
	m.mu.Lock()
	for _, name := range names {
		m.broken[name] = true
	}
	m.mu.Unlock()
}

// SetHistory changes how many frames streams opened afterwards keep.
func (m *Memory) SetHistory(n int) {
	m.mu.Lock()
	m.history = n
	m.mu.Unlock()
}

func (m *Memory) Name() string { return "memory" }

// DefaultDevices returns every device name, the default first.
func (m *Memory) DefaultDevices() []string {
	return slices.Clone(m.names)
}

func (m *Memory) Devices() ([]DeviceInfo, error) {
	infos := make([]DeviceInfo, 0, len(m.names))
	for i, name := range m.names {
		infos = append(infos, DeviceInfo{
			ID:          name,
			Name:        name,
			Type:        m.Name(),
			IsDefault:   i == 0,
			MaxChannels: m.caps.MaxChannels,
			SampleRates: slices.Clone(m.caps.Rates),
		})
	}
	return infos, nil
}

func (m *Memory) Open(name string) (Stream, error) {
	if !slices.Contains(m.names, name) {
		return nil, ErrDeviceNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.broken[name] {
		return nil, ErrDeviceNotFound
	}
	s := &MemoryStream{
		caps:    m.caps,
		history: m.history,
		abort:   make(chan struct{}),
	}
	m.streams[name] = s
	return s, nil
}

// Stream returns the stream most recently opened for name.
func (m *Memory) Stream(name string) *MemoryStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[name]
}

// MemoryStream records written frames.
type MemoryStream struct {
	caps    Capabilities
	history int

	mu         sync.Mutex
	params     Params
	configured bool
	closed     bool
	frames     [][]byte
	count      int
	recovers   int
	errs       []error
	gate       chan struct{}
	abort      chan struct{}
	aborted    bool
}

func (s *MemoryStream) SupportsFormat(f format.SampleFormat) bool { return s.caps.SupportsFormat(f) }
func (s *MemoryStream) SupportsChannels(n int) bool               { return s.caps.SupportsChannels(n) }
func (s *MemoryStream) SupportsRate(rate int) bool                { return s.caps.SupportsRate(rate) }
func (s *MemoryStream) PeriodSize() int                           { return s.caps.PeriodSize() }

func (s *MemoryStream) Configure(p Params) error {
	if err := s.caps.Validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.params = p
	s.configured = true
	return nil
}

func (s *MemoryStream) Write(frame []byte) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-s.abort:
			return ErrClosed
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed || s.aborted:
		return ErrClosed
	case !s.configured:
		return ErrNotConfigured
	}

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}

	s.frames = append(s.frames, slices.Clone(frame))
	if s.history > 0 && len(s.frames) > s.history {
		s.frames = slices.Delete(s.frames, 0, len(s.frames)-s.history)
	}
	s.count++
	return nil
}

func (s *MemoryStream) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.recovers++
	return nil
}

func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Abort releases writers blocked by Hold.
func (s *MemoryStream) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.aborted {
		s.aborted = true
		close(s.abort)
	}
}

// InjectError queues errors returned by the next writes, in order.
func (s *MemoryStream) InjectError(errs ...error) {
	s.mu.Lock()
	s.errs = append(s.errs, errs...)
	s.mu.Unlock()
}

// Hold makes Write block until Release or Abort.
func (s *MemoryStream) Hold() {
	s.mu.Lock()
	if s.gate == nil {
		s.gate = make(chan struct{})
	}
	s.mu.Unlock()
}

func (s *MemoryStream) Release() {
	s.mu.Lock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
	s.mu.Unlock()
}

// Params returns the configured parameters and whether Configure succeeded.
func (s *MemoryStream) Params() (Params, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params, s.configured
}

// FrameCount returns the number of frames accepted so far.
func (s *MemoryStream) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Frames returns copies of the most recent frames, oldest first.
func (s *MemoryStream) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.frames))
	for i, f := range s.frames {
		out[i] = slices.Clone(f)
	}
	return out
}

func (s *MemoryStream) Recovers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovers
}

func (s *MemoryStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
