// Package dsp measures the rendered output.
package dsp

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
)

// Levels are linear sample levels in [0, 1].
type Levels struct {
	Peak   float64
	RMS    float64
	Frames int
}

func (l Levels) String() string {
	return fmt.Sprintf("peak %.1f dBFS, rms %.1f dBFS over %d frames", ToDB(l.Peak), ToDB(l.RMS), l.Frames)
}

// ToDB converts a linear level to decibels relative to full scale.
func ToDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// Meter accumulates peak and RMS levels over rendered frames. It is safe
// for use from the render goroutine while another goroutine reads Levels.
type Meter struct {
	mu      sync.Mutex
	scratch []float64
	peak    float64
	sumSq   float64
	samples int
	frames  int
}

func NewMeter() *Meter {
	return &Meter{}
}

// Observe adds one interleaved frame of native format f.
func (m *Meter) Observe(f format.SampleFormat, frame []byte) {
	size := f.Size()
	if size == 0 || !f.IsNative() {
		return
	}
	n := len(frame) / size

	m.mu.Lock()
	defer m.mu.Unlock()

	if cap(m.scratch) < n {
		m.scratch = make([]float64, n)
	}
	s := m.scratch[:n]
	for i := range s {
		s[i] = float64(mix.Decode(frame[i*size:], f))
	}

	if n > 0 {
		m.peak = max(m.peak, floats.Norm(s, math.Inf(1)))
		m.sumSq += floats.Dot(s, s)
	}
	m.samples += n
	m.frames++
}

// Levels returns the levels accumulated since the last Reset.
func (m *Meter) Levels() Levels {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := Levels{Peak: m.peak, Frames: m.frames}
	if m.samples > 0 {
		l.RMS = math.Sqrt(m.sumSq / float64(m.samples))
	}
	return l
}

func (m *Meter) Reset() {
	m.mu.Lock()
	m.peak, m.sumSq, m.samples, m.frames = 0, 0, 0, 0
	m.mu.Unlock()
}
