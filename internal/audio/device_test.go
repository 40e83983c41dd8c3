package audio

import (
	"errors"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winramp/mixcore/internal/audio/decoder"
	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
	"github.com/winramp/mixcore/internal/audio/output"
	"github.com/winramp/mixcore/internal/domain"
	"github.com/winramp/mixcore/internal/logger"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func TestMain(m *testing.M) {
	logger.Initialize(logger.Config{Level: "error", Console: true})
	os.Exit(m.Run())
}

func openMemory(t *testing.T, opts Options) (*Device, *output.Memory) {
	t.Helper()
	b := output.NewMemory(output.DefaultCapabilities())
	dev, err := Open(b, opts)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev, b
}

func configured(t *testing.T, cfg DeviceConfig, opts Options) (*Device, *output.Memory) {
	t.Helper()
	dev, b := openMemory(t, opts)
	c, err := dev.ConfigInit(DevicePlayback)
	require.NoError(t, err)
	*c = cfg
	return dev, b
}

// deferredSpawn holds the render goroutine until go is called, so tests can
// attach several units before the first frame.
type deferredSpawn struct {
	mu  sync.Mutex
	run func()
}

func (s *deferredSpawn) spawn(run func()) error {
	s.mu.Lock()
	s.run = run
	s.mu.Unlock()
	return nil
}

func (s *deferredSpawn) start() {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	go run()
}

func i16Frames(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, v := range samples {
		mix.PutInt(buf[i*2:], format.I16, int(v))
	}
	return buf
}

func TestOpen_NoDeviceReturnsErrorDevice(t *testing.T) {
	b := output.NewMemory(output.DefaultCapabilities(), "hw:0")
	b.Break("hw:0")

	dev, err := Open(b, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.Equal(t, domain.StatusDeviceNotFound, dev.Status())
	assert.Equal(t, StateClosed, dev.State())

	assert.Panics(t, func() { dev.Config() })
	assert.Panics(t, func() { dev.Pause() })
	assert.Panics(t, func() { NewUnit(dev, nil, format.I16, 44100, 2) })
	assert.NoError(t, dev.Close())
}

func TestOpen_ProbesDefaultsInOrder(t *testing.T) {
	b := output.NewMemory(output.DefaultCapabilities(), "hw:0", "hw:1", "hw:2")
	b.Break("hw:0")

	dev, err := Open(b, Options{})
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, "hw:1", dev.Name())
	assert.Equal(t, domain.StatusSuccess, dev.Status())
	assert.NotEqual(t, [16]byte{}, [16]byte(dev.ID()))
}

func TestOpenID(t *testing.T) {
	b := output.NewMemory(output.DefaultCapabilities(), "hw:0", "hw:1")

	dev, err := OpenID(b, "hw:1", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hw:1", dev.Name())
	require.NoError(t, dev.Close())

	bad, err := OpenID(b, "usb", Options{})
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.Equal(t, domain.StatusDeviceNotFound, bad.Status())
}

func TestConfigInit(t *testing.T) {
	dev, _ := openMemory(t, Options{})

	_, err := dev.ConfigInit(DeviceCapture)
	assert.Error(t, err)

	cfg, err := dev.ConfigInit(DevicePlayback)
	require.NoError(t, err)
	cfg.Format = format.F32
	cfg.SampleRate = 48000
	assert.Equal(t, format.F32, dev.Config().Format)
}

func TestStart_RequiresCallback(t *testing.T) {
	dev, _ := configured(t, DeviceConfig{Format: format.I16, SampleRate: 8000, Channels: 1, FrameSize: 80}, Options{})
	assert.ErrorIs(t, dev.Start(), ErrNoCallback)
	assert.False(t, dev.Rendering())
}

func TestStart_CallbackModeAndGuardedRestart(t *testing.T) {
	var spawns atomic.Int32
	var calls atomic.Int32
	opts := Options{Spawn: func(run func()) error {
		spawns.Add(1)
		go run()
		return nil
	}}

	dev, b := configured(t, DeviceConfig{
		Format:     format.I16,
		SampleRate: 8000,
		Channels:   2,
		FrameSize:  80,
		Callback: func(frame []byte) {
			calls.Add(1)
			for i := 0; i < len(frame); i += 2 {
				mix.PutInt(frame[i:], format.I16, 1000)
			}
		},
	}, opts)

	require.NoError(t, dev.Start())
	require.NoError(t, dev.Start())
	assert.Equal(t, int32(1), spawns.Load())
	assert.Equal(t, StateRunning, dev.State())

	stream := b.Stream("default")
	require.Eventually(t, func() bool { return stream.FrameCount() >= 3 }, waitFor, tick)

	frames := stream.Frames()
	last := frames[len(frames)-1]
	assert.Len(t, last, 80*2*2)
	assert.Equal(t, 1000, mix.Int(last[6:], format.I16))

	dev.Pause()
	assert.Equal(t, StatePaused, dev.State())
	time.Sleep(30 * time.Millisecond)
	paused := stream.FrameCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, stream.FrameCount())

	dev.Resume()
	require.Eventually(t, func() bool { return stream.FrameCount() > paused }, waitFor, tick)
	written := stream.FrameCount()
	assert.GreaterOrEqual(t, calls.Load(), int32(written))
}

func TestScenario_SineUnitFirstFrame(t *testing.T) {
	const frameSize, channels = 512, 2

	var spawn deferredSpawn
	var dev *Device
	var once sync.Once
	first := make(chan []byte, 1)

	dev, b := configured(t, DeviceConfig{
		Format:     format.I16,
		SampleRate: 44100,
		Channels:   channels,
		FrameSize:  frameSize,
	}, Options{
		Spawn: spawn.spawn,
		Observer: func(_ DeviceConfig, frame []byte) {
			once.Do(func() {
				dev.Pause()
				first <- append([]byte(nil), frame...)
			})
		},
	})

	sine := decoder.Tone(440, 0.5, time.Second, 44100, channels, format.I16)
	u, err := NewUnit(dev, sine, format.I16, 44100, channels)
	require.NoError(t, err)
	require.NoError(t, u.Play())
	spawn.start()

	var frame []byte
	select {
	case frame = <-first:
	case <-time.After(waitFor):
		t.Fatal("no frame rendered")
	}

	require.Len(t, frame, frameSize*channels*2)
	assert.Equal(t, sine[:len(frame)], frame)

	nonZero := 0
	for i := 0; i < len(frame); i += 2 {
		v := mix.Int(frame[i:], format.I16)
		assert.True(t, v >= -32768 && v <= 32767)
		if v != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, frameSize*channels*9/10)

	require.Eventually(t, func() bool { return dev.State() == StatePaused }, waitFor, tick)
	assert.Equal(t, frameSize*channels*2, u.Offset())
	assert.Equal(t, 1, b.Stream("default").FrameCount())
}

func TestScenario_U8AndF32IntoF32(t *testing.T) {
	const frameSize, channels = 64, 2

	var spawn deferredSpawn
	var dev *Device
	var once sync.Once
	first := make(chan []byte, 1)

	dev, _ = configured(t, DeviceConfig{
		Format:     format.F32,
		SampleRate: 22050,
		Channels:   channels,
		FrameSize:  frameSize,
	}, Options{
		Spawn: spawn.spawn,
		Observer: func(_ DeviceConfig, frame []byte) {
			once.Do(func() {
				dev.Pause()
				first <- append([]byte(nil), frame...)
			})
		},
	})

	a := decoder.Tone(330, 0.8, 100*time.Millisecond, 22050, channels, format.F32)
	bu := decoder.Tone(550, 0.9, 100*time.Millisecond, 22050, channels, format.U8)

	ua, err := NewUnit(dev, a, format.F32, 22050, channels)
	require.NoError(t, err)
	ub, err := NewUnit(dev, bu, format.U8, 22050, channels)
	require.NoError(t, err)
	require.NoError(t, ua.Play())
	require.NoError(t, ub.Play())
	assert.Equal(t, 2, dev.Sources())
	spawn.start()

	var frame []byte
	select {
	case frame = <-first:
	case <-time.After(waitFor):
		t.Fatal("no frame rendered")
	}

	for i := range frameSize * channels {
		want := mix.AddF32(mix.Decode(a[i*4:], format.F32), mix.DecodeU8(bu[i]))
		assert.Equal(t, want, mix.Decode(frame[i*4:], format.F32), "sample %d", i)
	}
}

func TestScenario_CloseWhilePaused(t *testing.T) {
	dev, _ := configured(t, DeviceConfig{Format: format.I16, SampleRate: 8000, Channels: 1, FrameSize: 80}, Options{})

	u, err := NewUnit(dev, make([]byte, 8000*2), format.I16, 8000, 1)
	require.NoError(t, err)
	u.SetLoops(-1)
	require.NoError(t, u.Play())

	dev.Pause()
	require.Equal(t, StatePaused, dev.State())
	time.Sleep(30 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- dev.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("close deadlocked on a paused device")
	}

	assert.True(t, reflect.ValueOf(dev).Elem().IsZero())
	assert.Equal(t, domain.StatusUnknown, dev.Status())
	assert.Equal(t, StateClosed, u.State())
	assert.Panics(t, func() { u.Play() })
	assert.Panics(t, func() { u.SetLoops(1) })
	assert.Panics(t, func() { u.Loops() })
	assert.Panics(t, func() { u.Offset() })
	assert.Panics(t, func() { u.Duration() })
	assert.Panics(t, func() { u.Handle() })
	assert.Panics(t, func() { u.StartTime() })
	assert.Panics(t, func() { dev.Sources() })
	assert.NoError(t, dev.Close())
}

func TestClose_UnblocksPendingWrite(t *testing.T) {
	dev, b := configured(t, DeviceConfig{Format: format.I16, SampleRate: 8000, Channels: 1, FrameSize: 80}, Options{})

	u, err := NewUnit(dev, make([]byte, 8000*2), format.I16, 8000, 1)
	require.NoError(t, err)
	u.SetLoops(-1)
	b.Stream("default").Hold()
	require.NoError(t, u.Play())
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- dev.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("close blocked behind a held write")
	}
}

func TestPlay_SpawnFailureIsThreadError(t *testing.T) {
	dev, _ := configured(t, DeviceConfig{Format: format.I16, SampleRate: 8000, Channels: 1, FrameSize: 80}, Options{
		Spawn: func(func()) error { return errors.New("resource temporarily unavailable") },
	})

	u, err := NewUnit(dev, make([]byte, 1600), format.I16, 8000, 1)
	require.NoError(t, err)

	err = u.Play()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrThreadError)
	assert.Equal(t, domain.StatusThreadError, domain.StatusOf(err))

	assert.Equal(t, StateClosed, u.State())
	assert.True(t, u.Handle().IsZero())
	assert.Equal(t, StateClosed, dev.State())
	assert.Zero(t, dev.Sources())
	assert.Empty(t, dev.Units())
	assert.False(t, dev.Rendering())
}

func TestRender_UnderrunIsRecovered(t *testing.T) {
	dev, b := configured(t, DeviceConfig{Format: format.I16, SampleRate: 8000, Channels: 1, FrameSize: 80}, Options{})

	u, err := NewUnit(dev, make([]byte, 8000*2), format.I16, 8000, 1)
	require.NoError(t, err)
	u.SetLoops(-1)

	require.NoError(t, u.Play())
	stream := b.Stream("default")
	stream.InjectError(output.ErrUnderrun, output.ErrUnderrun)

	require.Eventually(t, func() bool { return stream.Recovers() == 2 && stream.FrameCount() > 2 }, waitFor, tick)
	assert.Equal(t, StateRunning, dev.State())
	assert.Equal(t, StateRunning, u.State())
}

func TestRender_FatalWriteClosesDevice(t *testing.T) {
	dev, b := configured(t, DeviceConfig{Format: format.I16, SampleRate: 8000, Channels: 1, FrameSize: 80}, Options{})

	u, err := NewUnit(dev, make([]byte, 8000*2), format.I16, 8000, 1)
	require.NoError(t, err)
	u.SetLoops(-1)

	stream := b.Stream("default")
	stream.InjectError(errors.New("device unplugged"))
	require.NoError(t, u.Play())

	require.Eventually(t, func() bool { return dev.State() == StateClosed }, waitFor, tick)
	assert.Equal(t, StateClosed, u.State())
	assert.False(t, dev.Rendering())

	err = u.Play()
	assert.ErrorIs(t, err, domain.ErrDeviceClosed)

	require.NoError(t, dev.Close())
	assert.True(t, stream.Closed())
}

func TestRender_IdleAndRestart(t *testing.T) {
	dev, b := configured(t, DeviceConfig{Format: format.I16, SampleRate: 8000, Channels: 1, FrameSize: 80}, Options{})

	u, err := NewUnit(dev, make([]byte, 80*2), format.I16, 8000, 1)
	require.NoError(t, err)
	require.NoError(t, u.Play())

	stream := b.Stream("default")
	require.Eventually(t, func() bool { return u.State() == StateClosed && !dev.Rendering() }, waitFor, tick)
	assert.Equal(t, 1, stream.FrameCount())
	assert.Equal(t, StatePaused, dev.State())
	params, _ := stream.Params()

	require.NoError(t, u.Play())
	require.Eventually(t, func() bool { return stream.FrameCount() == 2 && !dev.Rendering() }, waitFor, tick)
	again, _ := stream.Params()
	assert.Equal(t, params, again)
}
