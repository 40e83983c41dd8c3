package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winramp/mixcore/internal/audio"
	"github.com/winramp/mixcore/internal/audio/format"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
audio:
  backend: wav
  output: /tmp/out.wav
  format: f32
  sample_rate: 48000
  channels: 2
  frame_size: 256
  safety_margin: 3ms
  pause_when_idle: false
log:
  level: debug
  json: true
store:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File())

	s := cfg.Current()
	assert.Equal(t, "wav", s.Audio.Backend)
	assert.Equal(t, "/tmp/out.wav", s.Audio.Output)
	assert.Equal(t, 3*time.Millisecond, s.Audio.SafetyMargin)
	assert.False(t, s.Store.Enabled)
	assert.NotEmpty(t, s.Store.Path)

	dc, err := s.Audio.DeviceConfig()
	require.NoError(t, err)
	assert.Equal(t, audio.DeviceConfig{Format: format.F32, SampleRate: 48000, Channels: 2, FrameSize: 256}, dc)
	assert.True(t, s.Audio.Explicit())

	opts := s.Audio.Options()
	assert.True(t, opts.KeepAliveWhenIdle)
	assert.Equal(t, 3*time.Millisecond, opts.SafetyMargin)

	lc := s.Log.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.JSONFormat)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	s := cfg.Current()
	assert.Equal(t, "oto", s.Audio.Backend)
	assert.True(t, s.Audio.PauseWhenIdle)
	assert.Equal(t, audio.DefaultSafetyMargin, s.Audio.SafetyMargin)
	assert.False(t, s.Audio.Explicit())
	assert.Equal(t, "info", s.Log.Level)
	assert.True(t, s.Store.Enabled)

	dc, err := s.Audio.DeviceConfig()
	require.NoError(t, err)
	assert.Equal(t, audio.DeviceConfig{}, dc)
	assert.False(t, s.Audio.Options().KeepAliveWhenIdle)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "audio:\n  sample_rate: 44100\n")
	t.Setenv("MIXCORE_AUDIO_SAMPLE_RATE", "22050")
	t.Setenv("MIXCORE_AUDIO_BACKEND", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, cfg.Current().Audio.SampleRate)
	assert.Equal(t, "memory", cfg.Current().Audio.Backend)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"backend":  "audio:\n  backend: alsa\n",
		"format":   "audio:\n  format: s20\n",
		"negative": "audio:\n  channels: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	cfg, err := Load(writeConfig(t, "audio:\n  backend: memory\n"))
	require.NoError(t, err)

	require.NoError(t, cfg.Set("audio.format", "s16"))
	assert.Equal(t, "s16", cfg.Current().Audio.Format)
	assert.Equal(t, "s16", cfg.GetString("audio.format"))
	assert.Equal(t, audio.DefaultSafetyMargin, cfg.GetDuration("audio.safety_margin"))

	assert.Error(t, cfg.Set("audio.backend", "jack"))
	assert.Equal(t, "memory", cfg.Current().Audio.Backend)
}

func TestSaveAs(t *testing.T) {
	cfg, err := Load(writeConfig(t, "audio:\n  backend: memory\n  sample_rate: 8000\n"))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "saved.yaml")
	require.NoError(t, cfg.SaveAs(out))

	again, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Current().Audio, again.Current().Audio)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "audio:\n  backend: memory\n  sample_rate: 8000\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	var rate atomic.Int64
	cfg.Watch(func(s Settings) { rate.Store(int64(s.Audio.SampleRate)) })

	require.NoError(t, os.WriteFile(path, []byte("audio:\n  backend: memory\n  sample_rate: 16000\n"), 0o644))
	require.Eventually(t, func() bool { return rate.Load() == 16000 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 16000, cfg.Current().Audio.SampleRate)
}
