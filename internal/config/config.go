package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/winramp/mixcore/internal/audio"
	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/logger"
)

// Backends lists the accepted values of audio.backend.
var Backends = []string{"memory", "wav", "oto", "malgo"}

// Settings is the decoded configuration tree.
type Settings struct {
	Audio AudioConfig `mapstructure:"audio"`
	Log   LogConfig   `mapstructure:"log"`
	Store StoreConfig `mapstructure:"store"`
}

// Config wraps the viper instance the settings were read from. Settings
// may be replaced by a reload; read them through Current.
type Config struct {
	Settings `mapstructure:",squash"`
	v        *viper.Viper
	mu       sync.RWMutex
}

type AudioConfig struct {
	Backend       string        `mapstructure:"backend"`
	Device        string        `mapstructure:"device"`
	Output        string        `mapstructure:"output"` // wav backend target file
	Format        string        `mapstructure:"format"`
	SampleRate    int           `mapstructure:"sample_rate"`
	Channels      int           `mapstructure:"channels"`
	FrameSize     int           `mapstructure:"frame_size"`
	SafetyMargin  time.Duration `mapstructure:"safety_margin"`
	PauseWhenIdle bool          `mapstructure:"pause_when_idle"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	JSON       bool   `mapstructure:"json"`
	Caller     bool   `mapstructure:"caller"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads the configuration. An empty path searches the user and system
// config directories and the working directory for config.yaml; finding
// none there is not an error. Environment variables prefixed MIXCORE_
// override file values, e.g. MIXCORE_AUDIO_SAMPLE_RATE.
func Load(path string) (*Config, error) {
	c := &Config{v: viper.New()}

	if path != "" {
		c.v.SetConfigFile(path)
	} else {
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(getUserConfigDir())
		c.v.AddConfigPath(getSystemConfigDir())
		c.v.AddConfigPath(".")
	}

	c.v.SetEnvPrefix("MIXCORE")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	setDefaults(c.v)

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := c.v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Settings.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	// Audio defaults
	v.SetDefault("audio.backend", "oto")
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.output", "mixcore.wav")
	v.SetDefault("audio.format", "")
	v.SetDefault("audio.sample_rate", 0)
	v.SetDefault("audio.channels", 0)
	v.SetDefault("audio.frame_size", 0)
	v.SetDefault("audio.safety_margin", audio.DefaultSafetyMargin)
	v.SetDefault("audio.pause_when_idle", true)

	// Log defaults
	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.console", lc.Console)
	v.SetDefault("log.file", lc.File)
	v.SetDefault("log.file_path", lc.FilePath)
	v.SetDefault("log.max_size", lc.MaxSize)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age", lc.MaxAge)
	v.SetDefault("log.compress", lc.Compress)
	v.SetDefault("log.json", lc.JSONFormat)
	v.SetDefault("log.caller", lc.Caller)

	// Store defaults
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", filepath.Join(getDataDir(), "profiles.db"))
}

// Validate checks values viper cannot type-check.
func (s Settings) Validate() error {
	a := s.Audio
	if !slices.Contains(Backends, a.Backend) {
		return fmt.Errorf("invalid audio.backend %q: want one of %s", a.Backend, strings.Join(Backends, ", "))
	}
	if a.Format != "" {
		if _, err := format.Parse(a.Format); err != nil {
			return fmt.Errorf("invalid audio.format: %w", err)
		}
	}
	if a.SampleRate < 0 || a.Channels < 0 || a.FrameSize < 0 || a.SafetyMargin < 0 {
		return errors.New("audio.sample_rate, channels, frame_size and safety_margin must not be negative")
	}
	return nil
}

// Current returns a copy of the settings.
func (c *Config) Current() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// Watch reloads the settings whenever the config file changes and passes
// the new values to onChange. Changes that fail validation are logged and
// ignored.
func (c *Config) Watch(onChange func(Settings)) {
	c.v.OnConfigChange(func(e fsnotify.Event) {
		var next Settings
		if err := c.v.Unmarshal(&next); err != nil {
			logger.ErrorLog("failed to reload config", logger.String("file", e.Name), logger.Error(err))
			return
		}
		if err := next.Validate(); err != nil {
			logger.ErrorLog("ignoring invalid config", logger.String("file", e.Name), logger.Error(err))
			return
		}

		c.mu.Lock()
		c.Settings = next
		c.mu.Unlock()

		logger.Info("config reloaded", logger.String("file", e.Name), logger.String("op", e.Op.String()))
		if onChange != nil {
			onChange(next)
		}
	})
	c.v.WatchConfig()
}

// File returns the config file in use, empty when running on defaults.
func (c *Config) File() string {
	return c.v.ConfigFileUsed()
}

// SaveAs writes the effective configuration to path.
func (c *Config) SaveAs(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return c.v.WriteConfigAs(path)
}

func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetDuration(key)
}

// Set overrides a key, as command-line flags do, and re-decodes the settings.
func (c *Config) Set(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(key, value)

	var next Settings
	if err := c.v.Unmarshal(&next); err != nil {
		return fmt.Errorf("failed to apply %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	c.Settings = next
	return nil
}

// DeviceConfig converts the audio section. Zero values are left for
// negotiation to fill in.
func (a AudioConfig) DeviceConfig() (audio.DeviceConfig, error) {
	cfg := audio.DeviceConfig{
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		FrameSize:  a.FrameSize,
	}
	if a.Format != "" {
		f, err := format.Parse(a.Format)
		if err != nil {
			return cfg, err
		}
		cfg.Format = f
	}
	return cfg, nil
}

// Explicit reports whether any stream parameter is pinned by configuration.
func (a AudioConfig) Explicit() bool {
	return a.Format != "" || a.SampleRate > 0 || a.Channels > 0 || a.FrameSize > 0
}

// Options converts the audio section into device options.
func (a AudioConfig) Options() audio.Options {
	return audio.Options{
		SafetyMargin:      a.SafetyMargin,
		KeepAliveWhenIdle: !a.PauseWhenIdle,
	}
}

// LoggerConfig converts the log section.
func (l LogConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Console:    l.Console,
		File:       l.File,
		FilePath:   l.FilePath,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
		Compress:   l.Compress,
		JSONFormat: l.JSON,
		Caller:     l.Caller,
	}
}

func getUserConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mixcore")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "mixcore")
}

func getSystemConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("ProgramData"), "mixcore")
	}
	return "/etc/mixcore"
}

func getDataDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "mixcore")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "mixcore")
}
