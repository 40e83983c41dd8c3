package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/winramp/mixcore/internal/audio"
	"github.com/winramp/mixcore/internal/audio/decoder"
	"github.com/winramp/mixcore/internal/audio/dsp"
	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/output"
	"github.com/winramp/mixcore/internal/audio/output/malgobackend"
	"github.com/winramp/mixcore/internal/audio/output/otobackend"
	"github.com/winramp/mixcore/internal/config"
	"github.com/winramp/mixcore/internal/domain"
	"github.com/winramp/mixcore/internal/infrastructure/db"
	"github.com/winramp/mixcore/internal/library"
	"github.com/winramp/mixcore/internal/logger"
)

const pollInterval = 20 * time.Millisecond

// Request describes one playback run.
type Request struct {
	Files    []string
	Tone     float64 // Hz, zero for none
	Duration time.Duration
	Loops    int
}

// App wires a backend, a device, the level meter and the profile store.
type App struct {
	settings config.Settings
	backend  output.Backend
	device   *audio.Device
	meter    *dsp.Meter
	database *db.Database
	profiles domain.ProfileRepository
}

func NewApp(s config.Settings) (*App, error) {
	b, err := newBackend(s.Audio)
	if err != nil {
		return nil, err
	}

	a := &App{
		settings: s,
		backend:  b,
		meter:    dsp.NewMeter(),
	}

	if s.Store.Enabled {
		database, err := db.Open(db.DefaultConfig(s.Store.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to open profile store: %w", err)
		}
		a.database = database
		a.profiles = db.NewProfileRepository(database)
	}
	return a, nil
}

func newBackend(a config.AudioConfig) (output.Backend, error) {
	switch a.Backend {
	case "memory":
		return output.NewMemory(output.DefaultCapabilities()), nil
	case "wav":
		return output.NewWAVFile(a.Output), nil
	case "oto":
		return otobackend.New(), nil
	case "malgo":
		return malgobackend.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", a.Backend)
	}
}

// ListDevices prints the backend's playback devices.
func (a *App) ListDevices(w io.Writer) error {
	infos, err := a.backend.Devices()
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEFAULT\tID\tNAME\tCHANNELS")
	for _, info := range infos {
		def := ""
		if info.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", def, info.ID, info.Name, info.MaxChannels)
	}
	return tw.Flush()
}

// ListProfiles prints the negotiated configurations recorded so far.
func (a *App) ListProfiles(w io.Writer) error {
	if a.profiles == nil {
		return errors.New("profile store is disabled")
	}
	profiles, err := a.profiles.List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tDEVICE\tLAYOUT\tFRAME\tREQUESTED\tUSES\tLAST USED")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			p.Backend, p.Device, p.Layout(), p.FrameSize, p.Requested, p.Uses,
			p.LastUsed.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	stats, err := a.database.GetStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d profiles, %d bytes, journal %s\n",
		stats["profiles_count"], stats["size_bytes"], stats["journal_mode"])
	return nil
}

// BackupProfiles writes a consistent copy of the profile store to path.
func (a *App) BackupProfiles(path string) error {
	if a.database == nil {
		return errors.New("profile store is disabled")
	}
	return a.database.Backup(path)
}

func (a *App) open() error {
	opts := a.settings.Audio.Options()
	opts.Observer = func(cfg audio.DeviceConfig, frame []byte) {
		a.meter.Observe(cfg.Format, frame)
	}

	var (
		dev *audio.Device
		err error
	)
	if name := a.settings.Audio.Device; name != "" {
		dev, err = audio.OpenID(a.backend, name, opts)
	} else {
		dev, err = audio.Open(a.backend, opts)
	}
	if err != nil {
		return err
	}
	a.device = dev

	if a.settings.Audio.Explicit() {
		want, err := a.settings.Audio.DeviceConfig()
		if err != nil {
			return err
		}
		cfg, err := dev.ConfigInit(audio.DevicePlayback)
		if err != nil {
			return err
		}
		*cfg = want
	}
	return nil
}

// Run opens the device, plays every source and waits until they finish or
// ctx is cancelled.
func (a *App) Run(ctx context.Context, req Request) error {
	if len(req.Files) == 0 && req.Tone <= 0 {
		return errors.New("nothing to play: pass audio files or -tone")
	}
	if err := a.open(); err != nil {
		return err
	}

	units, err := a.load(ctx, req)
	if err != nil {
		return err
	}
	requested := a.device.Config()

	for _, u := range units {
		u.SetLoops(req.Loops)
		if err := u.Play(); err != nil {
			return fmt.Errorf("failed to start playback: %w", err)
		}
	}
	a.recordProfile(requested)

	err = a.wait(ctx)
	for _, u := range units {
		if a.device.Status() == domain.StatusSuccess {
			u.Close()
		}
	}
	return err
}

// load decodes files and directories into units. Sources that fail to
// decode, or whose rate differs from the first source, are skipped.
func (a *App) load(ctx context.Context, req Request) ([]*audio.Unit, error) {
	var units []*audio.Unit

	if len(req.Files) > 0 {
		res, err := library.NewScanner(nil).Scan(ctx, req.Files...)
		if err != nil {
			return nil, err
		}
		for _, err := range res.Errors {
			logger.Warn("skipping source", logger.Error(err))
		}

		for _, src := range res.Sources {
			buf := src.Buffer
			u, err := audio.NewUnit(a.device, buf.Data, buf.Format, buf.SampleRate, buf.Channels)
			if errors.Is(err, domain.ErrRateMismatch) {
				logger.Warn("skipping file", logger.String("path", src.Path), logger.Error(err))
				continue
			}
			if err != nil {
				return nil, err
			}

			fields := []logger.Field{logger.String("path", src.Path), logger.Duration("duration", u.Duration())}
			if md := buf.Metadata; md != nil && md.Title != "" {
				fields = append(fields, logger.String("title", md.Title), logger.String("artist", md.Artist))
			}
			logger.Info("source loaded", fields...)
			units = append(units, u)
		}
	}

	if req.Tone > 0 {
		f, rate, channels := a.toneLayout()
		data := decoder.Tone(req.Tone, 0.5, req.Duration, rate, channels, f)
		u, err := audio.NewUnit(a.device, data, f, rate, channels)
		if err != nil {
			return nil, fmt.Errorf("failed to create tone: %w", err)
		}
		units = append(units, u)
	}

	if len(units) == 0 {
		return nil, errors.New("no playable sources")
	}
	return units, nil
}

// toneLayout follows the device configuration where one is pending.
func (a *App) toneLayout() (format.SampleFormat, int, int) {
	cfg := a.device.Config()

	f := cfg.Format
	if !f.IsNative() {
		f = format.I16
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = 44100
	}
	channels := cfg.Channels
	if channels == 0 {
		channels = 2
	}
	return f, rate, channels
}

func (a *App) wait(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted")
			return nil
		case <-ticker.C:
		}

		if a.device.State() == audio.StateClosed {
			return fmt.Errorf("%w: output stream failed", domain.ErrDeviceClosed)
		}
		if a.device.Sources() == 0 && !a.device.Rendering() {
			return nil
		}
	}
}

func (a *App) recordProfile(requested audio.DeviceConfig) {
	if a.profiles == nil || !a.device.Negotiated() {
		return
	}
	got := a.device.Config()

	p, err := domain.NewProfile(a.backend.Name(), a.device.Name())
	if err != nil {
		logger.Warn("cannot record device profile", logger.Error(err))
		return
	}
	p.Format = got.Format.String()
	p.SampleRate = got.SampleRate
	p.Channels = got.Channels
	p.FrameSize = got.FrameSize
	p.Requested = fmt.Sprintf("%s/%d/%d", requested.Format, requested.SampleRate, requested.Channels)
	p.Fallback = (requested.Format != format.FormatUnknown && requested.Format != got.Format) ||
		(requested.SampleRate > 0 && requested.SampleRate != got.SampleRate) ||
		(requested.Channels > 0 && requested.Channels != got.Channels)

	if err := a.profiles.Save(p); err != nil {
		logger.Warn("failed to record device profile", logger.Error(err))
		return
	}
	logger.Debug("device profile recorded",
		logger.String("layout", p.Layout()),
		logger.Bool("fallback", p.Fallback))
}

// Levels returns the output levels metered so far.
func (a *App) Levels() dsp.Levels {
	return a.meter.Levels()
}

// Close releases the device, the backend and the store. It is safe to call
// more than once.
func (a *App) Close() error {
	var errs []error
	if a.device != nil {
		errs = append(errs, a.device.Close())
		a.device = nil
	}
	if c, ok := a.backend.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.database != nil {
		errs = append(errs, a.database.Close())
		a.database = nil
	}
	return errors.Join(errs...)
}
