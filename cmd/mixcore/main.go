package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/winramp/mixcore/internal/config"
	"github.com/winramp/mixcore/internal/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		version    = flag.Bool("version", false, "Show version information")
		backend    = flag.String("backend", "", "Output backend (memory, wav, oto, malgo)")
		device     = flag.String("device", "", "Output device name or ID, empty for the default")
		out        = flag.String("out", "", "Target file for the wav backend")
		list       = flag.Bool("list", false, "List output devices and exit")
		profiles   = flag.Bool("profiles", false, "List recorded device profiles and exit")
		backup     = flag.String("backup", "", "Copy the profile store to this file and exit")
		tone       = flag.Float64("tone", 0, "Also play a sine tone of this frequency in Hz")
		duration   = flag.Duration("duration", 2*time.Second, "Length of the -tone signal")
		loops      = flag.Int("loops", 0, "Extra passes per source, negative to repeat until interrupted")
		meter      = flag.Bool("meter", false, "Print output peak and RMS levels when done")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [file.wav|file.mp3|file.flac ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Show version and exit
	if *version {
		fmt.Printf("mixcore %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mixcore: %v\n", err)
		os.Exit(2)
	}

	// Flags override the file and environment
	overrides := map[string]string{
		"log.level":     *logLevel,
		"audio.backend": *backend,
		"audio.device":  *device,
		"audio.output":  *out,
	}
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := cfg.Set(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "mixcore: %v\n", err)
			os.Exit(2)
		}
	}

	settings := cfg.Current()
	logger.Initialize(settings.Log.LoggerConfig())
	defer logger.Get().Close()

	logger.Info("mixcore starting",
		logger.String("version", Version),
		logger.String("build_time", BuildTime),
		logger.String("config", cfg.File()),
	)

	if cfg.File() != "" {
		cfg.Watch(func(s config.Settings) {
			if err := logger.Get().SetLevel(s.Log.Level); err != nil {
				logger.Warn("invalid log level in reloaded config", logger.Error(err))
			}
		})
	}

	app, err := NewApp(settings)
	if err != nil {
		logger.Fatal("Failed to initialize", logger.Error(err))
	}
	defer app.Close()

	switch {
	case *list:
		err = app.ListDevices(os.Stdout)
	case *profiles:
		err = app.ListProfiles(os.Stdout)
	case *backup != "":
		err = app.BackupProfiles(*backup)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = app.Run(ctx, Request{
			Files:    flag.Args(),
			Tone:     *tone,
			Duration: *duration,
			Loops:    *loops,
		})
		if err == nil && *meter {
			fmt.Println(app.Levels())
		}
	}

	if err != nil {
		logger.ErrorLog("mixcore failed", logger.Error(err))
		app.Close()
		os.Exit(1)
	}
}
