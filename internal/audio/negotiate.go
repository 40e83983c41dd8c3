package audio

import (
	"fmt"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/output"
	"github.com/winramp/mixcore/internal/domain"
	"github.com/winramp/mixcore/internal/logger"
)

// Preferences are the fallback tables walked when the hardware rejects a
// requested value.
type Preferences struct {
	Formats          []format.SampleFormat
	Rates            []int
	FallbackChannels int
}

// DefaultPreferences returns the standard tables from the format package.
func DefaultPreferences() Preferences {
	return Preferences{
		Formats:          format.Priority(),
		Rates:            format.Rates,
		FallbackChannels: format.FallbackChannels,
	}
}

func (p Preferences) withDefaults() Preferences {
	d := DefaultPreferences()
	if len(p.Formats) == 0 {
		p.Formats = d.Formats
	}
	if len(p.Rates) == 0 {
		p.Rates = d.Rates
	}
	if p.FallbackChannels <= 0 {
		p.FallbackChannels = d.FallbackChannels
	}
	return p
}

// negotiate settles want against what the stream accepts and configures the
// stream. Fallback formats are never wider than the requested one, fallback
// rates never higher. With nativeOnly set, foreign-endian fallbacks are
// skipped because units cannot be mixed into them.
func negotiate(s output.Stream, want DeviceConfig, prefs Preferences, nativeOnly bool, log *logger.LoggerContext) (DeviceConfig, error) {
	prefs = prefs.withDefaults()
	got := want

	if got.Format == format.FormatUnknown {
		got.Format = prefs.Formats[0]
	}
	if !s.SupportsFormat(got.Format) {
		picked := format.FormatUnknown
		for _, f := range prefs.Formats {
			if f.Size() > got.Format.Size() || (nativeOnly && !f.IsNative()) {
				continue
			}
			if s.SupportsFormat(f) {
				picked = f
				break
			}
		}
		if picked == format.FormatUnknown {
			return want, domain.NewDomainErrorWithDetails(domain.ErrCodeFormat,
				"no acceptable sample format", got.Format.String(), domain.ErrFormatNotSupported)
		}
		log.Info("sample format fallback",
			logger.String("requested", got.Format.String()),
			logger.String("format", picked.String()))
		got.Format = picked
	}

	if got.Channels <= 0 {
		got.Channels = prefs.FallbackChannels
	}
	if !s.SupportsChannels(got.Channels) {
		if !s.SupportsChannels(prefs.FallbackChannels) {
			return want, domain.NewDomainErrorWithDetails(domain.ErrCodeFormat,
				"no acceptable channel count", fmt.Sprint(got.Channels), domain.ErrFormatNotSupported)
		}
		log.Info("channel count fallback",
			logger.Int("requested", got.Channels),
			logger.Int("channels", prefs.FallbackChannels))
		got.Channels = prefs.FallbackChannels
	}

	if got.SampleRate <= 0 || !s.SupportsRate(got.SampleRate) {
		picked := 0
		for _, r := range prefs.Rates {
			if got.SampleRate > 0 && r > got.SampleRate {
				continue
			}
			if s.SupportsRate(r) {
				picked = r
				break
			}
		}
		if picked == 0 {
			return want, domain.NewDomainErrorWithDetails(domain.ErrCodeFormat,
				"no acceptable sample rate", fmt.Sprint(got.SampleRate), domain.ErrFormatNotSupported)
		}
		if got.SampleRate > 0 {
			log.Info("sample rate fallback",
				logger.Int("requested", got.SampleRate),
				logger.Int("rate", picked))
		}
		got.SampleRate = picked
	}

	if got.FrameSize <= 0 {
		got.FrameSize = s.PeriodSize()
	}

	err := s.Configure(output.Params{
		Format:     got.Format,
		Channels:   got.Channels,
		SampleRate: got.SampleRate,
		PeriodSize: got.FrameSize,
		Access:     format.AccessRWInterleaved,
	})
	if err != nil {
		return want, domain.NewDomainError(domain.ErrCodeAudioDevice,
			fmt.Sprintf("failed to configure stream: %v", err), err)
	}
	return got, nil
}
