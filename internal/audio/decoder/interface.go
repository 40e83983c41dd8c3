// Package decoder loads audio files into the interleaved native-endian PCM
// buffers that units play from.
package decoder

import (
	"errors"
	"io"
	"time"

	"github.com/winramp/mixcore/internal/audio/format"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidData       = errors.New("invalid audio data")
)

// Metadata contains track metadata extracted from the audio file
type Metadata struct {
	Title        string
	Artist       string
	Album        string
	AlbumArtist  string
	Genre        string
	Year         int
	TrackNumber  int
	DiscNumber   int
	Comment      string
	AlbumArtMIME string
}

// Buffer is a fully decoded file. Data holds interleaved samples of Format.
type Buffer struct {
	Data       []byte
	Format     format.SampleFormat
	SampleRate int
	Channels   int
	Metadata   *Metadata
}

// Loader decodes a whole stream into a Buffer.
type Loader func(r io.ReadSeeker) (*Buffer, error)

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	stride := b.Channels * b.Format.Size()
	if stride == 0 {
		return 0
	}
	return len(b.Data) / stride
}

// Duration returns the playback time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// intFormat picks the narrowest native integer format holding bits.
func intFormat(bits int) format.SampleFormat {
	switch {
	case bits <= 16:
		return format.I16
	case bits <= 24:
		return format.I24
	default:
		return format.I32
	}
}
