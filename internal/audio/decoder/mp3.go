package decoder

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
)

// mp3Channels is fixed: go-mp3 always outputs 16-bit little-endian stereo.
const mp3Channels = 2

// LoadMP3 decodes an MP3 stream into stereo I16.
func LoadMP3(r io.ReadSeeker) (*Buffer, error) {
	md, _ := ReadMetadata(r)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind: %w", err)
	}

	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	const stride = mp3Channels * 2
	data := make([]byte, len(raw)-len(raw)%stride)
	for i := 0; i < len(data); i += 2 {
		mix.PutInt(data[i:], format.I16, int(int16(binary.LittleEndian.Uint16(raw[i:]))))
	}

	return &Buffer{
		Data:       data,
		Format:     format.I16,
		SampleRate: d.SampleRate(),
		Channels:   mp3Channels,
		Metadata:   md,
	}, nil
}
