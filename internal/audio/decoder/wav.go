package decoder

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
)

const wavPCM = 1

// LoadWAV decodes an integer PCM WAV file. 8-bit files stay unsigned U8,
// wider depths are widened to the next native integer format.
func LoadWAV(r io.ReadSeeker) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrInvalidData)
	}
	if d.WavAudioFormat != wavPCM {
		return nil, fmt.Errorf("%w: WAV encoding %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	bits := int(d.BitDepth)
	f := format.U8
	if bits > 8 {
		f = intFormat(bits)
	}
	shift := 0
	if f != format.U8 {
		shift = f.Bits() - bits
	}

	size := f.Size()
	data := make([]byte, len(pcm.Data)*size)
	for i, v := range pcm.Data {
		mix.PutInt(data[i*size:], f, v<<shift)
	}

	return &Buffer{
		Data:       data,
		Format:     f,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}, nil
}
