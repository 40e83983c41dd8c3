package decoder

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/meta"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
)

// LoadFLAC decodes a FLAC stream into the narrowest native integer format
// that holds its bit depth.
func LoadFLAC(r io.ReadSeeker) (*Buffer, error) {
	stream, err := flac.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	info := stream.Info
	bits := int(info.BitsPerSample)
	channels := int(info.NChannels)
	f := intFormat(bits)
	shift := f.Bits() - bits
	size := f.Size()

	data := make([]byte, 0, int(info.NSamples)*channels*size)
	sample := make([]byte, size)
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse FLAC frame: %v", ErrInvalidData, err)
		}

		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				mix.PutInt(sample, f, int(frame.Subframes[ch].Samples[i])<<shift)
				data = append(data, sample...)
			}
		}
	}

	return &Buffer{
		Data:       data,
		Format:     f,
		SampleRate: int(info.SampleRate),
		Channels:   channels,
		Metadata:   vorbisMetadata(stream.Blocks),
	}, nil
}

// vorbisMetadata reads the Vorbis comment and picture blocks. It returns
// nil when the stream carries neither.
func vorbisMetadata(blocks []*meta.Block) *Metadata {
	var md *Metadata
	for _, block := range blocks {
		switch b := block.Body.(type) {
		case *meta.VorbisComment:
			if md == nil {
				md = &Metadata{}
			}
			for _, tag := range b.Tags {
				value := tag[1]
				switch strings.ToUpper(tag[0]) {
				case "TITLE":
					md.Title = value
				case "ARTIST":
					md.Artist = value
				case "ALBUM":
					md.Album = value
				case "ALBUMARTIST":
					md.AlbumArtist = value
				case "GENRE":
					md.Genre = value
				case "DATE", "YEAR":
					if len(value) >= 4 {
						md.Year, _ = strconv.Atoi(value[:4])
					}
				case "TRACKNUMBER":
					md.TrackNumber = leadingInt(value)
				case "DISCNUMBER":
					md.DiscNumber = leadingInt(value)
				case "COMMENT":
					md.Comment = value
				}
			}
		case *meta.Picture:
			if md == nil {
				md = &Metadata{}
			}
			md.AlbumArtMIME = b.MIME
		}
	}
	return md
}

// leadingInt parses "3" and "3/12" alike.
func leadingInt(s string) int {
	s, _, _ = strings.Cut(s, "/")
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
