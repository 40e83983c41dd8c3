package decoder

import (
	"fmt"
	"io"

	"github.com/dhowden/tag"
)

// ReadMetadata reads ID3, MP4 or FLAC tags from r.
func ReadMetadata(r io.ReadSeeker) (*Metadata, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	md := &Metadata{
		Title:       m.Title(),
		Artist:      m.Artist(),
		Album:       m.Album(),
		AlbumArtist: m.AlbumArtist(),
		Genre:       m.Genre(),
		Year:        m.Year(),
		Comment:     m.Comment(),
	}
	md.TrackNumber, _ = m.Track()
	md.DiscNumber, _ = m.Disc()
	if pic := m.Picture(); pic != nil {
		md.AlbumArtMIME = pic.MIMEType
	}
	return md, nil
}
