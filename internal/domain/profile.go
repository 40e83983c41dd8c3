package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidProfile  = errors.New("invalid device profile")
	ErrProfileNotFound = errors.New("device profile not found")
)

// Profile records the stream configuration a device negotiated, keyed by
// backend and device name.
type Profile struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Backend    string    `json:"backend" gorm:"uniqueIndex:idx_profiles_device;not null"`
	Device     string    `json:"device" gorm:"uniqueIndex:idx_profiles_device;not null"`
	Format     string    `json:"format"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	FrameSize  int       `json:"frame_size"`
	Requested  string    `json:"requested"` // requested layout, e.g. "s16le/44100/2"
	Fallback   bool      `json:"fallback"`
	Uses       int       `json:"uses" gorm:"default:1"`
	LastUsed   time.Time `json:"last_used" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewProfile(backend, device string) (*Profile, error) {
	if backend == "" || device == "" {
		return nil, fmt.Errorf("%w: backend and device are required", ErrInvalidProfile)
	}

	now := time.Now()
	return &Profile{
		ID:        uuid.NewString(),
		Backend:   backend,
		Device:    device,
		Uses:      1,
		LastUsed:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p *Profile) Validate() error {
	if p.Backend == "" || p.Device == "" {
		return fmt.Errorf("%w: backend and device are required", ErrInvalidProfile)
	}
	if p.SampleRate <= 0 || p.Channels <= 0 || p.FrameSize <= 0 {
		return fmt.Errorf("%w: %d Hz, %d channels, %d frames", ErrInvalidProfile,
			p.SampleRate, p.Channels, p.FrameSize)
	}
	return nil
}

// Layout formats the negotiated stream as format/rate/channels.
func (p *Profile) Layout() string {
	return fmt.Sprintf("%s/%d/%d", p.Format, p.SampleRate, p.Channels)
}

type ProfileRepository interface {
	Save(p *Profile) error
	Find(backend, device string) (*Profile, error)
	List() ([]*Profile, error)
	Delete(backend, device string) error
	Count() (int64, error)
}
