package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/winramp/mixcore/internal/domain"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *Database) domain.ProfileRepository {
	return &ProfileRepository{
		db: database.DB(),
	}
}

// Save inserts p, or updates the stored profile for the same backend and
// device and bumps its use count.
func (r *ProfileRepository) Save(p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	p.LastUsed = time.Now().UTC()
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "backend"}, {Name: "device"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"format":      p.Format,
			"sample_rate": p.SampleRate,
			"channels":    p.Channels,
			"frame_size":  p.FrameSize,
			"requested":   p.Requested,
			"fallback":    p.Fallback,
			"last_used":   p.LastUsed,
			"updated_at":  p.LastUsed,
			"uses":        gorm.Expr("uses + 1"),
		}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) Find(backend, device string) (*domain.Profile, error) {
	var p domain.Profile
	if err := r.db.First(&p, "backend = ? AND device = ?", backend, device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return &p, nil
}

// List returns all profiles, most recently used first.
func (r *ProfileRepository) List() ([]*domain.Profile, error) {
	var profiles []*domain.Profile
	if err := r.db.Order("last_used DESC").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

func (r *ProfileRepository) Delete(backend, device string) error {
	result := r.db.Delete(&domain.Profile{}, "backend = ? AND device = ?", backend, device)
	if result.Error != nil {
		return fmt.Errorf("failed to delete profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (r *ProfileRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&domain.Profile{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}
