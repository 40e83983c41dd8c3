package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winramp/mixcore/internal/domain"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "profiles.db"))
	cfg.LogLevel = "silent"
	d, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func newProfile(t *testing.T, backend, device string, rate int) *domain.Profile {
	t.Helper()
	p, err := domain.NewProfile(backend, device)
	require.NoError(t, err)
	p.Format, p.SampleRate, p.Channels, p.FrameSize = "s16le", rate, 2, 512
	return p
}

func TestProfileRepository_SaveUpserts(t *testing.T) {
	repo := NewProfileRepository(openTestDB(t))

	first := newProfile(t, "malgo", "hw:0", 44100)
	require.NoError(t, repo.Save(first))

	second := newProfile(t, "malgo", "hw:0", 48000)
	second.Fallback = true
	second.Requested = "s16le/96000/2"
	require.NoError(t, repo.Save(second))

	got, err := repo.Find("malgo", "hw:0")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 48000, got.SampleRate)
	assert.Equal(t, 2, got.Uses)
	assert.True(t, got.Fallback)
	assert.Equal(t, "s16le/96000/2", got.Requested)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProfileRepository_Validation(t *testing.T) {
	repo := NewProfileRepository(openTestDB(t))

	p, err := domain.NewProfile("oto", "default")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(p), domain.ErrInvalidProfile)
}

func TestProfileRepository_ListFindDelete(t *testing.T) {
	repo := NewProfileRepository(openTestDB(t))

	require.NoError(t, repo.Save(newProfile(t, "oto", "default", 44100)))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Save(newProfile(t, "wav", "out.wav", 22050)))

	list, err := repo.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wav", list[0].Backend, "most recently used first")

	_, err = repo.Find("malgo", "default")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	require.NoError(t, repo.Delete("oto", "default"))
	assert.ErrorIs(t, repo.Delete("oto", "default"), domain.ErrProfileNotFound)
}

func TestDatabase_StatsAndBackup(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, NewProfileRepository(d).Save(newProfile(t, "memory", "default", 8000)))

	stats, err := d.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["profiles_count"])
	assert.Equal(t, "wal", stats["journal_mode"])

	backup := filepath.Join(t.TempDir(), "backup", "profiles.db")
	require.NoError(t, d.Backup(backup))

	restored, err := Open(DefaultConfig(backup))
	require.NoError(t, err)
	defer restored.Close()
	n, err := NewProfileRepository(restored).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, err = d.GetStats()
	assert.Error(t, err)
}
