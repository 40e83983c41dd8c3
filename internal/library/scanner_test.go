package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Initialize(logger.Config{Level: "error", Console: true})
	os.Exit(m.Run())
}

// writeWAV writes a mono 16-bit file of frames samples at 8 kHz.
func writeWAV(t *testing.T, path string, frames int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestScan_Directory(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "a.wav"), 800)
	writeWAV(t, filepath.Join(root, "b.wav"), 1600)
	writeWAV(t, filepath.Join(root, "sub", "c.wav"), 400)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	writeWAV(t, filepath.Join(root, "d.wav.partial"), 400)

	res, err := NewScanner(nil, WithWorkers(2)).Scan(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, res.Sources, 3)
	assert.Equal(t, 3, res.TotalFiles)
	assert.Zero(t, res.FailedFiles)
	assert.Equal(t, filepath.Join(root, "a.wav"), res.Sources[0].Path)
	assert.Equal(t, filepath.Join(root, "b.wav"), res.Sources[1].Path)
	assert.Equal(t, filepath.Join(root, "sub", "c.wav"), res.Sources[2].Path)

	buf := res.Sources[1].Buffer
	assert.Equal(t, format.I16, buf.Format)
	assert.Equal(t, 8000, buf.SampleRate)
	assert.Equal(t, 1600, buf.Frames())
}

func TestScan_NotRecursive(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "a.wav"), 80)
	writeWAV(t, filepath.Join(root, "sub", "b.wav"), 80)

	res, err := NewScanner(nil, WithRecursive(false)).Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, filepath.Join(root, "a.wav"), res.Sources[0].Path)
}

func TestScan_ExplicitFilesKeepArgumentOrder(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.wav")
	b := filepath.Join(root, "b.wav")
	writeWAV(t, a, 80)
	writeWAV(t, b, 80)

	res, err := NewScanner(nil).Scan(context.Background(), b, a)
	require.NoError(t, err)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, b, res.Sources[0].Path)
	assert.Equal(t, a, res.Sources[1].Path)
}

func TestScan_FailuresAreCollected(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "good.wav"), 80)
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.wav"), []byte("not a wave file"), 0o644))
	text := filepath.Join(root, "readme.txt")
	require.NoError(t, os.WriteFile(text, []byte("x"), 0o644))

	res, err := NewScanner(nil).Scan(context.Background(), root, text)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 3, res.TotalFiles)
	assert.Equal(t, 2, res.FailedFiles)
	assert.Len(t, res.Errors, 2)
}

func TestScan_DurationBounds(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "short.wav"), 80)  // 10ms
	writeWAV(t, filepath.Join(root, "mid.wav"), 800)   // 100ms
	writeWAV(t, filepath.Join(root, "long.wav"), 8000) // 1s

	s := NewScanner(nil, WithDurationBounds(50*time.Millisecond, 500*time.Millisecond))
	res, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, filepath.Join(root, "mid.wav"), res.Sources[0].Path)
	assert.Equal(t, 2, res.SkippedFiles)
}

func TestScan_Errors(t *testing.T) {
	s := NewScanner(nil)

	_, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "a.wav"), 80)
	_, err = s.Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)

	assert.False(t, s.IsScanning())
	assert.Empty(t, s.CurrentFile())
	s.Cancel()
}

func TestIsExcluded(t *testing.T) {
	s := NewScanner(nil, WithExclude("skip_*"))
	assert.True(t, s.isExcluded("/music/x.TMP"))
	assert.True(t, s.isExcluded("/music/skip_me.wav"))
	assert.False(t, s.isExcluded("/music/keep.wav"))
}
