package decoder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/winramp/mixcore/internal/logger"
)

// Registry maps file extensions to loaders.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry creates a registry with all available loaders
func NewRegistry() *Registry {
	r := &Registry{
		loaders: make(map[string]Loader),
	}

	r.Register("wav", LoadWAV)
	r.Register("wave", LoadWAV)
	r.Register("mp3", LoadMP3)
	r.Register("flac", LoadFLAC)

	return r
}

// Register registers a loader for an extension
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[normalizeExt(ext)] = l
}

// Load decodes the file at path using the loader registered for its extension.
func (r *Registry) Load(path string) (*Buffer, error) {
	ext := normalizeExt(filepath.Ext(path))

	load, exists := r.loaders[ext]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf, err := load(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	if buf.Metadata == nil {
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			buf.Metadata, _ = ReadMetadata(file)
		}
	}

	logger.Debug("audio file loaded",
		logger.String("path", path),
		logger.String("format", buf.Format.String()),
		logger.Int("rate", buf.SampleRate),
		logger.Int("channels", buf.Channels),
		logger.Duration("duration", buf.Duration()))
	return buf, nil
}

// SupportsFormat checks if an extension is supported
func (r *Registry) SupportsFormat(ext string) bool {
	_, exists := r.loaders[normalizeExt(ext)]
	return exists
}

// SupportedFormats returns all supported extensions, sorted
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		formats = append(formats, ext)
	}
	slices.Sort(formats)
	return formats
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

var globalRegistry = NewRegistry()

// LoadFile is a convenience function using the global registry
func LoadFile(path string) (*Buffer, error) {
	return globalRegistry.Load(path)
}

// SupportsFile checks if a file format is supported
func SupportsFile(path string) bool {
	return globalRegistry.SupportsFormat(filepath.Ext(path))
}
