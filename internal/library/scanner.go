// Package library expands playback arguments into decoded sources.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/winramp/mixcore/internal/audio/decoder"
	"github.com/winramp/mixcore/internal/logger"
)

var ErrScanInProgress = errors.New("scan already in progress")

// Source is one decoded file.
type Source struct {
	Path   string
	Buffer *decoder.Buffer
}

// ScanResult represents the result of a scan operation
type ScanResult struct {
	Sources      []Source // in walk order
	TotalFiles   int
	FailedFiles  int
	SkippedFiles int
	Duration     time.Duration
	Errors       []error
}

// Scanner walks files and directories and decodes every supported file
// with a pool of workers.
type Scanner struct {
	registry *decoder.Registry

	// Scan state
	isScanning  bool
	cancelFunc  context.CancelFunc
	currentFile string

	// Configuration
	recursive       bool
	followSymlinks  bool
	minDuration     time.Duration
	maxDuration     time.Duration
	excludePatterns []string
	workerCount     int

	mu sync.RWMutex
}

// Option configures a Scanner.
type Option func(*Scanner)

func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

func WithRecursive(recursive bool) Option {
	return func(s *Scanner) { s.recursive = recursive }
}

func WithFollowSymlinks(follow bool) Option {
	return func(s *Scanner) { s.followSymlinks = follow }
}

// WithDurationBounds skips sources shorter than min or longer than max.
// Zero disables a bound.
func WithDurationBounds(min, max time.Duration) Option {
	return func(s *Scanner) {
		s.minDuration = min
		s.maxDuration = max
	}
}

func WithExclude(patterns ...string) Option {
	return func(s *Scanner) { s.excludePatterns = append(s.excludePatterns, patterns...) }
}

// NewScanner creates a scanner backed by registry, or the default loaders
// when registry is nil.
func NewScanner(registry *decoder.Registry, opts ...Option) *Scanner {
	if registry == nil {
		registry = decoder.NewRegistry()
	}
	s := &Scanner{
		registry:        registry,
		recursive:       true,
		workerCount:     4,
		excludePatterns: []string{"*.tmp", "*.temp", "*.partial"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type job struct {
	index int
	path  string
}

type outcome struct {
	index  int
	source Source
	err    error
	skip   bool
}

// Scan decodes every supported file under paths. Files named explicitly
// are always attempted; directory entries are filtered by
// the registry. Decoding failures are collected in the result; only walk
// errors on the arguments themselves and cancellation are returned.
func (s *Scanner) Scan(ctx context.Context, paths ...string) (*ScanResult, error) {
	s.mu.Lock()
	if s.isScanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.isScanning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.isScanning = false
		s.cancelFunc = nil
		s.currentFile = ""
		s.mu.Unlock()
	}()

	startTime := time.Now()
	result := &ScanResult{}

	jobs := make(chan job, 100)
	outcomes := make(chan outcome, 100)

	var wg sync.WaitGroup
	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.scanWorker(ctx, jobs, outcomes)
		}()
	}

	collected := make(chan []outcome, 1)
	go func() {
		var all []outcome
		for o := range outcomes {
			all = append(all, o)
		}
		collected <- all
	}()

	n := 0
	var walkErr error
	for _, root := range paths {
		if walkErr = s.walk(ctx, root, jobs, &n); walkErr != nil {
			break
		}
	}

	close(jobs)
	wg.Wait()
	close(outcomes)
	all := <-collected

	if walkErr != nil {
		return nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.TotalFiles = n
	ordered := make([]*outcome, n)
	for i := range all {
		ordered[all[i].index] = &all[i]
	}
	for _, o := range ordered {
		switch {
		case o == nil:
		case o.err != nil:
			result.FailedFiles++
			result.Errors = append(result.Errors, o.err)
		case o.skip:
			result.SkippedFiles++
		default:
			result.Sources = append(result.Sources, o.source)
		}
	}
	result.Duration = time.Since(startTime)

	logger.Info("Scan completed",
		logger.Int("total_files", result.TotalFiles),
		logger.Int("decoded", len(result.Sources)),
		logger.Int("failed", result.FailedFiles),
		logger.Int("skipped", result.SkippedFiles),
		logger.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *Scanner) walk(ctx context.Context, root string, jobs chan<- job, n *int) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return s.enqueue(ctx, root, jobs, n)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			logger.Warn("Error accessing path", logger.String("path", path), logger.Error(err))
			return nil
		}

		if d.IsDir() {
			if path != root && !s.recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !s.followSymlinks && d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if !s.registry.SupportsFormat(filepath.Ext(path)) || s.isExcluded(path) {
			return nil
		}
		return s.enqueue(ctx, path, jobs, n)
	})
}

func (s *Scanner) enqueue(ctx context.Context, path string, jobs chan<- job, n *int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case jobs <- job{index: *n, path: path}:
		*n++
		s.mu.Lock()
		s.currentFile = path
		s.mu.Unlock()
		return nil
	}
}

func (s *Scanner) scanWorker(ctx context.Context, jobs <-chan job, outcomes chan<- outcome) {
	for j := range jobs {
		if ctx.Err() != nil {
			continue
		}
		o := s.scanFile(j)
		select {
		case outcomes <- o:
		case <-ctx.Done():
		}
	}
}

func (s *Scanner) scanFile(j job) outcome {
	buf, err := s.registry.Load(j.path)
	if err != nil {
		logger.Warn("Failed to decode file", logger.String("path", j.path), logger.Error(err))
		return outcome{index: j.index, err: fmt.Errorf("%s: %w", j.path, err)}
	}

	d := buf.Duration()
	if (s.minDuration > 0 && d < s.minDuration) || (s.maxDuration > 0 && d > s.maxDuration) {
		logger.Debug("Skipping file outside duration bounds",
			logger.String("path", j.path), logger.Duration("duration", d))
		return outcome{index: j.index, skip: true}
	}
	return outcome{index: j.index, source: Source{Path: j.path, Buffer: buf}}
}

func (s *Scanner) isExcluded(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, pattern := range s.excludePatterns {
		if matched, _ := filepath.Match(strings.ToLower(pattern), name); matched {
			return true
		}
	}
	return false
}

// Cancel cancels the current scan
func (s *Scanner) Cancel() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
}

// IsScanning returns whether a scan is in progress
func (s *Scanner) IsScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isScanning
}

// CurrentFile returns the last file queued for decoding
func (s *Scanner) CurrentFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentFile
}
