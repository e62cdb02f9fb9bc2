package replay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/verte-zerg/eppi/internal/model"
)

// ReplayExt is the extension of replay files.
const ReplayExt = ".slp"

var (
	// ErrPoolSetup is returned when the worker pool cannot be built.
	ErrPoolSetup = errors.New("failed to set up worker pool")
	// ErrDecoderPanic wraps a panic recovered while parsing a single file.
	ErrDecoderPanic = errors.New("decoder panicked")
)

// FileParser parses a single replay file.
type FileParser interface {
	Parse(path string) (model.ReplayInfo, error)
}

// Summary describes the outcome of a scan.
type Summary struct {
	Root       string
	Candidates int
	Parsed     int
	Skipped    int
	NewlyBad   []string
	Elapsed    time.Duration
}

// Record converts the summary into a history entry finished at the given
// time.
func (s Summary) Record(finishedAt time.Time) model.ScanRecord {
	return model.ScanRecord{
		Root:       s.Root,
		FinishedAt: finishedAt,
		Candidates: s.Candidates,
		Parsed:     s.Parsed,
		Skipped:    s.Skipped,
		NewlyBad:   len(s.NewlyBad),
		Elapsed:    s.Elapsed,
	}
}

// Scanner parses every replay under a directory in parallel.
type Scanner struct {
	parser  FileParser
	cache   BadFileCache
	workers int
	logger  zerolog.Logger
}

// NewScanner builds a scanner. A workers value of 0 selects DefaultWorkers.
func NewScanner(parser FileParser, cache BadFileCache, workers int, logger zerolog.Logger) *Scanner {
	if workers == 0 {
		workers = DefaultWorkers()
	}
	return &Scanner{
		parser:  parser,
		cache:   cache,
		workers: workers,
		logger:  logger,
	}
}

// Scan returns the replays under root sorted newest-first.
func (s *Scanner) Scan(ctx context.Context, root string) ([]model.ReplayInfo, error) {
	replays, _, err := s.ScanWithSummary(ctx, root)
	return replays, err
}

// ScanWithSummary is Scan plus counters describing the run.
func (s *Scanner) ScanWithSummary(ctx context.Context, root string) ([]model.ReplayInfo, Summary, error) {
	started := time.Now()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	summary := Summary{Root: absRoot}

	known, err := s.cache.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("ignoring unreadable bad file cache")
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, summary, fmt.Errorf("failed to open replay directory: %w", err)
	}
	if !info.IsDir() {
		return nil, summary, fmt.Errorf("replay directory %s is not a directory", absRoot)
	}

	candidates, skipped, err := s.collect(absRoot, known)
	if err != nil {
		return nil, summary, err
	}
	summary.Candidates = len(candidates)
	summary.Skipped = skipped

	if s.workers < 1 {
		return nil, summary, fmt.Errorf("%w: %d workers", ErrPoolSetup, s.workers)
	}
	p := pool.New().WithMaxGoroutines(s.workers)

	results := make([]*model.ReplayInfo, len(candidates))
	var mu sync.Mutex
	var newlyBad []string

	for i, path := range candidates {
		if ctx.Err() != nil {
			break
		}
		i, path := i, path
		p.Go(func() {
			replayInfo, err := s.parseIsolated(path)
			if err != nil {
				s.logger.Debug().Err(err).Str("path", path).Msg("skipping bad replay")
				mu.Lock()
				newlyBad = append(newlyBad, path)
				mu.Unlock()
				return
			}
			results[i] = &replayInfo
		})
	}
	p.Wait()

	replays := make([]model.ReplayInfo, 0, len(candidates))
	for _, r := range results {
		if r != nil {
			replays = append(replays, *r)
		}
	}
	SortReplays(replays)

	sort.Strings(newlyBad)
	s.cache.Persist(known, newlyBad)

	summary.Parsed = len(replays)
	summary.NewlyBad = newlyBad
	summary.Elapsed = time.Since(started)
	s.logger.Info().
		Str("root", absRoot).
		Int("candidates", summary.Candidates).
		Int("parsed", summary.Parsed).
		Int("new_bad", len(newlyBad)).
		Int("skipped", summary.Skipped).
		Int("workers", s.workers).
		Dur("elapsed", summary.Elapsed).
		Msg("scan finished")

	if err := ctx.Err(); err != nil {
		return nil, summary, err
	}
	return replays, summary, nil
}

// collect walks root and returns replay candidates in walk order along with
// the number of files skipped because they are already known to be bad.
func (s *Scanner) collect(root string, known map[string]struct{}) ([]string, int, error) {
	var candidates []string
	skipped := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			s.logger.Debug().Err(walkErr).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(path) != ReplayExt {
			return nil
		}
		if _, bad := known[path]; bad {
			skipped++
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to walk replay directory: %w", err)
	}
	return candidates, skipped, nil
}

// parseIsolated parses one file and converts a decoder panic into an error so
// it cannot take down the worker or the batch.
func (s *Scanner) parseIsolated(path string) (info model.ReplayInfo, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		info, err = s.parser.Parse(path)
	})
	if r := pc.Recovered(); r != nil {
		return model.ReplayInfo{}, fmt.Errorf("%s: %w: %v", path, ErrDecoderPanic, r.Value)
	}
	return info, err
}

// SortReplays orders replays newest-first. Replays with a date come before
// replays without one; ties keep their existing order.
func SortReplays(replays []model.ReplayInfo) {
	sort.SliceStable(replays, func(i, j int) bool {
		a, b := replays[i].Date, replays[j].Date
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		default:
			return false
		}
	})
}
