package replay

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// BadFileCache persists the set of replay paths that failed to parse.
// Paths are never removed once added.
type BadFileCache struct {
	path   string
	logger zerolog.Logger
}

// NewBadFileCache returns a cache stored at path.
func NewBadFileCache(path string, logger zerolog.Logger) BadFileCache {
	return BadFileCache{path: path, logger: logger}
}

// Path returns the cache file location.
func (c BadFileCache) Path() string {
	return c.path
}

// Load reads the cached paths. A missing file yields an empty set.
func (c BadFileCache) Load() (map[string]struct{}, error) {
	set := map[string]struct{}{}
	file, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return set, fmt.Errorf("failed to open bad file cache: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only cache.
			_ = cerr
		}
	}()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return set, fmt.Errorf("failed to read bad file cache: %w", err)
	}
	return set, nil
}

// Persist merges newlyBad into existing and rewrites the cache file.
// Failures are logged and never returned: the cache only saves work.
func (c BadFileCache) Persist(existing map[string]struct{}, newlyBad []string) {
	if len(newlyBad) == 0 {
		return
	}
	merged := make(map[string]struct{}, len(existing)+len(newlyBad))
	for p := range existing {
		merged[p] = struct{}{}
	}
	for _, p := range newlyBad {
		merged[p] = struct{}{}
	}
	paths := make([]string, 0, len(merged))
	for p := range merged {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if err := c.write(paths); err != nil {
		c.logger.Warn().Err(err).Str("path", c.path).Msg("failed to persist bad file cache")
		return
	}
	c.logger.Debug().Int("added", len(newlyBad)).Int("total", len(paths)).Msg("bad file cache updated")
}

func (c BadFileCache) write(paths []string) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, "bad_replays-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create temp cache: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := bufio.NewWriter(tmpFile)
	if _, err := writer.WriteString(strings.Join(paths, "\n")); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("failed to replace cache: %w", err)
	}
	return nil
}
