package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Recording is a finished artifact found in an output directory.
type Recording struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// ScanRecordings lists the files in dir whose name starts with prefix+"-" and
// whose extension is one of exts (with the leading dot). A missing directory
// yields no recordings. Results are ordered newest first.
func ScanRecordings(dir, prefix string, exts []string) ([]Recording, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory %q: %w", dir, err)
	}

	var out []Recording
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, prefix+"-") || !hasExt(name, exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // deleted since ReadDir
		}
		out = append(out, Recording{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	slices.SortStableFunc(out, func(a, b Recording) int {
		return b.ModTime.Compare(a.ModTime)
	})
	return out, nil
}

func hasExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	return slices.ContainsFunc(exts, func(e string) bool { return strings.EqualFold(e, ext) })
}

// Cleaner prunes the recordings of one output directory. A zero limit
// disables that rule.
type Cleaner struct {
	Dir        string
	Prefix     string
	Extensions []string

	MaxAgeDays int
	MaxCount   int
	MaxSizeMB  int
	// DryRun reports what would be removed and leaves the files alone.
	DryRun bool

	// Clock supplies the reference time for MaxAgeDays. Nil means the real
	// clock.
	Clock clockwork.Clock
}

// CleanupReport names the recordings removed, and those that could not be.
type CleanupReport struct {
	Removed []string
	Skipped []string
}

func (c *Cleaner) enabled() bool {
	return c.MaxAgeDays > 0 || c.MaxCount > 0 || c.MaxSizeMB > 0
}

// ExecuteCleanup applies the limits once. A lock file in Dir serializes
// cleaners across processes; losing the race yields ErrWouldBlock.
func (c *Cleaner) ExecuteCleanup() (*CleanupReport, error) {
	if !c.enabled() {
		return &CleanupReport{}, nil
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	lock, err := TryLock(filepath.Join(c.Dir, ".whatsdemo-cleanup.lock"))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cleanup lock: %w", err)
	}
	defer lock.Unlock()

	recordings, err := ScanRecordings(c.Dir, c.Prefix, c.Extensions)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{}
	for _, r := range c.expired(recordings) {
		if !c.DryRun {
			if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
				report.Skipped = append(report.Skipped, r.Name)
				continue
			}
		}
		report.Removed = append(report.Removed, r.Name)
	}
	return report, nil
}

// expired selects from recordings, which are newest first, everything that
// breaks a limit. The size limit is met by dropping the oldest survivors of
// the other two rules.
func (c *Cleaner) expired(recordings []Recording) []Recording {
	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cutoff := clock.Now().AddDate(0, 0, -c.MaxAgeDays)

	keep := make([]bool, len(recordings))
	var kept int64
	for i, r := range recordings {
		switch {
		case c.MaxAgeDays > 0 && r.ModTime.Before(cutoff):
		case c.MaxCount > 0 && i >= c.MaxCount:
		default:
			keep[i] = true
			kept += r.Size
		}
	}
	if c.MaxSizeMB > 0 {
		budget := int64(c.MaxSizeMB) << 20
		for i := len(recordings) - 1; i >= 0 && kept > budget; i-- {
			if keep[i] {
				keep[i] = false
				kept -= recordings[i].Size
			}
		}
	}

	var out []Recording
	for i, r := range recordings {
		if !keep[i] {
			out = append(out, r)
		}
	}
	return out
}

// CleanupScheduler runs its Cleaner when Run starts and then every Interval.
type CleanupScheduler struct {
	Cleaner *Cleaner
	// Interval <= 0 disables the periodic runs.
	Interval time.Duration
	// OnReport receives the outcome of every run.
	OnReport func(*CleanupReport, error)
	// Clock drives the interval. Nil means the real clock.
	Clock clockwork.Clock
}

// Run blocks until ctx is done.
func (s *CleanupScheduler) Run(ctx context.Context) {
	s.runOnce()
	if s.Interval <= 0 {
		<-ctx.Done()
		return
	}
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ticker := clock.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runOnce()
		}
	}
}

func (s *CleanupScheduler) runOnce() {
	report, err := s.Cleaner.ExecuteCleanup()
	if s.OnReport != nil {
		s.OnReport(report, err)
	}
}
