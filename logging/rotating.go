package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const filePrefix = "prescriptions-web-"

// RotatingFile is an io.Writer that starts a new file every ISO week and
// whenever the current one would grow past maxSize. Files older than the
// retention period are removed by a daily sweep.
type RotatingFile struct {
	dir       string
	retention time.Duration
	maxSize   int64
	now       func() time.Time

	mu   sync.Mutex
	file *os.File
	week string
	part int
	size int64

	cancel context.CancelFunc
	done   chan struct{}
}

// OpenRotatingFile creates dir if needed and opens the current week's file
func OpenRotatingFile(dir string, retentionWeeks int, maxSize int64) (*RotatingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	rf := &RotatingFile{
		dir:       dir,
		retention: time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxSize:   maxSize,
		now:       time.Now,
		done:      make(chan struct{}),
	}

	rf.mu.Lock()
	err := rf.openLocked(weekKey(rf.now()))
	rf.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rf.cancel = cancel
	go rf.sweepLoop(ctx, 24*time.Hour)

	return rf, nil
}

// weekKey returns the ISO week as YYYY-Www
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (rf *RotatingFile) fileName(week string, part int) string {
	if part == 0 {
		return filePrefix + week + ".log"
	}
	return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, part)
}

// openLocked opens the first file of week that still has room
func (rf *RotatingFile) openLocked(week string) error {
	if rf.file != nil {
		_ = rf.file.Close()
		rf.file = nil
	}
	if week != rf.week {
		rf.part = 0
	}

	for {
		path := filepath.Join(rf.dir, rf.fileName(week, rf.part))
		info, err := os.Stat(path)
		if err != nil || rf.maxSize <= 0 || info.Size() < rf.maxSize {
			break
		}
		rf.part++
	}

	path := filepath.Join(rf.dir, rf.fileName(week, rf.part))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}

	rf.file = f
	rf.week = week
	rf.size = 0
	if info, err := f.Stat(); err == nil {
		rf.size = info.Size()
	}
	return nil
}

// Write appends p to the current file, rotating first when needed
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	week := weekKey(rf.now())
	switch {
	case week != rf.week:
		if err := rf.openLocked(week); err != nil {
			return 0, err
		}
	case rf.maxSize > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.maxSize:
		rf.part++
		if err := rf.openLocked(week); err != nil {
			return 0, err
		}
	}

	if rf.file == nil {
		return 0, fmt.Errorf("no log file available")
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Path returns the file currently written to
func (rf *RotatingFile) Path() string {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return filepath.Join(rf.dir, rf.fileName(rf.week, rf.part))
}

func (rf *RotatingFile) sweepLoop(ctx context.Context, every time.Duration) {
	defer close(rf.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rf.RemoveExpired(); err != nil {
				Warn("Failed to remove expired log files", "error", err)
			}
		}
	}
}

// RemoveExpired deletes log files last modified before the retention period
// and returns their names
func (rf *RotatingFile) RemoveExpired() ([]string, error) {
	entries, err := os.ReadDir(rf.dir)
	if err != nil {
		return nil, fmt.Errorf("reading log directory: %w", err)
	}

	rf.mu.Lock()
	current := ""
	if rf.file != nil {
		current = filepath.Base(rf.file.Name())
	}
	rf.mu.Unlock()

	cutoff := rf.now().Add(-rf.retention)
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == current || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(rf.dir, name)); err == nil {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// Close stops the sweep and closes the current file
func (rf *RotatingFile) Close() error {
	if rf.cancel != nil {
		rf.cancel()
		<-rf.done
	}

	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}
