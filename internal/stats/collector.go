// Package stats accumulates run counters for a copy invocation.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks copy statistics using lock-free atomic counters so an
// optional worker pool can report without coordination.
type Collector struct {
	filesCopied     atomic.Int64
	filesSkipped    atomic.Int64
	filesFailed     atomic.Int64
	symlinksCreated atomic.Int64
	dirsCreated     atomic.Int64
	bytesCopied     atomic.Int64
	startTime       time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesCopied(n int64)     { c.filesCopied.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)    { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)     { c.filesFailed.Add(n) }
func (c *Collector) AddSymlinksCreated(n int64) { c.symlinksCreated.Add(n) }
func (c *Collector) AddDirsCreated(n int64)     { c.dirsCreated.Add(n) }
func (c *Collector) AddBytesCopied(n int64)     { c.bytesCopied.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesCopied     int64
	FilesSkipped    int64
	FilesFailed     int64
	SymlinksCreated int64
	DirsCreated     int64
	BytesCopied     int64
	Elapsed         time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesCopied:     c.filesCopied.Load(),
		FilesSkipped:    c.filesSkipped.Load(),
		FilesFailed:     c.filesFailed.Load(),
		SymlinksCreated: c.symlinksCreated.Load(),
		DirsCreated:     c.dirsCreated.Load(),
		BytesCopied:     c.bytesCopied.Load(),
		Elapsed:         c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"copied=%d skipped=%d failed=%d symlinks=%d dirs=%d bytes=%s",
		s.FilesCopied, s.FilesSkipped, s.FilesFailed,
		s.SymlinksCreated, s.DirsCreated, FormatBytes(s.BytesCopied),
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
