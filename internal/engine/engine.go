package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/bamsammich/safecp/internal/stats"
)

// Defaults for the tunable knobs, matching the CLI defaults.
const (
	DefaultBufferSize      = 64 * 1024
	DefaultSparseThreshold = 4096
)

// Config describes one copy invocation. It is built once by the CLI and
// read-only afterwards; every walker and copier call shares it.
type Config struct {
	Recursive       bool
	Preserve        bool
	FollowSymlinks  bool
	NoClobber       bool
	UpdateOnly      bool
	Atomic          bool
	Verbose         bool
	DryRun          bool
	BufferSize      int
	SparseThreshold int
	Workers         int   // per-file copy parallelism; 1 = sequential
	BWLimit         int64 // bytes/sec, 0 = unlimited
}

// Engine walks source roots and copies them into a destination according
// to the configured policies. It owns the temp-file registry so an
// external interrupt hook can clean up partial writes.
type Engine struct {
	cfg     Config
	tmp     *TmpRegistry
	stats   *stats.Collector
	limiter *rate.Limiter
	log     *slog.Logger
	out     io.Writer
}

// New validates cfg and creates an Engine. Zero BufferSize and
// SparseThreshold take the package defaults; negative values are rejected.
func New(cfg Config) (*Engine, error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.SparseThreshold == 0 {
		cfg.SparseThreshold = DefaultSparseThreshold
	}
	if cfg.BufferSize < 0 {
		return nil, fmt.Errorf("buffer size must not be negative, got %d", cfg.BufferSize)
	}
	if cfg.SparseThreshold < 0 {
		return nil, fmt.Errorf("sparse threshold must not be negative, got %d", cfg.SparseThreshold)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	e := &Engine{
		cfg:   cfg,
		tmp:   NewTmpRegistry(),
		stats: stats.NewCollector(),
		log:   slog.Default(),
		out:   os.Stdout,
	}
	if cfg.BWLimit > 0 {
		e.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return e, nil
}

// SetOutput redirects dry-run lines, mainly for tests.
func (e *Engine) SetOutput(w io.Writer) { e.out = w }

// SetLogger overrides the default slog logger.
func (e *Engine) SetLogger(l *slog.Logger) { e.log = l }

// TmpRegistry exposes the live temp-file registry for interrupt cleanup.
func (e *Engine) TmpRegistry() *TmpRegistry { return e.tmp }

// Cleanup removes any temp files still registered. Safe to call at any
// point; completed renames are never rolled back.
func (e *Engine) Cleanup() { e.tmp.Cleanup() }

// Stats returns a point-in-time snapshot of the run counters.
func (e *Engine) Stats() stats.Snapshot { return e.stats.Snapshot() }

// logCopy reports a per-file event at Info when verbose, Debug otherwise.
func (e *Engine) logCopy(msg string, args ...any) {
	if e.cfg.Verbose {
		e.log.Info(msg, args...)
	} else {
		e.log.Debug(msg, args...)
	}
}
