package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bamsammich/safecp/internal/platform"
)

// tmpSuffix marks in-flight temporary files in the destination directory.
const tmpSuffix = "safecp-tmp"

// CopyFile copies one file (or replicates one symlink) according to the
// engine config. Failures are returned inside the Outcome so a recursive
// walk can keep going; the destination namespace is mutated exactly once,
// at the rename, when atomic mode is on.
func (e *Engine) CopyFile(ctx context.Context, task Task) Outcome {
	if e.cfg.DryRun {
		fmt.Fprintf(e.out, "would copy %s -> %s\n", task.Src, task.Dst)
		return Outcome{Src: task.Src, Dst: task.Dst, Status: StatusCopied}
	}

	info, err := os.Lstat(task.Src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrSourceNotFound, task.Src)
		}
		return e.failed(task, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if !e.cfg.FollowSymlinks {
			return e.replicateSymlink(task)
		}
		// Resolve through the link for size and mode decisions. A broken
		// link surfaces here as a missing source.
		if info, err = os.Stat(task.Src); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("%w: %s", ErrSourceNotFound, task.Src)
			}
			return e.failed(task, err)
		}
	}

	if info.IsDir() {
		return e.failed(task, fmt.Errorf("%w: %s", ErrIsDirectory, task.Src))
	}

	if err := os.MkdirAll(filepath.Dir(task.Dst), 0o755); err != nil {
		return e.failed(task, fmt.Errorf("create parent dir: %w", err))
	}

	if e.cfg.Atomic {
		err = e.copyAtomic(ctx, task, info)
	} else {
		err = e.copyDirect(ctx, task, info)
	}
	if err != nil {
		return e.failed(task, err)
	}

	if e.cfg.Preserve {
		// Best effort by contract: a published copy never fails on
		// metadata problems.
		if merr := syncMetadata(task.Src, task.Dst, e.cfg.FollowSymlinks); merr != nil {
			e.log.Debug("metadata sync", "dst", task.Dst, "error", merr)
		}
	}

	e.stats.AddFilesCopied(1)
	e.logCopy("copied", "src", task.Src, "dst", task.Dst)
	return Outcome{Src: task.Src, Dst: task.Dst, Status: StatusCopied}
}

// replicateSymlink re-creates the source link at the destination with the
// same target string. Symlink creation is already atomic, so the temp-file
// machinery is bypassed entirely.
func (e *Engine) replicateSymlink(task Task) Outcome {
	target, err := os.Readlink(task.Src)
	if err != nil {
		return e.failed(task, fmt.Errorf("readlink %s: %w", task.Src, err))
	}

	if err := os.MkdirAll(filepath.Dir(task.Dst), 0o755); err != nil {
		return e.failed(task, fmt.Errorf("create parent dir: %w", err))
	}
	_ = os.Remove(task.Dst)

	if err := os.Symlink(target, task.Dst); err != nil {
		return e.failed(task, fmt.Errorf("symlink %s -> %s: %w", task.Dst, target, err))
	}

	if e.cfg.Preserve {
		if merr := syncMetadata(task.Src, task.Dst, false); merr != nil {
			e.log.Debug("metadata sync", "dst", task.Dst, "error", merr)
		}
	}

	e.stats.AddSymlinksCreated(1)
	e.logCopy("symlink replicated", "dst", task.Dst, "target", target)
	return Outcome{Src: task.Src, Dst: task.Dst, Status: StatusSymlink}
}

// copyAtomic writes into a uniquely named temp file beside the destination
// and publishes it with a single rename. The temp path stays registered
// for interrupt cleanup until it is either renamed away or removed.
func (e *Engine) copyAtomic(ctx context.Context, task Task, info os.FileInfo) error {
	dir := filepath.Dir(task.Dst)
	base := filepath.Base(task.Dst)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.%s", base, uuid.New().String()[:8], tmpSuffix))

	e.tmp.Register(tmpPath)
	defer func() {
		e.tmp.Deregister(tmpPath)
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	tmpFd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	if err := e.transfer(ctx, task.Src, tmpFd, info.Size()); err != nil {
		tmpFd.Close()
		return fmt.Errorf("copy %s: %w", task.Src, err)
	}
	if err := tmpFd.Close(); err != nil {
		return fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, task.Dst); err != nil {
		// Rename can fail across filesystem boundaries; degrade to a
		// plain move so the copy still lands.
		if mvErr := moveFile(tmpPath, task.Dst); mvErr != nil {
			return fmt.Errorf("rename %s -> %s: %w", tmpPath, task.Dst, err)
		}
	}
	return nil
}

// copyDirect streams straight into the destination. No durability against
// partial writes on crash; this is the documented --no-atomic trade-off.
func (e *Engine) copyDirect(ctx context.Context, task Task, info os.FileInfo) error {
	dst, err := os.OpenFile(task.Dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("open %s: %w", task.Dst, err)
	}
	if err := e.transfer(ctx, task.Src, dst, info.Size()); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// transfer fills dst with the source's bytes: the kernel fast path first
// when eligible, the sparse-aware buffered writer as the universal
// fallback. A bandwidth limit disables the fast path, which cannot be
// throttled.
func (e *Engine) transfer(ctx context.Context, srcPath string, dst *os.File, size int64) error {
	if size == 0 {
		return nil
	}

	if e.limiter == nil {
		result, err := platform.CopyFile(platform.CopyFileParams{
			SrcPath: srcPath,
			DstFd:   dst,
			SrcSize: size,
		})
		if err == nil {
			e.stats.AddBytesCopied(result.BytesWritten)
			return nil
		}
		// Fast path unavailable or failed mid-stream: rewind and redo
		// with the buffered writer.
		if terr := dst.Truncate(0); terr != nil {
			return fmt.Errorf("reset after fast path: %w", terr)
		}
		if _, serr := dst.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind after fast path: %w", serr)
		}
	}

	srcFd, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFd.Close()

	var src io.Reader = srcFd
	if e.limiter != nil {
		src = newRateLimitedReader(ctx, srcFd, e.limiter)
	}

	n, err := sparseTransfer(src, dst, e.cfg.BufferSize, e.cfg.SparseThreshold)
	e.stats.AddBytesCopied(n)
	return err
}

// moveFile copies tmp onto dst and removes tmp, preserving the temp
// file's permission bits. Used when the atomic rename crosses a
// filesystem boundary.
func moveFile(tmpPath, dst string) error {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return err
	}

	in, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(tmpPath)
}

// failed records and reports a per-file failure.
func (e *Engine) failed(task Task, err error) Outcome {
	e.stats.AddFilesFailed(1)
	e.log.Error("copy failed", "src", task.Src, "dst", task.Dst, "error", err)
	return Outcome{Src: task.Src, Dst: task.Dst, Status: StatusFailed, Err: err}
}
