package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Run copies one source root into dstRoot and returns the per-task
// outcomes. A file or symlink root is a single task; a directory root
// requires Recursive and is walked directory-before-contents. Per-file
// failures are recorded in the outcomes, never returned as an error; the
// returned error is reserved for conditions that prevent the run entirely
// (missing root, directory without -r, cancellation).
func (e *Engine) Run(ctx context.Context, srcRoot, dstRoot string) ([]Outcome, error) {
	info, err := os.Lstat(srcRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, srcRoot)
		}
		return nil, err
	}

	if !info.IsDir() {
		return e.runSingle(ctx, srcRoot, dstRoot, info), nil
	}

	if !e.cfg.Recursive {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, srcRoot)
	}
	return e.copyTree(ctx, srcRoot, dstRoot)
}

// runSingle handles the terminal single-task case for a file or symlink
// root. An existing directory destination receives the source's basename.
func (e *Engine) runSingle(ctx context.Context, src, dst string, info os.FileInfo) []Outcome {
	if di, err := os.Stat(dst); err == nil && di.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}

	if ShouldSkip(src, dst, e.cfg) {
		e.stats.AddFilesSkipped(1)
		e.logCopy("skipped", "src", src, "dst", dst)
		return []Outcome{{Src: src, Dst: dst, Status: StatusSkipped}}
	}

	task := Task{Src: src, Dst: dst, IsSymlink: info.Mode()&os.ModeSymlink != 0}
	return []Outcome{e.CopyFile(ctx, task)}
}

// copyTree walks the whole subtree under srcRoot, mirroring directories
// synchronously and dispatching file copies to a worker pool (size 1 by
// default, i.e. sequential). Skip decisions and destination-directory
// creation always happen before any file copy into that directory.
func (e *Engine) copyTree(ctx context.Context, srcRoot, dstRoot string) ([]Outcome, error) {
	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	record := func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	tasks := make(chan Task, e.cfg.Workers*4)
	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					continue // drain without copying
				}
				record(e.CopyFile(ctx, task))
			}
		}()
	}

	walkErr := e.walkDir(ctx, srcRoot, dstRoot, tasks, record)
	close(tasks)
	wg.Wait()

	return outcomes, walkErr
}

// walkDir mirrors one directory and recurses into its subdirectories.
// Entry-level problems are recorded as Failed outcomes so the rest of the
// walk continues; only cancellation stops it.
func (e *Engine) walkDir(ctx context.Context, srcDir, dstDir string, tasks chan<- Task, record func(Outcome)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !e.cfg.DryRun {
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			record(e.failed(Task{Src: srcDir, Dst: dstDir}, fmt.Errorf("create dir: %w", err)))
			return nil // subtree is unreachable, siblings continue
		}
		e.stats.AddDirsCreated(1)
		if e.cfg.Preserve {
			if merr := syncMetadata(srcDir, dstDir, e.cfg.FollowSymlinks); merr != nil {
				e.log.Debug("metadata sync", "dst", dstDir, "error", merr)
			}
		}
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		record(e.failed(Task{Src: srcDir, Dst: dstDir}, fmt.Errorf("read dir: %w", err)))
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		srcPath := filepath.Join(srcDir, entry.Name())
		dstPath := filepath.Join(dstDir, entry.Name())

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			if err := e.walkSymlink(ctx, srcPath, dstPath, tasks, record); err != nil {
				return err
			}

		case entry.IsDir():
			if err := e.walkDir(ctx, srcPath, dstPath, tasks, record); err != nil {
				return err
			}

		case entry.Type().IsRegular():
			if ShouldSkip(srcPath, dstPath, e.cfg) {
				e.stats.AddFilesSkipped(1)
				e.logCopy("skipped", "src", srcPath, "dst", dstPath)
				record(Outcome{Src: srcPath, Dst: dstPath, Status: StatusSkipped})
				continue
			}
			if err := e.submit(ctx, tasks, Task{Src: srcPath, Dst: dstPath}); err != nil {
				return err
			}

		default:
			// Fifos, sockets and device nodes are not copied.
			e.logCopy("ignoring special file", "src", srcPath)
		}
	}
	return nil
}

// walkSymlink handles a symlink entry found during the walk. With
// followSymlinks the link is resolved: directory targets are descended
// into, file targets copied by content. Otherwise the link itself is
// replicated at the mirrored location.
func (e *Engine) walkSymlink(ctx context.Context, srcPath, dstPath string, tasks chan<- Task, record func(Outcome)) error {
	if e.cfg.FollowSymlinks {
		info, err := os.Stat(srcPath)
		if err != nil {
			record(e.failed(Task{Src: srcPath, Dst: dstPath}, fmt.Errorf("%w: %s", ErrSourceNotFound, srcPath)))
			return nil
		}
		if info.IsDir() {
			return e.walkDir(ctx, srcPath, dstPath, tasks, record)
		}
	}

	if ShouldSkip(srcPath, dstPath, e.cfg) {
		e.stats.AddFilesSkipped(1)
		e.logCopy("skipped", "src", srcPath, "dst", dstPath)
		record(Outcome{Src: srcPath, Dst: dstPath, Status: StatusSkipped})
		return nil
	}
	return e.submit(ctx, tasks, Task{Src: srcPath, Dst: dstPath, IsSymlink: true})
}

func (e *Engine) submit(ctx context.Context, tasks chan<- Task, task Task) error {
	select {
	case tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
