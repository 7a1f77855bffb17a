package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile_Basic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst", "out.txt")
	require.NoError(t, os.WriteFile(src, []byte("single file copy"), 0o644))

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusCopied, out.Status)
	assert.Equal(t, hashFile(t, src), hashFile(t, dst))
	noTempLeftovers(t, dir)
}

func TestCopyFile_SparseSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sparse.bin")
	dst := filepath.Join(dir, "out.bin")

	var data []byte
	data = append(data, bytes.Repeat([]byte("D"), 4096)...)
	data = append(data, make([]byte, 1024*1024)...)
	data = append(data, bytes.Repeat([]byte("E"), 100)...)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.NoError(t, out.Err)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size())
	assert.Equal(t, hashFile(t, src), hashFile(t, dst))
}

func TestCopyFile_AllZeroSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "zero.bin")
	dst := filepath.Join(dir, "out.bin")

	size := 256 * 1024
	require.NoError(t, os.WriteFile(src, make([]byte, size), 0o644))

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.NoError(t, out.Err)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(size), info.Size(), "all-zero source must not truncate")
}

func TestCopyFile_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("new content"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("stale content"), 0o644))

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.NoError(t, out.Err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("new content"), got)
}

func TestCopyFile_NonAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("direct write"), 0o644))

	e := newTestEngine(t, Config{Atomic: false})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.NoError(t, out.Err)
	assert.Equal(t, hashFile(t, src), hashFile(t, dst))
	noTempLeftovers(t, dir)
}

func TestCopyFile_SourceMissing(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{
		Src: filepath.Join(dir, "missing"),
		Dst: filepath.Join(dir, "out"),
	})

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrSourceNotFound)
	assert.NoFileExists(t, filepath.Join(dir, "out"))
}

func TestCopyFile_ReplicatesSymlink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "link")
	dst := filepath.Join(dir, "out", "link")
	require.NoError(t, os.Symlink("some/target", src))

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst, IsSymlink: true})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSymlink, out.Status)

	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, "some/target", target)
}

func TestCopyFile_SymlinkReplacesExistingEntry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "link")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.Symlink("target-a", src))
	require.NoError(t, os.WriteFile(dst, []byte("regular file"), 0o644))

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst, IsSymlink: true})

	require.NoError(t, out.Err)
	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, "target-a", target)
}

func TestCopyFile_FollowSymlinkCopiesContent(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.txt")
	link := filepath.Join(dir, "link.txt")
	dst := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(real, []byte("target bytes"), 0o644))
	require.NoError(t, os.Symlink("real.txt", link))

	e := newTestEngine(t, Config{Atomic: true, FollowSymlinks: true})
	out := e.CopyFile(context.Background(), Task{Src: link, Dst: dst, IsSymlink: true})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusCopied, out.Status)

	info, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&os.ModeSymlink, "destination must be a regular file")
	assert.Equal(t, hashFile(t, real), hashFile(t, dst))
}

func TestCopyFile_DryRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	e := newTestEngine(t, Config{Atomic: true, DryRun: true})
	var buf strings.Builder
	e.SetOutput(&buf)

	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.NoError(t, out.Err)
	assert.Contains(t, buf.String(), "would copy")
	assert.Contains(t, buf.String(), src)
	assert.NoFileExists(t, dst)
}

func TestCopyFile_PreservesMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o600))

	e := newTestEngine(t, Config{Atomic: true, Preserve: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})
	require.NoError(t, out.Err)

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, srcInfo.Mode().Perm(), dstInfo.Mode().Perm())
	assert.WithinDuration(t, srcInfo.ModTime(), dstInfo.ModTime(), time.Second)
}

func TestCopyFile_BandwidthLimited(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	data := bytes.Repeat([]byte("r"), 128*1024)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	// Generous limit: correctness, not timing, is under test.
	e := newTestEngine(t, Config{Atomic: true, BWLimit: 64 * 1024 * 1024})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.NoError(t, out.Err)
	assert.Equal(t, hashFile(t, src), hashFile(t, dst))
}

func TestCopyFile_DirectorySource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "subdir")
	require.NoError(t, os.Mkdir(src, 0o755))

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: filepath.Join(dir, "out")})

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrIsDirectory)
}

func TestCopyFile_Idempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("same bytes every time"), 0o644))

	e := newTestEngine(t, Config{Atomic: true})
	for i := 0; i < 2; i++ {
		out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})
		require.NoError(t, out.Err)
		assert.Equal(t, hashFile(t, src), hashFile(t, dst))
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(tmp, []byte("payload"), 0o640))

	require.NoError(t, moveFile(tmp, dst))

	assert.NoFileExists(t, tmp)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestCopyFile_FailureCleansTemp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "missing")
	dst := filepath.Join(dir, "dst")

	e := newTestEngine(t, Config{Atomic: true})
	out := e.CopyFile(context.Background(), Task{Src: src, Dst: dst})

	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, ErrSourceNotFound))
	assert.Equal(t, 0, e.TmpRegistry().Len())
	noTempLeftovers(t, dir)
}
