package engine

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// syncMetadata propagates permission bits, timestamps, ownership and
// extended attributes from src to dst. It is best effort by contract: the
// returned error is advisory and callers deliberately discard it after
// logging; metadata problems never fail a published copy. Each aspect is
// attempted independently so one failure doesn't mask the rest.
func syncMetadata(src, dst string, followSymlinks bool) error {
	var info os.FileInfo
	var err error
	if followSymlinks {
		info, err = os.Stat(src)
	} else {
		info, err = os.Lstat(src)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	isLink := info.Mode()&os.ModeSymlink != 0
	var errs []error

	if !isLink {
		if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
			errs = append(errs, fmt.Errorf("chmod %s: %w", dst, err))
		}
	}

	if err := setTimes(dst, info, isLink); err != nil {
		errs = append(errs, err)
	}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		// Ownership requires CAP_CHOWN for foreign uids; lack of
		// privilege is an expected, reportable condition.
		if err := unix.Lchown(dst, int(stat.Uid), int(stat.Gid)); err != nil {
			errs = append(errs, fmt.Errorf("chown %s: %w", dst, err))
		}
	}

	if !isLink {
		if err := copyXattrs(src, dst); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// setTimes replays the source's access and modification times onto dst.
func setTimes(dst string, info os.FileInfo, isLink bool) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	times := []unix.Timespec{
		unix.NsecToTimespec(atimeFromStat(stat).UnixNano()),
		unix.NsecToTimespec(info.ModTime().UnixNano()),
	}
	var flags int
	if isLink {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dst, times, flags); err != nil {
		return fmt.Errorf("utimensat %s: %w", dst, err)
	}
	return nil
}

// copyXattrs replays the source's extended attributes onto dst.
// Unsupported filesystems and unreadable attributes are silently skipped.
func copyXattrs(src, dst string) error {
	sz, err := unix.Listxattr(src, nil)
	if err != nil || sz == 0 {
		return nil // no xattrs or not supported
	}

	buf := make([]byte, sz)
	sz, err = unix.Listxattr(src, buf)
	if err != nil {
		return nil
	}

	var errs []error
	for _, name := range parseXattrNames(buf[:sz]) {
		val, err := getXattr(src, name)
		if err != nil {
			continue
		}
		if err := unix.Setxattr(dst, name, val, 0); err != nil {
			errs = append(errs, fmt.Errorf("setxattr %s %s: %w", dst, name, err))
		}
	}
	return errors.Join(errs...)
}

func getXattr(path, name string) ([]byte, error) {
	sz, err := unix.Getxattr(path, name, nil)
	if err != nil || sz == 0 {
		return nil, err
	}
	buf := make([]byte, sz)
	_, err = unix.Getxattr(path, name, buf)
	return buf, err
}

// parseXattrNames splits a null-separated attribute name list.
func parseXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
