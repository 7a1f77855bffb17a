package engine

import "os"

// ShouldSkip decides whether copying src over dst should be skipped under
// the no-clobber / update-only rules. A missing destination is never
// skipped. Stat failures while evaluating update-only fail open: the copy
// is attempted.
func ShouldSkip(src, dst string, cfg Config) bool {
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return false
	}
	if cfg.NoClobber {
		return true
	}
	if cfg.UpdateOnly {
		srcInfo, err := os.Stat(src)
		if err != nil {
			return false
		}
		// Equal mtimes favor skipping.
		return !srcInfo.ModTime().After(dstInfo.ModTime())
	}
	return false
}
