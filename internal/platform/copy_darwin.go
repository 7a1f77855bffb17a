//go:build darwin

package platform

import (
	"golang.org/x/sys/unix"
)

// CopyFile tries clonefile on macOS, which only works when the destination
// does not exist yet; anything else reports ErrUnsupported so the caller's
// buffered writer takes over.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	err := unix.Clonefile(params.SrcPath, params.DstFd.Name(), 0)
	if err == nil {
		return CopyResult{BytesWritten: params.SrcSize, Method: Clonefile}, nil
	}
	if isFallbackCloneErr(err) {
		return CopyResult{}, ErrUnsupported
	}
	return CopyResult{}, err
}

func isFallbackCloneErr(err error) bool {
	switch err {
	case unix.ENOTSUP, unix.EXDEV, unix.EEXIST:
		return true
	}
	return false
}
