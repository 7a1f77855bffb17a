//go:build !linux && !darwin

package platform

// CopyFile has no kernel-assisted path on this platform.
func CopyFile(_ CopyFileParams) (CopyResult, error) {
	return CopyResult{}, ErrUnsupported
}
