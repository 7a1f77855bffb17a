// Package platform provides kernel-assisted whole-file copy primitives.
// Availability is probed by attempting the syscall and classifying the
// error; ErrUnsupported tells the caller to use its own buffered transfer,
// which is the universal baseline every target must support.
package platform

import (
	"errors"
	"os"
)

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	CopyFileRange CopyMethod = iota // Linux copy_file_range(2)
	Sendfile                        // Linux sendfile(2)
	Clonefile                       // macOS clonefile(2)
)

func (m CopyMethod) String() string {
	switch m {
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	case Clonefile:
		return "clonefile"
	default:
		return "unknown"
	}
}

// ErrUnsupported reports that no kernel copy path is available for this
// file or platform.
var ErrUnsupported = errors.New("no kernel copy path available")

// CopyResult reports the outcome of a fast-path copy.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFileParams describes a whole-file copy into an already-open
// destination descriptor.
type CopyFileParams struct {
	DstFd   *os.File
	SrcPath string
	SrcSize int64
}
