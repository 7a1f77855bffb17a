package engine

import (
	"fmt"
	"io"
	"os"
)

// sparseTransfer copies src into dst in fixed-size chunks, turning long
// zero runs into holes by seeking past them instead of writing. A chunk
// qualifies for a hole when it is at least sparseThreshold bytes and all
// zero; if the seek fails the zeros are written literally, never failing
// the copy. The destination size is pinned with a final truncate, so a
// trailing hole (or an entirely zero source) still yields a full-length
// file. Returns the number of source bytes handled, written or holed.
func sparseTransfer(src io.Reader, dst *os.File, bufSize, sparseThreshold int) (int64, error) {
	buf := make([]byte, bufSize)
	var offset int64

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if n >= sparseThreshold && isZero(chunk) {
				if _, serr := dst.Seek(int64(n), io.SeekCurrent); serr != nil {
					// Filesystem can't hole-punch via seek; write the
					// zeros as the universal baseline.
					if _, werr := dst.Write(chunk); werr != nil {
						return offset, fmt.Errorf("write zeros: %w", werr)
					}
				}
			} else if _, werr := dst.Write(chunk); werr != nil {
				return offset, fmt.Errorf("write: %w", werr)
			}
			offset += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return offset, fmt.Errorf("read: %w", rerr)
		}
	}

	// A trailing hole leaves the file short of the seek cursor; truncate
	// extends it to the exact source length.
	if err := dst.Truncate(offset); err != nil {
		return offset, fmt.Errorf("truncate to %d: %w", offset, err)
	}
	return offset, nil
}

// isZero reports whether b contains only zero bytes.
func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
