package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Suffix multipliers use powers of 1024, matching rsync.
var sizeSuffixes = map[string]int64{
	"B": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// ParseSize parses a human-readable size such as "100", "64K" or "1.5G"
// into bytes. Suffixes are case-insensitive; bare numbers are bytes.
// Negative sizes are rejected.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multiplier := int64(1)
	numStr := s
	if m, ok := sizeSuffixes[strings.ToUpper(s[len(s)-1:])]; ok {
		multiplier = m
		numStr = s[:len(s)-1]
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	var n int64
	if i, err := strconv.ParseInt(numStr, 10, 64); err == nil {
		n = i * multiplier
	} else {
		f, ferr := strconv.ParseFloat(numStr, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid size: %q", s)
		}
		n = int64(f * float64(multiplier))
	}

	if n < 0 {
		return 0, fmt.Errorf("negative size: %q", s)
	}
	return n, nil
}
