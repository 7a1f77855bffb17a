package engine

import "errors"

// Sentinel errors returned by the engine. Callers classify failures with
// errors.Is; I/O errors are wrapped with their underlying cause.
var (
	// ErrSourceNotFound indicates the source path does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrIsDirectory indicates a directory source without the recursive flag.
	ErrIsDirectory = errors.New("source is a directory (use -r)")
)
