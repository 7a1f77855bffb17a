package engine

import (
	"os"
	"sync"
)

// TmpRegistry tracks in-progress temporary files so partial writes can be
// removed when the process is interrupted. Each engine owns one registry;
// the CLI's signal path calls Cleanup through it. Drain snapshots under the
// lock, so removal never races a copy that is still registering.
type TmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewTmpRegistry creates an empty registry.
func NewTmpRegistry() *TmpRegistry {
	return &TmpRegistry{paths: make(map[string]struct{})}
}

// Register adds a temporary file path.
func (r *TmpRegistry) Register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
}

// Deregister removes a temporary file path.
func (r *TmpRegistry) Deregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

// Drain returns all registered paths and clears the registry. Removal is
// left to the caller.
func (r *TmpRegistry) Drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	return paths
}

// Cleanup removes all registered temporary files, best effort.
func (r *TmpRegistry) Cleanup() {
	for _, p := range r.Drain() {
		_ = os.Remove(p)
	}
}

// Len reports how many temporary files are currently registered.
func (r *TmpRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}
