package engine

// Task describes a single resolved copy operation. Tasks are created by the
// walker per discovered entry and consumed immediately by the copier.
type Task struct {
	Src       string
	Dst       string
	IsSymlink bool
}

// Status classifies the outcome of one task.
type Status int

const (
	StatusCopied Status = iota
	StatusSkipped
	StatusSymlink
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCopied:
		return "copied"
	case StatusSkipped:
		return "skipped"
	case StatusSymlink:
		return "symlink"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the per-task result collected by the walker. A Failed outcome
// carries the underlying error; it never aborts sibling tasks.
type Outcome struct {
	Src    string
	Dst    string
	Status Status
	Err    error
}
