package event

import "errors"

// Error kinds. Callers match them with errors.Is on any error returned by a
// watch or snapshot operation.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrWatchLimitExceeded = errors.New("watch limit exceeded")
	ErrPathNotFound       = errors.New("path not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrSnapshotCorrupt    = errors.New("snapshot corrupt")
	ErrIgnoreRuleInvalid  = errors.New("invalid ignore rule")
)

// ErrEventsLost is the cause of an ErrWatchLimitExceeded raised because a
// native event queue overflowed, as opposed to running out of watches. The
// root is torn down; re-subscribe and re-snapshot to recover.
var ErrEventsLost = errors.New("events lost")

// WatchError describes a failed watch or snapshot operation.
type WatchError struct {
	// Op is the operation that failed, e.g. "subscribe" or "load snapshot".
	Op string
	// Path is the path the operation was applied to.
	Path string
	// Kind is one of the Err* values above.
	Kind error
	// Err is the underlying cause, if any.
	Err error
}

// NewError builds a WatchError. err may be nil.
func NewError(op, path string, kind, err error) *WatchError {
	return &WatchError{Op: op, Path: path, Kind: kind, Err: err}
}

func (e *WatchError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
