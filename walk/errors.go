package walk

import "github.com/pkg/errors"

// ErrKind classifies engine errors per spec.md §7.
type ErrKind int

const (
	// ErrConfiguration covers bad payload sizes, an unallocated tree,
	// or insufficient memory for even MinExportRecords. Always fatal.
	// A tree mask weaker than the visitor's, or a symmetric walk without
	// a computed hmax, panics through debug.Assert in VisitNgbiter
	// instead of returning this kind.
	ErrConfiguration ErrKind = iota
	// ErrProtocol covers a pseudo-node in GHOSTS mode or Export called
	// outside TOPTREE. Fatal.
	ErrProtocol
	// ErrConvergence is the hsml loop exceeding its iteration ceiling.
	// Fatal.
	ErrConvergence
)

// FatalError is the engine's fatal-error envelope: spec.md §7's
// Configuration/Protocol/Convergence kinds are all process-abort
// conditions, distinguished only for diagnostics.
type FatalError struct {
	Kind ErrKind
	msg  string
	err  error
}

func (e *FatalError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *FatalError) Unwrap() error { return e.err }

func fatal(kind ErrKind, msg string) error {
	return &FatalError{Kind: kind, msg: msg}
}

func fatalf(kind ErrKind, cause error, format string, args ...any) error {
	return &FatalError{Kind: kind, msg: errors.Errorf(format, args...).Error(), err: cause}
}

// ErrBufferFull is the spec.md §7 "Transient capacity" condition: local
// and recoverable, never wrapped in FatalError.
var ErrBufferFull = errors.New("walk: export buffer full")
