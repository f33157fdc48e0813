package agentbridge

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for engine operations.
var (
	// ErrAgentNotFound indicates the agent executable was not found on
	// PATH or in any known install directory.
	ErrAgentNotFound = errors.New("agentbridge: agent executable not found")

	// ErrTerminated indicates the agent process exited while a request
	// was outstanding. The engine restarts the process on next use.
	ErrTerminated = errors.New("agentbridge: agent process terminated")

	// ErrClosed indicates the engine was closed; no further operations
	// succeed.
	ErrClosed = errors.New("agentbridge: engine closed")

	// ErrNoSession indicates a prompt was issued before any session was
	// created.
	ErrNoSession = errors.New("agentbridge: no active session")
)

// Error is a typed failure from an engine operation. Recoverable tells
// retry logic whether re-issuing the call can succeed without user
// action — timeouts and transient protocol errors are recoverable,
// authentication and availability problems are not.
type Error struct {
	// Op is the operation that failed, e.g. "session/prompt".
	Op string

	// Err is the underlying cause.
	Err error

	// Recoverable reports whether the caller may retry.
	Recoverable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("agentbridge: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether err may succeed on retry. The flag on the
// nearest *Error in the chain wins; otherwise the terminal sentinels
// (ErrClosed, ErrAgentNotFound) are non-recoverable and everything else
// defaults to recoverable.
func Recoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrAgentNotFound) {
		return false
	}
	return true
}

// authFailureMarkers are substrings that mark an agent-side error as an
// authentication or availability problem. Matching error text is a
// fallback for agents that report these conditions without a code.
var authFailureMarkers = []string{
	"auth",
	"unauthorized",
	"forbidden",
	"login",
	"credential",
	"unavailable",
}

// IsAuthFailure reports whether an agent-side error message describes
// an authentication or availability problem. Such failures are
// non-recoverable: the caller must re-authenticate (or wait) before a
// retry can succeed, and the engine discards the session so the next
// call starts fresh.
func IsAuthFailure(message string) bool {
	m := strings.ToLower(message)
	for _, marker := range authFailureMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
