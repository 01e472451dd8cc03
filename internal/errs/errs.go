// Package errs defines the typed failure taxonomies surfaced across the
// supervisor's command surface. Each taxonomy carries a machine-readable
// discriminant (Kind) plus a human-readable Message, and both marshal
// directly to JSON so they can cross the frontend IPC boundary without a
// translation layer.
package errs

import "fmt"

// PTYKind enumerates the process-management failure discriminants.
type PTYKind string

const (
	SpawnFailed     PTYKind = "SpawnFailed"
	SessionNotFound PTYKind = "SessionNotFound"
	WriteFailed     PTYKind = "WriteFailed"
	ResizeFailed    PTYKind = "ResizeFailed"
	KillFailed      PTYKind = "KillFailed"
	IDOverflow      PTYKind = "IdOverflow"
)

// PTYError is the error type returned by internal/ptyengine and
// internal/session for process-management failures.
type PTYError struct {
	Kind    PTYKind `json:"kind"`
	Message string  `json:"message"`
}

func (e *PTYError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// NewPTYError builds a PTYError, formatting Message like fmt.Sprintf.
func NewPTYError(kind PTYKind, format string, args ...any) *PTYError {
	return &PTYError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// GitKind enumerates the Git-operation failure discriminants.
type GitKind string

const (
	GitCommandNotFound      GitKind = "CommandNotFound"
	GitNonZeroExit          GitKind = "NonZeroExit"
	GitParseError           GitKind = "ParseError"
	GitRepositoryNotFound   GitKind = "RepositoryNotFound"
	GitBranchAlreadyChecked GitKind = "BranchAlreadyCheckedOut"
)

// GitError is the error type returned by internal/worktree.
type GitError struct {
	Kind    GitKind `json:"kind"`
	Message string  `json:"message"`
	Stderr  string  `json:"stderr,omitempty"`
}

func (e *GitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Stderr)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewGitError builds a GitError with optional captured stderr.
func NewGitError(kind GitKind, stderr string, format string, args ...any) *GitError {
	return &GitError{Kind: kind, Message: fmt.Sprintf(format, args...), Stderr: stderr}
}

// StatusKind enumerates status-source failure discriminants (used by the
// sidecar's HTTP client, not the ingress server itself).
type StatusKind string

const (
	StatusTransportError StatusKind = "TransportError"
	StatusNonOKResponse  StatusKind = "NonOKResponse"
)

// StatusError is the error type returned by internal/sidecar's POST client.
type StatusError struct {
	Kind       StatusKind `json:"kind"`
	Message    string     `json:"message"`
	HTTPStatus int        `json:"http_status,omitempty"`
}

func (e *StatusError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// NewStatusError builds a StatusError.
func NewStatusError(kind StatusKind, httpStatus int, format string, args ...any) *StatusError {
	return &StatusError{Kind: kind, Message: fmt.Sprintf(format, args...), HTTPStatus: httpStatus}
}
