package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Every failure returned by the lifecycle
// coordinator matches exactly one of these through errors.Is.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("requested resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSubmission       = errors.New("job submission failed")
	ErrRemote           = errors.New("orchestrator rejected the request")
	ErrPersistence      = errors.New("persistence failed")
	ErrConflict         = errors.New("concurrent modification")
)

var kinds = []error{
	ErrInvalidRequest,
	ErrNotFound,
	ErrPermissionDenied,
	ErrSubmission,
	ErrRemote,
	ErrPersistence,
	ErrConflict,
}

// Error is a domain failure carrying the operation that produced it and a
// message that is safe to show to the user.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Op names the operation, e.g. "lifecycle.Run".
	Op string
	// Message is the user-facing description.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// NewError creates a new domain error.
func NewError(kind error, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error. The cause is still
// reachable through Unwrap, so errors.Is also matches the cause's kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// KindOf returns the sentinel kind of err, or nil when err is not a domain
// error. The outermost *Error decides when several are chained.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != nil {
		return de.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// UserMessage returns the message to show a caller for err.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if k := KindOf(err); k != nil {
		return k.Error()
	}
	return "internal error"
}

// Invalid is shorthand for an ErrInvalidRequest failure.
func Invalid(op, message string) *Error {
	return NewError(ErrInvalidRequest, op, message, nil)
}

// NotFound is shorthand for an ErrNotFound failure.
func NotFound(op, message string, cause error) *Error {
	return NewError(ErrNotFound, op, message, cause)
}

// Denied is shorthand for an ErrPermissionDenied failure.
func Denied(op, message string) *Error {
	return NewError(ErrPermissionDenied, op, message, nil)
}
