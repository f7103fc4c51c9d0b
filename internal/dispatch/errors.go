package dispatch

import "fmt"

// ErrorKind names one of the fixed error categories the dispatch core
// recognizes (spec §7). Kinds are values, not Go types, so callers can
// switch on Kind without a type assertion per error.
type ErrorKind string

const (
	// KindUserError comes from a hook listener or user-visible bad input.
	// Returned to the caller as a refusal message; the claim is closed.
	KindUserError ErrorKind = "user_error"
	// KindUserDataError is a post-generate hard refusal.
	KindUserDataError ErrorKind = "user_data_error"
	// KindTimeoutError is a dispatcher.acquire deadline. Surfaced as
	// "All backends are occupied."
	KindTimeoutError ErrorKind = "timeout_error"
	// KindCancelledError results from claim or global shutdown
	// cancellation. Swallowed silently; the claim remains balanced.
	KindCancelledError ErrorKind = "cancelled_error"
	// KindSessionInvalid is internal to federation; triggers exactly one
	// retry, else is reported as KindConnectionError.
	KindSessionInvalid ErrorKind = "session_invalid"
	// KindConnectionError is a federation transport failure, including a
	// second consecutive SessionInvalid.
	KindConnectionError ErrorKind = "connection_error"
	// KindBackendStalled is an inactivity timeout; the worker moves to
	// Errored and the claim fails with a generic message.
	KindBackendStalled ErrorKind = "backend_stalled"
	// KindRedirect is not a failure: the driver is asking the pipeline to
	// release the current worker and recurse with a new request.
	KindRedirect ErrorKind = "redirect"
	// KindInternalError covers anything not covered above.
	KindInternalError ErrorKind = "internal_error"
)

// Error is the single error type the dispatch core returns. Kind drives
// propagation (see CallerMessage); Cause optionally wraps the underlying
// failure for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// RedirectRequest carries the replacement request payload when
	// Kind == KindRedirect. Left untyped (any) here since the dispatch
	// package does not know the pipeline's request shape; the pipeline
	// package asserts it back to its own request type.
	RedirectRequest any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, dispatch.NewError(kind, "")) to match purely on
// Kind, ignoring Message/Cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// NewError constructs an *Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if e, ok := err.(*Error); ok {
		de = e
	} else {
		return false
	}
	return de.Kind == kind
}

// CallerMessage renders the caller-facing text for error kinds the spec
// pins to a fixed string (§7), falling back to Message/Cause otherwise.
func (e *Error) CallerMessage() string {
	switch e.Kind {
	case KindTimeoutError:
		return "All backends are occupied."
	case KindBackendStalled:
		return "The selected backend stalled and was marked unavailable."
	case KindConnectionError:
		return "Unable to reach the remote backend."
	default:
		if e.Message != "" {
			return e.Message
		}
		return e.Error()
	}
}
