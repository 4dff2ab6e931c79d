package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the runtime. Adapters translate backend-specific
// failures into these so callers can branch with errors.Is.
var (
	// ErrIntentNotFound is returned when an intent type has no registered handler.
	ErrIntentNotFound = errors.New("intent type not registered")

	// ErrExecutionNotFound is returned when an execution ID cannot be found in any store.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSessionNotFound is returned when a session has no stored state.
	ErrSessionNotFound = errors.New("session not found")

	// ErrArtifactNotFound is returned when an artifact ID cannot be resolved.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrArtifactConflict is returned when re-registering an artifact ID with different content.
	ErrArtifactConflict = errors.New("artifact already registered with different content")

	// ErrInvalidTransition is returned for any backward or out-of-order lifecycle transition.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrContractNotFound is returned when a boundary contract ID cannot be resolved.
	ErrContractNotFound = errors.New("boundary contract not found")

	// ErrContractExpired is returned when authorizing a contract past its deadline.
	ErrContractExpired = errors.New("boundary contract expired")

	// ErrContractMismatch is returned when a contract does not reference the given artifact.
	ErrContractMismatch = errors.New("boundary contract does not match artifact")

	// ErrKeyNotFound is returned by key/value stores on a miss.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDependencyUnavailable is returned when a backing store cannot be reached.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// ValidationError reports a malformed or missing intent field. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid intent: field %q %s", e.Field, e.Reason)
}

// ErrorKind classifies a failure for the caller. Kinds are stable API; the
// message is not.
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation_error"
	KindNotFound              ErrorKind = "not_found"
	KindInvalidTransition     ErrorKind = "invalid_transition"
	KindContractExpired       ErrorKind = "contract_expired"
	KindTimeout               ErrorKind = "timeout"
	KindDependencyUnavailable ErrorKind = "dependency_unavailable"
	KindHandler               ErrorKind = "handler_error"
)

// ErrorInfo is the structured error carried on a failed ExecutionResult.
type ErrorInfo struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HandlerError lets a domain handler surface a typed failure with its own
// retry semantics. The engine records it verbatim, never reinterprets it.
type HandlerError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error (%s): %s", e.Kind, e.Message)
}

// ClassifyError maps an error to the taxonomy. Handler errors keep their
// own kind and retryable flag; unknown errors become non-retryable handler
// failures.
func ClassifyError(err error) *ErrorInfo {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return &ErrorInfo{Kind: KindValidation, Message: verr.Error(), Retryable: false}
	}
	var herr *HandlerError
	if errors.As(err, &herr) {
		kind := herr.Kind
		if kind == "" {
			kind = KindHandler
		}
		return &ErrorInfo{Kind: kind, Message: herr.Message, Retryable: herr.Retryable}
	}

	switch {
	case errors.Is(err, ErrIntentNotFound),
		errors.Is(err, ErrExecutionNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrArtifactNotFound),
		errors.Is(err, ErrContractNotFound):
		return &ErrorInfo{Kind: KindNotFound, Message: err.Error(), Retryable: false}
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrArtifactConflict), errors.Is(err, ErrContractMismatch):
		return &ErrorInfo{Kind: KindInvalidTransition, Message: err.Error(), Retryable: false}
	case errors.Is(err, ErrContractExpired):
		return &ErrorInfo{Kind: KindContractExpired, Message: err.Error(), Retryable: false}
	case errors.Is(err, ErrDependencyUnavailable):
		return &ErrorInfo{Kind: KindDependencyUnavailable, Message: err.Error(), Retryable: true}
	default:
		return &ErrorInfo{Kind: KindHandler, Message: err.Error(), Retryable: false}
	}
}
