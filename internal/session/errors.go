package session

import "fmt"

// Error taxonomy for the session engine. Each kind is a small unexported
// struct with an exported constructor and an IsXxx predicate so callers
// (notably the HTTP layer) can map failures without string matching.

// invalidHandleError signals an operation against a freed or unknown session.
type invalidHandleError struct{ id string }

func (e invalidHandleError) Error() string { return "invalid session handle: " + e.id }

func ErrInvalidHandle(id string) error { return invalidHandleError{id: id} }

func IsInvalidHandle(err error) bool {
	_, ok := err.(invalidHandleError)
	return ok
}

// modelLoadError signals that the native runtime could not load the model.
type modelLoadError struct {
	path  string
	cause error
}

func (e modelLoadError) Error() string { return fmt.Sprintf("model load failed: %s: %v", e.path, e.cause) }
func (e modelLoadError) Unwrap() error { return e.cause }

func ErrModelLoadFailed(path string, cause error) error {
	return modelLoadError{path: path, cause: cause}
}

func IsModelLoadFailed(err error) bool {
	_, ok := err.(modelLoadError)
	return ok
}

// contextCreateError signals that the inference context could not be created.
type contextCreateError struct {
	nCtx  int
	cause error
}

func (e contextCreateError) Error() string {
	return fmt.Sprintf("context create failed (n_ctx=%d): %v", e.nCtx, e.cause)
}
func (e contextCreateError) Unwrap() error { return e.cause }

func ErrContextCreateFailed(nCtx int, cause error) error {
	return contextCreateError{nCtx: nCtx, cause: cause}
}

func IsContextCreateFailed(err error) bool {
	_, ok := err.(contextCreateError)
	return ok
}

// tokenizationError signals tokenizer failure on input text.
type tokenizationError struct{ cause error }

func (e tokenizationError) Error() string { return fmt.Sprintf("tokenization failed: %v", e.cause) }
func (e tokenizationError) Unwrap() error { return e.cause }

func ErrTokenizationFailed(cause error) error { return tokenizationError{cause: cause} }

func IsTokenizationFailed(err error) bool {
	_, ok := err.(tokenizationError)
	return ok
}

// decodeError signals a failed token submission to the runtime mid-call.
type decodeError struct{ cause error }

func (e decodeError) Error() string { return fmt.Sprintf("decode failed: %v", e.cause) }
func (e decodeError) Unwrap() error { return e.cause }

func ErrDecodeFailed(cause error) error { return decodeError{cause: cause} }

func IsDecodeFailed(err error) bool {
	_, ok := err.(decodeError)
	return ok
}

// overflowError signals that ingesting input would exceed context capacity.
// Detected before any decoding; carries the numbers for the caller.
type overflowError struct {
	position int
	incoming int
	capacity int
}

func (e overflowError) Error() string {
	return fmt.Sprintf("context overflow: position=%d + tokens=%d >= capacity=%d",
		e.position, e.incoming, e.capacity)
}

func ErrContextOverflow(position, incoming, capacity int) error {
	return overflowError{position: position, incoming: incoming, capacity: capacity}
}

func IsContextOverflow(err error) bool {
	_, ok := err.(overflowError)
	return ok
}

// templateError signals chat-template application failure.
type templateError struct{ cause error }

func (e templateError) Error() string { return fmt.Sprintf("template application failed: %v", e.cause) }
func (e templateError) Unwrap() error { return e.cause }

func ErrTemplateFailed(cause error) error { return templateError{cause: cause} }

func IsTemplateFailed(err error) bool {
	_, ok := err.(templateError)
	return ok
}

// callbackError signals that the delivery sink failed during streaming.
type callbackError struct{ cause error }

func (e callbackError) Error() string { return fmt.Sprintf("callback failed: %v", e.cause) }
func (e callbackError) Unwrap() error { return e.cause }

func ErrCallbackFailed(cause error) error { return callbackError{cause: cause} }

func IsCallbackFailed(err error) bool {
	_, ok := err.(callbackError)
	return ok
}

// allocError signals a failed runtime allocation (e.g. sampler chain build).
type allocError struct{ cause error }

func (e allocError) Error() string { return fmt.Sprintf("allocation failed: %v", e.cause) }
func (e allocError) Unwrap() error { return e.cause }

func ErrAllocationFailed(cause error) error { return allocError{cause: cause} }

func IsAllocationFailed(err error) bool {
	_, ok := err.(allocError)
	return ok
}

// invalidArgumentError signals a rejected caller-supplied value, checked
// before any resource is acquired.
type invalidArgumentError struct{ msg string }

func (e invalidArgumentError) Error() string { return e.msg }

func ErrInvalidArgument(msg string) error { return invalidArgumentError{msg: msg} }

func IsInvalidArgument(err error) bool {
	_, ok := err.(invalidArgumentError)
	return ok
}

// busyError signals a generation already in flight on the session.
type busyError struct{ id string }

func (e busyError) Error() string { return "session busy: " + e.id }

func ErrSessionBusy(id string) error { return busyError{id: id} }

func IsSessionBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}
