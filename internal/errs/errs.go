// Package errs collects the node's error kinds. Each kind is a sentinel
// error tested with errors.Is, in the flat errors.New var-bank style this
// codebase already uses elsewhere, plus a pair of marker interfaces
// (Recoverable, Fatal) callers can type-switch on to decide whether a
// failure stays local or propagates to startup.
package errs

import "errors"

// Error kinds, grouped as in spec §7.
var (
	// ErrStorageFailure: the storage backend refused a read or write.
	ErrStorageFailure = errors.New("storage backend refused the operation")

	// ErrDecodeFailure: short buffer, bad magic, bad checksum, or size
	// mismatch. The frame is dropped, not fatal on its own.
	ErrDecodeFailure = errors.New("decode failure: malformed frame or object")

	// ErrSignatureFailure: verify returned false, or the key is malformed.
	// The signed object is dropped, never propagated as a fatal error.
	ErrSignatureFailure = errors.New("signature verification failed")

	// ErrInvariantViolation: duplicate sequence, insufficient balance. The
	// offending transaction is marked cancelled; the rest of the block
	// containing it still executes.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrFatalInit: cannot open a store, cannot bind the listening socket.
	// Propagated to startup; the process exits non-zero.
	ErrFatalInit = errors.New("fatal initialization failure")
)

// Recoverable is implemented by errors that are local to the component
// that raised them and never surface to the operator beyond a log line.
type Recoverable interface {
	error
	Recoverable() bool
}

// Fatal is implemented by errors that must propagate to startup and
// terminate the process non-zero.
type Fatal interface {
	error
	Fatal() bool
}

type recoverableError struct{ inner error }

func (e recoverableError) Error() string    { return e.inner.Error() }
func (e recoverableError) Unwrap() error    { return e.inner }
func (recoverableError) Recoverable() bool  { return true }

// Storage wraps err as a recoverable storage failure.
func Storage(err error) error {
	return recoverableError{wrap(ErrStorageFailure, err)}
}

// Decode wraps err as a recoverable decode failure.
func Decode(err error) error {
	return recoverableError{wrap(ErrDecodeFailure, err)}
}

// Signature wraps err as a recoverable signature failure.
func Signature(err error) error {
	return recoverableError{wrap(ErrSignatureFailure, err)}
}

// Invariant wraps err as a recoverable invariant violation.
func Invariant(err error) error {
	return recoverableError{wrap(ErrInvariantViolation, err)}
}

type fatalError struct{ inner error }

func (e fatalError) Error() string { return e.inner.Error() }
func (e fatalError) Unwrap() error { return e.inner }
func (fatalError) Fatal() bool     { return true }

// Init wraps err as a fatal initialization failure.
func Init(err error) error {
	return fatalError{wrap(ErrFatalInit, err)}
}

func wrap(kind, err error) error {
	if err == nil {
		return kind
	}
	return &wrapped{kind: kind, cause: err}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string { return w.kind.Error() + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() error { return w.kind }
func (w *wrapped) Cause() error  { return w.cause }
