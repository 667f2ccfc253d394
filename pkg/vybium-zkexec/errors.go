package vybiumzkexec

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/protocols"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// ErrorCode represents a vybium-zkexec error code
type ErrorCode int

const (
	// ErrUnknown represents an unknown error
	ErrUnknown ErrorCode = iota

	// ErrInvalidConfig represents an invalid configuration error
	ErrInvalidConfig

	// ErrMalformedInput means the input blob could not be decoded into the
	// values the guest expects, or a value failed the guest's validity checks.
	// It always appears as the cause of an ErrGuestFailure.
	ErrMalformedInput

	// ErrGuestFailure means the guest terminated abnormally, including a
	// domain rejection such as a signature that does not verify
	ErrGuestFailure

	// ErrEngineFailure means the execution engine could not run or prove
	ErrEngineFailure

	// ErrResourceExhausted is the engine failure raised when a session
	// exceeds its cycle, time, or input budget
	ErrResourceExhausted

	// ErrVerificationFailure means a receipt did not verify
	ErrVerificationFailure

	// ErrInvalidState represents an illegal lifecycle transition
	ErrInvalidState
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidConfig:
		return "invalid config"
	case ErrMalformedInput:
		return "malformed input"
	case ErrGuestFailure:
		return "guest failure"
	case ErrEngineFailure:
		return "engine failure"
	case ErrResourceExhausted:
		return "resource exhausted"
	case ErrVerificationFailure:
		return "verification failure"
	case ErrInvalidState:
		return "invalid state"
	default:
		return "unknown"
	}
}

// Error represents a vybium-zkexec error
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vybium-zkexec error [%s]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("vybium-zkexec error [%s]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsCode reports whether err, or any error in its chain, carries code.
func IsCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}

// CodeOf returns the outermost code in err's chain.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// guestError wraps a guest exit error. Malformed input stays visible as a
// coded cause.
func guestError(err error) error {
	if errors.Is(err, vm.ErrMalformedInput) {
		return &Error{
			Code:    ErrGuestFailure,
			Message: "guest rejected its input",
			Cause:   &Error{Code: ErrMalformedInput, Message: "input blob is malformed", Cause: err},
		}
	}
	return &Error{Code: ErrGuestFailure, Message: "guest terminated abnormally", Cause: err}
}

// engineError wraps an error returned by the engine outside the guest.
func engineError(err error) error {
	if errors.Is(err, vm.ErrResourceExhausted) {
		return &Error{
			Code:    ErrEngineFailure,
			Message: "execution aborted",
			Cause:   &Error{Code: ErrResourceExhausted, Message: "session budget exceeded", Cause: err},
		}
	}
	return &Error{Code: ErrEngineFailure, Message: "execution engine failed", Cause: err}
}

// classify maps an engine Prove error to the public taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, vm.ErrGuestFailed) {
		return guestError(err)
	}
	return engineError(err)
}

func verificationError(err error) error {
	if !errors.Is(err, protocols.ErrVerification) {
		err = fmt.Errorf("%w: %w", protocols.ErrVerification, err)
	}
	return &Error{Code: ErrVerificationFailure, Message: "receipt rejected", Cause: err}
}
