// Package apperr defines the error taxonomy shared by the narration
// pipeline and the HTTP surface.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation           Kind = "validation"
	KindSynthesisUnavailable Kind = "synthesis_unavailable"
	KindInvalidVoiceConfig   Kind = "invalid_voice_config"
	KindInternal             Kind = "internal"
	KindNotFound             Kind = "not_found"
	KindUnauthorized         Kind = "unauthorized"
	KindUpstream             Kind = "upstream"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap tags err with kind. An error that already carries a kind is returned
// as-is so the original classification survives every layer.
func Wrap(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Newf is New with a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// IsKind reports whether the first tagged error in the chain matches kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the first tagged error in the chain, or
// KindInternal for untagged errors.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message of a tagged error.
func Message(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Message
	}
	return "internal error"
}
