// Package apperr sorts the errors of a fusion run by who has to act on them,
// and maps each kind to the process exit status.
//
//	ErrCancelled  the user aborted the setup form, a confirmation or the
//	              anomaly browser. Exit 0.
//	*UserError    the survey request or a flag is wrong: a bad coordinate,
//	              an unknown modality, a grid with no cells. Only the message
//	              is printed. Exit 2.
//	anything else I/O, archive or encoding failures. Exit 1.
//
// Domain packages never build a UserError themselves; they return sentinel
// errors (sensor.ErrInvalidGridDimensions, ...) and the command layer decides
// which of them are the caller's fault with Input.
package apperr

import (
	"errors"
	"fmt"
)

// Exit statuses returned by ExitCode.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitInput   = 2
)

// ErrCancelled is returned when the user explicitly aborts an interactive
// operation.
var ErrCancelled = errors.New("operation cancelled")

// UserError is an error the user can fix by changing the request. Err, when
// set, is the domain error it was raised from.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	default:
		return e.Message
	}
}

func (e *UserError) Unwrap() error { return e.Err }

// User creates a UserError with the given message.
func User(msg string) error { return &UserError{Message: msg} }

// Userf creates a formatted UserError.
func Userf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// Input marks err as a user error when it matches one of causes, or
// unconditionally when no causes are given. The original chain stays
// reachable through errors.Is. A nil err stays nil.
func Input(err error, causes ...error) error {
	if err == nil || IsUser(err) || errors.Is(err, ErrCancelled) {
		return err
	}
	if len(causes) == 0 {
		return &UserError{Err: err}
	}
	for _, c := range causes {
		if errors.Is(err, c) {
			return &UserError{Err: err}
		}
	}
	return err
}

// IsUser reports whether err is (or wraps) a *UserError.
func IsUser(err error) bool {
	var u *UserError
	return errors.As(err, &u)
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, ErrCancelled):
		return ExitOK
	case IsUser(err):
		return ExitInput
	default:
		return ExitFailure
	}
}
