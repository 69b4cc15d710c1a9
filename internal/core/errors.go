package core

import (
	"errors"
	"fmt"
)

// Exit codes for the mpdstats binary.
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitUsage   = 2
	ExitConnect = 3
	ExitAuth    = 4
	ExitRetry   = 5
)

var (
	// ErrConnection means the MPD transport could not be established.
	ErrConnection = errors.New("could not connect to MPD")
	// ErrAuth means MPD rejected the configured password.
	ErrAuth = errors.New("could not authenticate to MPD")
	// ErrRetryExhausted means a daemon call failed on every attempt.
	ErrRetryExhausted = errors.New("failed to re-connect to MPD server")
	// ErrNotFound means the catalog has no item for a path.
	ErrNotFound = errors.New("item not found")
)

// Error carries an operator-visible message and exit code.
type Error struct {
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError creates an Error with an underlying error.
func WrapError(code int, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	switch {
	case errors.Is(err, ErrAuth):
		return ExitAuth
	case errors.Is(err, ErrConnection):
		return ExitConnect
	case errors.Is(err, ErrRetryExhausted):
		return ExitRetry
	default:
		return ExitRuntime
	}
}
