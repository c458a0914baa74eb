// Package errs defines the error classification used across the evaluation
// pipeline. Callers decide retry behavior from the kind, never from string
// matching.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindNotFound marks a missing job or document reference.
	KindNotFound Kind = iota + 1
	// KindInvalidState marks an illegal job state transition request.
	KindInvalidState
	// KindTransient marks a timeout or server-side failure worth retrying.
	KindTransient
	// KindParse marks LLM output that did not decode into the expected
	// structure. Not retried at the extraction layer; counts toward the
	// job-level retry budget.
	KindParse
	// KindFatal marks misconfiguration or auth failures. Never retried.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindTransient:
		return "transient"
	case KindParse:
		return "parse"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err, unwrapping as needed. Unclassified errors
// report zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }
func IsTransient(err error) bool    { return KindOf(err) == KindTransient }
func IsParse(err error) bool        { return KindOf(err) == KindParse }
func IsFatal(err error) bool        { return KindOf(err) == KindFatal }
