// Package faults classifies the errors that cross component boundaries so
// callers can decide between reporting, skipping a song or tearing down a
// guild session.
package faults

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Unknown is the kind of any error not produced by this package.
	Unknown Kind = iota
	// UserInput covers invalid references, bad search text and selections
	// that never arrived. Reported to the user, no session impact.
	UserInput
	// Resolve covers resolver process failures and unexpected result kinds.
	Resolve
	// Pipeline covers extraction/transcode failures. Song-level.
	Pipeline
	// Connection covers losing the voice connection past the grace window.
	// Always fatal to the session.
	Connection
)

func (k Kind) String() string {
	switch k {
	case UserInput:
		return "user_input"
	case Resolve:
		return "resolve"
	case Pipeline:
		return "pipeline"
	case Connection:
		return "connection"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": " + e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func UserInputf(op, format string, args ...any) *Error {
	return &Error{Kind: UserInput, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
