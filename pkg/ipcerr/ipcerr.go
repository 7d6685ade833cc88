// Package ipcerr defines the error type returned by the event and shm packages.
//
// Every failure carries a Kind from a small closed set so that callers can tell a
// timed-out wait from a broken handle without parsing messages:
//
//	if err := ev.Wait(time.Second); ipcerr.IsTimeout(err) {
//		// nobody signaled, try again later
//	} else if err != nil {
//		// the event itself is unusable
//	}
package ipcerr

import (
	"errors"
	"strings"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindUnknown is reported for errors that did not come from this module.
	KindUnknown Kind = iota
	// KindInvalidArgument: empty name, nil or closed handle, bad size or timeout.
	// Nothing reached the operating system.
	KindInvalidArgument
	// KindCreationFailed: the named object could not be created or attached.
	KindCreationFailed
	// KindMappingFailed: the backing object exists but could not be mapped.
	KindMappingFailed
	// KindTimedOut: a wait elapsed without observing a signal.
	KindTimedOut
	// KindSystem: an operating system call failed on an acquired handle.
	KindSystem
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindInvalidArgument: "invalid argument",
	KindCreationFailed:  "creation failed",
	KindMappingFailed:   "mapping failed",
	KindTimedOut:        "timed out",
	KindSystem:          "system error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Error is the error returned by every facility operation.
type Error struct {
	Op   string // e.g. "event.wait", "shm.map"
	Name string // name of the object, empty when unknown
	Kind Kind
	Err  error // underlying cause, may be nil
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrCreationFailed  = &Error{Kind: KindCreationFailed}
	ErrMappingFailed   = &Error{Kind: KindMappingFailed}
	ErrTimedOut        = &Error{Kind: KindTimedOut}
	ErrSystem          = &Error{Kind: KindSystem}
)

// New returns an *Error.
func New(op, name string, kind Kind, err error) *Error {
	return &Error{Op: op, Name: name, Kind: kind, Err: err}
}

// Invalid returns a KindInvalidArgument error with a short reason.
func Invalid(op, name, reason string) *Error {
	return &Error{Op: op, Name: name, Kind: KindInvalidArgument, Err: errors.New(reason)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("namedipc: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteByte(' ')
	}
	if e.Name != "" {
		b.WriteByte('"')
		b.WriteString(e.Name)
		b.WriteString("\" ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Name == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is a timed-out wait.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimedOut
}
