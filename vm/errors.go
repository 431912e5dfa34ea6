package vm

import "fmt"

// ---------------------------------------------------------------------------
// Runtime error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies a runtime error.
type ErrorKind int

const (
	// ErrMatch: a pattern destructure failed. Catchable; match arms use
	// it for fall-through.
	ErrMatch ErrorKind = iota
	// ErrType: an FFI primitive or opcode received a value of the wrong
	// kind. Catchable.
	ErrType
	// ErrUser: a value raised by `error`. Catchable.
	ErrUser
	// ErrTimeout: the fuel budget was exhausted. Not catchable.
	ErrTimeout
	// ErrInternal: a VM invariant was violated (stack underflow, operand
	// out of range). Not catchable; halts the VM.
	ErrInternal
)

var errorKindNames = map[ErrorKind]string{
	ErrMatch:    "MatchError",
	ErrType:     "TypeError",
	ErrUser:     "UserError",
	ErrTimeout:  "TimeoutError",
	ErrInternal: "InternalError",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// RuntimeError is an error raised inside a fiber. Payload carries the
// raised value; for errors not raised by `error` it is the message
// string.
type RuntimeError struct {
	ErrKind ErrorKind
	Message string
	Payload Value
	Span    Span
}

func (e *RuntimeError) Error() string {
	if e.Span.Length > 0 || e.Span.Offset > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.ErrKind, e.Message, e.Span)
	}
	return fmt.Sprintf("%s: %s", e.ErrKind, e.Message)
}

// Value returns the payload surfaced by Try as Result.Error. Errors
// raised without an explicit payload surface their message string.
func (e *RuntimeError) Value() Value {
	if e.Payload != nil {
		return e.Payload
	}
	return String(e.Message)
}

// Catchable reports whether Try converts this error into Result.Error.
func (e *RuntimeError) Catchable() bool {
	switch e.ErrKind {
	case ErrMatch, ErrType, ErrUser:
		return true
	}
	return false
}

func matchErrorf(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{ErrKind: ErrMatch, Message: fmt.Sprintf(format, args...)}
}

func typeErrorf(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{ErrKind: ErrType, Message: fmt.Sprintf(format, args...)}
}

func internalErrorf(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{ErrKind: ErrInternal, Message: fmt.Sprintf(format, args...)}
}
