// Package errz defines the error taxonomy shared by every stage of the
// classweave pipeline.
package errz

import (
	"errors"
	"fmt"
)

// ErrorKind represents the specific failure of an error.
type ErrorKind int

const (
	// TruncatedInput indicates a declared length runs past the end of input.
	TruncatedInput ErrorKind = iota
	// UnsupportedVersion indicates a class version above the configured ceiling.
	UnsupportedVersion
	// MalformedConstant indicates an unrecognized tag byte or bad framing.
	MalformedConstant
	// MalformedPool indicates an invalid constant-pool index.
	MalformedPool
	// MalformedReference indicates a pool entry of the wrong kind, a bad
	// descriptor, or a branch into the middle of an instruction.
	MalformedReference
	// MalformedCode indicates an undefined opcode or a dangling label.
	MalformedCode
	// TargetNotFound indicates the method to inline does not exist.
	TargetNotFound
	// NonInlinableTarget indicates the method to inline has no usable body.
	NonInlinableTarget
	// IncompatibleReceiver indicates an instance method spliced into a
	// static context.
	IncompatibleReceiver
	// OffsetOverflow indicates a method body beyond the format's size limit.
	OffsetOverflow
	// PoolOverflow indicates the constant pool ran out of slots.
	PoolOverflow
)

// Category groups error kinds by what they say about the input.
type Category int

const (
	// Structural errors mean the input bytes do not conform to the format.
	Structural Category = iota
	// Transformation errors mean the request cannot apply to this input.
	Transformation
	// EncodingLimit errors mean the output would not fit the format.
	EncodingLimit
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case Structural:
		return "structural"
	case Transformation:
		return "transformation"
	case EncodingLimit:
		return "encoding limit"
	default:
		return "unknown"
	}
}

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case TruncatedInput:
		return "truncated input"
	case UnsupportedVersion:
		return "unsupported version"
	case MalformedConstant:
		return "malformed constant"
	case MalformedPool:
		return "malformed pool"
	case MalformedReference:
		return "malformed reference"
	case MalformedCode:
		return "malformed code"
	case TargetNotFound:
		return "target not found"
	case NonInlinableTarget:
		return "non-inlinable target"
	case IncompatibleReceiver:
		return "incompatible receiver"
	case OffsetOverflow:
		return "offset overflow"
	case PoolOverflow:
		return "pool overflow"
	default:
		return "error"
	}
}

// Category returns the category the kind belongs to.
func (k ErrorKind) Category() Category {
	switch k {
	case TargetNotFound, NonInlinableTarget, IncompatibleReceiver:
		return Transformation
	case OffsetOverflow, PoolOverflow:
		return EncodingLimit
	default:
		return Structural
	}
}

// NoOffset is the Offset of an error that is not tied to an input position.
const NoOffset = -1

// Error is the structured error returned by every classweave stage.
type Error struct {
	Kind    ErrorKind
	Message string
	// Offset is the byte offset into the input the error refers to, or
	// NoOffset.
	Offset int
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
	if e.Offset != NoOffset {
		msg = fmt.Sprintf("%s (offset %d)", msg, e.Offset)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error ends the whole transformation. Every
// error that escapes a stage is fatal; widening absorbs the recoverable
// offset cases before they are ever reported.
func (e *Error) IsFatal() bool {
	return true
}

// Category returns the category of the error's kind.
func (e *Error) Category() Category {
	return e.Kind.Category()
}

// Code returns the stable error code for the error's kind.
func (e *Error) Code() ErrorCode {
	return CodeFor(e.Kind)
}

// New creates a new Error with no input offset.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, Offset: NoOffset}
}

// Newf creates a new Error with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: NoOffset}
}

// At creates a new Error at the given byte offset.
func At(kind ErrorKind, offset int, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: offset}
}

// WithCause wraps the error with a cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// KindOr returns the kind of the first *Error in err's chain, or fallback
// if there is none.
func KindOr(err error, fallback ErrorKind) ErrorKind {
	if kind, ok := KindOf(err); ok {
		return kind
	}
	return fallback
}
