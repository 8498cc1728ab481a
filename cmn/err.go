// Package cmn provides the error kinds shared by every package boundary in
// the client: address parsing, the wire codec, both transports, and the
// pipeline core.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories named in the design (see
// the Errors entry of SPEC_FULL.md's AMBIENT STACK).
type Kind int

const (
	_ Kind = iota
	BadParameter
	OperationFailed
	Timeout
	NotSupportedVersion
	IncorrectAPIUse
	System
	ParseError
)

func (k Kind) String() string {
	switch k {
	case BadParameter:
		return "BadParameter"
	case OperationFailed:
		return "OperationFailed"
	case Timeout:
		return "Timeout"
	case NotSupportedVersion:
		return "NotSupportedVersion"
	case IncorrectAPIUse:
		return "IncorrectAPIUse"
	case System:
		return "System"
	case ParseError:
		return "ParseError"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with a message and an optional cause. It is the error
// type this module returns across package boundaries, with one exception:
// wire.ReadFrame returns the reader's own error (e.g. io.EOF) when the
// length prefix cannot be read.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err is an *Error of the given kind.
func Is(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}

func newf(k Kind, format string, a ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, a...)}
}

func wrapf(k Kind, cause error, format string, a ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, a...), cause: errors.WithStack(cause)}
}

func NewBadParameter(format string, a ...any) error      { return newf(BadParameter, format, a...) }
func NewOperationFailed(format string, a ...any) error    { return newf(OperationFailed, format, a...) }
func NewTimeout(format string, a ...any) error            { return newf(Timeout, format, a...) }
func NewNotSupportedVersion(format string, a ...any) error { return newf(NotSupportedVersion, format, a...) }
func NewIncorrectAPIUse(format string, a ...any) error     { return newf(IncorrectAPIUse, format, a...) }
func NewSystem(format string, a ...any) error              { return newf(System, format, a...) }
func NewParseError(format string, a ...any) error          { return newf(ParseError, format, a...) }

func WrapOperationFailed(cause error, format string, a ...any) error {
	return wrapf(OperationFailed, cause, format, a...)
}

func WrapTimeout(cause error, format string, a ...any) error {
	return wrapf(Timeout, cause, format, a...)
}

func WrapSystem(cause error, format string, a ...any) error {
	return wrapf(System, cause, format, a...)
}

func WrapParseError(cause error, format string, a ...any) error {
	return wrapf(ParseError, cause, format, a...)
}
