package docstore

import (
	"errors"
	"fmt"
)

// Code classifies a store failure.
type Code string

const (
	CodeNotFound         Code = "not-found"
	CodePermissionDenied Code = "permission-denied"
	CodeAlreadyExists    Code = "already-exists"
	CodeInvalidArgument  Code = "invalid-argument"
	CodeUnavailable      Code = "unavailable"
)

// Error is the store's error type. Two errors match under errors.Is when
// their codes are equal.
type Error struct {
	Code    Code
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrAlreadyExists    = &Error{Code: CodeAlreadyExists}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument}
	ErrUnavailable      = &Error{Code: CodeUnavailable}
)

func newError(code Code, path, message string) *Error {
	return &Error{Code: code, Path: path, Message: message}
}

// CodeOf returns the code carried by err. Errors that did not originate
// in the store are reported as unavailable.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnavailable
}

// wrapBackend tags an untyped backend failure as transient.
func wrapBackend(path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeUnavailable, Path: path, Message: "backend failure", Cause: err}
}
