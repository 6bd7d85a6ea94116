// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dagrun

import (
	"errors"
	"fmt"
)

// Error kinds. Each error returned by this package and the tracker matches
// exactly one of those with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrExecutorSignal = errors.New("executor signal failed")
	ErrPersistence    = errors.New("persistence error")
)

// Error is a structured error of DAG run operations. Kind is one of Err*
// sentinels, Op names the failed operation and Err is an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

// Error returns text representation of the error.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf creates ErrValidation error.
func Validationf(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound creates ErrNotFound error for DAG run of given id.
func NotFound(op, runId string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: "DAG run " + runId}
}

// InvalidStatef creates ErrInvalidState error.
func InvalidStatef(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ExecutorSignal wraps executor failure.
func ExecutorSignal(op string, cause error) error {
	return &Error{Kind: ErrExecutorSignal, Op: op, Err: cause}
}

// Persistence wraps storage failure.
func Persistence(op string, cause error) error {
	return &Error{Kind: ErrPersistence, Op: op, Err: cause}
}

// KindOf returns stable name of error kind: validation, not_found,
// invalid_state, executor_signal or persistence. For errors of other kinds
// "internal" is returned.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrExecutorSignal):
		return "executor_signal"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	}
	return "internal"
}
