//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package dberrors defines the typed error surface of the engine. Every
// error that crosses a package boundary carries a Kind so that callers can
// branch on failure class without string matching.
package dberrors

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindOK Kind = iota
	KindParams
	KindLogic
	KindParse
	KindParseSQL
	KindParseBin
	KindNotFound
	KindNotValid
	KindConflict
	KindForbidden
	KindQueryExec
	KindStateInvalidated
	KindNamespaceInvalidated
	KindTagsMismatch
	KindCancel
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindParams:
		return "Params"
	case KindLogic:
		return "Logic"
	case KindParse:
		return "Parse"
	case KindParseSQL:
		return "ParseSQL"
	case KindParseBin:
		return "ParseBin"
	case KindNotFound:
		return "NotFound"
	case KindNotValid:
		return "NotValid"
	case KindConflict:
		return "Conflict"
	case KindForbidden:
		return "Forbidden"
	case KindQueryExec:
		return "QueryExec"
	case KindStateInvalidated:
		return "StateInvalidated"
	case KindNamespaceInvalidated:
		return "NamespaceInvalidated"
	case KindTagsMismatch:
		return "TagsMismatch"
	case KindCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the concrete error type used across the engine. It wraps an
// optional cause so that errors.Is/errors.As keep working through it.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func Params(format string, args ...interface{}) *Error {
	return New(KindParams, format, args...)
}

func Logic(format string, args ...interface{}) *Error {
	return New(KindLogic, format, args...)
}

func Parse(format string, args ...interface{}) *Error {
	return New(KindParse, format, args...)
}

func ParseSQL(format string, args ...interface{}) *Error {
	return New(KindParseSQL, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func QueryExec(format string, args ...interface{}) *Error {
	return New(KindQueryExec, format, args...)
}

func TagsMismatch(format string, args ...interface{}) *Error {
	return New(KindTagsMismatch, format, args...)
}

func Cancel(format string, args ...interface{}) *Error {
	return New(KindCancel, format, args...)
}

// FromContext converts a context error into a Cancel-kinded error. The
// distinction between deadline and explicit cancel is kept in the message
// only, both behave identically for retry purposes.
func FromContext(ctx context.Context) *Error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return Wrap(KindCancel, ctx.Err(), "deadline exceeded")
	case context.Canceled:
		return Wrap(KindCancel, ctx.Err(), "context canceled")
	default:
		return nil
	}
}

// KindOf reports the Kind of err, unwrapping as needed. Context
// cancellation and deadline errors report KindCancel, other non-engine
// errors KindLogic, nil reports KindOK.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancel
	}
	return KindLogic
}

// Is allows errors.Is(err, dberrors.New(kind, ...)) style comparisons by
// kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.kind == e.kind
	}
	return false
}
