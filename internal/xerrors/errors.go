// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xerrors defines the error taxonomy shared by every layer of the
// engine: a small closed set of kinds carried by one error type.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error kinds the engine can report.
type Kind int

const (
	_ Kind = iota
	// SchemaMismatch covers an unreconcilable field-by-field mapping, a
	// duplicate field name in a slot chain, or a wire class that matches no
	// remaining slot.
	SchemaMismatch
	// ProtocolViolation covers a bad class handle, a bad type tag, or a
	// truncated ClassDef.
	ProtocolViolation
	// EOF means the buffer ran out of bytes.
	EOF
	// UnknownField means a PutField/GetField name was not declared on the
	// slot.
	UnknownField
	// NotActive means a PutField/GetField state machine was used out of
	// order.
	NotActive
	// UnsupportedEncoding means a user hook invoked a forbidden legacy
	// stream operation.
	UnsupportedEncoding
	// InvalidObject means a nil validator was registered, or an ancestor
	// constructor was unreachable.
	InvalidObject
	// ConstructionFailed means allocation of a target instance failed and
	// unsafe allocation is disabled.
	ConstructionFailed
)

func (k Kind) String() string {
	switch k {
	case SchemaMismatch:
		return "schema-mismatch"
	case ProtocolViolation:
		return "protocol-violation"
	case EOF:
		return "eof"
	case UnknownField:
		return "unknown-field"
	case NotActive:
		return "not-active"
	case UnsupportedEncoding:
		return "unsupported-encoding"
	case InvalidObject:
		return "invalid-object"
	case ConstructionFailed:
		return "construction-failed"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced at every call boundary in this
// module.
type Error struct {
	Kind Kind
	msg  string
	wrap error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), wrap: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrap != nil {
		return fmt.Sprintf("xserial: %s: %s: %v", e.Kind, e.msg, e.wrap)
	}
	return fmt.Sprintf("xserial: %s: %s", e.Kind, e.msg)
}

// Unwrap implements error unwrapping.
func (e *Error) Unwrap() error { return e.wrap }

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
