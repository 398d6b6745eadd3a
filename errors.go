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

package xserial

import (
	"github.com/xserial-go/xserial/internal/xerrors"
)

// ErrorKind classifies every error the engine reports. Errors are never
// recovered internally; they propagate to the caller with the reference
// resolver reset, so no partially-constructed instance survives.
type ErrorKind = xerrors.Kind

const (
	// ErrSchemaMismatch is an unreconcilable field mapping, a duplicate
	// name in a slot chain, or a wire class matching no remaining slot.
	ErrSchemaMismatch ErrorKind = xerrors.SchemaMismatch
	// ErrProtocolViolation is a bad class handle, a bad type tag, or a
	// truncated class definition.
	ErrProtocolViolation ErrorKind = xerrors.ProtocolViolation
	// ErrEOF means the buffer ran out of bytes.
	ErrEOF ErrorKind = xerrors.EOF
	// ErrUnknownField means a PutField or GetField name was not declared.
	ErrUnknownField ErrorKind = xerrors.UnknownField
	// ErrNotActive is a PutField/GetField state machine violation.
	ErrNotActive ErrorKind = xerrors.NotActive
	// ErrUnsupportedEncoding means a hook invoked a legacy stream
	// operation this engine deliberately refuses.
	ErrUnsupportedEncoding ErrorKind = xerrors.UnsupportedEncoding
	// ErrInvalidObject is a nil validator or an unconstructible ancestor.
	ErrInvalidObject ErrorKind = xerrors.InvalidObject
	// ErrConstructionFailed means the target instance could not be
	// allocated.
	ErrConstructionFailed ErrorKind = xerrors.ConstructionFailed
)

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return xerrors.Is(err, kind)
}
