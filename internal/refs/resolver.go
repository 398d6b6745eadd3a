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

// Package refs implements the reference-tracking resolver: it assigns a
// dense integer ID to each object seen during one serialization, enabling
// shared references and cycles. Both peers assign IDs in the same order,
// so the ID space never appears on the wire except in back-references.
//
// The read side is an arena-style vector of materialized instances; a
// freshly allocated instance is registered before its fields are read, so
// back-references into an object still under construction resolve (the
// registration-before-recursion pattern).
package refs

import (
	"reflect"

	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// Reference tags. A null is a single tag byte; a back-reference is the tag
// followed by a varint ID; a new object is the tag followed by its payload.
const (
	tagNull  = 0
	tagRef   = 1
	tagValue = 2
)

type writeKey struct {
	typ reflect.Type
	ptr uintptr
}

// Resolver tracks object identity for a single serialization call. It is
// not safe for concurrent use; concurrent serializations use distinct
// Resolvers. Reset returns it to its initial state for reuse.
type Resolver struct {
	// Write side.
	ids     map[writeKey]uint32
	strings map[string]uint32
	next    uint32

	// Read side: instance arena, indexed by ID.
	arena []reflect.Value
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		ids:     make(map[writeKey]uint32),
		strings: make(map[string]uint32),
	}
}

// Reset discards all tracked identity, leaving the Resolver ready for the
// next serialization call. Callers reset after an error to discard any
// partially-constructed instances.
func (r *Resolver) Reset() {
	clear(r.ids)
	clear(r.strings)
	r.next = 0
	r.arena = r.arena[:0]
}

// WriteRef emits the reference encoding for the pointer v: a null tag, a
// back-reference to an already-assigned ID, or a value tag followed by
// whatever inline emits. New objects are assigned their ID before inline
// runs, so cyclic graphs terminate.
func (r *Resolver) WriteRef(b *wire.Buffer, v reflect.Value, inline func(reflect.Value) error) error {
	if !v.IsValid() || v.IsNil() {
		b.WriteByte(tagNull)
		return nil
	}

	key := writeKey{typ: v.Type(), ptr: v.Pointer()}
	if id, ok := r.ids[key]; ok {
		b.WriteByte(tagRef)
		b.WriteVarint32(id)
		return nil
	}

	r.ids[key] = r.next
	r.next++

	b.WriteByte(tagValue)
	return inline(v)
}

// WriteRefString is WriteRef for strings, which have value identity rather
// than pointer identity: equal strings share one ID.
func (r *Resolver) WriteRefString(b *wire.Buffer, s string) {
	if id, ok := r.strings[s]; ok {
		b.WriteByte(tagRef)
		b.WriteVarint32(id)
		return
	}

	r.strings[s] = r.next
	r.next++

	b.WriteByte(tagValue)
	b.WriteString(s)
}

// ReadRef reads a reference encoding: on a null tag it returns an invalid
// Value, on a back-reference the arena entry, and on a value tag whatever
// inline materializes. inline must register the new instance (via
// [Resolver.Register]) before reading its fields.
func (r *Resolver) ReadRef(b *wire.Buffer, inline func() (reflect.Value, error)) (reflect.Value, error) {
	tag, err := b.ReadByte()
	if err != nil {
		return reflect.Value{}, err
	}

	switch tag {
	case tagNull:
		return reflect.Value{}, nil
	case tagRef:
		id, err := b.ReadVarint32()
		if err != nil {
			return reflect.Value{}, err
		}
		return r.At(id)
	case tagValue:
		return inline()
	default:
		return reflect.Value{}, xerrors.New(xerrors.ProtocolViolation, "bad reference tag %#x", tag)
	}
}

// ReadRefString is the read side of [Resolver.WriteRefString].
func (r *Resolver) ReadRefString(b *wire.Buffer) (string, error) {
	v, err := r.ReadRef(b, func() (reflect.Value, error) {
		s, err := b.ReadString()
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.ValueOf(s)
		r.Register(v)
		return v, nil
	})
	if err != nil {
		return "", err
	}
	if !v.IsValid() {
		return "", nil
	}
	if v.Kind() != reflect.String {
		return "", xerrors.New(xerrors.ProtocolViolation, "back-reference to %v where a string was expected", v.Type())
	}
	return v.String(), nil
}

// Register appends a materialized instance to the arena and returns its
// ID. An invalid Value registers a placeholder, keeping the ID sequence in
// lockstep when an object is skipped rather than materialized.
func (r *Resolver) Register(v reflect.Value) uint32 {
	id := uint32(len(r.arena))
	r.arena = append(r.arena, v)
	return id
}

// At returns the arena entry for id.
func (r *Resolver) At(id uint32) (reflect.Value, error) {
	if int(id) >= len(r.arena) {
		return reflect.Value{}, xerrors.New(xerrors.ProtocolViolation,
			"back-reference to unknown object %d (%d materialized)", id, len(r.arena))
	}
	return r.arena[id], nil
}
