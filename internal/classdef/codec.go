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

package classdef

import (
	"github.com/cespare/xxhash/v2"

	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// Wire encoding: length-prefixed class name; varint field count; then per
// field a length-prefixed name, a nullable flag byte, and the TypeRef as a
// one-byte tag followed by tag-specific payload. The ID is never on the
// wire; it is re-derived from the received bytes.

// Encode appends the canonical encoding of d to b.
func (d *ClassDef) Encode(b *wire.Buffer) {
	b.WriteRaw(d.canonical)
}

// encode is the canonical-form serializer backing both Encode and the ID
// computation.
func (d *ClassDef) encode(b *wire.Buffer) {
	b.WriteString(d.className)
	b.WriteVarint64(uint64(len(d.fields)))
	for _, f := range d.fields {
		b.WriteString(f.Name)
		b.WriteBool(f.Nullable)
		encodeTypeRef(b, f.Type)
	}
}

func encodeTypeRef(b *wire.Buffer, ref descriptor.TypeRef) {
	b.WriteByte(byte(ref.Kind))
	switch ref.Kind {
	case descriptor.KindObject:
		b.WriteString(ref.Class)
		b.WriteVarint64(uint64(len(ref.Generics)))
		for _, g := range ref.Generics {
			encodeTypeRef(b, g)
		}
	case descriptor.KindArray:
		encodeTypeRef(b, *ref.Elem)
	}
}

// Decode reads a ClassDef from b. The ID is re-derived from the canonical
// re-encoding of what was read, not the raw received bytes, so definitions
// that differ only in wire-level encoding (overlong varints and the like)
// still agree on identity with locally-constructed ones. A truncated or
// malformed definition is a protocol violation.
func Decode(b *wire.Buffer) (*ClassDef, error) {
	d := &ClassDef{}
	if err := d.decode(b); err != nil {
		if xerrors.Is(err, xerrors.EOF) {
			return nil, xerrors.Wrap(xerrors.ProtocolViolation, err, "truncated class definition")
		}
		return nil, err
	}

	canon := wire.NewWriter()
	d.encode(canon)
	d.canonical = canon.Bytes()
	d.id = xxhash.Sum64(d.canonical)
	return d, nil
}

func (d *ClassDef) decode(b *wire.Buffer) error {
	var err error
	if d.className, err = b.ReadString(); err != nil {
		return err
	}

	n, err := b.ReadVarint64()
	if err != nil {
		return err
	}
	// Every field record takes at least three bytes (empty name, flag, tag),
	// so a count beyond that bound cannot be satisfied by the buffer.
	if n > uint64(b.Remaining()/3)+1 {
		return xerrors.New(xerrors.ProtocolViolation, "class definition field count %d exceeds buffer", n)
	}

	d.fields = make([]Field, n)
	for i := range d.fields {
		f := &d.fields[i]
		if f.Name, err = b.ReadString(); err != nil {
			return err
		}
		if f.Nullable, err = b.ReadBool(); err != nil {
			return err
		}
		if f.Type, err = decodeTypeRef(b, 0); err != nil {
			return err
		}
	}
	return nil
}

// maxTypeRefDepth bounds nested array/generic types so hostile input cannot
// recurse without limit.
const maxTypeRefDepth = 64

func decodeTypeRef(b *wire.Buffer, depth int) (descriptor.TypeRef, error) {
	if depth > maxTypeRefDepth {
		return descriptor.TypeRef{}, xerrors.New(xerrors.ProtocolViolation, "type reference nested too deeply")
	}

	tag, err := b.ReadByte()
	if err != nil {
		return descriptor.TypeRef{}, err
	}

	kind := descriptor.Kind(tag)
	switch {
	case kind.IsPrimitive(), kind == descriptor.KindString, kind == descriptor.KindOpaque:
		return descriptor.TypeRef{Kind: kind}, nil

	case kind == descriptor.KindObject:
		class, err := b.ReadString()
		if err != nil {
			return descriptor.TypeRef{}, err
		}
		n, err := b.ReadVarint64()
		if err != nil {
			return descriptor.TypeRef{}, err
		}
		if n > uint64(b.Remaining()) {
			return descriptor.TypeRef{}, xerrors.New(xerrors.ProtocolViolation, "generic parameter count %d exceeds buffer", n)
		}
		var generics []descriptor.TypeRef
		for range n {
			g, err := decodeTypeRef(b, depth+1)
			if err != nil {
				return descriptor.TypeRef{}, err
			}
			generics = append(generics, g)
		}
		return descriptor.TypeRef{Kind: kind, Class: class, Generics: generics}, nil

	case kind == descriptor.KindArray:
		elem, err := decodeTypeRef(b, depth+1)
		if err != nil {
			return descriptor.TypeRef{}, err
		}
		return descriptor.Array(elem), nil

	default:
		return descriptor.TypeRef{}, xerrors.New(xerrors.ProtocolViolation, "bad type tag %#x", tag)
	}
}
