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

// Package classdef implements the portable structural fingerprint of a
// type: class name, ordered field records, and a stable 64-bit ID derived
// from the canonical byte encoding.
package classdef

import (
	"github.com/cespare/xxhash/v2"

	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/wire"
)

// Field is one field record of a ClassDef.
type Field struct {
	Name     string
	Type     descriptor.TypeRef
	Nullable bool
}

// ClassDef is the immutable structural fingerprint of a class. Construct
// one with [New] or decode one with [Decode]; the zero value is not valid.
type ClassDef struct {
	id        uint64
	className string
	fields    []Field
	canonical []byte
}

// New constructs a ClassDef from a class name and its ordered field
// records, computing the canonical encoding and the 64-bit ID. The field
// slice is not retained.
func New(className string, fields []Field) *ClassDef {
	d := &ClassDef{
		className: className,
		fields:    append([]Field(nil), fields...),
	}

	b := wire.NewWriter()
	d.encode(b)
	d.canonical = b.Bytes()
	d.id = xxhash.Sum64(d.canonical)
	return d
}

// Of builds the ClassDef for a local type from its grouped descriptor
// sequence.
func Of(className string, ordered []descriptor.Descriptor) *ClassDef {
	fields := make([]Field, len(ordered))
	for i, f := range ordered {
		fields[i] = Field{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
	}
	return New(className, fields)
}

// ID returns the stable 64-bit ID: a non-cryptographic hash of the
// canonical encoding. Two ClassDefs have equal IDs iff their canonical
// bytes are equal.
func (d *ClassDef) ID() uint64 { return d.id }

// ClassName returns the contract name of the described class.
func (d *ClassDef) ClassName() string { return d.className }

// Fields returns the ordered field records. Callers must not mutate the
// returned slice.
func (d *ClassDef) Fields() []Field { return d.fields }

// NumFields returns the number of field records.
func (d *ClassDef) NumFields() int { return len(d.fields) }

// Equal reports whether d and o have identical canonical form.
func (d *ClassDef) Equal(o *ClassDef) bool {
	return d == o || (d != nil && o != nil && d.id == o.id)
}

func (d *ClassDef) String() string { return d.className }
