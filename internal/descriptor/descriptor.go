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

package descriptor

import (
	"reflect"

	"github.com/xserial-go/xserial/internal/xerrors"
)

// Tag is the struct tag key recognized by the field selection rule. A value
// of "-" excludes the field; any other value renames it in the contract.
const Tag = "xserial"

// Descriptor is a single field description: its contract name, declared
// type, owning class, nullability, and the reflect index path used to
// access it on a local instance. Index is nil for a descriptor that exists
// only on the peer side.
type Descriptor struct {
	Name     string
	Type     TypeRef
	Owner    reflect.Type
	Nullable bool
	Index    []int
}

// HasAccessor reports whether this descriptor can reach a field on a local
// instance.
func (d *Descriptor) HasAccessor() bool { return d.Index != nil }

// Ancestor is one level of a type's embedding chain, with the field index
// path from the most-derived type down to it. The most-derived type itself
// appears with a nil path.
type Ancestor struct {
	Type  reflect.Type
	Index []int
}

// Ancestors returns t's embedding chain in superclass-first order, ending
// with t itself. The superclass of a struct is its first embedded struct
// field, exported or not; a type with no such field is its own chain of one.
func Ancestors(t reflect.Type) []Ancestor {
	var chain []Ancestor
	var path []int
	for {
		chain = append(chain, Ancestor{Type: t, Index: append([]int(nil), path...)})
		parent, idx := superclass(t)
		if parent == nil {
			break
		}
		path = append(path, idx)
		t = parent
	}

	// The walk goes derived-first; slots are superclass-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Embedded struct fields are ancestors even when the embedded type name is
// unexported: exported fields reached through them are still settable, the
// same rule encoding/json applies.
func superclass(t reflect.Type) (reflect.Type, int) {
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			return f.Type, i
		}
	}
	return nil, 0
}

// EmbeddedCount returns the number of embedded struct fields declared
// directly on t. Slot mode requires at most one per level, since the chain
// must be linear.
func EmbeddedCount(t reflect.Type) int {
	n := 0
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			n++
		}
	}
	return n
}

// FieldsOf enumerates the serializable fields of a struct type per the
// field selection rule: every exported instance field not excluded by its
// tag, including fields inherited through embedded serializable ancestors.
// Duplicate names are merged with the most-derived declaration winning.
//
// namer names object types referenced by fields; nil means [ClassNameOf].
func FieldsOf(t reflect.Type, namer Namer) ([]Descriptor, error) {
	seen := make(map[string]bool)
	return appendFields(nil, t, t, nil, namer, seen)
}

// OwnFieldsOf enumerates only the serializable fields declared directly on
// t, excluding embedded ancestors. This is the per-slot field set used by
// the slot-mode serializer.
func OwnFieldsOf(t reflect.Type, namer Namer) ([]Descriptor, error) {
	var out []Descriptor
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			continue
		}
		d, keep, err := describe(t, f, namer)
		if err != nil {
			return nil, err
		}
		if keep {
			d.Index = []int{i}
			out = append(out, d)
		}
	}
	return out, nil
}

func appendFields(out []Descriptor, root, t reflect.Type, path []int, namer Namer, seen map[string]bool) ([]Descriptor, error) {
	// Own fields first, so that a derived declaration shadows any embedded
	// one of the same name.
	var embedded []int
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			embedded = append(embedded, i)
			continue
		}

		d, keep, err := describe(t, f, namer)
		if err != nil {
			return nil, err
		}
		if !keep || seen[d.Name] {
			continue
		}
		seen[d.Name] = true

		d.Index = append(append([]int(nil), path...), i)
		out = append(out, d)
	}

	for _, i := range embedded {
		childPath := append(append([]int(nil), path...), i)
		var err error
		out, err = appendFields(out, root, t.Field(i).Type, childPath, namer, seen)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func describe(owner reflect.Type, f reflect.StructField, namer Namer) (Descriptor, bool, error) {
	if !f.IsExported() {
		return Descriptor{}, false, nil
	}

	name := f.Name
	if tag, ok := f.Tag.Lookup(Tag); ok {
		if tag == "-" {
			return Descriptor{}, false, nil
		}
		if tag != "" {
			name = tag
		}
	}

	ref, nullable, ok := TypeRefWith(f.Type, namer)
	if !ok {
		return Descriptor{}, false, xerrors.New(xerrors.SchemaMismatch,
			"field %s.%s has unsupported type %v", owner, f.Name, f.Type)
	}

	return Descriptor{Name: name, Type: ref, Owner: owner, Nullable: nullable}, true, nil
}
