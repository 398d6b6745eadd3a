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
	"cmp"
	"slices"
)

// GrouperOptions are the flags that feed into group assignment and into
// how the grouped fields are later encoded. Both peers must be configured
// identically, since the flags are part of the wire contract.
type GrouperOptions struct {
	// TrackRefsForBasics routes string fields through the reference
	// resolver; they then carry a reference tag and sort with the other
	// reference-typed fields.
	TrackRefsForBasics bool
	// CompressInts encodes 32-bit integer fields as zig-zag varints.
	CompressInts bool
	// CompressLongs encodes 64-bit integer fields as zig-zag varints.
	CompressLongs bool
}

// Groups is the canonical partition of a descriptor set into the four
// fixed-order field groups. The partition and the order within each group
// are pure functions of the descriptors and options, so both peers derive
// the same sequence for the same class definition.
type Groups struct {
	// Primitives holds the non-nullable scalar fields, by descending wire
	// size then name. Identically-sized runs can be read and written as a
	// block with no per-field branching.
	Primitives []Descriptor
	// Boxed holds the nullable scalar fields, same ordering, each carrying
	// a presence byte.
	Boxed []Descriptor
	// Final holds the non-nullable, non-polymorphic object-like fields
	// (strings and inline structs), by class name then field name. Their
	// values are emitted without a null-presence tag.
	Final []Descriptor
	// Other holds everything else: nullable objects, arrays, and opaque
	// fields, all of which need a presence or reference tag.
	Other []Descriptor

	Options GrouperOptions
}

// Group partitions and orders fields into the canonical four groups.
func Group(fields []Descriptor, opts GrouperOptions) *Groups {
	g := &Groups{Options: opts}
	for _, d := range fields {
		switch {
		case d.Type.Kind.IsPrimitive() && !d.Nullable:
			g.Primitives = append(g.Primitives, d)
		case d.Type.Kind.IsPrimitive():
			g.Boxed = append(g.Boxed, d)
		case d.Type.Kind == KindString && !d.Nullable && !opts.TrackRefsForBasics:
			g.Final = append(g.Final, d)
		case d.Type.Kind == KindObject && !d.Nullable:
			g.Final = append(g.Final, d)
		default:
			g.Other = append(g.Other, d)
		}
	}

	slices.SortFunc(g.Primitives, byDescSizeThenName)
	slices.SortFunc(g.Boxed, byDescSizeThenName)
	slices.SortFunc(g.Final, byClassThenName)
	slices.SortFunc(g.Other, byClassThenName)
	return g
}

// Ordered returns the full descriptor sequence in canonical order: the four
// groups concatenated. This is the order fields appear in the class
// definition and on the wire.
func (g *Groups) Ordered() []Descriptor {
	out := make([]Descriptor, 0, len(g.Primitives)+len(g.Boxed)+len(g.Final)+len(g.Other))
	out = append(out, g.Primitives...)
	out = append(out, g.Boxed...)
	out = append(out, g.Final...)
	out = append(out, g.Other...)
	return out
}

func byDescSizeThenName(a, b Descriptor) int {
	if c := cmp.Compare(b.Type.Kind.Size(), a.Type.Kind.Size()); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func byClassThenName(a, b Descriptor) int {
	if c := cmp.Compare(a.Type.String(), b.Type.String()); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}
