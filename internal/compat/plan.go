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

package compat

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/descriptor"
)

// plannedField is one entry of a consolidated read/write plan: the
// peer-declared field record, plus the local accessor when the field
// exists locally under compatible typing. A nil local means the field is
// skipped on read and written as its zero value on write.
type plannedField struct {
	wire  classdef.Field
	local *descriptor.Descriptor
}

// plan is a consolidated descriptor sequence: same length and order as the
// peer definition's fields. Plans are immutable once built and may be
// cached and shared across serialization calls.
type plan struct {
	wireDef *classdef.ClassDef
	fields  []plannedField
	// present marks the entries that have a local accessor.
	present *bitset.BitSet
}

// consolidate aligns the peer definition's fields with the local field
// set. A peer field whose name is missing locally, or whose declared type
// cannot be reconciled, gets no accessor.
func consolidate(wireDef *classdef.ClassDef, byName map[string]*descriptor.Descriptor) *plan {
	fields := wireDef.Fields()
	p := &plan{
		wireDef: wireDef,
		fields:  make([]plannedField, len(fields)),
		present: bitset.New(uint(len(fields))),
	}

	for i, f := range fields {
		p.fields[i].wire = f
		if local, ok := byName[f.Name]; ok && compatibleRefs(local.Type, f.Type) {
			p.fields[i].local = local
			p.present.Set(uint(i))
		}
	}
	return p
}

// compatibleRefs reports whether a locally-declared type can hold a
// peer-declared one (or vice versa) under the widening rules: primitives
// reconcile with their boxed form (nullability is carried separately, so
// kinds just compare equal), an opaque declaration reconciles with any
// object-like type, and arrays reconcile element-wise.
func compatibleRefs(local, peer descriptor.TypeRef) bool {
	if local.Kind == descriptor.KindOpaque || peer.Kind == descriptor.KindOpaque {
		return objectLike(local) && objectLike(peer)
	}

	if local.Kind != peer.Kind {
		return false
	}
	switch local.Kind {
	case descriptor.KindObject:
		return local.Class == peer.Class
	case descriptor.KindArray:
		return compatibleRefs(*local.Elem, *peer.Elem)
	default:
		return true
	}
}

func objectLike(t descriptor.TypeRef) bool {
	switch t.Kind {
	case descriptor.KindObject, descriptor.KindArray, descriptor.KindOpaque:
		return true
	default:
		return false
	}
}

// elemField is the synthetic field record used for array elements. Object
// and array elements always carry a reference or presence tag, since the
// element type alone cannot distinguish an inline value from a reference.
func elemField(elem descriptor.TypeRef) classdef.Field {
	return classdef.Field{
		Type:     elem,
		Nullable: objectLike(elem),
	}
}
