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
	"reflect"

	"github.com/bits-and-blooms/bitset"

	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// PutField is a mutable sparse record keyed by field name, used by write
// hooks to emit fields by name rather than positionally. Instances are
// pooled per slot; Put does not check whether the owning stream has
// already flushed the record.
type PutField struct {
	slot *slotInfo
	vals []reflect.Value
	set  *bitset.BitSet
}

func newPutField(sl *slotInfo) *PutField {
	return &PutField{
		slot: sl,
		vals: make([]reflect.Value, len(sl.fields)),
		set:  bitset.New(uint(len(sl.fields))),
	}
}

func (p *PutField) reset() {
	clear(p.vals)
	p.set.ClearAll()
}

// Put records a value for the named field. The name must be one of the
// slot's declared fields, and the value's shape must fit the declared
// type; objects are checked later, when the record is flushed.
func (p *PutField) Put(name string, value any) error {
	i, ok := p.slot.fieldIndex[name]
	if !ok {
		return xerrors.New(xerrors.UnknownField, "%v has no field %q", p.slot.typ, name)
	}

	v := reflect.ValueOf(value)
	if v.IsValid() {
		if f := p.slot.def.Fields()[i]; !putCompatible(f.Type.Kind, v) {
			return xerrors.New(xerrors.SchemaMismatch,
				"field %q declared %v, got %T", name, f.Type, value)
		}
	}

	p.vals[i] = v
	p.set.Set(uint(i))
	return nil
}

// writeTo emits the record in the slot's put-field order: a presence
// bitmap, then every declared field, unset primitives as zero and unset
// objects as null.
func (p *PutField) writeTo(s *writeSession) error {
	fields := p.slot.def.Fields()

	bitmap := make([]byte, (len(fields)+7)/8)
	for i := range fields {
		if p.set.Test(uint(i)) {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	s.buf.WriteRaw(bitmap)

	for i, f := range fields {
		if err := s.writeField(f, p.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func putCompatible(k descriptor.Kind, v reflect.Value) bool {
	switch k {
	case descriptor.KindBool:
		return v.Kind() == reflect.Bool
	case descriptor.KindI8, descriptor.KindI16, descriptor.KindI32,
		descriptor.KindI64, descriptor.KindChar:
		return v.CanInt() || v.CanUint()
	case descriptor.KindF32, descriptor.KindF64:
		return v.CanFloat()
	case descriptor.KindString:
		return v.Kind() == reflect.String || (v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.String)
	default:
		// Object-like values are validated by the field writer.
		return true
	}
}
