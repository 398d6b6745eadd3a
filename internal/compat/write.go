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

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/meta"
	"github.com/xserial-go/xserial/internal/refs"
	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// writeSession is the per-call state of one serialization: the target
// buffer, the write-direction MetaContext of the pairing, and a fresh
// reference resolver.
type writeSession struct {
	eng  *Engine
	buf  *wire.Buffer
	meta *meta.Context
	refs *refs.Resolver
}

// writeRef emits ptr through the reference resolver: null, back-reference,
// or inline value.
func (s *writeSession) writeRef(ptr reflect.Value) error {
	return s.refs.WriteRef(s.buf, ptr, func(p reflect.Value) error {
		return s.writeValue(p.Elem())
	})
}

// writeValue emits one object: class handle (with inline definition on
// first occurrence), then either the slot stream or the structural field
// sequence.
func (s *writeSession) writeValue(v reflect.Value) error {
	if !v.CanAddr() {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		v = p.Elem()
	}

	info, err := s.eng.info(v.Type())
	if err != nil {
		return err
	}
	s.emitClass(info.def)

	if info.slots != nil {
		return s.writeSlots(info, v)
	}
	return s.writeFields(s.eng.planFor(info.typ, info.byName, info.def), v)
}

// emitClass writes the class marker: a MetaContext handle when
// meta-sharing is on, otherwise the contract name (plus the definition ID
// when class version checking is on).
func (s *writeSession) emitClass(def *classdef.ClassDef) {
	if s.eng.cfg.MetaShare {
		s.meta.EmitClass(s.buf, def)
		return
	}

	s.buf.WriteString(def.ClassName())
	if s.eng.cfg.CheckClassVersion {
		s.buf.WriteFixed64(def.ID())
	}
}

// writeFields emits the plan's fields in order. Entries without an
// accessor emit the zero value for the peer-declared type.
func (s *writeSession) writeFields(p *plan, v reflect.Value) error {
	for i := range p.fields {
		f := &p.fields[i]

		var src reflect.Value
		if f.local != nil {
			src = v.FieldByIndex(f.local.Index)
		}
		if err := s.writeField(f.wire, src); err != nil {
			return err
		}
	}
	return nil
}

// writeField emits one field value per the declared wire field. An invalid
// src emits the declared type's zero value.
func (s *writeSession) writeField(f classdef.Field, src reflect.Value) error {
	switch k := f.Type.Kind; {
	case k.IsPrimitive():
		if f.Nullable {
			src = derefValue(src)
			if !src.IsValid() {
				s.buf.WriteBool(false)
				return nil
			}
			s.buf.WriteBool(true)
		}
		s.writePrimitive(k, derefValue(src))
		return nil

	case k == descriptor.KindString:
		str, present := stringValue(src)
		if f.Nullable {
			s.buf.WriteBool(present)
			if !present {
				return nil
			}
		}
		if s.eng.cfg.TrackRefsForBasics {
			s.refs.WriteRefString(s.buf, str)
		} else {
			s.buf.WriteString(str)
		}
		return nil

	case k == descriptor.KindObject && !f.Nullable:
		return s.writeInline(f.Type.Class, src)

	case k == descriptor.KindObject:
		return s.writeRef(pointerTo(src))

	case k == descriptor.KindArray:
		return s.writeArray(f, src)

	default: // opaque
		return s.writeOpaque(src)
	}
}

// writeInline emits a value-embedded object: payload with no reference
// tag, so no identity is assigned.
func (s *writeSession) writeInline(class string, src reflect.Value) error {
	src = derefValue(src)
	if !src.IsValid() {
		// Zero-filling a peer-declared class requires knowing it locally.
		t, ok := s.eng.reg.Lookup(class)
		if !ok {
			return xerrors.New(xerrors.SchemaMismatch,
				"cannot emit zero value for unknown class %q", class)
		}
		src = reflect.New(t).Elem()
	}
	if src.Kind() != reflect.Struct {
		return xerrors.New(xerrors.SchemaMismatch,
			"field declared as inline object %q, have %v", class, src.Type())
	}
	return s.writeValue(src)
}

func (s *writeSession) writeArray(f classdef.Field, src reflect.Value) error {
	src = derefValue(src)
	if f.Nullable {
		if !src.IsValid() || (src.Kind() == reflect.Slice && src.IsNil()) {
			s.buf.WriteBool(false)
			return nil
		}
		s.buf.WriteBool(true)
	}
	if !src.IsValid() {
		s.buf.WriteVarint64(0)
		return nil
	}

	n := src.Len()
	s.buf.WriteVarint64(uint64(n))

	// Byte runs need no per-element dispatch.
	if src.Kind() == reflect.Slice && src.Type().Elem().Kind() == reflect.Uint8 {
		s.buf.WriteRaw(src.Bytes())
		return nil
	}

	ef := elemField(*f.Type.Elem)
	for i := range n {
		if err := s.writeField(ef, src.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (s *writeSession) writeOpaque(src reflect.Value) error {
	src = derefInterface(src)
	if !src.IsValid() {
		return s.refs.WriteRef(s.buf, reflect.Value{}, nil)
	}

	switch {
	case src.Kind() == reflect.Ptr && src.Type().Elem().Kind() == reflect.Struct:
		return s.writeRef(src)
	case src.Kind() == reflect.Struct:
		return s.writeRef(pointerTo(src))
	default:
		return xerrors.New(xerrors.SchemaMismatch,
			"cannot serialize dynamic value of type %v through an opaque field", src.Type())
	}
}

func (s *writeSession) writePrimitive(k descriptor.Kind, v reflect.Value) {
	switch k {
	case descriptor.KindBool:
		s.buf.WriteBool(v.IsValid() && v.Bool())
	case descriptor.KindI8:
		s.buf.WriteByte(byte(intValue(v)))
	case descriptor.KindI16:
		s.buf.WriteI16(int16(intValue(v)))
	case descriptor.KindI32:
		if s.eng.cfg.CompressInts {
			s.buf.WriteZigZag32(int32(intValue(v)))
		} else {
			s.buf.WriteFixed32(uint32(int32(intValue(v))))
		}
	case descriptor.KindI64:
		if s.eng.cfg.CompressLongs {
			s.buf.WriteZigZag64(intValue(v))
		} else {
			s.buf.WriteFixed64(uint64(intValue(v)))
		}
	case descriptor.KindF32:
		s.buf.WriteF32(float32(floatValue(v)))
	case descriptor.KindF64:
		s.buf.WriteF64(floatValue(v))
	case descriptor.KindChar:
		s.buf.WriteChar(rune(intValue(v)))
	}
}

// derefValue strips one level of pointer, mapping nil (and invalid) to
// invalid.
func derefValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		return v.Elem()
	}
	return v
}

// derefInterface unwraps an interface value, mapping nil to invalid.
func derefInterface(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		return v.Elem()
	}
	return v
}

// pointerTo returns a pointer to v's value: its address when addressable,
// otherwise the address of a copy. An invalid or nil v stays as is.
func pointerTo(v reflect.Value) reflect.Value {
	switch {
	case !v.IsValid():
		return v
	case v.Kind() == reflect.Ptr:
		return v
	case v.CanAddr():
		return v.Addr()
	default:
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return p
	}
}

func stringValue(v reflect.Value) (string, bool) {
	v = derefValue(v)
	if !v.IsValid() {
		return "", false
	}
	return v.String(), true
}

func intValue(v reflect.Value) int64 {
	switch {
	case !v.IsValid():
		return 0
	case v.CanInt():
		return v.Int()
	case v.CanUint():
		return int64(v.Uint())
	default:
		return 0
	}
}

func floatValue(v reflect.Value) float64 {
	if !v.IsValid() || !v.CanFloat() {
		return 0
	}
	return v.Float()
}
