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
	"cmp"
	"reflect"
	"slices"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/meta"
	"github.com/xserial-go/xserial/internal/refs"
	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// maxReadDepth bounds object nesting so hostile input cannot exhaust the
// stack; cyclic graphs come in as back-references and never recurse.
const maxReadDepth = 1000

// readSession is the per-call state of one deserialization.
type readSession struct {
	eng        *Engine
	buf        *wire.Buffer
	meta       *meta.Context
	refs       *refs.Resolver
	validators []validation
	nextSeq    int
	depth      int
}

type validation struct {
	cb       func() error
	priority int
	seq      int
}

// register enqueues a post-construction validation callback.
func (s *readSession) register(cb func() error, priority int) error {
	if cb == nil {
		return xerrors.New(xerrors.InvalidObject, "nil validation callback")
	}
	s.validators = append(s.validators, validation{cb: cb, priority: priority, seq: s.nextSeq})
	s.nextSeq++
	return nil
}

// runValidators fires the registered callbacks in descending priority
// order; equal priorities preserve registration order.
func (s *readSession) runValidators() error {
	slices.SortStableFunc(s.validators, func(a, b validation) int {
		return cmp.Compare(b.priority, a.priority)
	})
	for _, v := range s.validators {
		if err := v.cb(); err != nil {
			return err
		}
	}
	return nil
}

// readRef reads a reference encoding: null, back-reference, or a new
// object.
func (s *readSession) readRef() (reflect.Value, error) {
	return s.refs.ReadRef(s.buf, func() (reflect.Value, error) {
		return s.readValue(true)
	})
}

// readValue reads one object payload. When register is set the fresh
// instance is added to the resolver arena before its fields are read, so
// back-references into it resolve; value-embedded objects have no
// identity and skip registration.
//
// An object whose class is unknown locally is skipped field-by-field (a
// placeholder keeps the arena in lockstep) and comes back invalid.
func (s *readSession) readValue(register bool) (reflect.Value, error) {
	if s.depth++; s.depth > maxReadDepth {
		return reflect.Value{}, xerrors.New(xerrors.ProtocolViolation, "object graph nested deeper than %d", maxReadDepth)
	}
	defer func() { s.depth-- }()

	def, info, err := s.readClass()
	if err != nil {
		return reflect.Value{}, err
	}

	if info == nil {
		if register {
			s.refs.Register(reflect.Value{})
		}
		return reflect.Value{}, s.readFields(consolidate(def, nil), reflect.Value{})
	}

	inst := reflect.New(info.typ)
	if register {
		s.refs.Register(inst)
	}

	if info.slots != nil {
		if err := s.readSlots(info, inst.Elem()); err != nil {
			return reflect.Value{}, err
		}
		return inst, nil
	}

	p := s.eng.planFor(info.typ, info.byName, def)
	if err := s.readFields(p, inst.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return inst, nil
}

// readClass reads the class marker and resolves it locally. The returned
// info is nil when the class has no local counterpart (possible only with
// meta-sharing, where the wire carries the full definition).
func (s *readSession) readClass() (*classdef.ClassDef, *typeInfo, error) {
	if s.eng.cfg.MetaShare {
		def, err := s.meta.ReadClass(s.buf)
		if err != nil {
			return nil, nil, err
		}

		t, ok := s.eng.reg.Lookup(def.ClassName())
		if !ok {
			return def, nil, nil
		}
		info, err := s.eng.info(t)
		if err != nil {
			return nil, nil, err
		}
		if s.eng.cfg.Mode == Strict && def.ID() != info.def.ID() {
			return nil, nil, xerrors.New(xerrors.SchemaMismatch,
				"peer definition of %q (%#x) differs from local (%#x) in strict mode",
				def.ClassName(), def.ID(), info.def.ID())
		}
		return def, info, nil
	}

	name, err := s.buf.ReadString()
	if err != nil {
		return nil, nil, err
	}
	var wireID uint64
	if s.eng.cfg.CheckClassVersion {
		if wireID, err = s.buf.ReadFixed64(); err != nil {
			return nil, nil, err
		}
	}

	// Without a shared definition there is no way to skip an unknown
	// class, so this is fatal rather than a silent drop.
	t, ok := s.eng.reg.Lookup(name)
	if !ok {
		return nil, nil, xerrors.New(xerrors.ProtocolViolation, "unknown class %q", name)
	}
	info, err := s.eng.info(t)
	if err != nil {
		return nil, nil, err
	}
	if s.eng.cfg.CheckClassVersion && wireID != info.def.ID() {
		return nil, nil, xerrors.New(xerrors.SchemaMismatch,
			"class version of %q (%#x) differs from local (%#x)", name, wireID, info.def.ID())
	}
	return info.def, info, nil
}

// readFields reads the plan's fields in peer order, assigning entries with
// accessors and discarding the rest. dst is the instance under
// construction, or invalid when the whole object is being skipped.
func (s *readSession) readFields(p *plan, dst reflect.Value) error {
	for i := range p.fields {
		f := &p.fields[i]

		var field reflect.Value
		if f.local != nil && dst.IsValid() {
			field = dst.FieldByIndex(f.local.Index)
		}
		if err := s.readField(f.wire, field); err != nil {
			return err
		}
	}
	return nil
}

// readField reads one field per the peer-declared wire field and assigns
// it to dst; an invalid dst discards the value, consuming exactly the same
// bytes.
func (s *readSession) readField(f classdef.Field, dst reflect.Value) error {
	switch k := f.Type.Kind; {
	case k.IsPrimitive():
		if f.Nullable {
			present, err := s.buf.ReadBool()
			if err != nil {
				return err
			}
			if !present {
				return assignZero(dst)
			}
		}
		v, err := s.readPrimitive(k)
		if err != nil {
			return err
		}
		return assign(dst, v)

	case k == descriptor.KindString:
		if f.Nullable {
			present, err := s.buf.ReadBool()
			if err != nil {
				return err
			}
			if !present {
				return assignZero(dst)
			}
		}
		var str string
		var err error
		if s.eng.cfg.TrackRefsForBasics {
			str, err = s.refs.ReadRefString(s.buf)
		} else {
			str, err = s.buf.ReadString()
		}
		if err != nil {
			return err
		}
		return assign(dst, reflect.ValueOf(str))

	case k == descriptor.KindObject && !f.Nullable:
		v, err := s.readValue(false)
		if err != nil {
			return err
		}
		return assign(dst, v)

	case k == descriptor.KindObject, k == descriptor.KindOpaque:
		v, err := s.readRef()
		if err != nil {
			return err
		}
		if !v.IsValid() {
			return assignZero(dst)
		}
		return assign(dst, v)

	default: // array
		return s.readArray(f, dst)
	}
}

func (s *readSession) readArray(f classdef.Field, dst reflect.Value) error {
	if f.Nullable {
		present, err := s.buf.ReadBool()
		if err != nil {
			return err
		}
		if !present {
			return assignZero(dst)
		}
	}

	n64, err := s.buf.ReadVarint64()
	if err != nil {
		return err
	}
	// Every element costs at least one byte, so a count beyond the buffer
	// is unsatisfiable; checking up front keeps hostile counts from
	// allocating.
	if n64 > uint64(s.buf.Remaining()) {
		return xerrors.New(xerrors.EOF, "array of %d elements exceeds buffer", n64)
	}
	n := int(n64)

	// Unwrap a boxed local slice.
	if dst.IsValid() && dst.Kind() == reflect.Ptr {
		dst.Set(reflect.New(dst.Type().Elem()))
		dst = dst.Elem()
	}

	ef := elemField(*f.Type.Elem)

	switch {
	case !dst.IsValid():
		for range n {
			if err := s.readField(ef, reflect.Value{}); err != nil {
				return err
			}
		}
		return nil

	case dst.Kind() == reflect.Slice:
		// Byte runs mirror the writer's raw fast path.
		if dst.Type().Elem().Kind() == reflect.Uint8 && ef.Type.Kind == descriptor.KindI8 {
			p, err := s.buf.ReadRaw(n)
			if err != nil {
				return err
			}
			dst.SetBytes(append([]byte(nil), p...))
			return nil
		}

		out := reflect.MakeSlice(dst.Type(), n, n)
		for i := range n {
			if err := s.readField(ef, out.Index(i)); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil

	case dst.Kind() == reflect.Array:
		for i := range n {
			elem := reflect.Value{}
			if i < dst.Len() {
				elem = dst.Index(i)
			}
			if err := s.readField(ef, elem); err != nil {
				return err
			}
		}
		return nil

	default:
		// Consolidation matched an array against this field, but the local
		// shape cannot hold one (e.g. an opaque local). Materialize into a
		// generic slice and assign whole.
		out := reflect.MakeSlice(reflect.TypeOf([]any{}), n, n)
		for i := range n {
			if err := s.readField(ef, out.Index(i)); err != nil {
				return err
			}
		}
		return assign(dst, out)
	}
}

func (s *readSession) readPrimitive(k descriptor.Kind) (reflect.Value, error) {
	switch k {
	case descriptor.KindBool:
		v, err := s.buf.ReadBool()
		return reflect.ValueOf(v), err
	case descriptor.KindI8:
		v, err := s.buf.ReadByte()
		return reflect.ValueOf(int8(v)), err
	case descriptor.KindI16:
		v, err := s.buf.ReadI16()
		return reflect.ValueOf(v), err
	case descriptor.KindI32:
		if s.eng.cfg.CompressInts {
			v, err := s.buf.ReadZigZag32()
			return reflect.ValueOf(v), err
		}
		v, err := s.buf.ReadFixed32()
		return reflect.ValueOf(int32(v)), err
	case descriptor.KindI64:
		if s.eng.cfg.CompressLongs {
			v, err := s.buf.ReadZigZag64()
			return reflect.ValueOf(v), err
		}
		v, err := s.buf.ReadFixed64()
		return reflect.ValueOf(int64(v)), err
	case descriptor.KindF32:
		v, err := s.buf.ReadF32()
		return reflect.ValueOf(v), err
	case descriptor.KindF64:
		v, err := s.buf.ReadF64()
		return reflect.ValueOf(v), err
	default: // char
		v, err := s.buf.ReadChar()
		return reflect.ValueOf(descriptor.Char(v)), err
	}
}

// assign writes v into dst, bridging the allowed representation gaps:
// boxing and unboxing against pointer fields, numeric Go-type conversion
// within the same wire kind, dereferencing a materialized pointer into a
// value field, and interface targets.
func assign(dst, v reflect.Value) error {
	if !dst.IsValid() {
		return nil // discarding
	}
	if !v.IsValid() {
		return assignZero(dst)
	}

	t := dst.Type()
	vt := v.Type()
	switch {
	case vt.AssignableTo(t):
		dst.Set(v)
		return nil

	case t.Kind() == reflect.Ptr && vt == t.Elem():
		p := reflect.New(vt)
		p.Elem().Set(v)
		dst.Set(p)
		return nil

	case convertibleScalar(vt, t):
		dst.Set(v.Convert(t))
		return nil

	case t.Kind() == reflect.Ptr && convertibleScalar(vt, t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(v.Convert(t.Elem()))
		dst.Set(p)
		return nil

	case vt.Kind() == reflect.Ptr:
		if v.IsNil() {
			return assignZero(dst)
		}
		return assign(dst, v.Elem())

	default:
		return xerrors.New(xerrors.SchemaMismatch, "cannot assign %v to %v", vt, t)
	}
}

func assignZero(dst reflect.Value) error {
	if dst.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
	}
	return nil
}

// convertibleScalar permits Go-level conversions that do not cross a wire
// kind: the consolidation step already guaranteed the kinds line up, so
// this only bridges representation (signedness, named types, rune
// aliases).
func convertibleScalar(from, to reflect.Type) bool {
	return scalarKind(from) && scalarKind(to) && from.ConvertibleTo(to)
}

func scalarKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
