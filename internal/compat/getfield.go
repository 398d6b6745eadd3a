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

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// GetField is the read-side counterpart of [PutField]: a record populated
// from the wire in the peer's put-field order. Each entry carries either a
// value or an absent marker; absence means the write side never set the
// field. Instances are pooled per slot.
type GetField struct {
	slot    *slotInfo
	names   map[string]int
	vals    []reflect.Value
	present *bitset.BitSet
}

func newGetField(sl *slotInfo) *GetField {
	return &GetField{
		slot:    sl,
		names:   make(map[string]int),
		present: bitset.New(uint(len(sl.fields))),
	}
}

func (g *GetField) reset() {
	clear(g.names)
	g.vals = g.vals[:0]
	g.present.ClearAll()
}

// populate consumes the put-field block: the presence bitmap, then every
// field the peer's definition declares, keyed by name.
func (g *GetField) populate(s *readSession, wireDef *classdef.ClassDef) error {
	fields := wireDef.Fields()

	bitmap, err := s.buf.ReadRaw((len(fields) + 7) / 8)
	if err != nil {
		return err
	}

	for i, f := range fields {
		v, err := s.captureField(f)
		if err != nil {
			return err
		}
		g.names[f.Name] = i
		g.vals = append(g.vals, v)
		if bitmap[i/8]&(1<<(i%8)) != 0 {
			g.present.Set(uint(i))
		}
	}
	return nil
}

// Get returns the value recorded for name, or fallback if the write side
// never set it (or the peer's definition lacks it entirely). A name
// unknown to both peers is an unknown-field error.
func (g *GetField) Get(name string, fallback any) (any, error) {
	i, ok := g.names[name]
	if !ok {
		if _, local := g.slot.fieldIndex[name]; local {
			return fallback, nil
		}
		return nil, xerrors.New(xerrors.UnknownField, "%v has no field %q", g.slot.typ, name)
	}
	if !g.present.Test(uint(i)) {
		return fallback, nil
	}

	v := g.vals[i]
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// Defaulted reports whether name was left unset by the write side.
func (g *GetField) Defaulted(name string) (bool, error) {
	i, ok := g.names[name]
	if !ok {
		if _, local := g.slot.fieldIndex[name]; local {
			return true, nil
		}
		return false, xerrors.New(xerrors.UnknownField, "%v has no field %q", g.slot.typ, name)
	}
	return !g.present.Test(uint(i)), nil
}

// captureField reads one field per the wire declaration and returns it as
// a detached value rather than assigning it to an instance field.
func (s *readSession) captureField(f classdef.Field) (reflect.Value, error) {
	switch k := f.Type.Kind; {
	case k.IsPrimitive(), k == descriptor.KindString:
		if f.Nullable {
			present, err := s.buf.ReadBool()
			if err != nil {
				return reflect.Value{}, err
			}
			if !present {
				return reflect.Value{}, nil
			}
		}
		if k == descriptor.KindString {
			var str string
			var err error
			if s.eng.cfg.TrackRefsForBasics {
				str, err = s.refs.ReadRefString(s.buf)
			} else {
				str, err = s.buf.ReadString()
			}
			return reflect.ValueOf(str), err
		}
		return s.readPrimitive(k)

	case k == descriptor.KindObject && !f.Nullable:
		return s.readValue(false)

	case k == descriptor.KindObject, k == descriptor.KindOpaque:
		return s.readRef()

	default: // array
		dst := reflect.New(reflect.TypeOf([]any{})).Elem()
		if err := s.readArray(f, dst); err != nil {
			return reflect.Value{}, err
		}
		return dst, nil
	}
}
