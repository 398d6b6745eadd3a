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
	"github.com/xserial-go/xserial/internal/sync2"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// typeInfo is the cached serialization layout of a local struct type: its
// grouped descriptor sequence, class definition, and (when any class in
// its embedding chain declares custom hooks) its slot chain.
type typeInfo struct {
	typ    reflect.Type
	name   string
	fields []descriptor.Descriptor
	byName map[string]*descriptor.Descriptor
	def    *classdef.ClassDef

	// slots is non-nil iff the type serializes in slot mode,
	// superclass-first.
	slots []*slotInfo
}

// slotInfo is one level of an ancestor chain participating in slot mode.
// Field index paths are absolute (rooted at the most-derived type), so the
// structural reader and writer navigate from the instance directly.
type slotInfo struct {
	typ    reflect.Type
	path   []int
	fields []descriptor.Descriptor
	byName map[string]*descriptor.Descriptor
	// fieldIndex maps a field name to its position in def's put-field
	// order.
	fieldIndex map[string]int
	def        *classdef.ClassDef
	// identity is the consolidation of def against this slot's own fields;
	// the private structural serializer uses it when no hook applies.
	identity *plan
	hooks    *Hooks

	streams sync2.Pool[SlotStream]
	puts    sync2.Pool[PutField]
	gets    sync2.Pool[GetField]
}

func (e *Engine) grouperOptions() descriptor.GrouperOptions {
	return descriptor.GrouperOptions{
		TrackRefsForBasics: e.cfg.TrackRefsForBasics,
		CompressInts:       e.cfg.CompressInts,
		CompressLongs:      e.cfg.CompressLongs,
	}
}

func (e *Engine) buildInfo(t reflect.Type) (*typeInfo, error) {
	// Make sure every type reachable from t resolves by name before any of
	// its instances hit the wire.
	if err := e.reg.Register(t); err != nil {
		return nil, err
	}
	namer := e.reg.NameOf

	flat, err := descriptor.FieldsOf(t, namer)
	if err != nil {
		return nil, err
	}
	ordered := descriptor.Group(flat, e.grouperOptions()).Ordered()

	info := &typeInfo{
		typ:    t,
		name:   namer(t),
		fields: ordered,
		byName: indexByName(ordered),
		def:    classdef.Of(namer(t), ordered),
	}

	chain := descriptor.Ancestors(t)
	if !e.chainHasHooks(chain) {
		return info, nil
	}

	info.slots, err = e.buildSlots(chain, namer)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (e *Engine) chainHasHooks(chain []descriptor.Ancestor) bool {
	for _, a := range chain {
		if e.reg.HooksOf(a.Type).custom() {
			return true
		}
	}
	return false
}

// buildSlots applies the slot-mode eligibility gate and precomputes the
// flat slot vector.
func (e *Engine) buildSlots(chain []descriptor.Ancestor, namer descriptor.Namer) ([]*slotInfo, error) {
	seen := make(map[string]reflect.Type)
	slots := make([]*slotInfo, 0, len(chain))

	for _, a := range chain {
		h := e.reg.HooksOf(a.Type)
		if h != nil && (h.WriteReplace != nil || h.ReadResolve != nil) {
			return nil, xerrors.New(xerrors.UnsupportedEncoding,
				"%v declares replace/resolve hooks; use a replace-resolve serializer", a.Type)
		}
		if descriptor.EmbeddedCount(a.Type) > 1 {
			return nil, xerrors.New(xerrors.SchemaMismatch,
				"%v embeds more than one struct; slot chains must be linear", a.Type)
		}

		own, err := descriptor.OwnFieldsOf(a.Type, namer)
		if err != nil {
			return nil, err
		}
		for _, d := range own {
			if prev, dup := seen[d.Name]; dup {
				return nil, xerrors.New(xerrors.SchemaMismatch,
					"field %q declared by both %v and %v; slot chains forbid duplicates", d.Name, prev, a.Type)
			}
			seen[d.Name] = a.Type
		}

		// Rebase index paths onto the most-derived type.
		for i := range own {
			own[i].Index = append(append([]int(nil), a.Index...), own[i].Index...)
		}
		ordered := descriptor.Group(own, e.grouperOptions()).Ordered()

		sl := &slotInfo{
			typ:        a.Type,
			path:       a.Index,
			fields:     ordered,
			byName:     indexByName(ordered),
			fieldIndex: make(map[string]int, len(ordered)),
			def:        classdef.Of(namer(a.Type), ordered),
			hooks:      h,
		}
		for i, f := range ordered {
			sl.fieldIndex[f.Name] = i
		}
		sl.identity = consolidate(sl.def, sl.byName)

		sl.streams.Reset = (*SlotStream).reset
		sl.puts.New = func() *PutField { return newPutField(sl) }
		sl.puts.Reset = (*PutField).reset
		sl.gets.New = func() *GetField { return newGetField(sl) }
		sl.gets.Reset = (*GetField).reset

		slots = append(slots, sl)
	}
	return slots, nil
}

func indexByName(ds []descriptor.Descriptor) map[string]*descriptor.Descriptor {
	m := make(map[string]*descriptor.Descriptor, len(ds))
	for i := range ds {
		m[ds[i].Name] = &ds[i]
	}
	return m
}
