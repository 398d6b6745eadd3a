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
	"math"
	"reflect"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/xdebug"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// Slot-mode wire layout: [slot_count: i16] then per slot, superclass
// first: [slot class handle] [slot payload]. A slot payload is either what
// the class's write hook emitted or the slot's structural field sequence.

func (s *writeSession) writeSlots(info *typeInfo, v reflect.Value) error {
	if len(info.slots) > math.MaxInt16 {
		return xerrors.New(xerrors.SchemaMismatch, "%v has %d slots; the wire caps at %d", info.typ, len(info.slots), math.MaxInt16)
	}
	s.buf.WriteI16(int16(len(info.slots)))

	for _, sl := range info.slots {
		s.emitClass(sl.def)

		if sl.hooks != nil && sl.hooks.WriteSelf != nil {
			if err := s.writeHookedSlot(sl, v); err != nil {
				return err
			}
			continue
		}
		if err := s.writeFields(sl.identity, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *writeSession) writeHookedSlot(sl *slotInfo, v reflect.Value) error {
	ss, drop := sl.streams.Get()
	defer drop()

	ss.beginWrite(s, sl, v)
	return sl.hooks.WriteSelf(v.FieldByIndex(sl.path).Addr(), ss)
}

func (s *readSession) readSlots(info *typeInfo, inst reflect.Value) error {
	count, err := s.buf.ReadI16()
	if err != nil {
		return err
	}
	if count < 0 {
		return xerrors.New(xerrors.ProtocolViolation, "negative slot count %d", count)
	}

	li := 0
	for range int(count) {
		name, wireDef, err := s.readSlotClass(info, li)
		if err != nil {
			return err
		}

		// A local slot the sender did not have models a receiver extending
		// classes further than the sender; its read_no_data hook fires and
		// the slot keeps defaults.
		for li < len(info.slots) && info.slots[li].def.ClassName() != name {
			if err := s.readNoData(info.slots[li], inst); err != nil {
				return err
			}
			li++
		}
		if li >= len(info.slots) {
			// Also the moved-down-the-hierarchy case: a wire class that
			// only matches a slot already consumed lands here.
			return xerrors.New(xerrors.SchemaMismatch, "wire class %q matches no remaining slot of %v", name, info.typ)
		}

		sl := info.slots[li]
		li++
		if wireDef == nil {
			wireDef = sl.def
		}
		if s.eng.cfg.Mode == Strict && wireDef.ID() != sl.def.ID() {
			return xerrors.New(xerrors.SchemaMismatch,
				"peer definition of slot %q (%#x) differs from local (%#x) in strict mode",
				name, wireDef.ID(), sl.def.ID())
		}
		xdebug.Log(nil, "slot", "reading %q into slot %d of %v", name, li-1, info.typ)

		if sl.hooks != nil && sl.hooks.ReadSelf != nil {
			if err := s.readHookedSlot(sl, inst, wireDef); err != nil {
				return err
			}
			continue
		}
		p := s.eng.planFor(sl.typ, sl.byName, wireDef)
		if err := s.readFields(p, inst); err != nil {
			return err
		}
	}

	// Local slots below the last wire slot were also absent on the sender.
	for ; li < len(info.slots); li++ {
		if err := s.readNoData(info.slots[li], inst); err != nil {
			return err
		}
	}
	return nil
}

func (s *readSession) readHookedSlot(sl *slotInfo, inst reflect.Value, wireDef *classdef.ClassDef) error {
	ss, drop := sl.streams.Get()
	defer drop()

	ss.beginRead(s, sl, inst, wireDef)
	return sl.hooks.ReadSelf(inst.FieldByIndex(sl.path).Addr(), ss)
}

// readSlotClass reads the class marker of the next wire slot. With
// meta-sharing the full peer definition comes back; without it only the
// name travels, and the local slot's definition stands in (after a version
// check when enabled).
func (s *readSession) readSlotClass(info *typeInfo, li int) (string, *classdef.ClassDef, error) {
	if s.eng.cfg.MetaShare {
		def, err := s.meta.ReadClass(s.buf)
		if err != nil {
			return "", nil, err
		}
		return def.ClassName(), def, nil
	}

	name, err := s.buf.ReadString()
	if err != nil {
		return "", nil, err
	}
	if !s.eng.cfg.CheckClassVersion {
		return name, nil, nil
	}

	wireID, err := s.buf.ReadFixed64()
	if err != nil {
		return "", nil, err
	}
	for _, sl := range info.slots[li:] {
		if sl.def.ClassName() == name {
			if wireID != sl.def.ID() {
				return "", nil, xerrors.New(xerrors.SchemaMismatch,
					"class version of slot %q (%#x) differs from local (%#x)", name, wireID, sl.def.ID())
			}
			break
		}
	}
	return name, nil, nil
}

func (s *readSession) readNoData(sl *slotInfo, inst reflect.Value) error {
	if sl.hooks == nil || sl.hooks.ReadNoData == nil {
		return nil
	}
	xdebug.Log(nil, "slot", "no data for %v", sl.typ)
	return sl.hooks.ReadNoData(inst.FieldByIndex(sl.path).Addr())
}
