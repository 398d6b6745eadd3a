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
	"github.com/xserial-go/xserial/internal/xdebug"
	"github.com/xserial-go/xserial/internal/xerrors"
)

type putState uint8

const (
	putNone putState = iota
	putBuilding
	putFlushed
)

// SlotStream is the scratch surface handed to a write or read hook. It
// exposes exactly the operations of the legacy hierarchical stream that
// this engine reproduces; the legacy operations outside that subset fail
// with unsupported-encoding so migrations surface early instead of
// corrupting streams.
//
// A SlotStream is pooled per slot and valid only for the duration of the
// hook invocation that received it.
type SlotStream struct {
	w *writeSession
	r *readSession

	slot *slotInfo
	// inst is the root instance, write source or read target.
	inst    reflect.Value
	wireDef *classdef.ClassDef

	defaultDone bool
	readDone    bool
	putState    putState
	put         *PutField
	dropPut     func()
	get         *GetField
	dropGet     func()
}

func (ss *SlotStream) beginWrite(s *writeSession, sl *slotInfo, inst reflect.Value) {
	ss.w, ss.slot, ss.inst = s, sl, inst
}

func (ss *SlotStream) beginRead(s *readSession, sl *slotInfo, inst reflect.Value, wireDef *classdef.ClassDef) {
	ss.r, ss.slot, ss.inst, ss.wireDef = s, sl, inst, wireDef
}

// reset returns the stream to its pooled state, releasing any PutField or
// GetField it still holds. It runs on release even after an error, so
// pooled state never leaks across invocations.
func (ss *SlotStream) reset() {
	if ss.dropPut != nil {
		ss.dropPut()
	}
	if ss.dropGet != nil {
		ss.dropGet()
	}
	*ss = SlotStream{}
}

func (ss *SlotStream) writeMode() error {
	if ss.w == nil {
		return xerrors.New(xerrors.NotActive, "stream is not in a write hook")
	}
	return nil
}

func (ss *SlotStream) readMode() error {
	if ss.r == nil {
		return xerrors.New(xerrors.NotActive, "stream is not in a read hook")
	}
	return nil
}

// DefaultWrite writes the slot's declared fields in grouped order using
// the structural writer, exactly as if the class had no write hook. It may
// be called at most once.
func (ss *SlotStream) DefaultWrite() error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	if ss.defaultDone {
		return xerrors.New(xerrors.NotActive, "default field write already performed")
	}
	ss.defaultDone = true
	return ss.w.writeFields(ss.slot.identity, ss.inst)
}

// PutFields returns the slot's sparse field record, creating it on first
// call. The record stays active until WriteFields flushes it.
func (ss *SlotStream) PutFields() (*PutField, error) {
	if err := ss.writeMode(); err != nil {
		return nil, err
	}
	if ss.putState == putBuilding {
		return ss.put, nil
	}
	ss.put, ss.dropPut = ss.slot.puts.Get()
	ss.putState = putBuilding
	return ss.put, nil
}

// WriteFields flushes the active PutField: field values go out in the
// slot's put-field order, preceded by a presence bitmap, with unset
// primitives as zero and unset objects as null. The PutField is recycled.
func (ss *SlotStream) WriteFields() error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	if ss.putState != putBuilding {
		return xerrors.New(xerrors.NotActive, "no active PutField to flush")
	}

	err := ss.put.writeTo(ss.w)

	ss.dropPut()
	ss.put, ss.dropPut = nil, nil
	ss.putState = putFlushed
	return err
}

// DefaultRead reads the slot's declared fields and assigns them to the
// instance via the structural reader, consolidating against the peer's
// definition of this slot. It may be called at most once.
func (ss *SlotStream) DefaultRead() error {
	if err := ss.readMode(); err != nil {
		return err
	}
	if ss.defaultDone {
		return xerrors.New(xerrors.NotActive, "default field read already performed")
	}
	ss.defaultDone = true

	p := ss.r.eng.planFor(ss.slot.typ, ss.slot.byName, ss.wireDef)
	return ss.r.readFields(p, ss.inst)
}

// ReadFields consumes the slot's put-field block from the wire and returns
// it as a GetField keyed by field name, with absence markers for fields
// the write side never set.
func (ss *SlotStream) ReadFields() (*GetField, error) {
	if err := ss.readMode(); err != nil {
		return nil, err
	}
	if ss.readDone {
		return nil, xerrors.New(xerrors.NotActive, "put-field block already consumed")
	}
	ss.readDone = true

	ss.get, ss.dropGet = ss.slot.gets.Get()
	if err := ss.get.populate(ss.r, ss.wireDef); err != nil {
		return nil, err
	}
	return ss.get, nil
}

// RegisterValidation enqueues cb to run after the entire object graph has
// been read. Callbacks fire in descending priority order; a nil callback
// is invalid.
func (ss *SlotStream) RegisterValidation(cb func() error, priority int) error {
	if err := ss.readMode(); err != nil {
		return err
	}
	return ss.r.register(cb, priority)
}

// Typed scalar helpers. They delegate directly to the underlying buffer;
// the hook on the other peer must mirror them exactly.

func (ss *SlotStream) WriteBool(v bool) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.buf.WriteBool(v)
	return nil
}

func (ss *SlotStream) WriteInt8(v int8) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.buf.WriteByte(byte(v))
	return nil
}

func (ss *SlotStream) WriteInt16(v int16) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.buf.WriteI16(v)
	return nil
}

func (ss *SlotStream) WriteInt32(v int32) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.writePrimitive(descriptor.KindI32, reflect.ValueOf(v))
	return nil
}

func (ss *SlotStream) WriteInt64(v int64) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.writePrimitive(descriptor.KindI64, reflect.ValueOf(v))
	return nil
}

func (ss *SlotStream) WriteFloat32(v float32) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.buf.WriteF32(v)
	return nil
}

func (ss *SlotStream) WriteFloat64(v float64) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.buf.WriteF64(v)
	return nil
}

func (ss *SlotStream) WriteChar(v rune) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.buf.WriteChar(v)
	return nil
}

func (ss *SlotStream) WriteUTF(v string) error {
	if err := ss.writeMode(); err != nil {
		return err
	}
	ss.w.buf.WriteString(v)
	return nil
}

func (ss *SlotStream) ReadBool() (bool, error) {
	if err := ss.readMode(); err != nil {
		return false, err
	}
	return ss.r.buf.ReadBool()
}

func (ss *SlotStream) ReadInt8() (int8, error) {
	if err := ss.readMode(); err != nil {
		return 0, err
	}
	v, err := ss.r.buf.ReadByte()
	return int8(v), err
}

func (ss *SlotStream) ReadInt16() (int16, error) {
	if err := ss.readMode(); err != nil {
		return 0, err
	}
	return ss.r.buf.ReadI16()
}

func (ss *SlotStream) ReadInt32() (int32, error) {
	if err := ss.readMode(); err != nil {
		return 0, err
	}
	v, err := ss.r.readPrimitive(descriptor.KindI32)
	if err != nil {
		return 0, err
	}
	return int32(v.Int()), nil
}

func (ss *SlotStream) ReadInt64() (int64, error) {
	if err := ss.readMode(); err != nil {
		return 0, err
	}
	v, err := ss.r.readPrimitive(descriptor.KindI64)
	if err != nil {
		return 0, err
	}
	return v.Int(), nil
}

func (ss *SlotStream) ReadFloat32() (float32, error) {
	if err := ss.readMode(); err != nil {
		return 0, err
	}
	return ss.r.buf.ReadF32()
}

func (ss *SlotStream) ReadFloat64() (float64, error) {
	if err := ss.readMode(); err != nil {
		return 0, err
	}
	return ss.r.buf.ReadF64()
}

func (ss *SlotStream) ReadChar() (rune, error) {
	if err := ss.readMode(); err != nil {
		return 0, err
	}
	return ss.r.buf.ReadChar()
}

func (ss *SlotStream) ReadUTF() (string, error) {
	if err := ss.readMode(); err != nil {
		return "", err
	}
	return ss.r.buf.ReadString()
}

// The legacy operations below are deliberately not implemented. Each fails
// with unsupported-encoding, directing the caller toward a fallback
// serializer rather than silently dropping behavior.

func (ss *SlotStream) AnnotateClass(any) error {
	return xerrors.Wrap(xerrors.UnsupportedEncoding, xdebug.Unsupported(), "migrate to a fallback serializer")
}

func (ss *SlotStream) WriteClassDescriptor(any) error {
	return xerrors.Wrap(xerrors.UnsupportedEncoding, xdebug.Unsupported(), "migrate to a fallback serializer")
}

func (ss *SlotStream) EnableReplaceObject(bool) error {
	return xerrors.Wrap(xerrors.UnsupportedEncoding, xdebug.Unsupported(), "migrate to a fallback serializer")
}

func (ss *SlotStream) Reset() error {
	return xerrors.Wrap(xerrors.UnsupportedEncoding, xdebug.Unsupported(), "migrate to a fallback serializer")
}

func (ss *SlotStream) WriteStreamHeader() error {
	return xerrors.Wrap(xerrors.UnsupportedEncoding, xdebug.Unsupported(), "migrate to a fallback serializer")
}

func (ss *SlotStream) UseProtocolVersion(int) error {
	return xerrors.Wrap(xerrors.UnsupportedEncoding, xdebug.Unsupported(), "migrate to a fallback serializer")
}

func (ss *SlotStream) ReadLine() (string, error) {
	return "", xerrors.Wrap(xerrors.UnsupportedEncoding, xdebug.Unsupported(), "migrate to a fallback serializer")
}
