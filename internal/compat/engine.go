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

// Package compat implements the compatibility engine: the reader/writer
// pair that reconciles a local class against a peer class
// definition, reading peer fields into local fields, skipping absent ones,
// and defaulting missing ones; plus the slot-based custom-serialization
// protocol for classes with per-ancestor hooks.
package compat

import (
	"fmt"
	"reflect"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/codegen"
	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/meta"
	"github.com/xserial-go/xserial/internal/refs"
	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xerrors"
	"github.com/xserial-go/xserial/internal/xsync"
)

// Mode selects how a received class definition is reconciled against the
// local class.
type Mode uint8

const (
	// Strict requires identical class definitions on both peers. With
	// meta-sharing, a differing peer definition is a schema-mismatch error;
	// without it, a mismatch is only detected when CheckClassVersion is on.
	Strict Mode = iota
	// ForwardBackward consolidates the peer definition against the local
	// class: peer fields absent locally are skipped, local fields absent
	// from the peer keep their zero value.
	ForwardBackward
)

// Config is the engine configuration. Both peers of a pairing must be
// configured identically; the compression and reference-tracking flags are
// part of the wire contract.
type Config struct {
	Mode               Mode
	MetaShare          bool
	CheckClassVersion  bool
	CompressInts       bool
	CompressLongs      bool
	TrackRefsForBasics bool
	CodeGen            bool
}

func (c Config) validate() error {
	if c.CheckClassVersion && c.MetaShare && c.Mode == ForwardBackward {
		return fmt.Errorf("xserial: check-class-version cannot be combined with meta-sharing in forward-backward mode")
	}
	if c.Mode == ForwardBackward && !c.MetaShare {
		return fmt.Errorf("xserial: forward-backward mode requires meta-sharing, since consolidation needs the peer's class definitions")
	}
	return nil
}

// Engine is the compatibility engine. It is stateless per serialization
// call: all per-call state lives in the session structs, so one Engine may
// be shared by concurrent calls as long as each call uses its own
// MetaContext.
type Engine struct {
	cfg   Config
	reg   *Registry
	infos xsync.Map[reflect.Type, *typeInfo]
	plans codegen.Cache[plan]
}

// NewEngine validates cfg and returns an Engine over reg.
func NewEngine(cfg Config, reg *Registry) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Engine{cfg: cfg, reg: reg}, nil
}

// Registry returns the registry this engine resolves classes against.
func (e *Engine) Registry() *Registry { return e.reg }

// Write serializes obj (a struct or pointer to struct, or nil) to b. mc is
// the write-direction MetaContext of the peer pairing; it may be nil when
// meta-sharing is disabled.
func (e *Engine) Write(b *wire.Buffer, mc *meta.Context, obj any) error {
	if e.cfg.MetaShare && mc == nil {
		return fmt.Errorf("xserial: meta-sharing requires a MetaContext")
	}
	s := &writeSession{eng: e, buf: b, meta: mc, refs: refs.NewResolver()}

	if obj == nil {
		return s.refs.WriteRef(b, reflect.Value{}, nil)
	}

	rv := reflect.ValueOf(obj)
	switch {
	case rv.Kind() == reflect.Ptr && rv.Type().Elem().Kind() == reflect.Struct:
		// Keep the caller's pointer so shared references to it resolve.
	case rv.Kind() == reflect.Struct:
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		rv = p
	default:
		return xerrors.New(xerrors.InvalidObject, "cannot serialize %T: only structs and struct pointers", obj)
	}

	return s.writeRef(rv)
}

// Read deserializes one object from b, returning a pointer to a freshly
// allocated instance of the locally-registered class (or nil for a null).
// All registered validation callbacks run after the whole graph is read,
// in descending priority order.
//
// On error the session's reference resolver is reset, discarding any
// partially-constructed instances.
func (e *Engine) Read(b *wire.Buffer, mc *meta.Context) (any, error) {
	if e.cfg.MetaShare && mc == nil {
		return nil, fmt.Errorf("xserial: meta-sharing requires a MetaContext")
	}
	s := &readSession{eng: e, buf: b, meta: mc, refs: refs.NewResolver()}

	v, err := s.readRef()
	if err == nil {
		err = s.runValidators()
	}
	if err != nil {
		s.refs.Reset()
		return nil, err
	}

	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// info returns the cached layout for t, building it on first use.
func (e *Engine) info(t reflect.Type) (*typeInfo, error) {
	if ti, ok := e.infos.Load(t); ok {
		return ti, nil
	}

	ti, err := e.buildInfo(t)
	if err != nil {
		return nil, err
	}
	actual, _ := e.infos.LoadOrStore(t, func() *typeInfo { return ti })
	return actual, nil
}

// planFor returns the consolidation of wireDef against a local field set.
// With code generation enabled the plan is specialized once per
// (type, definition) pair and cached process-wide; a caller that arrives
// while the specialization is still building gets a freshly interpreted
// plan instead of blocking. The two paths produce identical plans, and so
// identical bytes.
func (e *Engine) planFor(localType reflect.Type, byName map[string]*descriptor.Descriptor, wireDef *classdef.ClassDef) *plan {
	build := func() (*plan, error) { return consolidate(wireDef, byName), nil }

	if e.cfg.CodeGen && localType != nil {
		key := codegen.Key{Type: localType, Def: wireDef.ID()}
		if p := e.plans.Ensure(key, build); p != nil {
			return p
		}
	}

	p, _ := build()
	return p
}
