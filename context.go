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

package xserial

import (
	"reflect"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/compat"
	"github.com/xserial-go/xserial/internal/meta"
	"github.com/xserial-go/xserial/internal/wire"
)

// ClassDef is the portable structural fingerprint of a class: its contract
// name, ordered field records, and a stable 64-bit ID.
type ClassDef = classdef.ClassDef

// Context glues the engine, the class registry, and the two MetaContexts
// (one per direction) of a single peer pairing. It persists across
// messages: a class definition shared in one message is referred to by
// handle in the next.
//
// A Context is not safe for concurrent use. Concurrent serializations use
// distinct Contexts, optionally sharing one [Registry] via [WithRegistry].
type Context struct {
	engine *compat.Engine
	reg    *Registry
	wmeta  *meta.Context
	rmeta  *meta.Context
}

// NewContext builds a Context from options; see the With* functions for
// the recognized settings and their defaults.
func NewContext(opts ...Option) (*Context, error) {
	s := settings{
		cfg: compat.Config{
			Mode:      ForwardBackward,
			MetaShare: true,
			CodeGen:   true,
		},
	}
	for _, opt := range opts {
		opt.apply(&s)
	}
	if s.reg == nil {
		s.reg = NewRegistry()
	}

	engine, err := compat.NewEngine(s.cfg, s.reg)
	if err != nil {
		return nil, err
	}

	return &Context{
		engine: engine,
		reg:    s.reg,
		wmeta:  meta.NewContext(),
		rmeta:  meta.NewContext(),
	}, nil
}

// Registry returns the class registry this Context resolves names and
// hooks against.
func (c *Context) Registry() *Registry { return c.reg }

// Register records the types of the given values (structs or struct
// pointers) and everything reachable from them under their default
// contract names. Registration is required before a class name can be
// resolved on read; writes register implicitly.
func (c *Context) Register(values ...any) error {
	for _, v := range values {
		if err := c.reg.Register(reflect.TypeOf(v)); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAs records a value's type under an explicit contract name,
// decoupling the wire contract from the Go type name.
func (c *Context) RegisterAs(name string, value any) error {
	return c.reg.RegisterAs(name, reflect.TypeOf(value))
}

// Write serializes obj into one message. Class definitions not yet shared
// with the peer are embedded inline at their first occurrence and referred
// to by handle from then on, including across later Write calls.
func (c *Context) Write(obj any) ([]byte, error) {
	b := wire.NewWriter()
	if err := c.engine.Write(b, c.wmeta, obj); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Read deserializes one message produced by the peer's Write, returning a
// pointer to an instance of the locally-registered class (or nil). Local
// fields the peer did not send keep their zero values; peer fields with no
// local counterpart are skipped.
func (c *Context) Read(data []byte) (any, error) {
	return c.engine.Read(wire.NewReader(data), c.rmeta)
}

// DrainPendingDefs returns the class definitions first shared since the
// last drain. Transports that frame definitions separately from message
// bytes send these out of band; the receiving side hands them to
// [Context.SeedPeerDefs].
func (c *Context) DrainPendingDefs() []*ClassDef {
	return c.wmeta.DrainPending()
}

// SeedPeerDefs records definitions received out of band, assigning them
// read handles in order.
func (c *Context) SeedPeerDefs(defs ...*ClassDef) {
	c.rmeta.SeedRead(defs...)
}
