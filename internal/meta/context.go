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

// Package meta implements the per-session ClassDef exchange cache.
// A Context belongs to one direction of one peer pairing
// and persists across messages within that pairing; it is not safe for
// concurrent use.
package meta

import (
	"github.com/google/uuid"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xdebug"
	"github.com/xserial-go/xserial/internal/xerrors"
)

// Context caches the class definitions exchanged with one peer in one
// direction. Handles are dense, monotonic, and never reused.
//
// Handles key off the definition's ID rather than the local type: a type
// that participates both as a slot ancestor (own fields only) and as a
// structural object (flattened fields) legitimately shares two distinct
// definitions.
type Context struct {
	session uuid.UUID

	// Write side: definition ID -> handle, plus the shared defs by handle.
	handles map[uint64]uint32
	shared  []*classdef.ClassDef

	// Read side: defs received from the peer, in handle order.
	readDefs []*classdef.ClassDef

	// Definitions shared since the last drain, for transports that frame
	// them separately from the object bytes.
	pending []*classdef.ClassDef
}

// NewContext returns an empty Context with a fresh session identifier.
func NewContext() *Context {
	return &Context{
		session: uuid.New(),
		handles: make(map[uint64]uint32),
	}
}

// Session returns the identifier of the peer pairing this context belongs
// to. It tags trace output; it is not part of any cache key and is never on
// the wire.
func (c *Context) Session() uuid.UUID { return c.session }

// NumShared returns how many classes the write side has shared so far.
func (c *Context) NumShared() int { return len(c.shared) }

// EmitClass writes the class handle for def to b: zero for "new,
// definition follows inline", otherwise handle+1. On first occurrence the
// definition is encoded inline, queued as pending, and assigned the next
// dense handle.
func (c *Context) EmitClass(b *wire.Buffer, def *classdef.ClassDef) {
	if h, ok := c.handles[def.ID()]; ok {
		b.WriteVarint32(h + 1)
		return
	}

	h := uint32(len(c.shared))
	c.handles[def.ID()] = h
	c.shared = append(c.shared, def)
	c.pending = append(c.pending, def)

	xdebug.Log([]any{"session %s", c.session}, "share", "%s -> handle %d", def.ClassName(), h)

	b.WriteVarint32(0)
	def.Encode(b)
}

// ReadClass reads a class handle from b, decoding and recording the inline
// definition when the handle is zero. A handle past the end of the
// received definitions is a protocol violation.
func (c *Context) ReadClass(b *wire.Buffer) (*classdef.ClassDef, error) {
	h, err := b.ReadVarint32()
	if err != nil {
		return nil, err
	}

	if h == 0 {
		d, err := classdef.Decode(b)
		if err != nil {
			return nil, err
		}
		c.readDefs = append(c.readDefs, d)
		xdebug.Log([]any{"session %s", c.session}, "recv", "%s -> handle %d", d.ClassName(), len(c.readDefs)-1)
		return d, nil
	}

	idx := h - 1
	if int(idx) >= len(c.readDefs) {
		return nil, xerrors.New(xerrors.ProtocolViolation,
			"class handle %d out of range (%d definitions received)", idx, len(c.readDefs))
	}
	return c.readDefs[idx], nil
}

// DrainPending returns the definitions shared since the last drain and
// clears the queue. Transports that frame definitions separately from
// object bytes re-send these; the inline copies written by EmitClass make
// draining optional.
func (c *Context) DrainPending() []*classdef.ClassDef {
	p := c.pending
	c.pending = nil
	return p
}

// FlushPending writes the pending definitions to b as a varint count
// followed by each definition, then clears the queue.
func (c *Context) FlushPending(b *wire.Buffer) {
	b.WriteVarint64(uint64(len(c.pending)))
	for _, d := range c.pending {
		d.Encode(b)
	}
	c.pending = nil
}

// SeedRead pre-populates the read side with definitions obtained out of
// band (for example from a peer's FlushPending block), assigning them
// handles in order.
func (c *Context) SeedRead(defs ...*classdef.ClassDef) {
	c.readDefs = append(c.readDefs, defs...)
}
