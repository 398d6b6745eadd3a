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

package meta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/meta"
	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xerrors"
)

func defFor(name string) *classdef.ClassDef {
	return classdef.New(name, []classdef.Field{
		{Name: "x", Type: descriptor.Primitive(descriptor.KindI32)},
	})
}

func TestHandleProtocol(t *testing.T) {
	t.Parallel()

	w := meta.NewContext()
	r := meta.NewContext()
	b := wire.NewWriter()

	point := defFor("Point")
	node := defFor("Node")

	// First occurrence: handle 0 plus inline bytes. Second: handle+1 only.
	w.EmitClass(b, point)
	w.EmitClass(b, node)
	w.EmitClass(b, point)
	assert.Equal(t, 2, w.NumShared())

	rb := wire.NewReader(b.Bytes())

	d1, err := r.ReadClass(rb)
	require.NoError(t, err)
	assert.Equal(t, "Point", d1.ClassName())

	d2, err := r.ReadClass(rb)
	require.NoError(t, err)
	assert.Equal(t, "Node", d2.ClassName())

	d3, err := r.ReadClass(rb)
	require.NoError(t, err)
	assert.Same(t, d1, d3)

	assert.Zero(t, rb.Remaining())
}

func TestHandlePersistsAcrossMessages(t *testing.T) {
	t.Parallel()

	w := meta.NewContext()
	r := meta.NewContext()
	point := defFor("Point")

	msg1 := wire.NewWriter()
	w.EmitClass(msg1, point)

	msg2 := wire.NewWriter()
	w.EmitClass(msg2, point)

	// The definition bytes appear on the wire exactly once.
	assert.Greater(t, len(msg1.Bytes()), len(msg2.Bytes()))
	assert.Len(t, msg2.Bytes(), 1)

	_, err := r.ReadClass(wire.NewReader(msg1.Bytes()))
	require.NoError(t, err)
	d, err := r.ReadClass(wire.NewReader(msg2.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "Point", d.ClassName())
}

func TestEquivalentDefsShareAHandle(t *testing.T) {
	t.Parallel()

	w := meta.NewContext()
	b := wire.NewWriter()

	// Two separately-constructed but canonically-equal definitions are one
	// class as far as the pairing is concerned.
	w.EmitClass(b, defFor("Point"))
	w.EmitClass(b, defFor("Point"))
	assert.Equal(t, 1, w.NumShared())
}

func TestBadHandleIsFatal(t *testing.T) {
	t.Parallel()

	r := meta.NewContext()
	b := wire.NewWriter()
	b.WriteVarint32(7) // handle 6, but nothing received

	_, err := r.ReadClass(wire.NewReader(b.Bytes()))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ProtocolViolation))
}

func TestPendingDrain(t *testing.T) {
	t.Parallel()

	w := meta.NewContext()
	b := wire.NewWriter()

	w.EmitClass(b, defFor("Point"))
	w.EmitClass(b, defFor("Point"))

	pending := w.DrainPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "Point", pending[0].ClassName())
	assert.Empty(t, w.DrainPending())
}

func TestSeedRead(t *testing.T) {
	t.Parallel()

	w := meta.NewContext()
	r := meta.NewContext()

	// Definitions framed separately: the peer seeds them, then reads a
	// message that only ever uses non-zero handles.
	w.EmitClass(wire.NewWriter(), defFor("Point"))
	r.SeedRead(w.DrainPending()...)

	b := wire.NewWriter()
	w.EmitClass(b, defFor("Point"))

	d, err := r.ReadClass(wire.NewReader(b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "Point", d.ClassName())
}

func TestSessionsDiffer(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, meta.NewContext().Session(), meta.NewContext().Session())
}
