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

package xserial_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xserial-go/xserial"
)

// hookBase is the ancestor with custom write/read hooks; hookDerived is
// the serialized class.
type hookBase struct {
	U int32 `xserial:"u"`
	V int32 `xserial:"v"`
}

type hookDerived struct {
	hookBase
	Name string
}

func hookedPeer(t *testing.T, base xserial.Hooks[hookBase]) *xserial.Context {
	t.Helper()
	ctx := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(ctx.Registry(), base))
	require.NoError(t, ctx.RegisterAs("Derived", hookDerived{}))
	return ctx
}

func TestSlotHooksPutFields(t *testing.T) {
	t.Parallel()

	validators := 0

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(obj *hookBase, s *xserial.SlotStream) error {
			pf, err := s.PutFields()
			if err != nil {
				return err
			}
			if err := pf.Put("u", obj.U); err != nil {
				return err
			}
			if err := pf.Put("v", obj.V); err != nil {
				return err
			}
			return s.WriteFields()
		},
	})
	receiver := hookedPeer(t, xserial.Hooks[hookBase]{
		ReadSelf: func(obj *hookBase, s *xserial.SlotStream) error {
			gf, err := s.ReadFields()
			if err != nil {
				return err
			}
			u, err := gf.Get("u", int32(0))
			if err != nil {
				return err
			}
			v, err := gf.Get("v", int32(0))
			if err != nil {
				return err
			}
			obj.U = u.(int32)
			obj.V = v.(int32)
			return nil
		},
	})

	msg, err := sender.Write(&hookDerived{hookBase: hookBase{U: 1, V: 2}, Name: "d"})
	require.NoError(t, err)

	got, err := receiver.Read(msg)
	require.NoError(t, err)
	assert.Equal(t, &hookDerived{hookBase: hookBase{U: 1, V: 2}, Name: "d"}, got)
	assert.Zero(t, validators, "no validators were registered, none may fire")
}

func TestSlotDefaultWriteRead(t *testing.T) {
	t.Parallel()

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			if err := s.DefaultWrite(); err != nil {
				return err
			}
			return s.WriteUTF("trailer")
		},
	})
	receiver := hookedPeer(t, xserial.Hooks[hookBase]{
		ReadSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			if err := s.DefaultRead(); err != nil {
				return err
			}
			trailer, err := s.ReadUTF()
			if err != nil {
				return err
			}
			assert.Equal(t, "trailer", trailer)
			return nil
		},
	})

	msg, err := sender.Write(&hookDerived{hookBase: hookBase{U: 3, V: 4}, Name: "x"})
	require.NoError(t, err)

	got, err := receiver.Read(msg)
	require.NoError(t, err)
	assert.Equal(t, &hookDerived{hookBase: hookBase{U: 3, V: 4}, Name: "x"}, got)
}

func TestSlotOrderSuperclassFirst(t *testing.T) {
	t.Parallel()

	var order []string

	ctx := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(ctx.Registry(), xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			order = append(order, "base")
			return s.DefaultWrite()
		},
	}))
	require.NoError(t, xserial.RegisterHooks(ctx.Registry(), xserial.Hooks[hookDerived]{
		WriteSelf: func(_ *hookDerived, s *xserial.SlotStream) error {
			order = append(order, "derived")
			return s.DefaultWrite()
		},
	}))
	require.NoError(t, ctx.RegisterAs("Derived", hookDerived{}))

	_, err := ctx.Write(&hookDerived{})
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "derived"}, order)
}

func TestDefaultWriteTwiceIsNotActive(t *testing.T) {
	t.Parallel()

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			if err := s.DefaultWrite(); err != nil {
				return err
			}
			return s.DefaultWrite()
		},
	})

	_, err := sender.Write(&hookDerived{})
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrNotActive))
}

func TestWriteFieldsWithoutPutFieldsIsNotActive(t *testing.T) {
	t.Parallel()

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			return s.WriteFields()
		},
	})

	_, err := sender.Write(&hookDerived{})
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrNotActive))
}

func TestPutUnknownField(t *testing.T) {
	t.Parallel()

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			pf, err := s.PutFields()
			if err != nil {
				return err
			}
			return pf.Put("w", int32(1))
		},
	})

	_, err := sender.Write(&hookDerived{})
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrUnknownField))
}

// sparse exercises unset-field semantics: one primitive set, one primitive
// and one object left unset.
type sparse struct {
	P int32    `xserial:"p"`
	Q int32    `xserial:"q"`
	O *pointV1 `xserial:"o"`
}

func TestPutFieldDefaults(t *testing.T) {
	t.Parallel()

	sender := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(sender.Registry(), xserial.Hooks[sparse]{
		WriteSelf: func(_ *sparse, s *xserial.SlotStream) error {
			pf, err := s.PutFields()
			if err != nil {
				return err
			}
			if err := pf.Put("p", int32(5)); err != nil {
				return err
			}
			return s.WriteFields()
		},
	}))
	require.NoError(t, sender.RegisterAs("Sparse", sparse{}))

	receiver := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(receiver.Registry(), xserial.Hooks[sparse]{
		ReadSelf: func(obj *sparse, s *xserial.SlotStream) error {
			gf, err := s.ReadFields()
			if err != nil {
				return err
			}

			p, err := gf.Get("p", int32(-1))
			require.NoError(t, err)
			assert.Equal(t, int32(5), p)

			// Unset primitive: zero on the wire, fallback through Get.
			q, err := gf.Get("q", int32(9))
			require.NoError(t, err)
			assert.Equal(t, int32(9), q)

			// Unset object: null.
			o, err := gf.Get("o", nil)
			require.NoError(t, err)
			assert.Nil(t, o)

			pd, err := gf.Defaulted("p")
			require.NoError(t, err)
			assert.False(t, pd)
			qd, err := gf.Defaulted("q")
			require.NoError(t, err)
			assert.True(t, qd)

			_, err = gf.Get("nope", nil)
			assert.True(t, xserial.IsKind(err, xserial.ErrUnknownField))

			obj.P = p.(int32)
			return nil
		},
	}))
	require.NoError(t, receiver.RegisterAs("Sparse", sparse{}))

	msg, err := sender.Write(&sparse{P: 5})
	require.NoError(t, err)

	got, err := receiver.Read(msg)
	require.NoError(t, err)
	assert.Equal(t, &sparse{P: 5}, got)
}

func TestValidatorOrder(t *testing.T) {
	t.Parallel()

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error { return s.DefaultWrite() },
	})

	var fired []string
	record := func(name string) func() error {
		return func() error { fired = append(fired, name); return nil }
	}

	receiver := hookedPeer(t, xserial.Hooks[hookBase]{
		ReadSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			if err := s.DefaultRead(); err != nil {
				return err
			}
			require.NoError(t, s.RegisterValidation(record("low"), 1))
			require.NoError(t, s.RegisterValidation(record("high-a"), 5))
			require.NoError(t, s.RegisterValidation(record("mid"), 3))
			require.NoError(t, s.RegisterValidation(record("high-b"), 5))
			return nil
		},
	})

	msg, err := sender.Write(&hookDerived{})
	require.NoError(t, err)
	_, err = receiver.Read(msg)
	require.NoError(t, err)

	// Descending priority; equal priorities keep registration order.
	assert.Equal(t, []string{"high-a", "high-b", "mid", "low"}, fired)
}

func TestNilValidatorIsInvalid(t *testing.T) {
	t.Parallel()

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error { return s.DefaultWrite() },
	})
	receiver := hookedPeer(t, xserial.Hooks[hookBase]{
		ReadSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			if err := s.DefaultRead(); err != nil {
				return err
			}
			return s.RegisterValidation(nil, 0)
		},
	})

	msg, err := sender.Write(&hookDerived{})
	require.NoError(t, err)
	_, err = receiver.Read(msg)
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrInvalidObject))
}

func TestUnsupportedLegacyOperations(t *testing.T) {
	t.Parallel()

	sender := hookedPeer(t, xserial.Hooks[hookBase]{
		WriteSelf: func(_ *hookBase, s *xserial.SlotStream) error {
			return s.AnnotateClass(nil)
		},
	})

	_, err := sender.Write(&hookDerived{})
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrUnsupportedEncoding))
}

func TestReplaceResolveHooksRefused(t *testing.T) {
	t.Parallel()

	ctx := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(ctx.Registry(), xserial.Hooks[hookBase]{
		WriteSelf:    func(_ *hookBase, s *xserial.SlotStream) error { return s.DefaultWrite() },
		WriteReplace: func(_ *hookBase) (any, error) { return nil, nil },
	}))
	require.NoError(t, ctx.RegisterAs("Derived", hookDerived{}))

	_, err := ctx.Write(&hookDerived{})
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrUnsupportedEncoding))
}

// The read_no_data scenario: the receiver's chain has a middle class the
// sender's chain never had.

type streamBase struct {
	N int32
}

type senderLeaf struct {
	streamBase
	S string
}

type recvMid struct {
	streamBase
}

type recvLeaf struct {
	recvMid
	S string
}

func TestReadNoData(t *testing.T) {
	t.Parallel()

	sender := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(sender.Registry(), xserial.Hooks[streamBase]{
		WriteSelf: func(_ *streamBase, s *xserial.SlotStream) error { return s.DefaultWrite() },
	}))
	require.NoError(t, sender.RegisterAs("Base", streamBase{}))
	require.NoError(t, sender.RegisterAs("Leaf", senderLeaf{}))

	var noData []string
	receiver := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(receiver.Registry(), xserial.Hooks[streamBase]{
		ReadSelf: func(_ *streamBase, s *xserial.SlotStream) error { return s.DefaultRead() },
	}))
	require.NoError(t, xserial.RegisterHooks(receiver.Registry(), xserial.Hooks[recvMid]{
		ReadNoData: func(_ *recvMid) error { noData = append(noData, "mid"); return nil },
	}))
	require.NoError(t, receiver.RegisterAs("Base", streamBase{}))
	require.NoError(t, receiver.RegisterAs("Leaf", recvLeaf{}))

	msg, err := sender.Write(&senderLeaf{streamBase: streamBase{N: 7}, S: "s"})
	require.NoError(t, err)

	got, err := receiver.Read(msg)
	require.NoError(t, err)

	leaf := got.(*recvLeaf)
	assert.Equal(t, int32(7), leaf.N)
	assert.Equal(t, "s", leaf.S)
	// The inserted middle class fires read_no_data exactly once, after the
	// base slot was read.
	assert.Equal(t, []string{"mid"}, noData)
}

func TestWireClassBelowLocalChainIsFatal(t *testing.T) {
	t.Parallel()

	sender := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(sender.Registry(), xserial.Hooks[streamBase]{
		WriteSelf: func(_ *streamBase, s *xserial.SlotStream) error { return s.DefaultWrite() },
	}))
	require.NoError(t, sender.RegisterAs("Base", streamBase{}))
	require.NoError(t, sender.RegisterAs("Leaf", senderLeaf{}))

	// The receiver's chain for "Leaf" is only the leaf itself: the wire's
	// "Base" slot matches nothing it still has.
	type flatLeaf struct {
		S string
	}
	receiver := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(receiver.Registry(), xserial.Hooks[flatLeaf]{
		ReadSelf: func(_ *flatLeaf, s *xserial.SlotStream) error { return s.DefaultRead() },
	}))
	require.NoError(t, receiver.RegisterAs("Leaf", flatLeaf{}))

	msg, err := sender.Write(&senderLeaf{})
	require.NoError(t, err)

	_, err = receiver.Read(msg)
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrSchemaMismatch))
}

func TestDuplicateFieldInChainIsFatal(t *testing.T) {
	t.Parallel()

	type dupBase struct {
		N int32
	}
	type dupLeaf struct {
		dupBase
		N int32
	}

	ctx := newPeer(t)
	require.NoError(t, xserial.RegisterHooks(ctx.Registry(), xserial.Hooks[dupBase]{
		WriteSelf: func(_ *dupBase, s *xserial.SlotStream) error { return s.DefaultWrite() },
	}))
	require.NoError(t, ctx.RegisterAs("Dup", dupLeaf{}))

	_, err := ctx.Write(&dupLeaf{})
	require.Error(t, err)
	assert.True(t, xserial.IsKind(err, xserial.ErrSchemaMismatch))
}
