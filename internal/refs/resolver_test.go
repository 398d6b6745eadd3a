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

package refs_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xserial-go/xserial/internal/refs"
	"github.com/xserial-go/xserial/internal/wire"
	"github.com/xserial-go/xserial/internal/xerrors"
)

type box struct{ N int32 }

func TestWriteRefIdentity(t *testing.T) {
	t.Parallel()

	r := refs.NewResolver()
	b := wire.NewWriter()
	v := &box{N: 1}

	inlines := 0
	emit := func(reflect.Value) error { inlines++; return nil }

	require.NoError(t, r.WriteRef(b, reflect.ValueOf(v), emit))
	require.NoError(t, r.WriteRef(b, reflect.ValueOf(v), emit))
	require.NoError(t, r.WriteRef(b, reflect.ValueOf(&box{N: 2}), emit))

	// Same pointer inlines once; a distinct object inlines again.
	assert.Equal(t, 2, inlines)
}

func TestReadRefRoundTrip(t *testing.T) {
	t.Parallel()

	w := refs.NewResolver()
	b := wire.NewWriter()
	v := &box{N: 7}

	emit := func(pv reflect.Value) error {
		b.WriteVarint32(uint32(pv.Elem().FieldByName("N").Int()))
		return nil
	}
	require.NoError(t, w.WriteRef(b, reflect.ValueOf(v), emit))
	require.NoError(t, w.WriteRef(b, reflect.ValueOf(v), emit))
	require.NoError(t, w.WriteRef(b, reflect.Value{}, emit)) // null

	r := refs.NewResolver()
	rb := wire.NewReader(b.Bytes())

	inline := func() (reflect.Value, error) {
		inst := reflect.New(reflect.TypeOf(box{}))
		r.Register(inst)
		n, err := rb.ReadVarint32()
		if err != nil {
			return reflect.Value{}, err
		}
		inst.Elem().FieldByName("N").SetInt(int64(n))
		return inst, nil
	}

	first, err := r.ReadRef(rb, inline)
	require.NoError(t, err)
	second, err := r.ReadRef(rb, inline)
	require.NoError(t, err)
	third, err := r.ReadRef(rb, inline)
	require.NoError(t, err)

	assert.Equal(t, int32(7), first.Interface().(*box).N)
	assert.Same(t, first.Interface(), second.Interface())
	assert.False(t, third.IsValid())
}

func TestStringsShareByValue(t *testing.T) {
	t.Parallel()

	w := refs.NewResolver()
	b := wire.NewWriter()

	w.WriteRefString(b, "hello")
	w.WriteRefString(b, "hello")
	w.WriteRefString(b, "world")

	r := refs.NewResolver()
	rb := wire.NewReader(b.Bytes())
	for _, want := range []string{"hello", "hello", "world"} {
		got, err := r.ReadRefString(rb)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, rb.Remaining())
}

func TestBadBackReference(t *testing.T) {
	t.Parallel()

	b := wire.NewWriter()
	b.WriteByte(1) // tagRef
	b.WriteVarint32(42)

	_, err := refs.NewResolver().ReadRef(wire.NewReader(b.Bytes()), nil)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ProtocolViolation))
}

func TestReset(t *testing.T) {
	t.Parallel()

	r := refs.NewResolver()
	b := wire.NewWriter()
	v := &box{}

	require.NoError(t, r.WriteRef(b, reflect.ValueOf(v), func(reflect.Value) error { return nil }))
	r.Register(reflect.ValueOf(v))
	r.Reset()

	// After a reset the same pointer is a new object again.
	inlines := 0
	require.NoError(t, r.WriteRef(b, reflect.ValueOf(v), func(reflect.Value) error { inlines++; return nil }))
	assert.Equal(t, 1, inlines)

	_, err := r.At(0)
	require.Error(t, err)
}
