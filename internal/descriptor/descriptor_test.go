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

package descriptor_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xserial-go/xserial/internal/descriptor"
)

type base struct {
	ID   int64
	Note string
}

type middle struct {
	base
	Flag bool
	skip int //nolint:unused // exercises the unexported-field rule
}

type derived struct {
	middle
	ID    int32 `xserial:"id32"`
	Note  string
	Extra *derived
	Drop  string `xserial:"-"`
}

func names(ds []descriptor.Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

func TestFieldsOfFlattens(t *testing.T) {
	t.Parallel()

	ds, err := descriptor.FieldsOf(reflect.TypeOf(derived{}), nil)
	require.NoError(t, err)

	// Derived declarations win; base's Note is shadowed, base's ID survives
	// because the derived one is renamed by its tag.
	assert.ElementsMatch(t,
		[]string{"id32", "Note", "Extra", "Flag", "ID"},
		names(ds))

	for _, d := range ds {
		v := reflect.New(reflect.TypeOf(derived{})).Elem()
		assert.NotPanics(t, func() { v.FieldByIndex(d.Index) }, "accessor for %s", d.Name)
	}
}

func TestFieldsOfShadowing(t *testing.T) {
	t.Parallel()

	ds, err := descriptor.FieldsOf(reflect.TypeOf(derived{}), nil)
	require.NoError(t, err)

	for _, d := range ds {
		if d.Name == "Note" {
			assert.Equal(t, reflect.TypeOf(derived{}), d.Owner)
		}
	}
}

func TestOwnFieldsOf(t *testing.T) {
	t.Parallel()

	ds, err := descriptor.OwnFieldsOf(reflect.TypeOf(middle{}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Flag"}, names(ds))
}

func TestAncestors(t *testing.T) {
	t.Parallel()

	chain := descriptor.Ancestors(reflect.TypeOf(derived{}))
	require.Len(t, chain, 3)

	assert.Equal(t, reflect.TypeOf(base{}), chain[0].Type)
	assert.Equal(t, reflect.TypeOf(middle{}), chain[1].Type)
	assert.Equal(t, reflect.TypeOf(derived{}), chain[2].Type)

	// Paths navigate from the derived type down.
	assert.Equal(t, []int{0, 0}, chain[0].Index)
	assert.Equal(t, []int{0}, chain[1].Index)
	assert.Empty(t, chain[2].Index)
}

func TestFieldsOfRejectsUnsupported(t *testing.T) {
	t.Parallel()

	type bad struct {
		C chan int
	}
	_, err := descriptor.FieldsOf(reflect.TypeOf(bad{}), nil)
	require.Error(t, err)
}

func TestTypeRefOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ      reflect.Type
		kind     descriptor.Kind
		nullable bool
	}{
		{reflect.TypeOf(false), descriptor.KindBool, false},
		{reflect.TypeOf(int8(0)), descriptor.KindI8, false},
		{reflect.TypeOf(uint16(0)), descriptor.KindI16, false},
		{reflect.TypeOf(int32(0)), descriptor.KindI32, false},
		{reflect.TypeOf(int64(0)), descriptor.KindI64, false},
		{reflect.TypeOf(int(0)), descriptor.KindI64, false},
		{reflect.TypeOf(float32(0)), descriptor.KindF32, false},
		{reflect.TypeOf(float64(0)), descriptor.KindF64, false},
		{reflect.TypeOf(descriptor.Char(0)), descriptor.KindChar, false},
		{reflect.TypeOf(""), descriptor.KindString, false},
		{reflect.TypeOf((*string)(nil)), descriptor.KindString, true},
		{reflect.TypeOf(base{}), descriptor.KindObject, false},
		{reflect.TypeOf(&base{}), descriptor.KindObject, true},
		{reflect.TypeOf([]int32{}), descriptor.KindArray, true},
		{reflect.TypeOf([4]byte{}), descriptor.KindArray, false},
		{reflect.TypeOf((*any)(nil)).Elem(), descriptor.KindOpaque, true},
	}
	for _, tt := range tests {
		ref, nullable, ok := descriptor.TypeRefOf(tt.typ)
		require.True(t, ok, "%v", tt.typ)
		assert.Equal(t, tt.kind, ref.Kind, "%v", tt.typ)
		assert.Equal(t, tt.nullable, nullable, "%v", tt.typ)
	}
}

func TestTypeRefWithNamer(t *testing.T) {
	t.Parallel()

	namer := func(reflect.Type) string { return "Renamed" }
	ref, _, ok := descriptor.TypeRefWith(reflect.TypeOf(base{}), namer)
	require.True(t, ok)
	assert.Equal(t, "Renamed", ref.Class)
}
