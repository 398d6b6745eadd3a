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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xserial-go/xserial/internal/classdef"
	"github.com/xserial-go/xserial/internal/descriptor"
)

type consolidated struct {
	A int32
	B string
	C *consolidated
}

func localFields(t *testing.T) map[string]*descriptor.Descriptor {
	t.Helper()
	ds, err := descriptor.FieldsOf(reflect.TypeOf(consolidated{}), nil)
	require.NoError(t, err)
	ordered := descriptor.Group(ds, descriptor.GrouperOptions{}).Ordered()
	return indexByName(ordered)
}

func TestConsolidateMatchesByNameAndType(t *testing.T) {
	t.Parallel()

	peer := classdef.New("Consolidated", []classdef.Field{
		{Name: "A", Type: descriptor.Primitive(descriptor.KindI32)},
		{Name: "B", Type: descriptor.String()},
		{Name: "Gone", Type: descriptor.Primitive(descriptor.KindI64)},
		{Name: "C", Type: descriptor.Object(descriptor.ClassNameOf(reflect.TypeOf(consolidated{}))), Nullable: true},
	})

	p := consolidate(peer, localFields(t))
	require.Len(t, p.fields, peer.NumFields())

	assert.NotNil(t, p.fields[0].local, "A matches")
	assert.NotNil(t, p.fields[1].local, "B matches")
	assert.Nil(t, p.fields[2].local, "Gone is peer-only")
	assert.NotNil(t, p.fields[3].local, "C matches")

	assert.Equal(t, uint(3), p.present.Count())
}

func TestConsolidateRejectsKindChange(t *testing.T) {
	t.Parallel()

	// Same name, different wire kind: treated as a peer-only field, not an
	// error, so evolution that retypes a field degrades to skip+default.
	peer := classdef.New("Consolidated", []classdef.Field{
		{Name: "A", Type: descriptor.String()},
	})

	p := consolidate(peer, localFields(t))
	assert.Nil(t, p.fields[0].local)
}

func TestCompatibleRefs(t *testing.T) {
	t.Parallel()

	i32 := descriptor.Primitive(descriptor.KindI32)
	i64 := descriptor.Primitive(descriptor.KindI64)
	obj := descriptor.Object("a.B")
	other := descriptor.Object("a.C")

	tests := []struct {
		local, peer descriptor.TypeRef
		want        bool
	}{
		{i32, i32, true},
		{i32, i64, false},
		{descriptor.String(), descriptor.String(), true},
		{obj, obj, true},
		{obj, other, false},
		{descriptor.Opaque(), obj, true},
		{obj, descriptor.Opaque(), true},
		{descriptor.Opaque(), i32, false},
		{descriptor.Array(i32), descriptor.Array(i32), true},
		{descriptor.Array(i32), descriptor.Array(i64), false},
		{descriptor.Array(obj), descriptor.Opaque(), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compatibleRefs(tt.local, tt.peer), "%v vs %v", tt.local, tt.peer)
	}
}

func TestIdentityConsolidation(t *testing.T) {
	t.Parallel()

	// A definition built from the local fields consolidates against them
	// with every entry present.
	byName := localFields(t)
	ds, err := descriptor.FieldsOf(reflect.TypeOf(consolidated{}), nil)
	require.NoError(t, err)
	ordered := descriptor.Group(ds, descriptor.GrouperOptions{}).Ordered()
	def := classdef.Of("Consolidated", ordered)

	p := consolidate(def, byName)
	assert.Equal(t, uint(def.NumFields()), p.present.Count())
}
