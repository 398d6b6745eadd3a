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

type grouped struct {
	B    bool
	L    int64
	I    int32
	S    int16
	F    float64
	Name string
	Opt  *int32
	Next *grouped
	Pt   base
	Tags []string
	Any  any
}

func TestGroupOrdering(t *testing.T) {
	t.Parallel()

	ds, err := descriptor.FieldsOf(reflect.TypeOf(grouped{}), nil)
	require.NoError(t, err)

	g := descriptor.Group(ds, descriptor.GrouperOptions{})

	// Primitives: descending size, ties by name.
	assert.Equal(t, []string{"F", "L", "I", "S", "B"}, names(g.Primitives))
	assert.Equal(t, []string{"Opt"}, names(g.Boxed))
	// Final: non-nullable strings and inline structs, by class then name.
	assert.Equal(t, []string{"Pt", "Name"}, names(g.Final))
	// Other: nullable objects, arrays, opaque.
	assert.Len(t, g.Other, 3)
}

func TestGroupIsDeterministic(t *testing.T) {
	t.Parallel()

	ds, err := descriptor.FieldsOf(reflect.TypeOf(grouped{}), nil)
	require.NoError(t, err)

	a := descriptor.Group(ds, descriptor.GrouperOptions{}).Ordered()

	// Reversing the input order must not change the output.
	rev := make([]descriptor.Descriptor, len(ds))
	for i, d := range ds {
		rev[len(ds)-1-i] = d
	}
	b := descriptor.Group(rev, descriptor.GrouperOptions{}).Ordered()

	assert.Equal(t, names(a), names(b))
}

func TestGroupTrackRefsMovesStrings(t *testing.T) {
	t.Parallel()

	ds, err := descriptor.FieldsOf(reflect.TypeOf(grouped{}), nil)
	require.NoError(t, err)

	g := descriptor.Group(ds, descriptor.GrouperOptions{TrackRefsForBasics: true})

	// With reference tracking, strings carry a reference tag and no longer
	// sort with the final fields.
	assert.Equal(t, []string{"Pt"}, names(g.Final))
	assert.Len(t, g.Other, 4)
}
