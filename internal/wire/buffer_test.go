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

package wire_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xserial-go/xserial/internal/wire"
)

func TestScalarRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	w.WriteBool(true)
	w.WriteByte(0xAB)
	w.WriteI16(-1234)
	w.WriteFixed32(0xdeadbeef)
	w.WriteFixed64(0x0123456789abcdef)
	w.WriteF32(3.14)
	w.WriteF64(2.71828)
	w.WriteChar('λ')
	w.WriteVarint32(300)
	w.WriteVarint64(math.MaxUint64)
	w.WriteZigZag32(-5)
	w.WriteZigZag64(-5000000000)
	w.WriteBytes([]byte("hello"))
	w.WriteString("world")

	r := wire.NewReader(w.Bytes())

	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	by, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), by)

	i16, err := r.ReadI16()
	require.NoError(t, err)
	require.Equal(t, int16(-1234), i16)

	f32v, err := r.ReadFixed32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), f32v)

	f64v, err := r.ReadFixed64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0123456789abcdef), f64v)

	fl32, err := r.ReadF32()
	require.NoError(t, err)
	require.InDelta(t, float32(3.14), fl32, 0.0001)

	fl64, err := r.ReadF64()
	require.NoError(t, err)
	require.InDelta(t, 2.71828, fl64, 0.0001)

	ch, err := r.ReadChar()
	require.NoError(t, err)
	require.Equal(t, 'λ', ch)

	v32, err := r.ReadVarint32()
	require.NoError(t, err)
	require.Equal(t, uint32(300), v32)

	v64, err := r.ReadVarint64()
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), v64)

	zz32, err := r.ReadZigZag32()
	require.NoError(t, err)
	require.Equal(t, int32(-5), zz32)

	zz64, err := r.ReadZigZag64()
	require.NoError(t, err)
	require.Equal(t, int64(-5000000000), zz64)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), bs)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "world", s)

	require.Zero(t, r.Remaining())
}

func TestReadPastEndIsEOF(t *testing.T) {
	r := wire.NewReader(nil)
	_, err := r.ReadByte()
	require.Error(t, err)
}

func TestRangeResolve(t *testing.T) {
	w := wire.NewWriter()
	w.WriteString("hello range")

	r := wire.NewReader(w.Bytes())
	rg, err := r.ReadRange()
	require.NoError(t, err)
	require.Equal(t, "hello range", rg.String(r.Bytes()))
}
