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

// Package wire is the primitive buffer underlying the engine: little-endian
// read/write of scalars, variable-length integers, and length-prefixed
// strings and byte ranges, over a mutable reader index.
//
// The buffers here are small and short-lived and must support writing as
// well as reading, so there is no unsafe pointer aliasing; the packed
// (offset, length) idea survives as [Range], always resolved against an
// explicit byte slice.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/xserial-go/xserial/internal/xerrors"
)

// Range is a packed (offset, length) pair into a Buffer's backing array.
// It is always resolved against an explicit []byte, never a raw pointer.
type Range uint64

// NewRange packs an offset and length into a Range.
func NewRange(offset, length int) Range {
	return Range(uint32(offset)) | Range(uint32(length))<<32
}

// Start is the offset of this range within its source.
func (r Range) Start() int { return int(uint32(r)) }

// Len is the length of this range.
func (r Range) Len() int { return int(uint32(r >> 32)) }

// End is the end offset (exclusive) of this range within its source.
func (r Range) End() int { return r.Start() + r.Len() }

// Bytes resolves this range against src.
func (r Range) Bytes(src []byte) []byte {
	if r.Len() == 0 {
		return nil
	}
	return src[r.Start():r.End()]
}

// String resolves this range against src as a string.
func (r Range) String(src []byte) string {
	if r.Len() == 0 {
		return ""
	}
	return string(src[r.Start():r.End()])
}

// Buffer is a little-endian, random-access buffer supporting both the
// write side (append-only) and the read side (a mutable reader index) of
// the wire protocol.
type Buffer struct {
	buf []byte
	idx int
}

// NewReader wraps data for reading. The returned Buffer does not copy data.
func NewReader(data []byte) *Buffer {
	return &Buffer{buf: data}
}

// NewWriter returns an empty Buffer ready for writing.
func NewWriter() *Buffer {
	return &Buffer{buf: make([]byte, 0, 64)}
}

// Bytes returns the buffer's contents written so far (or, on the read side,
// the whole backing array).
func (b *Buffer) Bytes() []byte { return b.buf }

// ReaderIndex returns the current read position.
func (b *Buffer) ReaderIndex() int { return b.idx }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.buf) - b.idx }

// Advance moves the reader index forward by n bytes.
func (b *Buffer) Advance(n int) error {
	if n < 0 || n > b.Remaining() {
		return xerrors.New(xerrors.EOF, "advance(%d) past end of buffer (%d remaining)", n, b.Remaining())
	}
	b.idx += n
	return nil
}

func (b *Buffer) need(n int) error {
	if b.Remaining() < n {
		return xerrors.New(xerrors.EOF, "need %d bytes, have %d", n, b.Remaining())
	}
	return nil
}

func (b *Buffer) take(n int) []byte {
	p := b.buf[b.idx : b.idx+n]
	b.idx += n
	return p
}

// WriteBool writes a single byte, 0 or 1.
func (b *Buffer) WriteBool(v bool) {
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}

// ReadBool reads a single byte as a bool.
func (b *Buffer) ReadBool() (bool, error) {
	if err := b.need(1); err != nil {
		return false, err
	}
	return b.take(1)[0] != 0, nil
}

// WriteByte writes a single unsigned byte (i8).
func (b *Buffer) WriteByte(v byte) { b.buf = append(b.buf, v) } //nolint:revive // no error result, unlike io.ByteWriter

// ReadByte reads a single unsigned byte (i8).
func (b *Buffer) ReadByte() (byte, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	return b.take(1)[0], nil
}

// WriteI16 writes a little-endian int16.
func (b *Buffer) WriteI16(v int16) {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(v))
}

// ReadI16 reads a little-endian int16.
func (b *Buffer) ReadI16() (int16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b.take(2))), nil
}

// WriteFixed32 writes a little-endian uint32.
func (b *Buffer) WriteFixed32(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

// ReadFixed32 reads a little-endian uint32.
func (b *Buffer) ReadFixed32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.take(4)), nil
}

// WriteFixed64 writes a little-endian uint64.
func (b *Buffer) WriteFixed64(v uint64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
}

// ReadFixed64 reads a little-endian uint64.
func (b *Buffer) ReadFixed64() (uint64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.take(8)), nil
}

// WriteF32 writes a float32 in its IEEE-754 bit representation.
func (b *Buffer) WriteF32(v float32) { b.WriteFixed32(math.Float32bits(v)) }

// ReadF32 reads a float32.
func (b *Buffer) ReadF32() (float32, error) {
	bits, err := b.ReadFixed32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// WriteF64 writes a float64 in its IEEE-754 bit representation.
func (b *Buffer) WriteF64(v float64) { b.WriteFixed64(math.Float64bits(v)) }

// ReadF64 reads a float64.
func (b *Buffer) ReadF64() (float64, error) {
	bits, err := b.ReadFixed64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// WriteChar writes a rune as a varint of its code point.
func (b *Buffer) WriteChar(v rune) { b.WriteVarint64(uint64(v)) }

// ReadChar reads a rune.
func (b *Buffer) ReadChar() (rune, error) {
	v, err := b.ReadVarint64()
	if err != nil {
		return 0, err
	}
	return rune(v), nil
}

const (
	maxVarintBytes32 = 5
	maxVarintBytes64 = 10
)

// WriteVarint32 writes v as an unsigned LEB128 varint.
func (b *Buffer) WriteVarint32(v uint32) { b.WriteVarint64(uint64(v)) }

// ReadVarint32 reads an unsigned LEB128 varint, failing with
// xerrors.ProtocolViolation on overflow of 32 bits.
func (b *Buffer) ReadVarint32() (uint32, error) {
	v, err := b.ReadVarint64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, xerrors.New(xerrors.ProtocolViolation, "varint32 overflow: %d", v)
	}
	return uint32(v), nil
}

// WriteVarint64 writes v as an unsigned LEB128 varint.
func (b *Buffer) WriteVarint64(v uint64) {
	for v >= 0x80 {
		b.buf = append(b.buf, byte(v)|0x80)
		v >>= 7
	}
	b.buf = append(b.buf, byte(v))
}

// ReadVarint64 reads an unsigned LEB128 varint.
func (b *Buffer) ReadVarint64() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxVarintBytes64; i++ {
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return result, nil
		}
		shift += 7
	}
	return 0, xerrors.New(xerrors.ProtocolViolation, "varint64 too long")
}

// WriteZigZag32 writes a zig-zag encoded int32.
func (b *Buffer) WriteZigZag32(v int32) {
	b.WriteVarint32(uint32((v << 1) ^ (v >> 31)))
}

// ReadZigZag32 reads a zig-zag encoded int32.
func (b *Buffer) ReadZigZag32() (int32, error) {
	u, err := b.ReadVarint32()
	if err != nil {
		return 0, err
	}
	return int32(u>>1) ^ -int32(u&1), nil
}

// WriteZigZag64 writes a zig-zag encoded int64.
func (b *Buffer) WriteZigZag64(v int64) {
	b.WriteVarint64(uint64((v << 1) ^ (v >> 63)))
}

// ReadZigZag64 reads a zig-zag encoded int64.
func (b *Buffer) ReadZigZag64() (int64, error) {
	u, err := b.ReadVarint64()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// WriteRaw appends p with no length prefix.
func (b *Buffer) WriteRaw(p []byte) { b.buf = append(b.buf, p...) }

// ReadRaw reads exactly n bytes with no length prefix, returning a slice
// that aliases the underlying buffer.
func (b *Buffer) ReadRaw(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	return b.take(n), nil
}

// WriteBytes writes a varint length prefix followed by p.
func (b *Buffer) WriteBytes(p []byte) {
	b.WriteVarint64(uint64(len(p)))
	b.buf = append(b.buf, p...)
}

// ReadBytes reads a varint length prefix followed by that many bytes,
// returning a slice that aliases the underlying buffer.
func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.ReadVarint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(b.Remaining()) {
		return nil, xerrors.New(xerrors.EOF, "need %d bytes, have %d", n, b.Remaining())
	}
	return b.take(int(n)), nil
}

// WriteString writes a varint length prefix followed by the UTF-8 bytes
// of s.
func (b *Buffer) WriteString(s string) {
	b.WriteVarint64(uint64(len(s)))
	b.buf = append(b.buf, s...)
}

// ReadString reads a length-prefixed UTF-8 string.
func (b *Buffer) ReadString() (string, error) {
	p, err := b.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadRange reads a varint length prefix and returns a Range describing the
// bytes that follow, without copying or decoding them; the caller resolves
// it against Bytes() later.
func (b *Buffer) ReadRange() (Range, error) {
	n, err := b.ReadVarint64()
	if err != nil {
		return 0, err
	}
	if n > uint64(b.Remaining()) {
		return 0, xerrors.New(xerrors.EOF, "need %d bytes, have %d", n, b.Remaining())
	}
	start := b.idx
	b.idx += int(n)
	return NewRange(start, int(n)), nil
}
