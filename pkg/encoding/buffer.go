// Package encoding provides the byte buffer shared by the compact wire format
// and the per-type compact codecs.
package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var ErrInvalidVarint = errors.New("invalid varint encoding")

// Buffer is an append-only writer and a forward-only reader over one byte slice.
// All multi-byte fixed width values are little-endian.
type Buffer struct {
	buf []byte
	pos int
}

func NewBuffer() *Buffer {
	return &Buffer{buf: make([]byte, 0, 256)}
}

func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{buf: data}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[pos=%d len=%d cap=%d]", b.pos, len(b.buf), cap(b.buf))
}

// Bytes returns the written bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) Len() int {
	return len(b.buf)
}

func (b *Buffer) Remaining() int {
	return len(b.buf) - b.pos
}

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

func (b *Buffer) WriteByte(v byte) error {
	b.buf = append(b.buf, v)
	return nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *Buffer) WriteUvarint(x uint64) {
	b.buf = binary.AppendUvarint(b.buf, x)
}

func (b *Buffer) WriteVarint(x int64) {
	b.buf = binary.AppendVarint(b.buf, x)
}

func (b *Buffer) WriteUint32(x uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, x)
}

func (b *Buffer) WriteUint64(x uint64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, x)
}

func (b *Buffer) WriteFloat32(f float32) {
	b.WriteUint32(math.Float32bits(f))
}

func (b *Buffer) WriteFloat64(f float64) {
	b.WriteUint64(math.Float64bits(f))
}

// WriteBlob writes a uvarint length prefix followed by p.
func (b *Buffer) WriteBlob(p []byte) {
	b.WriteUvarint(uint64(len(p)))
	b.buf = append(b.buf, p...)
}

func (b *Buffer) WriteString(s string) {
	b.WriteUvarint(uint64(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

// ReadN returns a copy of the next n bytes.
func (b *Buffer) ReadN(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	copy(out, b.buf[b.pos:])
	b.pos += n
	return out, nil
}

func (b *Buffer) ReadUvarint() (uint64, error) {
	if b.pos >= len(b.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n := binary.Uvarint(b.buf[b.pos:])
	if n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if n < 0 {
		return 0, ErrInvalidVarint
	}
	b.pos += n
	return val, nil
}

func (b *Buffer) ReadVarint() (int64, error) {
	if b.pos >= len(b.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n := binary.Varint(b.buf[b.pos:])
	if n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if n < 0 {
		return 0, ErrInvalidVarint
	}
	b.pos += n
	return val, nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	if b.Remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	val := binary.LittleEndian.Uint32(b.buf[b.pos:])
	b.pos += 4
	return val, nil
}

func (b *Buffer) ReadUint64() (uint64, error) {
	if b.Remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	val := binary.LittleEndian.Uint64(b.buf[b.pos:])
	b.pos += 8
	return val, nil
}

func (b *Buffer) ReadFloat32() (float32, error) {
	bits, err := b.ReadUint32()
	return math.Float32frombits(bits), err
}

func (b *Buffer) ReadFloat64() (float64, error) {
	bits, err := b.ReadUint64()
	return math.Float64frombits(bits), err
}

// ReadLen reads a uvarint length and checks that at least min*length bytes
// remain, so corrupt input cannot trigger huge allocations. min is the
// smallest encoded size of one element; zero disables the check.
func (b *Buffer) ReadLen(min int) (int, error) {
	n, err := b.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if min > 0 && (n > uint64(b.Remaining()) || n*uint64(min) > uint64(b.Remaining())) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(n), nil
}

func (b *Buffer) ReadBlob() ([]byte, error) {
	n, err := b.ReadLen(1)
	if err != nil {
		return nil, err
	}
	return b.ReadN(n)
}

func (b *Buffer) ReadString() (string, error) {
	p, err := b.ReadBlob()
	return string(p), err
}
