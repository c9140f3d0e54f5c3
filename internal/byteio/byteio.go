// Package byteio provides big-endian cursors over class-file bytes.
package byteio

import (
	"bytes"
	"encoding/binary"

	"github.com/deepnoodle-ai/classweave/errz"
)

// Reader is a bounds-checked big-endian cursor. The first overrun is
// recorded and every later read returns zero, so callers check Err once
// after a group of reads.
type Reader struct {
	data []byte
	pos  int
	// base is added to positions reported in errors, for readers over a
	// slice of a larger buffer.
	base int
	err  error
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NewReaderAt returns a Reader over data whose error offsets are reported
// relative to base.
func NewReaderAt(data []byte, base int) *Reader {
	return &Reader{data: data, base: base}
}

// Err returns the first error encountered by the reader.
func (r *Reader) Err() error {
	return r.err
}

// Pos returns the current position relative to the start of the data.
func (r *Reader) Pos() int {
	return r.pos
}

// Offset returns the current position in the enclosing buffer.
func (r *Reader) Offset() int {
	return r.base + r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.pos {
		r.err = errz.At(errz.TruncatedInput, r.Offset(),
			"need %d bytes, %d remaining", n, len(r.data)-r.pos)
		r.pos = len(r.data)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// U8 reads an unsigned byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// S8 reads a signed byte.
func (r *Reader) S8() int8 { return int8(r.U8()) }

// U16 reads an unsigned big-endian short.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// S16 reads a signed big-endian short.
func (r *Reader) S16() int16 { return int16(r.U16()) }

// U32 reads an unsigned big-endian int.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// S32 reads a signed big-endian int.
func (r *Reader) S32() int32 { return int32(r.U32()) }

// U64 reads an unsigned big-endian long.
func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Bytes reads n bytes. The result aliases the underlying buffer.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// Writer accumulates big-endian output.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) U8(v uint8)   { w.buf.WriteByte(v) }
func (w *Writer) S8(v int8)    { w.U8(uint8(v)) }
func (w *Writer) S16(v int16)  { w.U16(uint16(v)) }
func (w *Writer) S32(v int32)  { w.U32(uint32(v)) }
func (w *Writer) Raw(b []byte) { w.buf.Write(b) }

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// Zeros writes n zero bytes.
func (w *Writer) Zeros(n int) {
	for i := 0; i < n; i++ {
		w.buf.WriteByte(0)
	}
}

// PatchU32 overwrites four bytes at pos, which must already be written.
func (w *Writer) PatchU32(pos int, v uint32) {
	binary.BigEndian.PutUint32(w.buf.Bytes()[pos:pos+4], v)
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Bytes returns the accumulated output.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}
