// Package vbyte implements variable-byte integer coding: one integer per
// call, least-significant-7-bits first, with the terminating byte's high
// bit set to 1. It is the codec every on-disk structure in this module
// falls back to when it needs to store an arbitrary-width integer inline
// (compact table headers, block list headers, leader offsets).
//
// A delta variant is layered on top for strictly increasing sequences:
// document ids within a block, and leader offsets, are both delta-coded
// this way.
package vbyte

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a variable-byte stream ends in the
// middle of an integer (the continuation bit never gets set to 1).
var ErrTruncated = errors.New("vbyte: truncated stream")

// AppendUint64 appends the variable-byte encoding of v to dst and
// returns the extended slice.
func AppendUint64(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v&0x7f))
		v >>= 7
	}
	return append(dst, byte(v)|0x80)
}

// AppendUint32 is a convenience wrapper around AppendUint64.
func AppendUint32(dst []byte, v uint32) []byte {
	return AppendUint64(dst, uint64(v))
}

// Uint64 decodes a single variable-byte integer from the start of buf and
// returns its value along with the number of bytes consumed. It returns
// ErrTruncated if buf is exhausted before a terminating byte is seen.
func Uint64(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, b := range buf {
		if shift >= 64 {
			return 0, 0, fmt.Errorf("vbyte: value too large at byte %d", i)
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 != 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// Uint32 decodes a single variable-byte integer as a uint32.
func Uint32(buf []byte) (uint32, int, error) {
	v, n, err := Uint64(buf)
	if err != nil {
		return 0, 0, err
	}
	return uint32(v), n, nil
}

// Reader is a forward cursor over a variable-byte encoded byte slice. It
// is the low-level primitive the block list decoders (pkg/postings) are
// built on.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential variable-byte decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current byte offset into the underlying buffer.
func (r *Reader) Pos() int { return r.pos }

// Len reports how many bytes remain unread.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Next decodes the next integer in the stream.
func (r *Reader) Next() (uint64, error) {
	v, n, err := Uint64(r.buf[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// NextN decodes n integers from the stream into dst[:n], growing dst if
// necessary, and returns the populated slice.
func (r *Reader) NextN(n int, dst []uint64) ([]uint64, error) {
	if cap(dst) < n {
		dst = make([]uint64, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		v, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("vbyte: decoding element %d of %d: %w", i, n, err)
		}
		dst[i] = v
	}
	return dst, nil
}

// Writer accumulates a variable-byte encoded stream.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// PutUint64 appends v to the stream.
func (w *Writer) PutUint64(v uint64) {
	w.buf = AppendUint64(w.buf, v)
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// EncodeDelta encodes a strictly increasing sequence xs as deltas from an
// initial value v0: xs[0]-v0, xs[1]-xs[0], ... Every element of xs must
// be >= the previous value (v0 for the first element).
func EncodeDelta(v0 uint64, xs []uint64) []byte {
	w := NewWriter()
	prev := v0
	for _, x := range xs {
		w.PutUint64(x - prev)
		prev = x
	}
	return w.Bytes()
}

// DecodeDelta decodes n delta-coded values starting from v0, returning
// the reconstructed strictly increasing sequence.
func DecodeDelta(buf []byte, v0 uint64, n int) ([]uint64, error) {
	r := NewReader(buf)
	out := make([]uint64, n)
	prev := v0
	for i := 0; i < n; i++ {
		d, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("vbyte: decoding delta element %d of %d: %w", i, n, err)
		}
		prev += d
		out[i] = prev
	}
	return out, nil
}

// DecodeDeltaN behaves like DecodeDelta but also reports how many bytes
// of buf were consumed, which callers need when the delta-coded run is
// followed by more data in the same buffer.
func DecodeDeltaN(buf []byte, v0 uint64, n int) ([]uint64, int, error) {
	r := NewReader(buf)
	out := make([]uint64, n)
	prev := v0
	for i := 0; i < n; i++ {
		d, err := r.Next()
		if err != nil {
			return nil, 0, fmt.Errorf("vbyte: decoding delta element %d of %d: %w", i, n, err)
		}
		prev += d
		out[i] = prev
	}
	return out, r.Pos(), nil
}

// EncodePlain encodes xs with no delta transform, one vbyte per value.
func EncodePlain(xs []uint64) []byte {
	w := NewWriter()
	for _, x := range xs {
		w.PutUint64(x)
	}
	return w.Bytes()
}

// DecodePlain decodes n plain-coded values.
func DecodePlain(buf []byte, n int) ([]uint64, error) {
	r := NewReader(buf)
	return r.NextN(n, nil)
}
