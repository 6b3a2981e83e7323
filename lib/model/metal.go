// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MetalWriter appends the binary form of the fields it visits to a
// byte slice.
type MetalWriter struct {
	buf []byte
}

// NewMetalWriter returns a writer that appends to dst. Pass dst[:0] to
// reuse a buffer: nothing is reallocated while the output fits its
// capacity.
func NewMetalWriter(dst []byte) *MetalWriter {
	return &MetalWriter{buf: dst}
}

// AppendMetal appends the binary form of m to dst.
func AppendMetal(dst []byte, m Model) []byte {
	w := NewMetalWriter(dst)
	m.Walk(w)
	return w.buf
}

// Encoded returns the accumulated output.
func (w *MetalWriter) Encoded() []byte { return w.buf }

// Err always returns nil: every value has a binary form.
func (w *MetalWriter) Err() error { return nil }

func (w *MetalWriter) Type(string, int) {}

func (w *MetalWriter) Bool(_ string, v *bool) {
	var b byte
	if *v {
		b = 1
	}
	w.buf = append(w.buf, b)
}

func (w *MetalWriter) Int(_ string, v *int) { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(*v)) }
func (w *MetalWriter) Int8(_ string, v *int8) { w.buf = append(w.buf, byte(*v)) }
func (w *MetalWriter) Int16(_ string, v *int16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(*v)) }
func (w *MetalWriter) Int32(_ string, v *int32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(*v)) }
func (w *MetalWriter) Int64(_ string, v *int64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(*v)) }
func (w *MetalWriter) Uint8(_ string, v *uint8) { w.buf = append(w.buf, *v) }

func (w *MetalWriter) Uint16(_ string, v *uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, *v) }
func (w *MetalWriter) Uint32(_ string, v *uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, *v) }
func (w *MetalWriter) Uint64(_ string, v *uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, *v) }

func (w *MetalWriter) Float32(_ string, v *float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(*v))
}

func (w *MetalWriter) Float64(_ string, v *float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(*v))
}

func (w *MetalWriter) String(_ string, v *string) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(*v)))
	w.buf = append(w.buf, *v...)
}

func (w *MetalWriter) Bytes(_ string, v *[]byte) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(*v)))
	w.buf = append(w.buf, *v...)
}

func (w *MetalWriter) Model(_ string, m Model) {
	m.Walk(w)
}

func (w *MetalWriter) List(_ string, n int, _ func(int), each func(int)) {
	w.buf = binary.AppendUvarint(w.buf, uint64(n))
	for i := range n {
		each(i)
	}
}

// MetalReader populates the fields it visits from binary input.
type MetalReader struct {
	data []byte
	off  int
	err  error
}

// NewMetalReader returns a reader over data.
func NewMetalReader(data []byte) *MetalReader {
	return &MetalReader{data: data}
}

// DecodeMetal populates m from data, which must hold exactly one
// encoded value.
func DecodeMetal(data []byte, m Model) error {
	r := NewMetalReader(data)
	m.Walk(r)
	return r.Finish()
}

// Err returns the first error encountered.
func (r *MetalReader) Err() error { return r.err }

// Finish returns the first error, or ErrSyntax if input remains after
// the last field.
func (r *MetalReader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if rest := len(r.data) - r.off; rest != 0 {
		return fmt.Errorf("%d bytes of trailing data: %w", rest, ErrSyntax)
	}
	return nil
}

func (r *MetalReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// take returns the next n bytes, or nil after recording ErrTruncated.
func (r *MetalReader) take(name string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.fail(fmt.Errorf("field %q needs %d bytes at offset %d, %d left: %w", name, n, r.off, len(r.data)-r.off, ErrTruncated))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// length reads a uvarint length prefix that must not exceed the
// remaining input.
func (r *MetalReader) length(name string) (int, bool) {
	if r.err != nil {
		return 0, false
	}
	n, size := binary.Uvarint(r.data[r.off:])
	if size == 0 {
		r.fail(fmt.Errorf("field %q length at offset %d: %w", name, r.off, ErrTruncated))
		return 0, false
	}
	if size < 0 {
		r.fail(fmt.Errorf("field %q length at offset %d overflows: %w", name, r.off, ErrSyntax))
		return 0, false
	}
	r.off += size
	if n > uint64(len(r.data)-r.off) {
		r.fail(fmt.Errorf("field %q declares %d elements, %d bytes left: %w", name, n, len(r.data)-r.off, ErrTruncated))
		return 0, false
	}
	return int(n), true
}

func (r *MetalReader) Type(string, int) {}

func (r *MetalReader) Bool(name string, v *bool) {
	b := r.take(name, 1)
	if b == nil {
		return
	}
	switch b[0] {
	case 0:
		*v = false
	case 1:
		*v = true
	default:
		r.fail(fmt.Errorf("field %q: boolean byte %#x: %w", name, b[0], ErrSyntax))
	}
}

func (r *MetalReader) Int(name string, v *int) {
	if b := r.take(name, 8); b != nil {
		x := int64(binary.LittleEndian.Uint64(b))
		if int64(int(x)) != x {
			r.fail(fmt.Errorf("field %q: %d overflows int: %w", name, x, ErrSyntax))
			return
		}
		*v = int(x)
	}
}

func (r *MetalReader) Int8(name string, v *int8) {
	if b := r.take(name, 1); b != nil {
		*v = int8(b[0])
	}
}

func (r *MetalReader) Int16(name string, v *int16) {
	if b := r.take(name, 2); b != nil {
		*v = int16(binary.LittleEndian.Uint16(b))
	}
}

func (r *MetalReader) Int32(name string, v *int32) {
	if b := r.take(name, 4); b != nil {
		*v = int32(binary.LittleEndian.Uint32(b))
	}
}

func (r *MetalReader) Int64(name string, v *int64) {
	if b := r.take(name, 8); b != nil {
		*v = int64(binary.LittleEndian.Uint64(b))
	}
}

func (r *MetalReader) Uint8(name string, v *uint8) {
	if b := r.take(name, 1); b != nil {
		*v = b[0]
	}
}

func (r *MetalReader) Uint16(name string, v *uint16) {
	if b := r.take(name, 2); b != nil {
		*v = binary.LittleEndian.Uint16(b)
	}
}

func (r *MetalReader) Uint32(name string, v *uint32) {
	if b := r.take(name, 4); b != nil {
		*v = binary.LittleEndian.Uint32(b)
	}
}

func (r *MetalReader) Uint64(name string, v *uint64) {
	if b := r.take(name, 8); b != nil {
		*v = binary.LittleEndian.Uint64(b)
	}
}

func (r *MetalReader) Float32(name string, v *float32) {
	if b := r.take(name, 4); b != nil {
		*v = math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
}

func (r *MetalReader) Float64(name string, v *float64) {
	if b := r.take(name, 8); b != nil {
		*v = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

func (r *MetalReader) String(name string, v *string) {
	n, ok := r.length(name)
	if !ok {
		return
	}
	*v = string(r.take(name, n))
}

func (r *MetalReader) Bytes(name string, v *[]byte) {
	n, ok := r.length(name)
	if !ok {
		return
	}
	*v = append([]byte(nil), r.take(name, n)...)
}

func (r *MetalReader) Model(_ string, m Model) {
	if r.err == nil {
		m.Walk(r)
	}
}

// List requires every element to occupy at least one byte, which holds
// for any model with a field.
func (r *MetalReader) List(name string, _ int, resize func(int), each func(int)) {
	n, ok := r.length(name)
	if !ok {
		return
	}
	resize(n)
	for i := 0; i < n && r.err == nil; i++ {
		each(i)
	}
}
