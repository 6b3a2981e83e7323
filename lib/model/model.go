// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package model

import "errors"

// Unversioned is the version of a type that does not declare one.
const Unversioned = -1

var (
	// ErrTruncated is returned when input ends inside a value.
	ErrTruncated = errors.New("model: truncated input")

	// ErrSyntax is returned when input is well-framed but a value
	// cannot be represented in its field (bad boolean byte, integer
	// overflow, wrong YAML node kind, trailing data).
	ErrSyntax = errors.New("model: syntax error")
)

// Model is a value that can enumerate its fields.
type Model interface {
	// Walk visits every field in declared order. It must visit the
	// same fields with the same names on every call.
	Walk(w Walker)
}

// Walker visits the fields of a [Model]. Names identify fields in the
// text form and for [Capture]; the binary form ignores them.
type Walker interface {
	// Type declares the name and version of the model being walked.
	// Only the outermost call of a walk is significant.
	Type(name string, version int)

	Bool(name string, v *bool)
	Int(name string, v *int)
	Int8(name string, v *int8)
	Int16(name string, v *int16)
	Int32(name string, v *int32)
	Int64(name string, v *int64)
	Uint8(name string, v *uint8)
	Uint16(name string, v *uint16)
	Uint32(name string, v *uint32)
	Uint64(name string, v *uint64)
	Float32(name string, v *float32)
	Float64(name string, v *float64)
	String(name string, v *string)
	Bytes(name string, v *[]byte)

	// Model visits a nested model as a single field.
	Model(name string, m Model)

	// List visits a sequence of n elements. Readers ignore n, call
	// resize with the decoded length, then call each for every index.
	// Writers call each for i in [0, n).
	List(name string, n int, resize func(n int), each func(i int))
}

// List visits a slice field. elem visits one element with an empty
// name. Readers store an empty list as a nil slice.
func List[T any](w Walker, name string, items *[]T, elem func(w Walker, item *T)) {
	w.List(name, len(*items),
		func(n int) {
			if n == 0 {
				*items = nil
				return
			}
			*items = make([]T, n)
		},
		func(i int) { elem(w, &(*items)[i]) },
	)
}
