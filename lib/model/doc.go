// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package model defines how a Go type describes its serialized shape.
//
// A serializable type implements [Model] with a single Walk method that
// visits each of its fields, in declared order, on a [Walker]:
//
//	func (p *Palette) Walk(w model.Walker) {
//	    w.Type("claw.Palette", 1)
//	    w.String("name", &p.Name)
//	    model.List(w, "colors", &p.Colors, func(w model.Walker, c *uint16) {
//	        w.Uint16("", c)
//	    })
//	}
//
// Every Walker method takes a pointer, so the same procedure serves
// both directions: a writer reads through the pointer, a reader stores
// through it. The walkers in this package are:
//
//   - [MetalWriter] and [MetalReader]: the compact binary form. Fields
//     are written in declared order with no names. Scalars are
//     fixed-width little-endian; strings, byte slices and lists carry a
//     uvarint length prefix; nested models are inlined. A reader must
//     see exactly the shape the writer produced, which is why the
//     binary form is tied to the type's version.
//   - [OrganicWriter] and [OrganicReader]: the human-editable form, a
//     YAML mapping with one key per field. Nested models are mappings,
//     lists are sequences, byte slices are !!binary scalars. Readers
//     match fields by name, so reordered keys are fine, unknown keys
//     are ignored and missing keys leave the field untouched.
//   - [Capture]: records the type name, version and top-level field
//     names without reading or writing any value.
//
// # Versions
//
// Type declares the name and version of the value being walked. A type
// that passes [Unversioned] has no versioned shape. Only the outermost
// Type call of a walk counts; nested models describe themselves for
// their own top-level use and are ignored when embedded.
//
// # Errors
//
// Walker methods do not return errors. Each walker remembers the first
// failure, ignores every call after it, and reports it from Err. Walk
// procedures therefore stay straight-line code.
//
// # Lists
//
// [Walker.List] visits a sequence through two callbacks: resize, which
// a reader calls once with the decoded length, and each, called for
// every index. The element procedure visits exactly one value with an
// empty name. [List] wraps this for slices.
package model
