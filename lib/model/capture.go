// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package model

// Info is the type information [Capture] records.
type Info struct {
	// Name is the name passed to the outermost Type call, or empty if
	// the model never called Type.
	Name string

	// Version is the declared version, or [Unversioned].
	Version int

	// Fields lists the top-level field names in declared order.
	Fields []string
}

// Capture walks m and returns its type information. No field value is
// read or written and nested models and lists are not entered.
func Capture(m Model) Info {
	c := &captureWalker{info: Info{Version: Unversioned}}
	m.Walk(c)
	return c.info
}

type captureWalker struct {
	info  Info
	typed bool
}

func (c *captureWalker) Type(name string, version int) {
	if c.typed {
		return
	}
	c.typed = true
	c.info.Name = name
	if version < 0 {
		version = Unversioned
	}
	c.info.Version = version
}

func (c *captureWalker) field(name string) {
	c.info.Fields = append(c.info.Fields, name)
}

func (c *captureWalker) Bool(name string, _ *bool) { c.field(name) }
func (c *captureWalker) Int(name string, _ *int) { c.field(name) }
func (c *captureWalker) Int8(name string, _ *int8) { c.field(name) }
func (c *captureWalker) Int16(name string, _ *int16) { c.field(name) }
func (c *captureWalker) Int32(name string, _ *int32) { c.field(name) }
func (c *captureWalker) Int64(name string, _ *int64) { c.field(name) }
func (c *captureWalker) Uint8(name string, _ *uint8) { c.field(name) }
func (c *captureWalker) Uint16(name string, _ *uint16) { c.field(name) }
func (c *captureWalker) Uint32(name string, _ *uint32) { c.field(name) }
func (c *captureWalker) Uint64(name string, _ *uint64) { c.field(name) }
func (c *captureWalker) Float32(name string, _ *float32) { c.field(name) }
func (c *captureWalker) Float64(name string, _ *float64) { c.field(name) }
func (c *captureWalker) String(name string, _ *string) { c.field(name) }
func (c *captureWalker) Bytes(name string, _ *[]byte) { c.field(name) }
func (c *captureWalker) Model(name string, _ Model) { c.field(name) }

func (c *captureWalker) List(name string, _ int, _ func(int), _ func(int)) {
	c.field(name)
}
