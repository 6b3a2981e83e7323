// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAML tags the Organic form emits.
const (
	tagBool   = "!!bool"
	tagInt    = "!!int"
	tagFloat  = "!!float"
	tagString = "!!str"
	tagBinary = "!!binary"
)

// OrganicWriter builds the YAML form of the fields it visits.
type OrganicWriter struct {
	root  *yaml.Node
	stack []*yaml.Node
	err   error
}

// NewOrganicWriter returns a writer with an empty top-level mapping.
func NewOrganicWriter() *OrganicWriter {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	return &OrganicWriter{root: root, stack: []*yaml.Node{root}}
}

// AppendOrganic appends the YAML form of m to dst.
func AppendOrganic(dst []byte, m Model) ([]byte, error) {
	w := NewOrganicWriter()
	m.Walk(w)
	return w.AppendTo(dst)
}

// Err returns the first error encountered.
func (w *OrganicWriter) Err() error { return w.err }

// AppendTo renders the document and appends it to dst.
func (w *OrganicWriter) AppendTo(dst []byte) ([]byte, error) {
	if w.err != nil {
		return dst, w.err
	}
	buf := bytes.NewBuffer(dst)
	encoder := yaml.NewEncoder(buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(w.root); err != nil {
		return dst, fmt.Errorf("rendering organic document: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return dst, fmt.Errorf("rendering organic document: %w", err)
	}
	return buf.Bytes(), nil
}

// add attaches value to the innermost mapping under name, or appends it
// to the innermost sequence.
func (w *OrganicWriter) add(name string, value *yaml.Node) {
	parent := w.stack[len(w.stack)-1]
	if parent.Kind == yaml.SequenceNode {
		parent.Content = append(parent.Content, value)
		return
	}
	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: tagString, Value: name}
	parent.Content = append(parent.Content, key, value)
}

func (w *OrganicWriter) scalar(name, tag, value string) {
	if w.err != nil {
		return
	}
	w.add(name, &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value})
}

func (w *OrganicWriter) Type(string, int) {}

func (w *OrganicWriter) Bool(name string, v *bool) {
	w.scalar(name, tagBool, strconv.FormatBool(*v))
}

func (w *OrganicWriter) Int(name string, v *int)     { w.scalar(name, tagInt, strconv.Itoa(*v)) }
func (w *OrganicWriter) Int8(name string, v *int8)   { w.signed(name, int64(*v)) }
func (w *OrganicWriter) Int16(name string, v *int16) { w.signed(name, int64(*v)) }
func (w *OrganicWriter) Int32(name string, v *int32) { w.signed(name, int64(*v)) }
func (w *OrganicWriter) Int64(name string, v *int64) { w.signed(name, *v) }

func (w *OrganicWriter) Uint8(name string, v *uint8)   { w.unsigned(name, uint64(*v)) }
func (w *OrganicWriter) Uint16(name string, v *uint16) { w.unsigned(name, uint64(*v)) }
func (w *OrganicWriter) Uint32(name string, v *uint32) { w.unsigned(name, uint64(*v)) }
func (w *OrganicWriter) Uint64(name string, v *uint64) { w.unsigned(name, *v) }

func (w *OrganicWriter) signed(name string, v int64) {
	w.scalar(name, tagInt, strconv.FormatInt(v, 10))
}

func (w *OrganicWriter) unsigned(name string, v uint64) {
	w.scalar(name, tagInt, strconv.FormatUint(v, 10))
}

func (w *OrganicWriter) Float32(name string, v *float32) {
	w.scalar(name, tagFloat, formatFloat(float64(*v), 32))
}

func (w *OrganicWriter) Float64(name string, v *float64) {
	w.scalar(name, tagFloat, formatFloat(*v, 64))
}

// formatFloat renders f so that strconv.ParseFloat at the same bit size
// returns it exactly. YAML spells the non-finite values .nan and .inf.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	// Keep integral values recognisable as floats to a YAML reader.
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		s += ".0"
	}
	return s
}

func (w *OrganicWriter) String(name string, v *string) {
	w.scalar(name, tagString, *v)
}

func (w *OrganicWriter) Bytes(name string, v *[]byte) {
	w.scalar(name, tagBinary, base64.StdEncoding.EncodeToString(*v))
}

func (w *OrganicWriter) Model(name string, m Model) {
	if w.err != nil {
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	w.add(name, child)
	w.stack = append(w.stack, child)
	m.Walk(w)
	w.stack = w.stack[:len(w.stack)-1]
}

func (w *OrganicWriter) List(name string, n int, _ func(int), each func(int)) {
	if w.err != nil {
		return
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	w.add(name, seq)
	w.stack = append(w.stack, seq)
	for i := range n {
		each(i)
	}
	w.stack = w.stack[:len(w.stack)-1]
}

// OrganicReader populates the fields it visits from a YAML document.
type OrganicReader struct {
	stack []organicFrame
	err   error
}

// organicFrame is the node fields are resolved against: a mapping
// searched by name, or a single list element used whatever the name.
type organicFrame struct {
	mapping *yaml.Node
	element *yaml.Node
}

// NewOrganicReader parses data, which must be a YAML mapping (or empty,
// which reads as an empty mapping).
func NewOrganicReader(data []byte) (*OrganicReader, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing organic document: %v: %w", err, ErrSyntax)
	}
	root := &yaml.Node{Kind: yaml.MappingNode}
	if len(doc.Content) > 0 {
		root = resolve(doc.Content[0])
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("organic document is a %s, expected a mapping: %w", kindName(root.Kind), ErrSyntax)
	}
	return &OrganicReader{stack: []organicFrame{{mapping: root}}}, nil
}

// DecodeOrganic populates m from the YAML document in data.
func DecodeOrganic(data []byte, m Model) error {
	r, err := NewOrganicReader(data)
	if err != nil {
		return err
	}
	m.Walk(r)
	return r.err
}

// Err returns the first error encountered.
func (r *OrganicReader) Err() error { return r.err }

func (r *OrganicReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "empty node"
}

// field returns the node for name in the current frame, or nil when the
// field is absent or explicitly null.
func (r *OrganicReader) field(name string) *yaml.Node {
	if r.err != nil {
		return nil
	}
	frame := r.stack[len(r.stack)-1]
	if frame.element != nil {
		return nullToNil(frame.element)
	}
	content := frame.mapping.Content
	for i := 0; i+1 < len(content); i += 2 {
		if content[i].Value == name {
			return nullToNil(resolve(content[i+1]))
		}
	}
	return nil
}

func nullToNil(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil
	}
	return n
}

// decode stores the scalar for name into v using yaml.v3's own
// conversion, which rejects out-of-range integers and kind mismatches.
func (r *OrganicReader) decode(name string, v any) {
	n := r.field(name)
	if n == nil {
		return
	}
	if n.Kind != yaml.ScalarNode {
		r.fail(fmt.Errorf("field %q is a %s, expected a scalar: %w", name, kindName(n.Kind), ErrSyntax))
		return
	}
	if err := n.Decode(v); err != nil {
		r.fail(fmt.Errorf("field %q at line %d: %v: %w", name, n.Line, err, ErrSyntax))
	}
}

func (r *OrganicReader) Type(string, int) {}

func (r *OrganicReader) Bool(name string, v *bool)       { r.decode(name, v) }
func (r *OrganicReader) Int(name string, v *int)         { r.decode(name, v) }
func (r *OrganicReader) Int8(name string, v *int8)       { r.decode(name, v) }
func (r *OrganicReader) Int16(name string, v *int16)     { r.decode(name, v) }
func (r *OrganicReader) Int32(name string, v *int32)     { r.decode(name, v) }
func (r *OrganicReader) Int64(name string, v *int64)     { r.decode(name, v) }
func (r *OrganicReader) Uint8(name string, v *uint8)     { r.decode(name, v) }
func (r *OrganicReader) Uint16(name string, v *uint16)   { r.decode(name, v) }
func (r *OrganicReader) Uint32(name string, v *uint32)   { r.decode(name, v) }
func (r *OrganicReader) Uint64(name string, v *uint64)   { r.decode(name, v) }
func (r *OrganicReader) Float32(name string, v *float32) { r.decode(name, v) }
func (r *OrganicReader) Float64(name string, v *float64) { r.decode(name, v) }
func (r *OrganicReader) String(name string, v *string)   { r.decode(name, v) }

// Bytes accepts a !!binary scalar (base64) or a plain string, whose
// UTF-8 bytes are taken as is. Empty content reads as nil.
func (r *OrganicReader) Bytes(name string, v *[]byte) {
	n := r.field(name)
	if n == nil {
		return
	}
	if n.Kind != yaml.ScalarNode {
		r.fail(fmt.Errorf("field %q is a %s, expected a scalar: %w", name, kindName(n.Kind), ErrSyntax))
		return
	}
	if n.Tag != tagBinary {
		*v = append([]byte(nil), n.Value...)
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(n.Value)
	if err != nil {
		r.fail(fmt.Errorf("field %q at line %d: %v: %w", name, n.Line, err, ErrSyntax))
		return
	}
	*v = append([]byte(nil), decoded...)
}

func (r *OrganicReader) Model(name string, m Model) {
	n := r.field(name)
	if n == nil {
		return
	}
	if n.Kind != yaml.MappingNode {
		r.fail(fmt.Errorf("field %q is a %s, expected a mapping: %w", name, kindName(n.Kind), ErrSyntax))
		return
	}
	r.stack = append(r.stack, organicFrame{mapping: n})
	m.Walk(r)
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *OrganicReader) List(name string, _ int, resize func(int), each func(int)) {
	n := r.field(name)
	if n == nil {
		return
	}
	if n.Kind != yaml.SequenceNode {
		r.fail(fmt.Errorf("field %q is a %s, expected a sequence: %w", name, kindName(n.Kind), ErrSyntax))
		return
	}
	resize(len(n.Content))
	for i, element := range n.Content {
		if r.err != nil {
			return
		}
		r.stack = append(r.stack, organicFrame{element: resolve(element)})
		each(i)
		r.stack = r.stack[:len(r.stack)-1]
	}
}
