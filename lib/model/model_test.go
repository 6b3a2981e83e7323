// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

// sprite exercises every walker method.
type sprite struct {
	Visible  bool
	Frame    int
	Layer    int8
	OffsetX  int16
	OffsetY  int32
	Tick     int64
	Palette  uint8
	Tile     uint16
	Flags    uint32
	Checksum uint64
	Scale    float32
	Rotation float64
	Name     string
	Pixels   []byte
	Origin   point
	Path     []point
	Tags     []string
}

type point struct {
	X, Y int16
}

func (p *point) Walk(w Walker) {
	w.Type("test.Point", Unversioned)
	w.Int16("x", &p.X)
	w.Int16("y", &p.Y)
}

func (s *sprite) Walk(w Walker) {
	w.Type("test.Sprite", 4)
	w.Bool("visible", &s.Visible)
	w.Int("frame", &s.Frame)
	w.Int8("layer", &s.Layer)
	w.Int16("offset_x", &s.OffsetX)
	w.Int32("offset_y", &s.OffsetY)
	w.Int64("tick", &s.Tick)
	w.Uint8("palette", &s.Palette)
	w.Uint16("tile", &s.Tile)
	w.Uint32("flags", &s.Flags)
	w.Uint64("checksum", &s.Checksum)
	w.Float32("scale", &s.Scale)
	w.Float64("rotation", &s.Rotation)
	w.String("name", &s.Name)
	w.Bytes("pixels", &s.Pixels)
	w.Model("origin", &s.Origin)
	List(w, "path", &s.Path, func(w Walker, p *point) { w.Model("", p) })
	List(w, "tags", &s.Tags, func(w Walker, tag *string) { w.String("", tag) })
}

func sampleSprite() sprite {
	return sprite{
		Visible:  true,
		Frame:    -1234567,
		Layer:    -7,
		OffsetX:  -300,
		OffsetY:  70000,
		Tick:     math.MinInt64,
		Palette:  255,
		Tile:     0xBEEF,
		Flags:    0xDEADBEEF,
		Checksum: math.MaxUint64,
		Scale:    1.5,
		Rotation: -0.1,
		Name:     "hero: true # not a comment",
		Pixels:   []byte{0, 1, 2, 0xfe, 0xff},
		Origin:   point{X: 3, Y: -4},
		Path:     []point{{1, 2}, {3, 4}, {-5, 6}},
		Tags:     []string{"yes", "", "123"},
	}
}

func assertSpriteEqual(t *testing.T, got, want sprite) {
	t.Helper()
	if !bytes.Equal(got.Pixels, want.Pixels) {
		t.Errorf("Pixels = %x, want %x", got.Pixels, want.Pixels)
	}
	got.Pixels, want.Pixels = nil, nil
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded = %+v\nwant      %+v", got, want)
	}
}

func TestMetalRoundTrip(t *testing.T) {
	original := sampleSprite()
	encoded := AppendMetal(nil, &original)

	var decoded sprite
	if err := DecodeMetal(encoded, &decoded); err != nil {
		t.Fatalf("DecodeMetal: %v", err)
	}
	assertSpriteEqual(t, decoded, original)
}

func TestMetalZeroValueRoundTrip(t *testing.T) {
	var original sprite
	encoded := AppendMetal(nil, &original)

	decoded := sampleSprite()
	if err := DecodeMetal(encoded, &decoded); err != nil {
		t.Fatalf("DecodeMetal: %v", err)
	}
	if decoded.Name != "" || decoded.Frame != 0 || len(decoded.Path) != 0 || len(decoded.Pixels) != 0 {
		t.Errorf("zero value not restored: %+v", decoded)
	}
}

func TestMetalAppendReusesBuffer(t *testing.T) {
	original := sampleSprite()
	buf := make([]byte, 0, 1024)
	encoded := AppendMetal(buf, &original)
	if &encoded[0] != &buf[:1][0] {
		t.Error("AppendMetal reallocated a buffer with enough capacity")
	}
}

func TestMetalLayout(t *testing.T) {
	p := point{X: 0x0102, Y: -1}
	got := AppendMetal(nil, &p)
	want := []byte{0x02, 0x01, 0xff, 0xff}
	if !bytes.Equal(got, want) {
		t.Errorf("encoded point = %x, want %x", got, want)
	}
}

func TestMetalTruncated(t *testing.T) {
	original := sampleSprite()
	encoded := AppendMetal(nil, &original)

	for cut := 0; cut < len(encoded); cut++ {
		var decoded sprite
		err := DecodeMetal(encoded[:cut], &decoded)
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("DecodeMetal of %d/%d bytes error = %v, want ErrTruncated", cut, len(encoded), err)
		}
	}
}

func TestMetalTrailingData(t *testing.T) {
	p := point{X: 1, Y: 2}
	encoded := append(AppendMetal(nil, &p), 0)
	var decoded point
	if err := DecodeMetal(encoded, &decoded); !errors.Is(err, ErrSyntax) {
		t.Errorf("DecodeMetal with trailing byte error = %v, want ErrSyntax", err)
	}
}

type flag struct{ On bool }

func (f *flag) Walk(w Walker) { w.Bool("on", &f.On) }

func TestMetalRejectsBadBool(t *testing.T) {
	var f flag
	if err := DecodeMetal([]byte{2}, &f); !errors.Is(err, ErrSyntax) {
		t.Errorf("DecodeMetal(bool 2) error = %v, want ErrSyntax", err)
	}
}

func TestMetalRejectsOversizedLength(t *testing.T) {
	var decoded sprite
	// A string length far beyond the input.
	encoded := AppendMetal(nil, &sprite{})
	nameOffset := 1 + 8 + 1 + 2 + 4 + 8 + 1 + 2 + 4 + 8 + 4 + 8
	corrupted := bytes.Clone(encoded)
	corrupted[nameOffset] = 0x7f
	if err := DecodeMetal(corrupted, &decoded); !errors.Is(err, ErrTruncated) {
		t.Errorf("DecodeMetal with oversized length error = %v, want ErrTruncated", err)
	}
}

func TestOrganicRoundTrip(t *testing.T) {
	original := sampleSprite()
	encoded, err := AppendOrganic(nil, &original)
	if err != nil {
		t.Fatalf("AppendOrganic: %v", err)
	}

	var decoded sprite
	if err := DecodeOrganic(encoded, &decoded); err != nil {
		t.Fatalf("DecodeOrganic: %v\n%s", err, encoded)
	}
	assertSpriteEqual(t, decoded, original)
}

func TestOrganicFloats(t *testing.T) {
	for _, value := range []float64{math.Inf(1), math.Inf(-1), 1e300, 3} {
		original := sampleSprite()
		original.Rotation = value
		encoded, err := AppendOrganic(nil, &original)
		if err != nil {
			t.Fatalf("AppendOrganic: %v", err)
		}
		var decoded sprite
		if err := DecodeOrganic(encoded, &decoded); err != nil {
			t.Fatalf("DecodeOrganic(%v): %v", value, err)
		}
		if decoded.Rotation != value {
			t.Errorf("Rotation = %v, want %v", decoded.Rotation, value)
		}
	}

	original := sampleSprite()
	original.Rotation = math.NaN()
	encoded, _ := AppendOrganic(nil, &original)
	var decoded sprite
	if err := DecodeOrganic(encoded, &decoded); err != nil {
		t.Fatalf("DecodeOrganic(NaN): %v", err)
	}
	if !math.IsNaN(decoded.Rotation) {
		t.Errorf("Rotation = %v, want NaN", decoded.Rotation)
	}
}

func TestOrganicWritesNamedFields(t *testing.T) {
	p := point{X: 7, Y: -2}
	encoded, err := AppendOrganic(nil, &p)
	if err != nil {
		t.Fatalf("AppendOrganic: %v", err)
	}
	if got, want := string(encoded), "x: 7\ny: -2\n"; got != want {
		t.Errorf("encoded = %q, want %q", got, want)
	}
}

func TestOrganicToleratesReorderedUnknownAndMissingFields(t *testing.T) {
	document := `
name: Slime
unknown_field: [1, 2, 3]
origin:
  y: 9
  x: 8
  z: 100
frame: 12
path:
  - {y: 2, x: 1}
  - x: 5
`
	decoded := sprite{Tile: 77}
	if err := DecodeOrganic([]byte(document), &decoded); err != nil {
		t.Fatalf("DecodeOrganic: %v", err)
	}
	if decoded.Name != "Slime" || decoded.Frame != 12 {
		t.Errorf("Name, Frame = %q, %d; want Slime, 12", decoded.Name, decoded.Frame)
	}
	if decoded.Origin != (point{X: 8, Y: 9}) {
		t.Errorf("Origin = %+v, want {8 9}", decoded.Origin)
	}
	if len(decoded.Path) != 2 || decoded.Path[0] != (point{1, 2}) || decoded.Path[1] != (point{5, 0}) {
		t.Errorf("Path = %+v", decoded.Path)
	}
	if decoded.Tile != 77 {
		t.Errorf("missing field Tile was overwritten: %d", decoded.Tile)
	}
}

func TestOrganicErrors(t *testing.T) {
	cases := []struct {
		name     string
		document string
	}{
		{"not a mapping", "- 1\n- 2\n"},
		{"invalid yaml", "name: [unclosed\n"},
		{"integer overflow", "layer: 300\n"},
		{"negative unsigned", "palette: -1\n"},
		{"wrong kind for scalar", "frame: {a: 1}\n"},
		{"wrong kind for model", "origin: 5\n"},
		{"wrong kind for list", "path: {x: 1}\n"},
		{"bad binary", "pixels: !!binary '***'\n"},
		{"bad bool", "visible: maybe\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded sprite
			if err := DecodeOrganic([]byte(tc.document), &decoded); !errors.Is(err, ErrSyntax) {
				t.Errorf("DecodeOrganic error = %v, want ErrSyntax", err)
			}
		})
	}
}

func TestOrganicEmptyDocument(t *testing.T) {
	decoded := point{X: 1, Y: 2}
	if err := DecodeOrganic(nil, &decoded); err != nil {
		t.Fatalf("DecodeOrganic(empty): %v", err)
	}
	if decoded != (point{1, 2}) {
		t.Errorf("empty document changed fields: %+v", decoded)
	}
}

func TestOrganicPlainStringBytes(t *testing.T) {
	var decoded sprite
	if err := DecodeOrganic([]byte("pixels: raw text\n"), &decoded); err != nil {
		t.Fatalf("DecodeOrganic: %v", err)
	}
	if string(decoded.Pixels) != "raw text" {
		t.Errorf("Pixels = %q, want raw text", decoded.Pixels)
	}
}

func TestOrganicStringsStayStrings(t *testing.T) {
	original := sampleSprite()
	original.Name = "true"
	original.Tags = []string{"null", "0x10", "~", "- item"}
	encoded, err := AppendOrganic(nil, &original)
	if err != nil {
		t.Fatalf("AppendOrganic: %v", err)
	}
	var decoded sprite
	if err := DecodeOrganic(encoded, &decoded); err != nil {
		t.Fatalf("DecodeOrganic: %v\n%s", err, encoded)
	}
	if decoded.Name != "true" || !reflect.DeepEqual(decoded.Tags, original.Tags) {
		t.Errorf("strings changed: name %q tags %q\n%s", decoded.Name, decoded.Tags, encoded)
	}
	if !strings.Contains(string(encoded), `name: "true"`) {
		t.Errorf("string that looks like a bool not quoted:\n%s", encoded)
	}
}

func TestCapture(t *testing.T) {
	s := sampleSprite()
	before := s
	info := Capture(&s)

	if info.Name != "test.Sprite" || info.Version != 4 {
		t.Errorf("Capture = %q v%d, want test.Sprite v4", info.Name, info.Version)
	}
	want := []string{
		"visible", "frame", "layer", "offset_x", "offset_y", "tick",
		"palette", "tile", "flags", "checksum", "scale", "rotation",
		"name", "pixels", "origin", "path", "tags",
	}
	if !reflect.DeepEqual(info.Fields, want) {
		t.Errorf("Fields = %v, want %v", info.Fields, want)
	}
	if !reflect.DeepEqual(s, before) {
		t.Error("Capture modified the value")
	}

	if info := Capture(&point{}); info.Version != Unversioned || len(info.Fields) != 2 {
		t.Errorf("Capture(point) = %+v, want unversioned with 2 fields", info)
	}
}

type untyped struct{ N int }

func (u *untyped) Walk(w Walker) { w.Int("n", &u.N) }

func TestCaptureWithoutType(t *testing.T) {
	info := Capture(&untyped{})
	if info.Name != "" || info.Version != Unversioned {
		t.Errorf("Capture = %+v, want empty name, unversioned", info)
	}
}
