// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import "github.com/bureau-foundation/claw/lib/model"

// Color is a 24-bit RGB color.
type Color struct {
	R, G, B uint8
}

func (c *Color) Walk(w model.Walker) {
	w.Type("claw.Color", model.Unversioned)
	w.Uint8("r", &c.R)
	w.Uint8("g", &c.G)
	w.Uint8("b", &c.B)
}

// Palette is an ordered set of colors that tile sheets index into.
type Palette struct {
	Name   string
	Colors []Color
}

func (p *Palette) Walk(w model.Walker) {
	w.Type("claw.Palette", 1)
	w.String("name", &p.Name)
	model.List(w, "colors", &p.Colors, func(w model.Walker, c *Color) { w.Model("", c) })
}

// Animation is a named sequence of tile indices.
type Animation struct {
	Name       string
	Frames     []uint16
	FrameTicks uint16
	Loop       bool
}

func (a *Animation) Walk(w model.Walker) {
	w.Type("claw.Animation", model.Unversioned)
	w.String("name", &a.Name)
	model.List(w, "frames", &a.Frames, func(w model.Walker, f *uint16) { w.Uint16("", f) })
	w.Uint16("frame_ticks", &a.FrameTicks)
	w.Bool("loop", &a.Loop)
}

// TileSheet holds packed tile pixels that index into a palette.
//
// Version 2 added animations.
type TileSheet struct {
	Name         string
	Palette      string
	TileWidth    uint16
	TileHeight   uint16
	BitsPerPixel uint8
	Pixels       []byte
	Animations   []Animation
}

func (s *TileSheet) Walk(w model.Walker) {
	w.Type("claw.TileSheet", 2)
	w.String("name", &s.Name)
	w.String("palette", &s.Palette)
	w.Uint16("tile_width", &s.TileWidth)
	w.Uint16("tile_height", &s.TileHeight)
	w.Uint8("bits_per_pixel", &s.BitsPerPixel)
	w.Bytes("pixels", &s.Pixels)
	model.List(w, "animations", &s.Animations, func(w model.Walker, a *Animation) { w.Model("", a) })
}

// TileCount returns the number of whole tiles in Pixels.
func (s *TileSheet) TileCount() int {
	bits := int(s.TileWidth) * int(s.TileHeight) * int(s.BitsPerPixel)
	if bits == 0 {
		return 0
	}
	return len(s.Pixels) * 8 / bits
}

// Layer is one tile map of a scene.
type Layer struct {
	Name      string
	Tiles     []uint16
	ParallaxX float32
	ParallaxY float32
	Visible   bool
}

func (l *Layer) Walk(w model.Walker) {
	w.Type("claw.Layer", model.Unversioned)
	w.String("name", &l.Name)
	model.List(w, "tiles", &l.Tiles, func(w model.Walker, t *uint16) { w.Uint16("", t) })
	w.Float32("parallax_x", &l.ParallaxX)
	w.Float32("parallax_y", &l.ParallaxY)
	w.Bool("visible", &l.Visible)
}

// Property is a free-form key/value attached to an entity.
type Property struct {
	Key, Value string
}

func (p *Property) Walk(w model.Walker) {
	w.Type("claw.Property", model.Unversioned)
	w.String("key", &p.Key)
	w.String("value", &p.Value)
}

// Entity places an object in a scene.
type Entity struct {
	Kind       string
	X, Y       int32
	Properties []Property
}

func (e *Entity) Walk(w model.Walker) {
	w.Type("claw.Entity", model.Unversioned)
	w.String("kind", &e.Kind)
	w.Int32("x", &e.X)
	w.Int32("y", &e.Y)
	model.List(w, "properties", &e.Properties, func(w model.Walker, p *Property) { w.Model("", p) })
}

// Scene is a playable area: tile layers over one tile sheet plus the
// entities placed in it.
type Scene struct {
	Name      string
	TileSheet string
	Width     uint16
	Height    uint16
	Gravity   float32
	Music     string
	Layers    []Layer
	Entities  []Entity
}

func (s *Scene) Walk(w model.Walker) {
	w.Type("claw.Scene", 1)
	w.String("name", &s.Name)
	w.String("tile_sheet", &s.TileSheet)
	w.Uint16("width", &s.Width)
	w.Uint16("height", &s.Height)
	w.Float32("gravity", &s.Gravity)
	w.String("music", &s.Music)
	model.List(w, "layers", &s.Layers, func(w model.Walker, l *Layer) { w.Model("", l) })
	model.List(w, "entities", &s.Entities, func(w model.Walker, e *Entity) { w.Model("", e) })
}
