// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"github.com/bureau-foundation/claw/lib/filestore"
	"github.com/bureau-foundation/claw/lib/model"
)

// File types recorded in the store for each asset kind.
const (
	TypeCatalog   filestore.FileType = 1
	TypePalette   filestore.FileType = 2
	TypeTileSheet filestore.FileType = 3
	TypeScene     filestore.FileType = 4
)

// Kind describes one storable asset type.
type Kind struct {
	// Name is the short name used on the command line.
	Name string

	// TypeName is the Claw type name the model declares.
	TypeName string

	// FileType tags files holding this kind.
	FileType filestore.FileType

	// New returns a zero value ready to decode into.
	New func() model.Model
}

var kinds = []Kind{
	{Name: "catalog", TypeName: "claw.Catalog", FileType: TypeCatalog, New: func() model.Model { return new(Catalog) }},
	{Name: "palette", TypeName: "claw.Palette", FileType: TypePalette, New: func() model.Model { return new(Palette) }},
	{Name: "tilesheet", TypeName: "claw.TileSheet", FileType: TypeTileSheet, New: func() model.Model { return new(TileSheet) }},
	{Name: "scene", TypeName: "claw.Scene", FileType: TypeScene, New: func() model.Model { return new(Scene) }},
}

// Kinds returns every registered kind.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// KindByType returns the kind stored under a file type.
func KindByType(fileType filestore.FileType) (Kind, bool) {
	for _, k := range kinds {
		if k.FileType == fileType {
			return k, true
		}
	}
	return Kind{}, false
}

// KindByTypeName returns the kind whose models declare typeName.
func KindByTypeName(typeName string) (Kind, bool) {
	for _, k := range kinds {
		if k.TypeName == typeName {
			return k, true
		}
	}
	return Kind{}, false
}

// KindByName returns the kind with the given short name.
func KindByName(name string) (Kind, bool) {
	for _, k := range kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}
