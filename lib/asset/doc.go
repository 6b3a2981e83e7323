// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package asset stores named game assets in a file store.
//
// The asset types ([Palette], [TileSheet], [Scene]) are ordinary Go
// structs with a Walk method, so each can be written in either Claw
// format. A [Library] maps asset names to inodes through a [Catalog]
// kept at the reserved inode [CatalogID], and implements the two data
// paths:
//
//	write: value -> Claw envelope -> filestore.Write (and catalog update)
//	read:  catalog lookup -> filestore.View -> Claw header -> value
//
// Each stored file's type is tagged with the [Kind] registered for its
// Claw type name, which lets tools such as `claw convert` decode a file
// without knowing in advance what it holds.
package asset
