// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package romimage stores an arena in a file and memory-maps it, so a
// file store can be built on a workstation and later read in place by
// a player without any deserialization step.
//
// An image file is a 64-byte image header followed by the arena
// region:
//
//	offset  size  field
//	0       8     magic "CLAWROM\x01"
//	8       8     reserved (zero)
//	16      32    BLAKE3 seal digest (zero until sealed)
//	48      8     sealed arena size, little-endian (zero until sealed)
//	56      8     reserved (zero)
//	64      ...   arena region (see package arena)
//
// The arena header inside the region carries the logical arena size,
// so the file may be longer than the arena; [Image.Resize] keeps the
// two equal and [Image.Trim] shrinks both to the end of the last live
// allocation before an image is shipped.
//
// # Sealing
//
// [Image.Seal] computes a domain-keyed BLAKE3 hash over the sealed
// size and the arena bytes and records it in the image header.
// [Image.Verify] recomputes it, detecting images that were modified
// after sealing or damaged in transit. Any later write through the
// arena invalidates the seal until Seal is called again.
//
// # Mappings
//
// Writable images are mapped MAP_SHARED: every change made through
// [Image.Arena] is a change to the file, made durable by [Image.Sync].
// Images opened with Options.ReadOnly are mapped MAP_PRIVATE, so
// in-memory changes never reach the file. Slices obtained from the
// arena (for example [filestore.Store.View] results) refer to the
// current mapping and must not be used after Resize, Trim or Close.
package romimage
