// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for the file store's
// own bookkeeping: the inode table that [filestore.Store.Flush] writes
// into the arena's root allocation.
//
// Asset payloads never go through this package. They are encoded by
// lib/claw in the Metal or Organic formats. CBOR is reserved for
// structures the store owns, where a self-describing format lets a
// newer reader skip fields an older writer never knew about.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same table always flushes to the same bytes, so an image sealed twice
// without intervening writes carries the same digest.
//
//	data, err := codec.Marshal(table)
//	err = codec.Unmarshal(data, &table)
//
// Types serialized here carry `cbor` struct tags with short keys.
package codec
