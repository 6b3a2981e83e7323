// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package filestore is a flat, inode-indexed content store layered on a
// [arena.Arena].
//
// Each file is an inode entry (id, link count, size, file type) whose
// content occupies one arena allocation. There are no directories and
// no names: callers address files by [InodeID] and keep any naming
// scheme of their own in an ordinary file (lib/asset stores its catalog
// at a reserved id).
//
// Lifecycle of an entry:
//
//   - [Store.Write] to an unknown id creates the entry with one link.
//     Rewriting an existing id keeps its link count and file type and
//     replaces the content, reusing the allocation when the new
//     content fits and no flushed table refers to it.
//   - [Store.IncLinks] and [Store.DecLinks] reference-count the entry.
//     Dropping the last link frees the allocation and removes the
//     entry; a further DecLinks reports [arena.ErrInvalidHandle].
//   - [Store.Create] picks a fresh id at or above [FirstDynamicID].
//     Ids it hands out are never handed out again, even after the entry
//     is removed.
//
// The inode table lives in Go memory while the store is open.
// [Store.Flush] encodes it as CBOR (lib/codec) into an allocation
// inside the arena and records that allocation in the arena's root
// slot, so the arena region alone is a complete image. [Open] restores
// a store from such a region after checking every entry against the
// allocator.
//
// Allocations the flushed table refers to are never overwritten or
// freed before the next Flush has replaced that table. Until then the
// region stays a valid image of the last flush, even if the next Flush
// fails for lack of space. [Store.Compact] is the exception: it moves
// content in place to gather the free space at the tail.
//
// A Store is not safe for concurrent use.
package filestore
