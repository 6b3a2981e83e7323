// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package arena implements a relocatable free-list allocator over a
// caller-supplied byte region.
//
// Every piece of allocator state lives inside the region itself: a
// 32-byte arena header at offset 0 (magic, logical size, free-list
// head, one root handle slot) followed by a sequence of nodes, each a
// 32-byte node header and its payload. Nodes tile the region exactly,
// so the sum of all node sizes always equals [Arena.Capacity].
//
// Allocations are addressed by [Handle], a byte offset from the start
// of the region, never by a Go pointer. Because nothing inside the
// region refers to an absolute address, the region can be copied to a
// new buffer ([Arena.Relocate]), memory-mapped from a file, or written
// to disk and re-adopted later ([Attach]) without invalidating a single
// handle. Handle 0 is the arena header and therefore never a valid
// allocation; [Nil] is the null handle.
//
// Free nodes form a doubly linked list ordered by offset. [Arena.Malloc]
// is first-fit over that list and splits a node only when the remainder
// can hold a node header plus a useful payload; smaller remainders stay
// with the allocation so the list never fills with slivers.
// [Arena.Free] coalesces with free neighbours on both sides.
//
// Every handle passed in from outside is validated before it is
// dereferenced: it must be aligned, in bounds, point at a header whose
// check word binds it to that offset and size, and (for Free and Data)
// be marked in use. A foreign, stale or double-freed handle is
// reported as [ErrInvalidHandle] and leaves the region untouched.
//
// An Arena is not safe for concurrent use. Callers serialize access.
package arena
