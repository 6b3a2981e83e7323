// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"encoding/binary"
	"fmt"
)

// Layout constants. These are format constants: changing any of them
// makes existing images unreadable.
const (
	// HeaderSize is the size of the arena header at offset 0:
	// 8-byte magic + 8-byte logical size + 8-byte free-list head
	// + 8-byte root handle.
	HeaderSize = 32

	// NodeHeaderSize is the size of the header preceding every
	// payload: 8-byte payload size + 4-byte check word + 4-byte flags
	// + 8-byte previous free offset + 8-byte next free offset.
	NodeHeaderSize = 32

	// Alignment is the granularity of node offsets and payload sizes.
	Alignment = 8

	// MinPayload is the smallest payload handed out by Malloc.
	MinPayload = 8

	// MinSize is the smallest region New will format: the arena
	// header plus one node able to hold MinPayload bytes.
	MinSize = HeaderSize + NodeHeaderSize + MinPayload

	// splitThreshold is the smallest remainder worth turning into a
	// separate free node.
	splitThreshold = NodeHeaderSize + 16
)

const formatVersion = 1

var arenaMagic = [8]byte{'C', 'L', 'A', 'W', 'A', 'R', 'N', formatVersion}

// Arena header field offsets.
const (
	headerMagic    = 0
	headerSize     = 8
	headerFreeHead = 16
	headerRoot     = 24
)

// Node header field offsets, relative to the node.
const (
	nodeSize  = 0
	nodeCheck = 8
	nodeFlags = 12
	nodePrev  = 16
	nodeNext  = 24
)

const (
	nodeMagic uint32 = 0x636c6177
	flagInUse uint32 = 1 << 0
)

// node is the decoded form of a node header.
type node struct {
	off   uint64
	size  uint64 // payload bytes
	inUse bool
	prev  uint64 // free list only
	next  uint64 // free list only
}

// end returns the offset one past the node's payload, which is where
// the physically next node starts.
func (n node) end() uint64 {
	return n.off + NodeHeaderSize + n.size
}

func (n node) flags() uint32 {
	if n.inUse {
		return flagInUse
	}
	return 0
}

// checkWord binds a header to its own offset, size and flags. A header
// copied to another offset, or a payload byte pattern that happens to
// sit where a handle points, fails the comparison.
func checkWord(off, size uint64, flags uint32) uint32 {
	return nodeMagic ^ uint32(off) ^ uint32(off>>32) ^ uint32(size) ^ uint32(size>>32) ^ (flags << 24)
}

func alignUp(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

func alignDown(n uint64) uint64 {
	return n &^ (Alignment - 1)
}

// payloadFor returns the payload size Malloc reserves for a request.
func payloadFor(size int) uint64 {
	if size < MinPayload {
		size = MinPayload
	}
	return alignUp(uint64(size))
}

func (a *Arena) u64(off uint64) uint64 {
	return binary.LittleEndian.Uint64(a.buf[off : off+8])
}

func (a *Arena) putU64(off, v uint64) {
	binary.LittleEndian.PutUint64(a.buf[off:off+8], v)
}

func (a *Arena) bound() uint64 {
	return a.u64(headerSize)
}

func (a *Arena) freeHead() uint64 {
	return a.u64(headerFreeHead)
}

func (a *Arena) setFreeHead(off uint64) {
	a.putU64(headerFreeHead, off)
}

// readNode decodes and validates the header at off. Every structural
// problem is reported as ErrCorrupt; callers that received the offset
// from outside translate that into ErrInvalidHandle.
func (a *Arena) readNode(off uint64) (node, error) {
	bound := a.bound()
	if off < HeaderSize || off%Alignment != 0 || off > bound || bound-off < NodeHeaderSize {
		return node{}, fmt.Errorf("node offset %d outside [%d, %d): %w", off, HeaderSize, bound, ErrCorrupt)
	}
	header := a.buf[off : off+NodeHeaderSize]
	n := node{
		off:  off,
		size: binary.LittleEndian.Uint64(header[nodeSize:]),
		prev: binary.LittleEndian.Uint64(header[nodePrev:]),
		next: binary.LittleEndian.Uint64(header[nodeNext:]),
	}
	flags := binary.LittleEndian.Uint32(header[nodeFlags:])
	n.inUse = flags&flagInUse != 0
	if flags&^flagInUse != 0 {
		return node{}, fmt.Errorf("node %d has unknown flags %#x: %w", off, flags, ErrCorrupt)
	}
	if binary.LittleEndian.Uint32(header[nodeCheck:]) != checkWord(off, n.size, flags) {
		return node{}, fmt.Errorf("node %d check word mismatch: %w", off, ErrCorrupt)
	}
	if n.size%Alignment != 0 || n.size > bound-off-NodeHeaderSize {
		return node{}, fmt.Errorf("node %d payload size %d overruns bound %d: %w", off, n.size, bound, ErrCorrupt)
	}
	return n, nil
}

func (a *Arena) writeNode(n node) {
	header := a.buf[n.off : n.off+NodeHeaderSize]
	flags := n.flags()
	binary.LittleEndian.PutUint64(header[nodeSize:], n.size)
	binary.LittleEndian.PutUint32(header[nodeCheck:], checkWord(n.off, n.size, flags))
	binary.LittleEndian.PutUint32(header[nodeFlags:], flags)
	binary.LittleEndian.PutUint64(header[nodePrev:], n.prev)
	binary.LittleEndian.PutUint64(header[nodeNext:], n.next)
}

// clearHeader wipes a header that has been absorbed into a neighbour,
// so a stale handle to it can never validate again.
func (a *Arena) clearHeader(off uint64) {
	clear(a.buf[off : off+NodeHeaderSize])
}

// setNext rewrites the next-free link of the free node at off.
func (a *Arena) setNext(off, next uint64) error {
	n, err := a.readNode(off)
	if err != nil {
		return err
	}
	n.next = next
	a.writeNode(n)
	return nil
}

// setPrev rewrites the previous-free link of the free node at off.
func (a *Arena) setPrev(off, prev uint64) error {
	n, err := a.readNode(off)
	if err != nil {
		return err
	}
	n.prev = prev
	a.writeNode(n)
	return nil
}

// maxSteps bounds any list or node walk so a corrupted link cycle
// terminates with ErrCorrupt instead of spinning.
func (a *Arena) maxSteps() int {
	return int(a.bound()/NodeHeaderSize) + 1
}
