// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import "fmt"

// NodeInfo describes one node found by [Arena.Scan].
type NodeInfo struct {
	// Handle is the node's offset. For free nodes it is not a valid
	// argument to Free or Data.
	Handle Handle

	// Size is the payload size in bytes (header excluded).
	Size int

	// InUse reports whether the node is a live allocation.
	InUse bool
}

// Scan calls fn for every node in address order. Scanning stops at the
// first error from fn or from a malformed header.
func (a *Arena) Scan(fn func(NodeInfo) error) error {
	bound := a.bound()
	off := uint64(HeaderSize)
	for steps := a.maxSteps(); off < bound; steps-- {
		if steps == 0 {
			return fmt.Errorf("node walk does not terminate: %w", ErrCorrupt)
		}
		n, err := a.readNode(off)
		if err != nil {
			return err
		}
		if err := fn(NodeInfo{Handle: Handle(n.off), Size: int(n.size), InUse: n.inUse}); err != nil {
			return err
		}
		off = n.end()
	}
	return nil
}

// Verify walks the whole region and checks every structural invariant:
// nodes tile the capacity exactly, every header is self-consistent, no
// two free nodes are adjacent, the free list visits exactly the free
// nodes in ascending order with consistent back links, and the root
// slot is Nil or live. Problems are reported as ErrCorrupt.
func (a *Arena) Verify() error {
	if [8]byte(a.buf[headerMagic:headerMagic+8]) != arenaMagic {
		return fmt.Errorf("arena magic missing: %w", ErrCorrupt)
	}

	var (
		free         []uint64
		tiled        uint64
		previousFree bool
	)
	err := a.Scan(func(info NodeInfo) error {
		if !info.InUse {
			if previousFree {
				return fmt.Errorf("adjacent free nodes at %d: %w", info.Handle, ErrCorrupt)
			}
			free = append(free, uint64(info.Handle))
		}
		previousFree = !info.InUse
		tiled += NodeHeaderSize + uint64(info.Size)
		return nil
	})
	if err != nil {
		return err
	}
	if capacity := uint64(a.Capacity()); tiled != capacity {
		return fmt.Errorf("nodes cover %d bytes, capacity is %d: %w", tiled, capacity, ErrCorrupt)
	}

	var previous uint64
	off := a.freeHead()
	for i := 0; off != 0; i++ {
		if i >= len(free) {
			return fmt.Errorf("free list longer than the %d free nodes: %w", len(free), ErrCorrupt)
		}
		if off != free[i] {
			return fmt.Errorf("free list entry %d is %d, expected %d: %w", i, off, free[i], ErrCorrupt)
		}
		n, err := a.readNode(off)
		if err != nil {
			return err
		}
		if n.prev != previous {
			return fmt.Errorf("free node %d links back to %d, expected %d: %w", off, n.prev, previous, ErrCorrupt)
		}
		previous, off = off, n.next
		if i == len(free)-1 && off != 0 {
			return fmt.Errorf("free list continues past last free node %d: %w", previous, ErrCorrupt)
		}
	}
	if previous == 0 && len(free) > 0 {
		return fmt.Errorf("free list empty but %d free nodes exist: %w", len(free), ErrCorrupt)
	}
	if previous != 0 && previous != free[len(free)-1] {
		return fmt.Errorf("free list stops at %d before reaching %d: %w", previous, free[len(free)-1], ErrCorrupt)
	}

	if root := a.Root(); root != Nil {
		if err := a.Validate(root); err != nil {
			return fmt.Errorf("root slot: %v: %w", err, ErrCorrupt)
		}
	}
	return nil
}
