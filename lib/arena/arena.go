// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfSpace is returned when a region is too small to format,
	// no free node can satisfy a request, or a resize would cut into
	// live data.
	ErrOutOfSpace = errors.New("arena: out of space")

	// ErrInvalidHandle is returned when a handle is out of bounds,
	// does not point at a well-formed node header, or points at a node
	// that is not allocated (double free, stale handle).
	ErrInvalidHandle = errors.New("arena: invalid handle")

	// ErrCorrupt is returned when the region's own structure is
	// inconsistent: bad magic, broken free-list links, overlapping
	// nodes.
	ErrCorrupt = errors.New("arena: corrupt region")
)

// Handle is a reference to an allocation: the byte offset of its node
// header from the start of the owning arena's region. A Handle is only
// meaningful together with the arena that issued it, and stays valid
// when that arena's region is relocated.
type Handle uint64

// Nil is the null handle. Offset 0 holds the arena header, so no
// allocation can ever live there.
const Nil Handle = 0

// IsNil reports whether h is the null handle.
func (h Handle) IsNil() bool {
	return h == Nil
}

// Arena manages allocations inside one byte region. The Arena value
// itself holds nothing but the region: all bookkeeping is stored in the
// region's header and node headers.
type Arena struct {
	buf []byte
}

// New formats the first size bytes of buf as an empty arena: the arena
// header followed by one free node spanning the rest of the region.
// size is rounded down to Alignment. Returns ErrOutOfSpace if size is
// below MinSize or larger than buf.
func New(buf []byte, size int) (*Arena, error) {
	a := &Arena{buf: buf}
	if err := a.format(size); err != nil {
		return nil, err
	}
	return a, nil
}

// Attach adopts a region previously formatted by New (for example a
// memory-mapped image, or a buffer read back from disk). The header is
// validated; the node structure is not walked (see [Arena.Verify]).
func Attach(buf []byte) (*Arena, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("region of %d bytes cannot hold an arena header: %w", len(buf), ErrCorrupt)
	}
	if [8]byte(buf[headerMagic:headerMagic+8]) != arenaMagic {
		return nil, fmt.Errorf("region does not start with arena magic: %w", ErrCorrupt)
	}
	a := &Arena{buf: buf}
	size := a.bound()
	if size < HeaderSize || size%Alignment != 0 || size > uint64(len(buf)) {
		return nil, fmt.Errorf("arena size %d invalid for a %d-byte region: %w", size, len(buf), ErrCorrupt)
	}
	if head := a.freeHead(); head != 0 {
		if _, err := a.readNode(head); err != nil {
			return nil, fmt.Errorf("free-list head: %w", err)
		}
	}
	return a, nil
}

// Format discards every allocation and re-initializes the region at its
// current logical size. The root handle is reset to Nil.
func (a *Arena) Format() error {
	return a.format(a.Size())
}

func (a *Arena) format(size int) error {
	if size < 0 || size > len(a.buf) {
		return fmt.Errorf("arena size %d exceeds %d-byte buffer: %w", size, len(a.buf), ErrOutOfSpace)
	}
	bound := alignDown(uint64(size))
	if bound < MinSize {
		return fmt.Errorf("arena size %d below minimum %d: %w", size, MinSize, ErrOutOfSpace)
	}
	copy(a.buf[headerMagic:], arenaMagic[:])
	a.putU64(headerSize, bound)
	a.putU64(headerRoot, 0)
	a.setFreeHead(HeaderSize)
	a.writeNode(node{off: HeaderSize, size: bound - HeaderSize - NodeHeaderSize})
	return nil
}

// Size returns the logical size of the region in bytes, including the
// arena header.
func (a *Arena) Size() int {
	return int(a.bound())
}

// Capacity returns the bytes under node management: Size minus the
// arena header. Live node sizes plus Available always sum to Capacity.
func (a *Arena) Capacity() int {
	return a.Size() - HeaderSize
}

// Available returns the bytes held by free nodes, headers included.
// This is what a caller would get back by trimming the region down to
// its live data if every free node sat at the tail.
func (a *Arena) Available() int {
	var total uint64
	off := a.freeHead()
	for steps := a.maxSteps(); off != 0 && steps > 0; steps-- {
		n, err := a.readNode(off)
		if err != nil {
			break
		}
		total += NodeHeaderSize + n.size
		off = n.next
	}
	return int(total)
}

// LargestFree returns the largest payload a single Malloc could
// currently satisfy, or 0 if there is no free node.
func (a *Arena) LargestFree() int {
	var largest uint64
	off := a.freeHead()
	for steps := a.maxSteps(); off != 0 && steps > 0; steps-- {
		n, err := a.readNode(off)
		if err != nil {
			break
		}
		largest = max(largest, n.size)
		off = n.next
	}
	return int(largest)
}

// NodeSize returns the region bytes a Malloc of size consumes when the
// chosen node is split: header plus aligned payload. A node that is
// handed out whole may be larger by less than the split threshold.
func NodeSize(size int) int {
	return NodeHeaderSize + int(payloadFor(size))
}

// Bytes returns the logical region: everything a caller must persist to
// re-adopt the arena later with Attach.
func (a *Arena) Bytes() []byte {
	return a.buf[:a.Size():a.Size()]
}

// Malloc reserves at least size bytes and returns the handle of the
// new allocation. The payload is zeroed. The first free node (lowest
// offset) large enough wins; its tail is split off as a new free node
// when it can hold a node header plus 16 bytes.
func (a *Arena) Malloc(size int) (Handle, error) {
	if size < 0 {
		return Nil, fmt.Errorf("negative allocation size %d: %w", size, ErrOutOfSpace)
	}
	need := payloadFor(size)
	off := a.freeHead()
	for steps := a.maxSteps(); off != 0; steps-- {
		if steps == 0 {
			return Nil, fmt.Errorf("free list does not terminate: %w", ErrCorrupt)
		}
		n, err := a.readNode(off)
		if err != nil {
			return Nil, fmt.Errorf("walking free list: %w", err)
		}
		if n.inUse {
			return Nil, fmt.Errorf("allocated node %d on free list: %w", off, ErrCorrupt)
		}
		if n.size >= need {
			if err := a.take(n, need); err != nil {
				return Nil, err
			}
			return Handle(off), nil
		}
		off = n.next
	}
	return Nil, fmt.Errorf("no free node holds %d bytes (largest %d): %w", need, a.LargestFree(), ErrOutOfSpace)
}

// take removes free node n from the free list as an allocation of need
// payload bytes, splitting off the remainder when it is large enough.
func (a *Arena) take(n node, need uint64) error {
	if remainder := n.size - need; remainder >= splitThreshold {
		rest := node{
			off:  n.off + NodeHeaderSize + need,
			size: remainder - NodeHeaderSize,
			prev: n.prev,
			next: n.next,
		}
		if err := a.replaceInList(n, rest.off); err != nil {
			return err
		}
		a.writeNode(rest)
		n.size = need
	} else if err := a.replaceInList(n, 0); err != nil {
		return err
	}

	n.inUse = true
	n.prev, n.next = 0, 0
	a.writeNode(n)
	clear(a.buf[n.off+NodeHeaderSize : n.end()])
	return nil
}

// replaceInList points n's free-list neighbours at replacement instead
// of n. A zero replacement unlinks n.
func (a *Arena) replaceInList(n node, replacement uint64) error {
	forward, backward := replacement, replacement
	if replacement == 0 {
		forward, backward = n.next, n.prev
	}
	if n.prev == 0 {
		a.setFreeHead(forward)
	} else if err := a.setNext(n.prev, forward); err != nil {
		return err
	}
	if n.next != 0 {
		if err := a.setPrev(n.next, backward); err != nil {
			return err
		}
	}
	return nil
}

// liveNode validates a caller-supplied handle and returns its node. Any
// failure is reported as ErrInvalidHandle.
func (a *Arena) liveNode(h Handle) (node, error) {
	if h == Nil {
		return node{}, fmt.Errorf("nil handle: %w", ErrInvalidHandle)
	}
	n, err := a.readNode(uint64(h))
	if err != nil {
		return node{}, fmt.Errorf("handle %d: %v: %w", h, err, ErrInvalidHandle)
	}
	if !n.inUse {
		return node{}, fmt.Errorf("handle %d is not allocated: %w", h, ErrInvalidHandle)
	}
	return n, nil
}

// Validate reports whether h is a live allocation of this arena.
func (a *Arena) Validate(h Handle) error {
	_, err := a.liveNode(h)
	return err
}

// Data returns the payload of a live allocation. The slice aliases the
// region; its capacity is clipped so appends cannot overrun into the
// next node. The allocator attaches no type to the bytes.
func (a *Arena) Data(h Handle) ([]byte, error) {
	n, err := a.liveNode(h)
	if err != nil {
		return nil, err
	}
	start, end := n.off+NodeHeaderSize, n.end()
	return a.buf[start:end:end], nil
}

// Free releases a live allocation and merges it with any free node
// directly before or after it. An invalid handle returns
// ErrInvalidHandle and changes nothing.
func (a *Arena) Free(h Handle) error {
	n, err := a.liveNode(h)
	if err != nil {
		return err
	}
	prevOff, nextOff, err := a.freeNeighbours(n.off)
	if err != nil {
		return err
	}

	// Read both neighbours before writing anything.
	var prev, next node
	mergePrev, mergeNext := false, false
	if prevOff != 0 {
		if prev, err = a.readNode(prevOff); err != nil {
			return err
		}
		mergePrev = prev.end() == n.off
	}
	if nextOff != 0 {
		if next, err = a.readNode(nextOff); err != nil {
			return err
		}
		mergeNext = n.end() == next.off
	}

	n.inUse = false
	n.prev, n.next = prevOff, nextOff
	if mergeNext {
		n.size += NodeHeaderSize + next.size
		n.next = next.next
		a.clearHeader(next.off)
	}
	if mergePrev {
		prev.size += NodeHeaderSize + n.size
		prev.next = n.next
		a.clearHeader(n.off)
		n = prev
	}
	a.writeNode(n)

	if n.prev == 0 {
		a.setFreeHead(n.off)
	} else if err := a.setNext(n.prev, n.off); err != nil {
		return err
	}
	if n.next != 0 {
		if err := a.setPrev(n.next, n.off); err != nil {
			return err
		}
	}

	if Handle(a.u64(headerRoot)) == h {
		a.putU64(headerRoot, 0)
	}
	return nil
}

// freeNeighbours returns the offsets of the free nodes immediately
// before and after off in list order (0 where there is none).
func (a *Arena) freeNeighbours(off uint64) (prev, next uint64, err error) {
	cursor := a.freeHead()
	for steps := a.maxSteps(); cursor != 0 && cursor < off; steps-- {
		if steps == 0 {
			return 0, 0, fmt.Errorf("free list does not terminate: %w", ErrCorrupt)
		}
		n, err := a.readNode(cursor)
		if err != nil {
			return 0, 0, fmt.Errorf("walking free list: %w", err)
		}
		if n.next != 0 && n.next <= cursor {
			return 0, 0, fmt.Errorf("free list out of order at %d: %w", cursor, ErrCorrupt)
		}
		prev, cursor = cursor, n.next
	}
	if cursor == off {
		return 0, 0, fmt.Errorf("node %d is both allocated and on the free list: %w", off, ErrCorrupt)
	}
	return prev, cursor, nil
}

// Shrink gives the unused tail of a live allocation back to the free
// list, keeping at least size payload bytes. It does nothing when the
// tail is too small to become a node of its own. Shrink never grows an
// allocation: a size beyond the current payload returns ErrOutOfSpace.
func (a *Arena) Shrink(h Handle, size int) error {
	n, err := a.liveNode(h)
	if err != nil {
		return err
	}
	need := payloadFor(size)
	if need > n.size {
		return fmt.Errorf("cannot shrink %d-byte allocation to %d bytes: %w", n.size, need, ErrOutOfSpace)
	}
	remainder := n.size - need
	if remainder < splitThreshold {
		return nil
	}
	n.size = need
	a.writeNode(n)
	tail := node{off: n.end(), size: remainder - NodeHeaderSize, inUse: true}
	a.writeNode(tail)
	return a.Free(Handle(tail.off))
}

// Root returns the handle stored in the arena header's root slot. The
// owner of the region uses it to find its top-level structure after
// Attach. Freeing the root allocation resets the slot to Nil.
func (a *Arena) Root() Handle {
	return Handle(a.u64(headerRoot))
}

// SetRoot stores h in the root slot. h must be Nil or a live
// allocation.
func (a *Arena) SetRoot(h Handle) error {
	if h != Nil {
		if _, err := a.liveNode(h); err != nil {
			return err
		}
	}
	a.putU64(headerRoot, uint64(h))
	return nil
}

// lastNode returns the physically last node of the region, or ok=false
// when the region holds no nodes at all (trimmed to the bare header).
func (a *Arena) lastNode() (last node, ok bool, err error) {
	bound := a.bound()
	off := uint64(HeaderSize)
	for steps := a.maxSteps(); off < bound; steps-- {
		if steps == 0 {
			return node{}, false, fmt.Errorf("node walk does not terminate: %w", ErrCorrupt)
		}
		n, err := a.readNode(off)
		if err != nil {
			return node{}, false, err
		}
		last, ok = n, true
		off = n.end()
	}
	return last, ok, nil
}

// SetSize moves the logical end of the region. newSize is rounded down
// to Alignment.
//
// Shrinking trims free space at the tail. It fails with ErrOutOfSpace,
// leaving the region untouched, if a live allocation extends past the
// new bound or the bound would cut through the tail node's header.
// Trimming to exactly the end of the last live node removes the tail
// free node entirely. Use it before persisting a region to drop unused
// capacity:
//
//	err := a.SetSize(a.Size() - a.Available())
//
// Growing extends the tail free node (or appends a new one) up to the
// length of the backing buffer.
func (a *Arena) SetSize(newSize int) error {
	if newSize < HeaderSize {
		return fmt.Errorf("arena size %d below header size %d: %w", newSize, HeaderSize, ErrOutOfSpace)
	}
	if newSize > len(a.buf) {
		return fmt.Errorf("arena size %d exceeds %d-byte buffer: %w", newSize, len(a.buf), ErrOutOfSpace)
	}
	bound := alignDown(uint64(newSize))
	current := a.bound()
	if bound == current {
		return nil
	}

	last, ok, err := a.lastNode()
	if err != nil {
		return err
	}

	if bound < current {
		if !ok || last.inUse {
			return fmt.Errorf("live allocation ends at %d, cannot shrink to %d: %w", current, bound, ErrOutOfSpace)
		}
		if bound < last.off {
			return fmt.Errorf("live allocation ends at %d, cannot shrink to %d: %w", last.off, bound, ErrOutOfSpace)
		}
		if bound == last.off {
			if err := a.replaceInList(last, 0); err != nil {
				return err
			}
			a.clearHeader(last.off)
		} else {
			if bound-last.off < NodeHeaderSize {
				return fmt.Errorf("size %d splits the header of the tail node at %d: %w", bound, last.off, ErrOutOfSpace)
			}
			last.size = bound - last.off - NodeHeaderSize
			a.writeNode(last)
		}
		a.putU64(headerSize, bound)
		return nil
	}

	growth := bound - current
	if ok && !last.inUse {
		a.putU64(headerSize, bound)
		last.size += growth
		a.writeNode(last)
		return nil
	}
	if growth < NodeHeaderSize {
		return fmt.Errorf("growth of %d bytes cannot hold a node header: %w", growth, ErrOutOfSpace)
	}
	a.putU64(headerSize, bound)
	tail := node{off: current, size: growth - NodeHeaderSize, inUse: true}
	a.writeNode(tail)
	return a.Free(Handle(tail.off))
}

// Relocate copies the logical region into dst and switches the arena to
// it. Every handle issued before the move remains valid. dst may be the
// same memory seen through a different mapping.
func (a *Arena) Relocate(dst []byte) error {
	size := a.Size()
	if len(dst) < size {
		return fmt.Errorf("relocation target of %d bytes smaller than arena size %d: %w", len(dst), size, ErrOutOfSpace)
	}
	copy(dst, a.buf[:size])
	a.buf = dst
	return nil
}
