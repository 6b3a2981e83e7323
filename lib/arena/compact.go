// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import "fmt"

// Compact slides every live allocation towards the start of the region,
// keeping their address order, so that all free space ends up in a
// single node at the tail. Afterwards
//
//	err := a.SetSize(a.Size() - a.Available())
//
// trims the region down to exactly its live data.
//
// Moving an allocation changes its handle. moved, if not nil, is called
// once for every allocation that moved with its old and new handle; a
// root slot pointing at a moved allocation is updated by Compact
// itself. Every other handle the caller holds must be remapped through
// moved. The node structure is walked before anything is written, so an
// error leaves the region untouched.
func (a *Arena) Compact(moved func(from, to Handle)) error {
	var live []node
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
		if n.inUse {
			live = append(live, n)
		}
		off = n.end()
	}

	root := a.Root()
	dest := uint64(HeaderSize)
	for _, n := range live {
		if n.off != dest {
			from := n.off
			copy(a.buf[dest:], a.buf[n.off:n.end()])
			n.off = dest
			a.writeNode(n)
			if Handle(from) == root {
				a.putU64(headerRoot, dest)
			}
			if moved != nil {
				moved(Handle(from), Handle(dest))
			}
		}
		dest = n.end()
	}

	if dest == bound {
		a.setFreeHead(0)
		return nil
	}
	// Wipe the vacated space so no stale header in it can validate.
	clear(a.buf[dest:bound])
	a.writeNode(node{off: dest, size: bound - dest - NodeHeaderSize})
	a.setFreeHead(dest)
	return nil
}
