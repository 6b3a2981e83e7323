// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"fmt"

	"github.com/bureau-foundation/claw/lib/arena"
	"github.com/bureau-foundation/claw/lib/codec"
)

const tableVersion = 1

// tableRecord is the persisted form of the inode table.
type tableRecord struct {
	Version int           `cbor:"v"`
	NextID  uint64        `cbor:"n"`
	Entries []entryRecord `cbor:"e"`
}

type entryRecord struct {
	ID     uint64 `cbor:"i"`
	Links  uint32 `cbor:"l"`
	Size   uint64 `cbor:"s"`
	Type   uint16 `cbor:"t,omitempty"`
	Handle uint64 `cbor:"h"`
}

// Flush writes the inode table into the arena and points the arena's
// root slot at it. The new table is allocated before anything the old
// one refers to is released: only once the root slot points at the new
// table are the old table and the content replaced or removed since the
// previous Flush freed. A Flush that fails with arena.ErrOutOfSpace
// therefore leaves the previously flushed table, and everything it
// refers to, intact. Flushing an unchanged store does nothing.
func (s *Store) Flush() error {
	if !s.dirty && !s.arena.Root().IsNil() {
		return nil
	}

	record := tableRecord{Version: tableVersion, NextID: uint64(s.nextID)}
	for _, stat := range s.List() {
		e := s.entries[stat.ID]
		record.Entries = append(record.Entries, entryRecord{
			ID:     uint64(stat.ID),
			Links:  e.links,
			Size:   uint64(e.size),
			Type:   uint16(e.fileType),
			Handle: uint64(e.handle),
		})
	}
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding inode table: %w", err)
	}

	handle, err := s.allocate(data)
	if err != nil {
		return fmt.Errorf("allocating %d-byte inode table: %w", len(data), err)
	}
	old := s.arena.Root()
	if err := s.arena.SetRoot(handle); err != nil {
		return err
	}
	s.dirty = false

	stale := s.pending
	if !old.IsNil() {
		stale = append(stale, old)
	}
	s.pending = nil
	clear(s.persisted)
	for _, e := range s.entries {
		s.persisted[e.handle] = true
	}
	for _, h := range stale {
		if err := s.arena.Free(h); err != nil {
			return fmt.Errorf("releasing allocation %d replaced by the new inode table: %w", h, err)
		}
	}
	s.logger.Info("inode table flushed", "entries", len(record.Entries), "bytes", len(data), "released", len(stale))
	return nil
}

// Open restores a store from an arena whose root slot holds a table
// written by Flush. An arena with an empty root slot opens as an empty
// store without being reformatted. Every entry is checked against the
// allocator; a table that references a dead allocation or claims more
// bytes than its allocation holds is reported as ErrCorrupt.
func Open(a *arena.Arena, options Options) (*Store, error) {
	s := newStore(a, options)
	root := a.Root()
	if root.IsNil() {
		s.dirty = true
		return s, nil
	}

	data, err := a.Data(root)
	if err != nil {
		return nil, fmt.Errorf("reading inode table: %v: %w", err, ErrCorrupt)
	}
	// The allocation is padded to the allocator's granularity.
	var record tableRecord
	if _, err := codec.UnmarshalFirst(data, &record); err != nil {
		return nil, fmt.Errorf("decoding inode table: %v: %w", err, ErrCorrupt)
	}
	if record.Version != tableVersion {
		return nil, fmt.Errorf("inode table version %d, expected %d: %w", record.Version, tableVersion, ErrCorrupt)
	}

	owners := make(map[arena.Handle]InodeID, len(record.Entries))
	for _, r := range record.Entries {
		id, handle := InodeID(r.ID), arena.Handle(r.Handle)
		if id == 0 || r.Links == 0 {
			return nil, fmt.Errorf("inode table entry %d with %d links: %w", id, r.Links, ErrCorrupt)
		}
		if _, dup := s.entries[id]; dup {
			return nil, fmt.Errorf("inode %d listed twice: %w", id, ErrCorrupt)
		}
		if handle == root {
			return nil, fmt.Errorf("inode %d points at the table itself: %w", id, ErrCorrupt)
		}
		if other, shared := owners[handle]; shared {
			return nil, fmt.Errorf("inodes %d and %d share allocation %d: %w", other, id, handle, ErrCorrupt)
		}
		payload, err := a.Data(handle)
		if err != nil {
			return nil, fmt.Errorf("inode %d: %v: %w", id, err, ErrCorrupt)
		}
		if r.Size > uint64(len(payload)) {
			return nil, fmt.Errorf("inode %d claims %d bytes in a %d-byte allocation: %w", id, r.Size, len(payload), ErrCorrupt)
		}
		owners[handle] = id
		s.persisted[handle] = true
		s.entries[id] = &entry{links: r.Links, size: int(r.Size), fileType: FileType(r.Type), handle: handle}
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	if next := InodeID(record.NextID); next > s.nextID {
		s.nextID = next
	}

	s.logger.Info("file store opened", "entries", len(s.entries), "size", a.Size(), "available", a.Available())
	return s, nil
}
