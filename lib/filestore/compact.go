// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"fmt"

	"github.com/bureau-foundation/claw/lib/arena"
)

// Compact packs every file's content and the inode table at the front
// of the arena, leaving all free space in one node at the tail (see
// [arena.Arena.Compact]). The store is flushed before and after.
//
// Content is moved in place and the table is rewritten last, so unlike
// Write and Flush, Compact is not safe against a crash part way
// through: the region is only a valid image again once Compact returns.
func (s *Store) Compact() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if table := s.arena.Root(); !table.IsNil() {
		if err := s.arena.Free(table); err != nil {
			return fmt.Errorf("releasing inode table: %w", err)
		}
	}
	clear(s.persisted)
	s.dirty = true

	owners := make(map[arena.Handle]*entry, len(s.entries))
	for _, e := range s.entries {
		owners[e.handle] = e
	}
	moved := 0
	err := s.arena.Compact(func(from, to arena.Handle) {
		if e, ok := owners[from]; ok {
			e.handle = to
		}
		moved++
	})
	if err != nil {
		return fmt.Errorf("compacting arena: %w", err)
	}

	// Handles only get smaller, so the new table fits where the old
	// one was freed.
	if err := s.Flush(); err != nil {
		return fmt.Errorf("rewriting inode table after compaction: %w", err)
	}
	s.logger.Info("file store compacted", "moved", moved, "available", s.arena.Available())
	return nil
}
