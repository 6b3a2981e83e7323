// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"bytes"
	"testing"
)

func TestCompactPacksFilesAndTable(t *testing.T) {
	s := newTestStore(t, 32*1024)
	contents := map[InodeID][]byte{
		2: bytes.Repeat([]byte{'a'}, 500),
		3: bytes.Repeat([]byte{'b'}, 1200),
		4: bytes.Repeat([]byte{'c'}, 90),
		5: bytes.Repeat([]byte{'d'}, 2000),
	}
	for _, id := range []InodeID{2, 3, 4, 5} {
		if err := s.Write(id, contents[id], typeScene); err != nil {
			t.Fatalf("Write(%d): %v", id, err)
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Leave holes in the middle: a removed file and a grown one.
	if err := s.DecLinks(3); err != nil {
		t.Fatalf("DecLinks: %v", err)
	}
	delete(contents, 3)
	contents[2] = bytes.Repeat([]byte{'e'}, 700)
	if err := s.Write(2, contents[2], typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Arena().SetSize(s.Size() - s.Available()); err == nil {
		t.Fatal("trimming a store with interior holes succeeded")
	}

	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if err := s.Arena().SetSize(s.Size() - s.Available()); err != nil {
		t.Fatalf("trimming after Compact: %v", err)
	}
	if s.Available() != 0 {
		t.Errorf("Available after trim = %d, want 0", s.Available())
	}
	if err := s.Arena().Verify(); err != nil {
		t.Fatalf("arena Verify: %v", err)
	}

	for _, store := range []*Store{s, reopen(t, s)} {
		if store.Len() != len(contents) {
			t.Errorf("Len = %d, want %d", store.Len(), len(contents))
		}
		for id, want := range contents {
			if got := readAll(t, store, id); !bytes.Equal(got, want) {
				t.Errorf("inode %d changed by Compact: got %d bytes, want %d", id, len(got), len(want))
			}
		}
	}
}

func TestCompactEmptyStore(t *testing.T) {
	s := newTestStore(t, 4096)
	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	reopened := reopen(t, s)
	if reopened.Len() != 0 {
		t.Errorf("Len after compacting an empty store = %d, want 0", reopened.Len())
	}
}
