// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/bureau-foundation/claw/lib/arena"
)

const (
	typePalette FileType = 1
	typeScene   FileType = 3
)

func newTestStore(t *testing.T, size int) *Store {
	t.Helper()
	a, err := arena.New(make([]byte, size), size)
	if err != nil {
		t.Fatalf("arena.New(%d): %v", size, err)
	}
	s, err := New(a, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func readAll(t *testing.T, s *Store, id InodeID) []byte {
	t.Helper()
	stat, err := s.Stat(id)
	if err != nil {
		t.Fatalf("Stat(%d): %v", id, err)
	}
	buf := make([]byte, stat.Size)
	n, err := s.Read(id, buf)
	if err != nil {
		t.Fatalf("Read(%d): %v", id, err)
	}
	return buf[:n]
}

func TestWriteReadStat(t *testing.T) {
	s := newTestStore(t, 64*1024)
	content := []byte("palette bytes: 0x1f 0x3e 0x7c")

	if err := s.Write(7, content, typePalette); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := readAll(t, s, 7); !bytes.Equal(got, content) {
		t.Errorf("Read = %q, want %q", got, content)
	}
	stat, err := s.Stat(7)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	want := Stat{ID: 7, Links: 1, Size: len(content), Type: typePalette}
	if stat != want {
		t.Errorf("Stat = %+v, want %+v", stat, want)
	}
	if err := s.Arena().Verify(); err != nil {
		t.Errorf("arena Verify: %v", err)
	}
}

func TestWriteEmptyFile(t *testing.T) {
	s := newTestStore(t, 4096)
	if err := s.Write(3, nil, typeScene); err != nil {
		t.Fatalf("Write(empty): %v", err)
	}
	n, err := s.Read(3, nil)
	if err != nil || n != 0 {
		t.Errorf("Read(empty) = %d, %v; want 0, nil", n, err)
	}
}

func TestRewritePreservesLinksAndType(t *testing.T) {
	s := newTestStore(t, 64*1024)
	if err := s.Write(9, []byte("first version"), typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.IncLinks(9); err != nil {
		t.Fatalf("IncLinks: %v", err)
	}

	cases := []struct {
		name    string
		content []byte
	}{
		{"longer", bytes.Repeat([]byte("grow"), 300)},
		{"shorter", []byte("tiny")},
		{"same length", []byte("same")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.Write(9, tc.content, typePalette); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if got := readAll(t, s, 9); !bytes.Equal(got, tc.content) {
				t.Errorf("Read = %q, want %q", got, tc.content)
			}
			stat, _ := s.Stat(9)
			if stat.Links != 2 {
				t.Errorf("Links = %d, want 2", stat.Links)
			}
			if stat.Type != typeScene {
				t.Errorf("Type = %d, want original %d", stat.Type, typeScene)
			}
			if err := s.Arena().Verify(); err != nil {
				t.Errorf("arena Verify: %v", err)
			}
		})
	}
}

func TestRewriteShrinkReleasesSpace(t *testing.T) {
	s := newTestStore(t, 64*1024)
	if err := s.Write(1, make([]byte, 8192), typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}
	before := s.Available()
	if err := s.Write(1, []byte("small"), typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if s.Available() <= before {
		t.Errorf("Available after shrinking rewrite = %d, want more than %d", s.Available(), before)
	}
}

func TestRewriteOutOfSpaceKeepsOldContent(t *testing.T) {
	s := newTestStore(t, 1024)
	original := []byte("keep me")
	if err := s.Write(2, original, typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}

	err := s.Write(2, make([]byte, 4096), typeScene)
	if !errors.Is(err, arena.ErrOutOfSpace) {
		t.Fatalf("oversized Write error = %v, want arena.ErrOutOfSpace", err)
	}
	if got := readAll(t, s, 2); !bytes.Equal(got, original) {
		t.Errorf("content after failed rewrite = %q, want %q", got, original)
	}
}

func TestReadErrors(t *testing.T) {
	s := newTestStore(t, 4096)
	content := []byte("0123456789")
	if err := s.Write(5, content, typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := s.Read(6, make([]byte, 64)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Read(0, make([]byte, 64)); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Read(0) error = %v, want ErrInvalidID", err)
	}

	buf := bytes.Repeat([]byte{0xEE}, 4)
	n, err := s.Read(5, buf)
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("Read(short buffer) error = %v, want ErrBufferTooSmall", err)
	}
	if n != len(content) {
		t.Errorf("Read(short buffer) n = %d, want needed size %d", n, len(content))
	}
	if !bytes.Equal(buf, []byte{0xEE, 0xEE, 0xEE, 0xEE}) {
		t.Errorf("short buffer modified: %x", buf)
	}
}

func TestReadRange(t *testing.T) {
	s := newTestStore(t, 4096)
	content := []byte("0123456789")
	if err := s.Write(5, content, typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cases := []struct {
		name           string
		offset, length int
		bufSize        int
		want           string
		wantErr        error
	}{
		{"middle", 2, 4, 4, "2345", nil},
		{"clipped at end", 8, 10, 2, "89", nil},
		{"at end", 10, 5, 5, "", nil},
		{"past end", 50, 5, 5, "", nil},
		{"buffer too small", 0, 6, 5, "", ErrBufferTooSmall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, tc.bufSize)
			n, err := s.ReadRange(5, tc.offset, tc.length, buf)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadRange: %v", err)
			}
			if got := string(buf[:n]); got != tc.want {
				t.Errorf("ReadRange = %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := s.ReadRange(5, -1, 2, make([]byte, 2)); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("ReadRange with negative offset error = %v, want ErrInvalidRange", err)
	}
	if _, err := s.ReadRange(5, 0, -2, make([]byte, 2)); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("ReadRange with negative length error = %v, want ErrInvalidRange", err)
	}
	if _, err := s.ReadRange(99, 0, 1, make([]byte, 1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadRange(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestLinkCounting(t *testing.T) {
	s := newTestStore(t, 4096)
	if err := s.Write(4, []byte("shared"), typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}
	availableWithFile := s.Available()

	if err := s.IncLinks(4); err != nil {
		t.Fatalf("IncLinks: %v", err)
	}
	if err := s.DecLinks(4); err != nil {
		t.Fatalf("first DecLinks: %v", err)
	}
	if _, err := s.Stat(4); err != nil {
		t.Fatalf("entry gone after one DecLinks of two links: %v", err)
	}
	if s.Available() != availableWithFile {
		t.Errorf("storage released while a link remained")
	}

	if err := s.DecLinks(4); err != nil {
		t.Fatalf("second DecLinks: %v", err)
	}
	if _, err := s.Read(4, make([]byte, 16)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read after last DecLinks error = %v, want ErrNotFound", err)
	}
	if s.Available() != s.Arena().Capacity() {
		t.Errorf("Available = %d, want full capacity %d", s.Available(), s.Arena().Capacity())
	}

	before := bytes.Clone(s.Arena().Bytes())
	if err := s.DecLinks(4); !errors.Is(err, arena.ErrInvalidHandle) {
		t.Errorf("DecLinks past zero error = %v, want arena.ErrInvalidHandle", err)
	}
	if !bytes.Equal(before, s.Arena().Bytes()) {
		t.Error("DecLinks past zero modified the arena")
	}
	if err := s.IncLinks(4); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncLinks on removed entry error = %v, want ErrNotFound", err)
	}
}

func TestIncLinksOverflow(t *testing.T) {
	s := newTestStore(t, 4096)
	if err := s.Write(4, []byte("shared"), typePalette); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s.entries[4].links = math.MaxUint32

	if err := s.IncLinks(4); !errors.Is(err, ErrLinkOverflow) {
		t.Fatalf("IncLinks at the maximum = %v, want ErrLinkOverflow", err)
	}
	stat, err := s.Stat(4)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Links != math.MaxUint32 {
		t.Errorf("Links after failed IncLinks = %d, want %d", stat.Links, uint32(math.MaxUint32))
	}
}

func TestCreateNeverReusesIDs(t *testing.T) {
	s := newTestStore(t, 8192)

	first, err := s.Create([]byte("a"), typeScene)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first != FirstDynamicID {
		t.Errorf("first id = %d, want %d", first, FirstDynamicID)
	}
	if err := s.DecLinks(first); err != nil {
		t.Fatalf("DecLinks: %v", err)
	}
	second, err := s.Create([]byte("b"), typeScene)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second == first {
		t.Errorf("Create reused id %d", first)
	}

	// An explicit write above the counter moves it.
	if err := s.Write(100, []byte("c"), typeScene); err != nil {
		t.Fatalf("Write: %v", err)
	}
	third, err := s.Create([]byte("d"), typeScene)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if third != 101 {
		t.Errorf("id after explicit write of 100 = %d, want 101", third)
	}
}

func TestFormatClearsStore(t *testing.T) {
	s := newTestStore(t, 8192)
	for id := InodeID(1); id <= 5; id++ {
		if err := s.Write(id, []byte("content"), typeScene); err != nil {
			t.Fatalf("Write(%d): %v", id, err)
		}
	}
	created, err := s.Create(nil, typeScene)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len after Format = %d, want 0", s.Len())
	}
	if s.Available() != s.Arena().Capacity() {
		t.Errorf("Available after Format = %d, want %d", s.Available(), s.Arena().Capacity())
	}
	next, err := s.Create(nil, typeScene)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if next <= created {
		t.Errorf("Create after Format returned %d, not above retired %d", next, created)
	}
}

func TestSpaceNeededMatchesConsumption(t *testing.T) {
	s := newTestStore(t, 64*1024)
	for _, size := range []int{0, 1, 8, 100, 1000} {
		before := s.Available()
		if _, err := s.Create(make([]byte, size), typeScene); err != nil {
			t.Fatalf("Create(%d bytes): %v", size, err)
		}
		if consumed := before - s.Available(); consumed != s.SpaceNeeded(size) {
			t.Errorf("write of %d bytes consumed %d, SpaceNeeded = %d", size, consumed, s.SpaceNeeded(size))
		}
	}
}

func TestListOrdered(t *testing.T) {
	s := newTestStore(t, 8192)
	for _, id := range []InodeID{9, 2, 5} {
		if err := s.Write(id, []byte{byte(id)}, typeScene); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	stats := s.List()
	if len(stats) != 3 || stats[0].ID != 2 || stats[1].ID != 5 || stats[2].ID != 9 {
		t.Errorf("List = %+v, want ids 2, 5, 9", stats)
	}
}

func TestWriteRejectsZeroID(t *testing.T) {
	s := newTestStore(t, 4096)
	if err := s.Write(0, []byte("x"), typeScene); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Write(0) error = %v, want ErrInvalidID", err)
	}
	if err := s.DecLinks(0); !errors.Is(err, ErrInvalidID) {
		t.Errorf("DecLinks(0) error = %v, want ErrInvalidID", err)
	}
}
