// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/bureau-foundation/claw/lib/arena"
)

var (
	// ErrNotFound is returned when an inode id has no entry.
	ErrNotFound = errors.New("filestore: inode not found")

	// ErrBufferTooSmall is returned by Read and ReadRange when the
	// caller's buffer cannot hold the requested bytes. The returned
	// count is the size that would have been needed.
	ErrBufferTooSmall = errors.New("filestore: buffer too small")

	// ErrInvalidID is returned for inode id 0, which is never a file.
	ErrInvalidID = errors.New("filestore: invalid inode id")

	// ErrCorrupt is returned by Open when the persisted inode table
	// cannot be decoded or disagrees with the allocator.
	ErrCorrupt = errors.New("filestore: corrupt inode table")

	// ErrInvalidRange is returned by ReadRange for a negative offset or
	// length.
	ErrInvalidRange = errors.New("filestore: invalid range")

	// ErrLinkOverflow is returned by IncLinks when the link count
	// cannot grow any further.
	ErrLinkOverflow = errors.New("filestore: link count overflow")
)

// InodeID identifies a file. Zero is never a valid id.
type InodeID uint64

// FirstDynamicID is the lowest id [Store.Create] hands out. Ids below it
// are reserved for well-known files that callers write at fixed ids.
const FirstDynamicID InodeID = 16

// FileType is an opaque tag the caller attaches to a file when it is
// first written. The store only records it.
type FileType uint16

// Stat describes an entry without its content.
type Stat struct {
	ID    InodeID
	Links uint32
	Size  int
	Type  FileType
}

type entry struct {
	links    uint32
	size     int
	fileType FileType
	handle   arena.Handle
}

// Options configures a Store.
type Options struct {
	// Logger receives debug messages for writes and link changes and
	// info messages for format and flush. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Store is an inode table over one arena. See the package
// documentation for the entry lifecycle.
type Store struct {
	arena   *arena.Arena
	entries map[InodeID]*entry
	nextID  InodeID
	dirty   bool
	logger  *slog.Logger

	// persisted holds the allocations the flushed table refers to.
	// They are never modified in place or freed before the next Flush
	// has replaced that table; released ones wait in pending.
	persisted map[arena.Handle]bool
	pending   []arena.Handle
}

func newStore(a *arena.Arena, options Options) *Store {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		arena:     a,
		entries:   make(map[InodeID]*entry),
		nextID:    FirstDynamicID,
		logger:    logger,
		persisted: make(map[arena.Handle]bool),
	}
}

// New formats a and returns an empty store over it. Anything the arena
// held before is discarded.
func New(a *arena.Arena, options Options) (*Store, error) {
	s := newStore(a, options)
	if err := s.Format(); err != nil {
		return nil, err
	}
	return s, nil
}

// Format discards every file: the arena is re-initialized and the
// inode table cleared. Ids already handed out by Create stay retired.
func (s *Store) Format() error {
	if err := s.arena.Format(); err != nil {
		return fmt.Errorf("formatting arena: %w", err)
	}
	clear(s.entries)
	clear(s.persisted)
	s.pending = nil
	s.dirty = true
	s.logger.Info("file store formatted", "size", s.arena.Size())
	return nil
}

// Arena returns the arena the store allocates from.
func (s *Store) Arena() *arena.Arena {
	return s.arena
}

func (s *Store) lookup(id InodeID) (*entry, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("inode %d: %w", id, ErrNotFound)
	}
	return e, nil
}

// Write stores data as the content of id.
//
// For a new id the entry is created with one link and the given file
// type. For an existing id the link count and file type are kept and
// only the content changes: when data fits the current allocation it is
// written in place and any large unused tail is released; otherwise a
// new allocation is made, filled, and the old one freed. Content the
// flushed inode table refers to is never overwritten: it is copied to a
// new allocation and the old one is freed by the next Flush. On
// arena.ErrOutOfSpace the previous content is still intact.
func (s *Store) Write(id InodeID, data []byte, fileType FileType) error {
	if id == 0 {
		return ErrInvalidID
	}

	e, exists := s.entries[id]
	if exists {
		if err := s.rewrite(id, e, data); err != nil {
			return err
		}
	} else {
		handle, err := s.allocate(data)
		if err != nil {
			return fmt.Errorf("writing inode %d: %w", id, err)
		}
		s.entries[id] = &entry{links: 1, size: len(data), fileType: fileType, handle: handle}
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	s.dirty = true
	s.logger.Debug("inode written", "id", id, "size", len(data), "created", !exists)
	return nil
}

// rewrite replaces the content of an existing entry.
func (s *Store) rewrite(id InodeID, e *entry, data []byte) error {
	payload, err := s.arena.Data(e.handle)
	if err != nil {
		return fmt.Errorf("inode %d: %w", id, err)
	}
	if len(data) <= len(payload) && !s.persisted[e.handle] {
		copy(payload, data)
		clear(payload[len(data):])
		if err := s.arena.Shrink(e.handle, len(data)); err != nil {
			return fmt.Errorf("inode %d: %w", id, err)
		}
		e.size = len(data)
		return nil
	}

	handle, err := s.allocate(data)
	if err != nil {
		return fmt.Errorf("rewriting inode %d: %w", id, err)
	}
	if err := s.release(e.handle); err != nil {
		return fmt.Errorf("releasing old content of inode %d: %w", id, err)
	}
	e.handle, e.size = handle, len(data)
	return nil
}

// release frees h, or defers the free to the next Flush when the
// flushed table still refers to it.
func (s *Store) release(h arena.Handle) error {
	if s.persisted[h] {
		s.pending = append(s.pending, h)
		return nil
	}
	return s.arena.Free(h)
}

func (s *Store) allocate(data []byte) (arena.Handle, error) {
	handle, err := s.arena.Malloc(len(data))
	if err != nil {
		return arena.Nil, err
	}
	payload, err := s.arena.Data(handle)
	if err != nil {
		return arena.Nil, err
	}
	copy(payload, data)
	return handle, nil
}

// Create stores data under a fresh id and returns it.
func (s *Store) Create(data []byte, fileType FileType) (InodeID, error) {
	id := s.nextID
	if err := s.Write(id, data, fileType); err != nil {
		return 0, err
	}
	return id, nil
}

// Read copies the content of id into buf and returns its length. If buf
// is shorter than the content, nothing is copied and Read returns the
// content length with ErrBufferTooSmall.
func (s *Store) Read(id InodeID, buf []byte) (int, error) {
	data, err := s.View(id)
	if err != nil {
		return 0, err
	}
	if len(buf) < len(data) {
		return len(data), fmt.Errorf("inode %d holds %d bytes, buffer has %d: %w", id, len(data), len(buf), ErrBufferTooSmall)
	}
	return copy(buf, data), nil
}

// ReadRange copies up to length bytes of id's content starting at
// offset into buf and returns the number copied. The range is clipped
// to the end of the content, so a read at or past the end copies
// nothing. buf must hold the clipped range, otherwise nothing is copied
// and ReadRange returns the clipped length with ErrBufferTooSmall.
func (s *Store) ReadRange(id InodeID, offset, length int, buf []byte) (int, error) {
	if offset < 0 || length < 0 {
		return 0, fmt.Errorf("inode %d: offset=%d length=%d: %w", id, offset, length, ErrInvalidRange)
	}
	data, err := s.View(id)
	if err != nil {
		return 0, err
	}
	if offset >= len(data) {
		return 0, nil
	}
	end := offset + min(length, len(data)-offset)
	if len(buf) < end-offset {
		return end - offset, fmt.Errorf("inode %d range needs %d bytes, buffer has %d: %w", id, end-offset, len(buf), ErrBufferTooSmall)
	}
	return copy(buf, data[offset:end]), nil
}

// View returns the content of id without copying. The slice aliases the
// arena and is only valid until the next mutation of the store; callers
// must not modify it.
func (s *Store) View(id InodeID) ([]byte, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	payload, err := s.arena.Data(e.handle)
	if err != nil {
		return nil, fmt.Errorf("inode %d: %w", id, err)
	}
	return payload[:e.size:e.size], nil
}

// IncLinks adds a reference to id.
func (s *Store) IncLinks(id InodeID) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if e.links == math.MaxUint32 {
		return fmt.Errorf("inode %d has %d links: %w", id, e.links, ErrLinkOverflow)
	}
	e.links++
	s.dirty = true
	s.logger.Debug("inode linked", "id", id, "links", e.links)
	return nil
}

// DecLinks drops a reference to id. When the last reference goes the
// entry is removed and its allocation freed (at the next Flush if the
// flushed table still refers to it). An id with no entry, for
// instance one whose links already reached zero, returns
// arena.ErrInvalidHandle and changes nothing.
func (s *Store) DecLinks(id InodeID) error {
	if id == 0 {
		return ErrInvalidID
	}
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("inode %d has no links to drop: %w", id, arena.ErrInvalidHandle)
	}
	if e.links > 1 {
		e.links--
		s.dirty = true
		s.logger.Debug("inode unlinked", "id", id, "links", e.links)
		return nil
	}
	if err := s.release(e.handle); err != nil {
		return fmt.Errorf("freeing inode %d: %w", id, err)
	}
	delete(s.entries, id)
	s.dirty = true
	s.logger.Debug("inode removed", "id", id)
	return nil
}

// Stat returns the metadata of id.
func (s *Store) Stat(id InodeID) (Stat, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Stat{}, err
	}
	return Stat{ID: id, Links: e.links, Size: e.size, Type: e.fileType}, nil
}

// List returns the metadata of every entry in ascending id order.
func (s *Store) List() []Stat {
	stats := make([]Stat, 0, len(s.entries))
	for id, e := range s.entries {
		stats = append(stats, Stat{ID: id, Links: e.links, Size: e.size, Type: e.fileType})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// SpaceNeeded returns the arena bytes, header included, that a file of
// size bytes occupies. Compare it with Available before a write that
// must not fail.
func (s *Store) SpaceNeeded(size int) int {
	return arena.NodeSize(size)
}

// Size returns the arena's logical size.
func (s *Store) Size() int {
	return s.arena.Size()
}

// Available returns the arena's free bytes. Space held by content
// replaced or removed since the last Flush is not counted until that
// Flush frees it.
func (s *Store) Available() int {
	return s.arena.Available()
}
