// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/claw/lib/arena"
	"github.com/bureau-foundation/claw/lib/claw"
	"github.com/bureau-foundation/claw/lib/filestore"
	"github.com/bureau-foundation/claw/lib/model"
)

var (
	// ErrUnknownAsset is returned when a name is not in the catalog.
	ErrUnknownAsset = errors.New("asset: unknown asset")

	// ErrUnregisteredType is returned when storing a value whose Claw
	// type name has no registered Kind.
	ErrUnregisteredType = errors.New("asset: unregistered type")

	// ErrExists is returned by Link when the new name is taken.
	ErrExists = errors.New("asset: name already exists")
)

// Options configures a Library.
type Options struct {
	// Format is used for every file the library writes, the catalog
	// included. Zero means claw.Metal.
	Format claw.Format

	// AllowTypeMismatch relaxes the type name check on reads. See
	// claw.Decoder.
	AllowTypeMismatch bool

	// Logger receives debug messages for puts and removals. If nil, a
	// no-op logger is used.
	Logger *slog.Logger
}

// Library is a named view of a file store. It owns the catalog inode;
// other inodes are written only through the library's methods.
type Library struct {
	store   *filestore.Store
	format  claw.Format
	decoder claw.Decoder
	catalog Catalog
	buf     []byte
	logger  *slog.Logger
}

// OpenLibrary loads the catalog from store, or starts an empty one if
// the store has none yet.
func OpenLibrary(store *filestore.Store, options Options) (*Library, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	format := options.Format
	if format == 0 {
		format = claw.Metal
	}
	l := &Library{
		store:   store,
		format:  format,
		decoder: claw.Decoder{AllowTypeMismatch: options.AllowTypeMismatch},
		logger:  logger,
	}

	data, err := store.View(CatalogID)
	if errors.Is(err, filestore.ErrNotFound) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if err := l.decoder.Unmarshal(data, &l.catalog); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	l.catalog.normalize()
	return l, nil
}

// Store returns the underlying file store.
func (l *Library) Store() *filestore.Store {
	return l.store
}

// Catalog returns a copy of the catalog entries in name order.
func (l *Library) Catalog() []Entry {
	return append([]Entry(nil), l.catalog.Entries...)
}

// Lookup returns the catalog entry for name.
func (l *Library) Lookup(name string) (Entry, error) {
	entry, ok := l.catalog.Lookup(name)
	if !ok {
		return Entry{}, fmt.Errorf("%q: %w", name, ErrUnknownAsset)
	}
	return entry, nil
}

// Put encodes v and stores it under name, replacing any previous asset
// of that name in place. New names get a fresh inode. A failed Put
// leaves both the catalog and the store as they were.
func (l *Library) Put(name string, v model.Model) (filestore.InodeID, error) {
	info := model.Capture(v)
	kind, ok := KindByTypeName(info.Name)
	if !ok || kind.FileType == TypeCatalog {
		return 0, fmt.Errorf("%q: %w", info.Name, ErrUnregisteredType)
	}

	encoded, err := claw.Append(l.buf[:0], v, l.format)
	if err != nil {
		return 0, fmt.Errorf("encoding %s: %w", name, err)
	}
	l.buf = encoded

	entry, exists := l.catalog.Lookup(name)
	if exists && entry.Type != kind.FileType {
		existing, _ := KindByType(entry.Type)
		return 0, fmt.Errorf("%s already holds a %s, not a %s: %w", name, existing.Name, kind.Name, ErrExists)
	}
	if exists {
		// The catalog entry is unchanged, so only the content is written.
		if err := l.store.Write(entry.Inode, encoded, kind.FileType); err != nil {
			return 0, fmt.Errorf("storing %s: %w", name, err)
		}
		l.logger.Debug("asset replaced", "name", name, "inode", entry.Inode, "type", kind.Name, "bytes", len(encoded))
		return entry.Inode, nil
	}

	if needed := l.store.SpaceNeeded(len(encoded)); needed > l.store.Available() {
		return 0, fmt.Errorf("storing %s needs %d bytes, %d available: %w", name, needed, l.store.Available(), arena.ErrOutOfSpace)
	}
	id, err := l.store.Create(encoded, kind.FileType)
	if err != nil {
		return 0, fmt.Errorf("storing %s: %w", name, err)
	}
	entry = Entry{Name: name, Inode: id, Type: kind.FileType}
	l.catalog.Set(entry)
	if err := l.saveCatalog(); err != nil {
		l.catalog.Remove(name)
		if dropErr := l.store.DecLinks(id); dropErr != nil {
			return 0, errors.Join(err, fmt.Errorf("releasing inode %d of %s: %w", id, name, dropErr))
		}
		return 0, err
	}
	l.logger.Debug("asset stored", "name", name, "inode", id, "type", kind.Name, "bytes", len(encoded))
	return id, nil
}

// Get decodes the asset stored under name into v.
func (l *Library) Get(name string, v model.Model) error {
	entry, err := l.Lookup(name)
	if err != nil {
		return err
	}
	data, err := l.store.View(entry.Inode)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := l.decoder.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

// Link makes alias refer to the same inode as name. The inode's link
// count is raised so that removing either name keeps the other valid.
func (l *Library) Link(name, alias string) error {
	entry, err := l.Lookup(name)
	if err != nil {
		return err
	}
	if _, taken := l.catalog.Lookup(alias); taken {
		return fmt.Errorf("%q: %w", alias, ErrExists)
	}
	if err := l.store.IncLinks(entry.Inode); err != nil {
		return fmt.Errorf("linking %s: %w", name, err)
	}
	entry.Name = alias
	l.catalog.Set(entry)
	if err := l.saveCatalog(); err != nil {
		l.catalog.Remove(alias)
		if dropErr := l.store.DecLinks(entry.Inode); dropErr != nil {
			return errors.Join(err, fmt.Errorf("releasing link to inode %d: %w", entry.Inode, dropErr))
		}
		return err
	}
	return nil
}

// Remove drops name from the catalog and releases its link on the
// inode. The content is freed when no other name refers to it. The
// catalog is rewritten first, so a Remove that fails for lack of space
// keeps name.
func (l *Library) Remove(name string) error {
	entry, err := l.Lookup(name)
	if err != nil {
		return err
	}
	l.catalog.Remove(name)
	if err := l.saveCatalog(); err != nil {
		l.catalog.Set(entry)
		return err
	}
	if err := l.store.DecLinks(entry.Inode); err != nil {
		return fmt.Errorf("unlinking %s: %w", name, err)
	}
	l.logger.Debug("asset removed", "name", name, "inode", entry.Inode)
	return nil
}

func (l *Library) saveCatalog() error {
	encoded, err := claw.Append(l.buf[:0], &l.catalog, l.format)
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	l.buf = encoded
	if err := l.store.Write(CatalogID, encoded, TypeCatalog); err != nil {
		return fmt.Errorf("storing catalog: %w", err)
	}
	return nil
}
