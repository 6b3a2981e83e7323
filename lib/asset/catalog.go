// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"sort"

	"github.com/bureau-foundation/claw/lib/filestore"
	"github.com/bureau-foundation/claw/lib/model"
)

// CatalogID is the inode holding the catalog.
const CatalogID filestore.InodeID = 1

// Entry maps one asset name to its inode.
type Entry struct {
	Name  string
	Inode filestore.InodeID
	Type  filestore.FileType
}

func (e *Entry) Walk(w model.Walker) {
	w.Type("claw.CatalogEntry", model.Unversioned)
	w.String("name", &e.Name)
	inode := uint64(e.Inode)
	w.Uint64("inode", &inode)
	e.Inode = filestore.InodeID(inode)
	fileType := uint16(e.Type)
	w.Uint16("type", &fileType)
	e.Type = filestore.FileType(fileType)
}

// Catalog is the name index of a library. It is deliberately
// unversioned: readers only ever look entries up by name.
type Catalog struct {
	Entries []Entry
}

func (c *Catalog) Walk(w model.Walker) {
	w.Type("claw.Catalog", model.Unversioned)
	model.List(w, "entries", &c.Entries, func(w model.Walker, e *Entry) { w.Model("", e) })
}

// Lookup returns the entry for name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	i := sort.Search(len(c.Entries), func(i int) bool { return c.Entries[i].Name >= name })
	if i < len(c.Entries) && c.Entries[i].Name == name {
		return c.Entries[i], true
	}
	return Entry{}, false
}

// Set inserts or replaces the entry for e.Name, keeping entries sorted.
func (c *Catalog) Set(e Entry) {
	i := sort.Search(len(c.Entries), func(i int) bool { return c.Entries[i].Name >= e.Name })
	if i < len(c.Entries) && c.Entries[i].Name == e.Name {
		c.Entries[i] = e
		return
	}
	c.Entries = append(c.Entries, Entry{})
	copy(c.Entries[i+1:], c.Entries[i:])
	c.Entries[i] = e
}

// Remove deletes the entry for name and reports whether it existed.
func (c *Catalog) Remove(name string) bool {
	i := sort.Search(len(c.Entries), func(i int) bool { return c.Entries[i].Name >= name })
	if i == len(c.Entries) || c.Entries[i].Name != name {
		return false
	}
	c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
	return true
}

// normalize restores name order after a decode of a hand-edited catalog.
func (c *Catalog) normalize() {
	sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].Name < c.Entries[j].Name })
}
