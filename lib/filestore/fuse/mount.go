// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes a file store as a read-only FUSE filesystem.
//
// The mount is a single flat directory with one regular file per live
// inode, named by the inode id in decimal:
//
//	<mountpoint>/1
//	<mountpoint>/16
//	<mountpoint>/17
//
// Sizes come from [filestore.Store.Stat] and reads copy out of the
// store's arena, so tools like cat, hexdump and cmp work on stored
// content without an export step. Write, create, rename and unlink
// are refused with EROFS.
//
// The store is not safe for concurrent use, and the kernel issues FUSE
// requests from many goroutines. Every store access made by the mount
// holds Options.Mutex; callers that keep using the store while it is
// mounted must hold the same mutex.
package fuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/claw/lib/filestore"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Store is the file store to expose.
	Store *filestore.Store

	// Mutex serializes store access between the mount and any other
	// user of Store. If nil, an internal mutex is created, which is
	// only correct when nothing else touches the store.
	Mutex *sync.Mutex

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Mount mounts the store at the configured mountpoint. The caller must
// call Unmount on the returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if options.Mutex == nil {
		options.Mutex = &sync.Mutex{}
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "claw-filestore",
			Name:       "claw",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("file store mounted", "mountpoint", options.Mountpoint, "inodes", options.Store.Len())
	return server, nil
}

// rootNode is the only directory. Its children are created on lookup.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)
var _ gofuse.NodeGetattrer = (*rootNode)(nil)

func (r *rootNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o555
	return 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	id, ok := parseName(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	stat, errno := r.options.stat(id)
	if errno != 0 {
		return nil, errno
	}

	child := r.NewPersistentInode(ctx, &inodeFileNode{options: r.options, id: id}, gofuse.StableAttr{
		Mode: syscall.S_IFREG,
		Ino:  uint64(id),
	})
	fillAttr(&out.Attr, stat)
	return child, 0
}

func (r *rootNode) Readdir(_ context.Context) (gofuse.DirStream, syscall.Errno) {
	r.options.Mutex.Lock()
	stats := r.options.Store.List()
	r.options.Mutex.Unlock()

	entries := make([]fuse.DirEntry, 0, len(stats))
	for _, stat := range stats {
		entries = append(entries, fuse.DirEntry{
			Name: strconv.FormatUint(uint64(stat.ID), 10),
			Mode: syscall.S_IFREG,
			Ino:  uint64(stat.ID),
		})
	}
	return &sliceDirStream{entries: entries}, 0
}

// parseName accepts only the canonical decimal spelling of an id, so
// "007" and "+7" do not alias inode 7.
func parseName(name string) (filestore.InodeID, bool) {
	value, err := strconv.ParseUint(name, 10, 64)
	if err != nil || value == 0 || strconv.FormatUint(value, 10) != name {
		return 0, false
	}
	return filestore.InodeID(value), true
}

// inodeFileNode is one stored file.
type inodeFileNode struct {
	gofuse.Inode
	options *Options
	id      filestore.InodeID
}

var _ gofuse.InodeEmbedder = (*inodeFileNode)(nil)
var _ gofuse.NodeGetattrer = (*inodeFileNode)(nil)
var _ gofuse.NodeSetattrer = (*inodeFileNode)(nil)
var _ gofuse.NodeOpener = (*inodeFileNode)(nil)
var _ gofuse.NodeReader = (*inodeFileNode)(nil)

func (n *inodeFileNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	stat, errno := n.options.stat(n.id)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, stat)
	return 0
}

// Setattr rejects every change, truncation included.
func (n *inodeFileNode) Setattr(_ context.Context, _ gofuse.FileHandle, _ *fuse.SetAttrIn, _ *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

func (n *inodeFileNode) Open(_ context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	if _, errno := n.options.stat(n.id); errno != 0 {
		return nil, 0, errno
	}
	return nil, 0, 0
}

func (n *inodeFileNode) Read(_ context.Context, _ gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.options.Mutex.Lock()
	defer n.options.Mutex.Unlock()

	count, err := n.options.Store.ReadRange(n.id, int(off), len(dest), dest)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, syscall.ENOENT
		}
		n.options.Logger.Error("read failed", "inode", n.id, "offset", off, "error", err)
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:count]), 0
}

// stat looks id up under the mutex and maps store errors to errnos.
func (o *Options) stat(id filestore.InodeID) (filestore.Stat, syscall.Errno) {
	o.Mutex.Lock()
	stat, err := o.Store.Stat(id)
	o.Mutex.Unlock()
	if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidID) {
		return filestore.Stat{}, syscall.ENOENT
	}
	if err != nil {
		o.Logger.Error("stat failed", "inode", id, "error", err)
		return filestore.Stat{}, syscall.EIO
	}
	return stat, 0
}

func fillAttr(out *fuse.Attr, stat filestore.Stat) {
	out.Ino = uint64(stat.ID)
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(stat.Size)
	out.Nlink = stat.Links
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = 4096
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
