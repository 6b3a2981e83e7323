// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package romimage

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/claw/lib/arena"
)

// HeaderSize is the size of the image header preceding the arena.
const HeaderSize = 64

// Image header field offsets.
const (
	offsetMagic      = 0
	offsetDigest     = 16
	offsetSealedSize = 48
)

var magic = [8]byte{'C', 'L', 'A', 'W', 'R', 'O', 'M', 0x01}

// sealDomainKey is the BLAKE3 key for image seals: the ASCII domain
// name zero-padded to 32 bytes.
var sealDomainKey = [32]byte{
	'c', 'l', 'a', 'w', '.', 'r', 'o', 'm', 'i', 'm', 'a', 'g', 'e', '.',
	's', 'e', 'a', 'l', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var (
	// ErrBadMagic is returned by Open when the file is not an image.
	ErrBadMagic = errors.New("romimage: not a claw ROM image")

	// ErrNotSealed is returned by Verify for an image that was never
	// sealed.
	ErrNotSealed = errors.New("romimage: image is not sealed")

	// ErrDigestMismatch is returned by Verify when the arena no longer
	// matches its seal.
	ErrDigestMismatch = errors.New("romimage: seal digest mismatch")

	// ErrReadOnly is returned by operations that would change the file
	// of an image opened read-only.
	ErrReadOnly = errors.New("romimage: image is read-only")
)

// Digest is a BLAKE3 seal digest.
type Digest [32]byte

// String returns the digest in lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the all-zero digest of an unsealed image.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Header is the decoded image header.
type Header struct {
	// SealedSize is the arena size covered by the digest. Zero when
	// unsealed.
	SealedSize int

	// Digest is the recorded seal.
	Digest Digest
}

// Options configures Create and Open.
type Options struct {
	// ReadOnly opens the file read-only with a private mapping.
	// Ignored by Create.
	ReadOnly bool

	// Logger receives lifecycle messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Image is an open image file. It is not safe for concurrent use.
type Image struct {
	path     string
	fd       int
	data     []byte
	arena    *arena.Arena
	readOnly bool
	logger   *slog.Logger
}

func loggerFor(options Options) *slog.Logger {
	if options.Logger != nil {
		return options.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Create creates (or truncates) the image file at path and formats an
// empty arena of arenaSize bytes in it.
func Create(path string, arenaSize int, options Options) (*Image, error) {
	arenaSize = alignArena(arenaSize)
	if arenaSize < arena.MinSize {
		return nil, fmt.Errorf("arena size %d below minimum %d: %w", arenaSize, arena.MinSize, arena.ErrOutOfSpace)
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_TRUNC|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating image %s: %w", path, err)
	}
	total := HeaderSize + arenaSize
	if err := unix.Ftruncate(fd, int64(total)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("truncating image %s to %d bytes: %w", path, total, err)
	}
	data, err := unix.Mmap(fd, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memory-mapping image %s: %w", path, err)
	}

	copy(data[offsetMagic:], magic[:])
	a, err := arena.New(data[HeaderSize:], arenaSize)
	if err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, fmt.Errorf("formatting arena: %w", err)
	}

	image := &Image{path: path, fd: fd, data: data, arena: a, logger: loggerFor(options)}
	image.logger.Debug("image created", "path", path, "arena_size", arenaSize)
	return image, nil
}

// Open maps an existing image file and attaches to its arena.
func Open(path string, options Options) (*Image, error) {
	flags, prot, share := unix.O_RDWR, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED
	if options.ReadOnly {
		flags, share = unix.O_RDONLY, unix.MAP_PRIVATE
	}
	fd, err := unix.Open(path, flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating image %s: %w", path, err)
	}
	if stat.Size < HeaderSize+arena.HeaderSize {
		unix.Close(fd)
		return nil, fmt.Errorf("%s is %d bytes, too short for an image: %w", path, stat.Size, ErrBadMagic)
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), prot, share)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memory-mapping image %s: %w", path, err)
	}
	if [8]byte(data[offsetMagic:offsetMagic+8]) != magic {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrBadMagic)
	}
	a, err := arena.Attach(data[HeaderSize:])
	if err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, fmt.Errorf("attaching arena in %s: %w", path, err)
	}

	image := &Image{path: path, fd: fd, data: data, arena: a, readOnly: options.ReadOnly, logger: loggerFor(options)}
	image.logger.Debug("image opened", "path", path, "arena_size", a.Size(), "read_only", options.ReadOnly)
	return image, nil
}

// Path returns the file the image was opened from.
func (img *Image) Path() string {
	return img.path
}

// Arena returns the arena stored in the image. The arena's region is
// the image mapping: writes through it are writes to the image.
func (img *Image) Arena() *arena.Arena {
	return img.arena
}

// FileSize returns the length of the mapped file in bytes.
func (img *Image) FileSize() int {
	return len(img.data)
}

// Header returns the image header.
func (img *Image) Header() Header {
	return Header{
		SealedSize: int(binary.LittleEndian.Uint64(img.data[offsetSealedSize:])),
		Digest:     Digest(img.data[offsetDigest : offsetDigest+32]),
	}
}

// Sealed reports whether the image header carries a seal.
func (img *Image) Sealed() bool {
	return img.Header().SealedSize != 0
}

// Seal hashes the arena and records the digest in the image
// header, replacing any previous seal.
func (img *Image) Seal() (Digest, error) {
	if img.readOnly {
		return Digest{}, ErrReadOnly
	}
	size := img.arena.Size()
	digest, err := img.digest(size)
	if err != nil {
		return Digest{}, err
	}
	copy(img.data[offsetDigest:], digest[:])
	binary.LittleEndian.PutUint64(img.data[offsetSealedSize:], uint64(size))
	img.logger.Info("image sealed", "path", img.path, "arena_size", size, "digest", digest.String())
	return digest, nil
}

// Verify recomputes the seal digest and compares it with the one in
// the image header.
func (img *Image) Verify() error {
	header := img.Header()
	if header.SealedSize == 0 {
		return ErrNotSealed
	}
	if header.SealedSize != img.arena.Size() {
		return fmt.Errorf("sealed at arena size %d, arena is now %d bytes: %w", header.SealedSize, img.arena.Size(), ErrDigestMismatch)
	}
	digest, err := img.digest(header.SealedSize)
	if err != nil {
		return err
	}
	if digest != header.Digest {
		return fmt.Errorf("computed %s, sealed %s: %w", digest, header.Digest, ErrDigestMismatch)
	}
	return nil
}

// digest hashes the sealed size followed by the first size bytes of
// the arena region.
func (img *Image) digest(size int) (digest Digest, err error) {
	// A truncated or failing backing file turns reads of the mapping
	// into SIGBUS; report it instead of crashing.
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault hashing image %s: %v", img.path, r)
		}
	}()

	hasher, err := blake3.NewKeyed(sealDomainKey[:])
	if err != nil {
		panic("romimage: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var sizeField [8]byte
	binary.LittleEndian.PutUint64(sizeField[:], uint64(size))
	hasher.Write(sizeField[:])
	hasher.Write(img.data[HeaderSize : HeaderSize+size])
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// Resize changes the arena size to arenaSize (rounded down to the
// arena alignment) and the file length to match. Shrinking fails with
// arena.ErrOutOfSpace if live data extends past the new size. Handles
// stay valid; slices into the old mapping do not.
func (img *Image) Resize(arenaSize int) error {
	if img.readOnly {
		return ErrReadOnly
	}
	arenaSize = alignArena(arenaSize)
	current := img.arena.Size()
	shrinking := arenaSize < current
	if shrinking {
		if err := img.arena.SetSize(arenaSize); err != nil {
			return fmt.Errorf("shrinking arena to %d bytes: %w", arenaSize, err)
		}
	}

	total := HeaderSize + arenaSize
	if total > len(img.data) {
		if err := unix.Ftruncate(img.fd, int64(total)); err != nil {
			return fmt.Errorf("growing image %s to %d bytes: %w", img.path, total, err)
		}
	}
	// Map the new length before dropping the old mapping so the arena
	// always has a region to live in.
	data, err := unix.Mmap(img.fd, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("remapping image %s at %d bytes: %w", img.path, total, err)
	}
	if err := img.arena.Relocate(data[HeaderSize:]); err != nil {
		unix.Munmap(data)
		return fmt.Errorf("relocating arena: %w", err)
	}
	old := img.data
	img.data = data
	if err := unix.Munmap(old); err != nil {
		return fmt.Errorf("unmapping previous image mapping: %w", err)
	}
	if total < len(old) {
		if err := unix.Ftruncate(img.fd, int64(total)); err != nil {
			return fmt.Errorf("truncating image %s to %d bytes: %w", img.path, total, err)
		}
	}

	if !shrinking && arenaSize > current {
		if err := img.arena.SetSize(arenaSize); err != nil {
			return fmt.Errorf("growing arena to %d bytes: %w", arenaSize, err)
		}
	}
	img.logger.Debug("image resized", "path", img.path, "from", current, "to", arenaSize)
	return nil
}

// Trim shrinks the arena and the file to the end of the last live
// allocation, dropping all free capacity at the tail.
func (img *Image) Trim() error {
	end := arena.HeaderSize
	err := img.arena.Scan(func(info arena.NodeInfo) error {
		if info.InUse {
			end = int(info.Handle) + arena.NodeHeaderSize + info.Size
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning arena: %w", err)
	}
	return img.Resize(end)
}

// Sync flushes the mapping and the file to stable storage.
func (img *Image) Sync() error {
	if img.readOnly {
		return nil
	}
	if err := unix.Msync(img.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("syncing image mapping %s: %w", img.path, err)
	}
	return unix.Fsync(img.fd)
}

// Close unmaps the image and closes the file. Writable images are not
// synced; call Sync first when durability matters.
func (img *Image) Close() error {
	var firstErr error
	if err := unix.Munmap(img.data); err != nil {
		firstErr = fmt.Errorf("unmapping image: %w", err)
	}
	if err := unix.Close(img.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing image fd: %w", err)
	}
	img.data = nil
	img.fd = -1
	return firstErr
}

func alignArena(size int) int {
	return size &^ (arena.Alignment - 1)
}
