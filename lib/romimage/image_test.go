// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package romimage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/claw/lib/arena"
)

func createTestImage(t *testing.T, arenaSize int) (*Image, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rom")
	image, err := Create(path, arenaSize, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() {
		if image.data != nil {
			image.Close()
		}
	})
	return image, path
}

func openTestImage(t *testing.T, path string, options Options) *Image {
	t.Helper()
	image, err := Open(path, options)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if image.data != nil {
			image.Close()
		}
	})
	return image
}

// store allocates a copy of data in a and returns its handle.
func store(t *testing.T, a *arena.Arena, data string) arena.Handle {
	t.Helper()
	h, err := a.Malloc(len(data))
	if err != nil {
		t.Fatalf("Malloc(%d): %v", len(data), err)
	}
	payload, err := a.Data(h)
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	copy(payload, data)
	return h
}

func content(t *testing.T, a *arena.Arena, h arena.Handle, n int) string {
	t.Helper()
	payload, err := a.Data(h)
	if err != nil {
		t.Fatalf("Data(%d): %v", h, err)
	}
	return string(payload[:n])
}

func TestCreateLayout(t *testing.T) {
	image, path := createTestImage(t, 4096)
	if got := image.Arena().Size(); got != 4096 {
		t.Errorf("arena Size = %d, want 4096", got)
	}
	if image.FileSize() != HeaderSize+4096 {
		t.Errorf("FileSize = %d, want %d", image.FileSize(), HeaderSize+4096)
	}
	if image.Sealed() {
		t.Error("new image reports sealed")
	}
	if err := image.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(raw) != HeaderSize+4096 {
		t.Fatalf("file length = %d, want %d", len(raw), HeaderSize+4096)
	}
	if !bytes.Equal(raw[:8], []byte("CLAWROM\x01")) {
		t.Errorf("magic = %q", raw[:8])
	}
	if _, err := arena.Attach(raw[HeaderSize:]); err != nil {
		t.Errorf("arena.Attach on file contents: %v", err)
	}
}

func TestCreateTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.rom")
	if _, err := Create(path, arena.MinSize-8, Options{}); !errors.Is(err, arena.ErrOutOfSpace) {
		t.Errorf("Create error = %v, want ErrOutOfSpace", err)
	}
}

func TestContentSurvivesReopen(t *testing.T) {
	image, path := createTestImage(t, 8192)
	h := store(t, image.Arena(), "tile data")
	if err := image.Arena().SetRoot(h); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}
	if err := image.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := image.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestImage(t, path, Options{})
	a := reopened.Arena()
	if a.Root() != h {
		t.Fatalf("Root = %d, want %d", a.Root(), h)
	}
	if got := content(t, a, h, 9); got != "tile data" {
		t.Errorf("content = %q, want %q", got, "tile data")
	}
	if err := a.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestOpenRejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string][]byte{
		"empty":       nil,
		"short":       []byte("CLAWROM\x01"),
		"wrong magic": append([]byte("NOTAROM\x01"), make([]byte, 1024)...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Open(path, Options{}); !errors.Is(err, ErrBadMagic) {
				t.Errorf("Open error = %v, want ErrBadMagic", err)
			}
		})
	}
}

func TestOpenRejectsDamagedArena(t *testing.T) {
	image, path := createTestImage(t, 4096)
	image.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	raw[HeaderSize] ^= 0xff
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Open(path, Options{}); !errors.Is(err, arena.ErrCorrupt) {
		t.Errorf("Open error = %v, want arena.ErrCorrupt", err)
	}
}

func TestSealAndVerify(t *testing.T) {
	image, path := createTestImage(t, 4096)
	store(t, image.Arena(), "palette")

	if err := image.Verify(); !errors.Is(err, ErrNotSealed) {
		t.Fatalf("Verify before Seal = %v, want ErrNotSealed", err)
	}
	digest, err := image.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if digest.IsZero() {
		t.Fatal("Seal returned the zero digest")
	}
	if header := image.Header(); header.Digest != digest || header.SealedSize != 4096 {
		t.Errorf("Header = %+v, want digest %s over 4096 bytes", header, digest)
	}
	if err := image.Verify(); err != nil {
		t.Fatalf("Verify after Seal: %v", err)
	}

	again, err := image.Seal()
	if err != nil {
		t.Fatalf("second Seal: %v", err)
	}
	if again != digest {
		t.Errorf("resealing unchanged arena gave %s, want %s", again, digest)
	}

	// Any arena write breaks the seal.
	store(t, image.Arena(), "more")
	if err := image.Verify(); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("Verify after write = %v, want ErrDigestMismatch", err)
	}
	if _, err := image.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	image.Close()

	reopened := openTestImage(t, path, Options{ReadOnly: true})
	if err := reopened.Verify(); err != nil {
		t.Errorf("Verify after reopen: %v", err)
	}
}

func TestVerifyDetectsFileDamage(t *testing.T) {
	image, path := createTestImage(t, 4096)
	h := store(t, image.Arena(), "scene")
	if _, err := image.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	image.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	raw[HeaderSize+int(h)+arena.NodeHeaderSize] ^= 0x01
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reopened := openTestImage(t, path, Options{ReadOnly: true})
	if err := reopened.Verify(); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("Verify = %v, want ErrDigestMismatch", err)
	}
}

func TestReadOnlyChangesStayPrivate(t *testing.T) {
	image, path := createTestImage(t, 4096)
	image.Close()
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	reader := openTestImage(t, path, Options{ReadOnly: true})
	store(t, reader.Arena(), "scratch")
	if _, err := reader.Seal(); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Seal on read-only image = %v, want ErrReadOnly", err)
	}
	if err := reader.Resize(8192); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Resize on read-only image = %v, want ErrReadOnly", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("read-only image modified the file")
	}
}

func TestResizeKeepsHandles(t *testing.T) {
	image, path := createTestImage(t, 4096)
	h := store(t, image.Arena(), "level one")

	if err := image.Resize(64 * 1024); err != nil {
		t.Fatalf("Resize grow: %v", err)
	}
	a := image.Arena()
	if a.Size() != 64*1024 || image.FileSize() != HeaderSize+64*1024 {
		t.Errorf("after grow arena %d bytes, file %d bytes", a.Size(), image.FileSize())
	}
	if got := content(t, a, h, 9); got != "level one" {
		t.Errorf("content after grow = %q", got)
	}
	big := store(t, a, string(make([]byte, 32*1024)))
	if err := a.Free(big); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if err := image.Resize(8192); err != nil {
		t.Fatalf("Resize shrink: %v", err)
	}
	if got := content(t, image.Arena(), h, 9); got != "level one" {
		t.Errorf("content after shrink = %q", got)
	}
	if err := image.Arena().Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	image.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != HeaderSize+8192 {
		t.Errorf("file size = %d, want %d", info.Size(), HeaderSize+8192)
	}
}

func TestResizeRefusesToCutLiveData(t *testing.T) {
	image, _ := createTestImage(t, 8192)
	first := store(t, image.Arena(), "a")
	last, err := image.Arena().Malloc(7000)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if err := image.Resize(4096); !errors.Is(err, arena.ErrOutOfSpace) {
		t.Fatalf("Resize error = %v, want ErrOutOfSpace", err)
	}
	if image.Arena().Size() != 8192 || image.FileSize() != HeaderSize+8192 {
		t.Errorf("failed Resize changed sizes: arena %d, file %d", image.Arena().Size(), image.FileSize())
	}
	for _, h := range []arena.Handle{first, last} {
		if err := image.Arena().Validate(h); err != nil {
			t.Errorf("handle %d lost: %v", h, err)
		}
	}
}

func TestTrim(t *testing.T) {
	image, _ := createTestImage(t, 64*1024)
	a := image.Arena()
	keep := store(t, a, "keep")
	gap := store(t, a, "gap")
	tail := store(t, a, "tail")
	if err := a.Free(gap); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if err := image.Trim(); err != nil {
		t.Fatalf("Trim: %v", err)
	}
	a = image.Arena()
	wantEnd := int(tail) + arena.NodeHeaderSize + 8
	if a.Size() != wantEnd {
		t.Errorf("arena Size after Trim = %d, want %d", a.Size(), wantEnd)
	}
	if image.FileSize() != HeaderSize+wantEnd {
		t.Errorf("FileSize after Trim = %d, want %d", image.FileSize(), HeaderSize+wantEnd)
	}
	if got := content(t, a, keep, 4); got != "keep" {
		t.Errorf("keep = %q", got)
	}
	if got := content(t, a, tail, 4); got != "tail" {
		t.Errorf("tail = %q", got)
	}
	// The interior free node survives trimming.
	if a.Available() == 0 {
		t.Error("Trim dropped the interior free node")
	}
	if err := a.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestDigestString(t *testing.T) {
	var d Digest
	d[0], d[31] = 0xab, 0x01
	s := d.String()
	if len(s) != 64 || s[:2] != "ab" || s[62:] != "01" {
		t.Errorf("String = %q", s)
	}
}
