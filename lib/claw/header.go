// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package claw

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/claw/lib/model"
)

var (
	// ErrMalformedHeader is returned when a header delimiter is
	// missing or the version field is not a non-negative integer.
	ErrMalformedHeader = errors.New("claw: malformed header")

	// ErrUnknownFormat is returned for a format tag other than M1 or O1.
	ErrUnknownFormat = errors.New("claw: unknown format")

	// ErrVersionMismatch is returned when the header version does not
	// match the target type's version.
	ErrVersionMismatch = errors.New("claw: version mismatch")

	// ErrTypeMismatch is returned when the header type name does not
	// match the target type's name.
	ErrTypeMismatch = errors.New("claw: type mismatch")

	// ErrInvalidTypeName is returned when encoding a value whose type
	// name is empty or contains the delimiter.
	ErrInvalidTypeName = errors.New("claw: invalid type name")
)

const delimiter = ';'

// Format selects the payload encoding.
type Format uint8

const (
	// Metal is the compact binary payload.
	Metal Format = iota + 1

	// Organic is the YAML payload.
	Organic
)

// String returns the format tag as it appears on the wire.
func (f Format) String() string {
	switch f {
	case Metal:
		return "M1"
	case Organic:
		return "O1"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// Name returns the human name of the format.
func (f Format) Name() string {
	switch f {
	case Metal:
		return "metal"
	case Organic:
		return "organic"
	}
	return f.String()
}

// ParseFormat accepts a wire tag ("M1", "O1") or a format name
// ("metal", "organic", any case).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "m1", "metal":
		return Metal, nil
	case "o1", "organic":
		return Organic, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownFormat)
}

// Header is a parsed envelope header.
type Header struct {
	Format   Format
	TypeName string

	// Version is the declared version or model.Unversioned.
	Version int

	// PayloadOffset is the index of the first payload byte.
	PayloadOffset int
}

// ParseHeader parses the header at the front of buf. Fields are read
// in order, so a buffer with an unknown format tag reports
// ErrUnknownFormat even when later delimiters are missing.
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	offset := 0

	next := func(field string) ([]byte, error) {
		end := bytes.IndexByte(buf[offset:], delimiter)
		if end < 0 {
			return nil, fmt.Errorf("no delimiter after %s field: %w", field, ErrMalformedHeader)
		}
		value := buf[offset : offset+end]
		offset += end + 1
		return value, nil
	}

	tag, err := next("format")
	if err != nil {
		return Header{}, err
	}
	switch string(tag) {
	case "M1":
		h.Format = Metal
	case "O1":
		h.Format = Organic
	default:
		return Header{}, fmt.Errorf("format tag %q: %w", tag, ErrUnknownFormat)
	}

	name, err := next("type name")
	if err != nil {
		return Header{}, err
	}
	h.TypeName = string(name)

	version, err := next("version")
	if err != nil {
		return Header{}, err
	}
	h.Version, err = parseVersion(version)
	if err != nil {
		return Header{}, err
	}

	h.PayloadOffset = offset
	return h, nil
}

func parseVersion(field []byte) (int, error) {
	if len(field) == 0 {
		return model.Unversioned, nil
	}
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("version %q is not a non-negative integer: %w", field, ErrMalformedHeader)
		}
	}
	version, err := strconv.Atoi(string(field))
	if err != nil {
		return 0, fmt.Errorf("version %q: %v: %w", field, err, ErrMalformedHeader)
	}
	return version, nil
}

// AppendHeader appends the wire form of h to dst. PayloadOffset is
// ignored.
func AppendHeader(dst []byte, h Header) ([]byte, error) {
	if h.Format != Metal && h.Format != Organic {
		return dst, fmt.Errorf("%s: %w", h.Format, ErrUnknownFormat)
	}
	if h.TypeName == "" || strings.IndexByte(h.TypeName, delimiter) >= 0 {
		return dst, fmt.Errorf("%q: %w", h.TypeName, ErrInvalidTypeName)
	}
	dst = append(dst, h.Format.String()...)
	dst = append(dst, delimiter)
	dst = append(dst, h.TypeName...)
	dst = append(dst, delimiter)
	if h.Version >= 0 {
		dst = strconv.AppendInt(dst, int64(h.Version), 10)
	}
	return append(dst, delimiter), nil
}
