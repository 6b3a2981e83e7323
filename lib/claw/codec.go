// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package claw

import (
	"fmt"

	"github.com/bureau-foundation/claw/lib/model"
)

// Append appends the envelope for v in the given format to dst. Pass
// dst[:0] to reuse a buffer.
func Append(dst []byte, v model.Model, format Format) ([]byte, error) {
	info := model.Capture(v)
	out, err := AppendHeader(dst, Header{Format: format, TypeName: info.Name, Version: info.Version})
	if err != nil {
		return dst, err
	}
	switch format {
	case Metal:
		return model.AppendMetal(out, v), nil
	case Organic:
		out, err = model.AppendOrganic(out, v)
		if err != nil {
			return dst, fmt.Errorf("encoding %s: %w", info.Name, err)
		}
		return out, nil
	}
	return dst, fmt.Errorf("%s: %w", format, ErrUnknownFormat)
}

// Marshal returns the envelope for v in the given format.
func Marshal(v model.Model, format Format) ([]byte, error) {
	return Append(nil, v, format)
}

// Unmarshal decodes the envelope in buf into v with type names
// checked. It is shorthand for Decoder{}.Unmarshal.
func Unmarshal(buf []byte, v model.Model) error {
	return Decoder{}.Unmarshal(buf, v)
}

// Decoder decodes envelopes.
type Decoder struct {
	// AllowTypeMismatch skips the type name comparison between the
	// header and the target. The version check still applies.
	AllowTypeMismatch bool
}

// Unmarshal parses the header in buf, checks it against v, and decodes
// the payload into v.
func (d Decoder) Unmarshal(buf []byte, v model.Model) error {
	_, err := d.Decode(buf, v)
	return err
}

// Decode is Unmarshal that also returns the header. After a successful
// parse the header is returned even with an error, so callers can
// report what they were given.
func (d Decoder) Decode(buf []byte, v model.Model) (Header, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return Header{}, err
	}
	if err := d.Check(h, v); err != nil {
		return h, err
	}

	payload := buf[h.PayloadOffset:]
	switch h.Format {
	case Metal:
		err = model.DecodeMetal(payload, v)
	case Organic:
		err = model.DecodeOrganic(payload, v)
	}
	if err != nil {
		return h, fmt.Errorf("decoding %s %s payload: %w", h.TypeName, h.Format.Name(), err)
	}
	return h, nil
}

// Check reports whether a payload described by h may be decoded into v.
func (d Decoder) Check(h Header, v model.Model) error {
	info := model.Capture(v)
	if !d.AllowTypeMismatch && h.TypeName != info.Name {
		return fmt.Errorf("header names %q, target is %q: %w", h.TypeName, info.Name, ErrTypeMismatch)
	}
	if h.Version != info.Version {
		return fmt.Errorf("%s: header version %s, target version %s: %w",
			info.Name, versionString(h.Version), versionString(info.Version), ErrVersionMismatch)
	}
	return nil
}

func versionString(version int) string {
	if version == model.Unversioned {
		return "unversioned"
	}
	return fmt.Sprint(version)
}
