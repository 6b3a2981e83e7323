// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package claw implements the Claw envelope: a short text header naming
// the payload's format, type and version, followed by the payload
// itself.
//
//	M1;game.TileSheet;2;<binary payload>
//	O1;game.Catalog;;<YAML payload>
//
// The header is exactly three fields, each terminated by ';':
//
//   - the format tag, "M1" for the binary Metal form or "O1" for the
//     Organic YAML form (see lib/model);
//   - the type name, which must not contain ';';
//   - the type version as a non-negative decimal, or empty for an
//     unversioned type.
//
// [Marshal] captures the type name and version from the value's Walk
// method, so a type never repeats them. [Unmarshal] parses the header,
// checks it against the target value, and hands the rest of the buffer
// to the matching reader.
//
// # Compatibility checks
//
// The header version must equal the target's declared version. An
// empty version is accepted only by an unversioned target, and an
// unversioned target accepts only an empty version.
//
// The header type name must equal the target's declared name. A
// [Decoder] with AllowTypeMismatch set skips this check and decodes
// whatever fields match, the way early readers of the format behaved;
// callers that do so should inspect [ParseHeader] themselves.
package claw
