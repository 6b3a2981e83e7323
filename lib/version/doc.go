// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of the claw binary.
//
// The values are injected at build time with -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/claw/lib/version.Commit=$(git rev-parse --short HEAD)" ./cmd/claw
//
// Unset values fall back to the module information the Go toolchain
// records in the binary.
package version
