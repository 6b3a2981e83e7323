// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the claw
// command.
//
// Configuration is loaded from a single file specified by either the
// CLAW_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search; without a file, commands run on
// [Default] plus their flags.
//
// A complete file:
//
//	image:
//	  path: ${HOME}/games/forest/assets.rom
//	  arena_size: 4 MiB
//	codec:
//	  format: organic
//	  strict_type_names: true
//	log:
//	  level: debug
//	mount:
//	  mountpoint: /tmp/claw
//	  allow_other: false
//
// Sizes accept plain byte counts or human-readable values ("512 KiB",
// "4MB"). Unknown keys are rejected so that a misspelled setting does
// not silently fall back to its default.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No environment
// variable overrides a config value.
package config
