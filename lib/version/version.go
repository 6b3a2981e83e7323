// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags.
var (
	// Version is the release version.
	Version = "0.1.0-dev"

	// Commit is the short git SHA of the build.
	Commit = ""

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Info returns a one-line version string for --version output.
func Info() string {
	commit, dirty := vcs()
	if dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Full returns Info followed by the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// vcs returns the commit, preferring the -ldflags value over the VCS
// stamp recorded by the toolchain.
func vcs() (commit string, dirty bool) {
	commit = Commit
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if commit == "" {
			commit = "unknown"
		}
		return commit, false
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == "" && len(setting.Value) >= 7 {
				commit = setting.Value[:7]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	return commit, dirty
}
