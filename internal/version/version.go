// Package version reports the typelens build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at link time:
//
//	go build -ldflags "-X typelens/internal/version.Version=0.4.0 -X typelens/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.1.0-dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// readBuildInfo is swapped out in tests.
var readBuildInfo = debug.ReadBuildInfo

// commit returns the linked commit, falling back to the VCS stamp the Go
// toolchain embeds.
func commit() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := readBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return Commit
}

// Info returns the version with a short commit suffix when known.
func Info() string {
	if c := commit(); c != "unknown" && len(c) > 7 {
		return Version + " (" + c[:7] + ")"
	}
	return Version
}

// Full returns every build detail, one per line.
func Full() string {
	return fmt.Sprintf("typelens %s\ncommit: %s\nbuilt: %s\ngo: %s %s/%s",
		Version, commit(), BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
