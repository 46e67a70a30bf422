// Package version reports what build of crytic-compile is running: the
// release number plus whatever VCS metadata the Go toolchain embedded.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Release is the semantic version of this build. Tagged releases override it
// through ldflags; development builds carry a commit suffix instead.
var Release = "0.4.0"

// Build describes one compiled binary.
type Build struct {
	Release   string
	Commit    string
	CommitAt  time.Time
	Modified  bool
	Toolchain string
}

// Current inspects the running binary's embedded build information.
func Current() Build {
	build := Build{Release: Release, Toolchain: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value
		case "vcs.time":
			if at, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				build.CommitAt = at
			}
		case "vcs.modified":
			build.Modified = setting.Value == "true"
		}
	}
	return build
}

// Short renders the single-line form used by --version output: the release
// plus an abbreviated commit when one is known.
func (b Build) Short() string {
	out := b.Release
	if b.Commit != "" {
		out += "+" + abbreviateCommit(b.Commit)
		if b.Modified {
			out += "-dirty"
		}
	}
	return out
}

// String renders the multi-line report printed by the version command.
func (b Build) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "crytic-compile version %s\n", b.Release)
	if b.Commit != "" {
		commit := abbreviateCommit(b.Commit)
		if b.Modified {
			commit += "-dirty"
		}
		fmt.Fprintf(&out, "  commit: %s\n", commit)
	}
	if !b.CommitAt.IsZero() {
		fmt.Fprintf(&out, "  built:  %s\n", b.CommitAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&out, "  go:     %s\n", b.Toolchain)
	return out.String()
}

func abbreviateCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
