// Package buildinfo carries version data stamped at link time with
// -ldflags "-X routeplan/internal/buildinfo.Version=...".
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the stamped values, falling back to the VCS data the Go
// toolchain embeds when the binary was built without ldflags.
func Info() map[string]string {
	commit, builtAt := Commit, BuiltAt
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && builtAt == "":
				builtAt = s.Value
			}
		}
	}
	return map[string]string{
		"version": Version,
		"commit":  commit,
		"builtAt": builtAt,
	}
}

func String() string {
	i := Info()
	s := "routeplan " + i["version"]
	if c := i["commit"]; c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		s += fmt.Sprintf(" (%s)", c)
	}
	if b := i["builtAt"]; b != "" {
		s += " built " + b
	}
	return s
}
