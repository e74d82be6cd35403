// Package version exposes build metadata for the binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set via ldflags at release time; falls back to VCS build info.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// String returns "version (shortcommit)" for banners and -version flags.
func String() string {
	if Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					Commit = s.Value
				case "vcs.time":
					Date = s.Value
				}
			}
		}
	}

	out := Version
	if Commit != "" {
		short := Commit
		if len(short) > 7 {
			short = short[:7]
		}
		out = fmt.Sprintf("%s (%s)", out, short)
	}
	return out
}
