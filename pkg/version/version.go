// Package version reports what binary is running. Release builds stamp the
// variables with
//
//	-ldflags "-X github.com/captep/studio/pkg/version.Version=v0.3.0
//	          -X github.com/captep/studio/pkg/version.CommitHash=$(git rev-parse HEAD)
//	          -X github.com/captep/studio/pkg/version.BuildDate=$(date -u +%FT%TZ)"
//
// and `go install` builds fall back to the module build info.
package version

import (
	"runtime/debug"
	"sync"
)

const unknown = "unknown"

var (
	Version    = unknown
	CommitHash = unknown
	BuildDate  = unknown
)

type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

var resolved = sync.OnceValue(func() Info {
	info := Info{Version: Version, CommitHash: CommitHash, BuildDate: BuildDate}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == unknown && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.CommitHash == unknown:
			info.CommitHash = s.Value
		case s.Key == "vcs.time" && info.BuildDate == unknown:
			info.BuildDate = s.Value
		}
	}
	return info
})

// Get returns the stamped build info, completed from the module build info.
func Get() Info { return resolved() }

func GetVersion() string { return Get().Version }
