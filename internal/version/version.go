// Package version reports the build version of rendercast and the
// User-Agent it sends to devices.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Product is the name used in the User-Agent and SERVER headers.
const Product = "rendercast"

// Version and Commit can be set with
//
//	-ldflags "-X github.com/muurk/rendercast/internal/version.Version=v0.3.0"
//
// and are otherwise read from the binary's build info.
var (
	Version = ""
	Commit  = ""
)

func init() {
	info, _ := debug.ReadBuildInfo()
	Version, Commit = resolve(Version, Commit, info)
}

// resolve fills unset values from build info: the module version, else
// "dev", and the short VCS revision marked -dirty for modified trees.
func resolve(version, commit string, info *debug.BuildInfo) (string, string) {
	if info != nil {
		if version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		if commit == "" {
			commit = revision(info.Settings)
		}
	}
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	return version, commit
}

func revision(settings []debug.BuildSetting) string {
	var rev string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

// Full returns "version (commit: hash)".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent is sent with every description fetch, in the
// "OS/version UPnP/1.1 product/version" form devices expect.
func UserAgent() string {
	return fmt.Sprintf("%s/%s UPnP/1.1 %s/%s", runtime.GOOS, runtime.Version(), Product, Version)
}
