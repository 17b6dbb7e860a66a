// Package version reports build provenance for the foreman binary.
// Release builds inject the variables below through ldflags; anything left
// unset is filled from the module metadata Go embeds in every binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Injected through ldflags by the release build.
var (
	Version   = "dev"
	GitCommit = ""
	GitTag    = ""
	GitDirty  = ""
	BuildDate = ""
)

// BuildInfo is the structured form of the binary's provenance.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitTag    string `json:"git_tag"`
	GitDirty  bool   `json:"git_dirty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetBuildInfo merges the ldflags values with whatever the toolchain
// recorded at build time. Explicit ldflags win over embedded metadata.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GitTag:    GitTag,
		GitDirty:  GitDirty == "true",
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = setting.Value
				}
			case "vcs.modified":
				if GitDirty == "" {
					info.GitDirty = setting.Value == "true"
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = setting.Value
				}
			}
		}
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	if info.GitTag != "" {
		info.Version = info.GitTag
	}
	if info.GitDirty && !strings.HasSuffix(info.Version, "-dirty") {
		info.Version += "-dirty"
	}
	return info
}

// Info returns the short version string.
func Info() string {
	return GetBuildInfo().Version
}

// Full returns the version followed by the abbreviated commit when known.
func Full() string {
	info := GetBuildInfo()
	if len(info.GitCommit) >= 7 && !strings.Contains(info.Version, info.GitCommit[:7]) {
		return fmt.Sprintf("%s (%s)", info.Version, info.GitCommit[:7])
	}
	return info.Version
}

// UserAgent identifies foreman in outbound HTTP requests.
func UserAgent() string {
	return "foreman/" + Info()
}
