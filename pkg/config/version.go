// Package config exposes build information for BlazeWatch binaries.
package config

import (
	"fmt"
	"runtime"
)

// Build information. Populated at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo contains all build information.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String formats the build information for a named binary.
func (b BuildInfo) String(binary string) string {
	return fmt.Sprintf("%s %s (%s) built at %s with %s %s/%s",
		binary, b.Version, b.Commit, b.BuildTime, b.GoVersion, b.OS, b.Arch)
}

// VersionString returns a formatted version string for binary.
func VersionString(binary string) string {
	return GetBuildInfo().String(binary)
}
