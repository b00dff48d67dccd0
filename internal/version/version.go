// Package version holds build information for the codetracker binary.
package version

import (
	"fmt"
	"runtime"
)

// Overridden at build time:
//
//	go build -ldflags "-X github.com/flozender/code-tracker-sub024/internal/version.Commit=abc123"
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Details is the machine-readable form of the build information.
type Details struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the current build information.
func Get() Details {
	return Details{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns the version with an abbreviated commit when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the multi-line description printed by "codetracker version".
func Full() string {
	d := Get()
	return fmt.Sprintf("codetracker version %s\nCommit: %s\nBuilt: %s\nGo: %s %s",
		d.Version, d.Commit, d.BuildDate, d.GoVersion, d.Platform)
}
