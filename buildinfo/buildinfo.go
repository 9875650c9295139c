// Package buildinfo holds application metadata that can be set at build time.
//
// Release builds set the version through ldflags:
//
//	go build -ldflags "\
//	  -X github.com/nedpals/davi-nfc-writer/buildinfo.Version=1.0.0 \
//	  -X github.com/nedpals/davi-nfc-writer/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/nedpals/davi-nfc-writer/buildinfo.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// Name is the technical application name
	Name = "davi-nfc-writer"

	// DirName is the config directory name within user and system config paths
	DirName = "davi-nfc-writer"

	// DisplayName is used for the tray title, web form and mDNS instance
	DisplayName = "Davi NFC Writer"

	// Description is a short description of the application
	Description = "Reads and writes NDEF messages on NFC tags"

	// Version is the semantic version (set via ldflags for releases)
	Version = "dev"

	// Commit is the git commit hash (set via ldflags)
	Commit = ""

	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = ""
)

// FullVersion returns the version with the commit when known,
// e.g. "1.0.0 (abc1234)".
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// UserAgent returns the Server header value used by the HTTP form.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}

// BuildInfo returns a multi-line summary for the version command.
func BuildInfo() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", Name, FullVersion())
	fmt.Fprintf(&sb, "  %s\n", Description)
	fmt.Fprintf(&sb, "  Go: %s\n", runtime.Version())
	fmt.Fprintf(&sb, "  OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&sb, "\n  Built: %s", BuildTime)
	}
	return sb.String()
}

// IsDev returns true for builds without a release version.
func IsDev() bool {
	return Version == "dev"
}
