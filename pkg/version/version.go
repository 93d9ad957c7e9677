// Package version provides version information for jidl.
//
// version.txt mirrors the VERSION file at the repository root and is
// embedded at compile time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var versionFile string

// Version is the current version of jidl.
// This is embedded from version.txt at compile time.
var Version = strings.TrimSpace(versionFile)

// String returns the version string.
func String() string {
	return Version
}

// Full returns a full version string with the package name.
func Full() string {
	return "jidl version " + Version
}
