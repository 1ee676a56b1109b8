// Package version exposes build-time version information. The values are
// overridden via -ldflags at release build time.
package version

var (
	// Version is the application version (git tag, or "dev" for local builds)
	Version = "dev"
	// Commit is the git commit hash the binary was built from
	Commit = "dev"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
