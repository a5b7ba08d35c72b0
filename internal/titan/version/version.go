// Package version carries build-time identification for the titand binary.
package version

var (
	// Version is the semantic version, set via -ldflags at build time.
	Version = "v0.0.0-dev"
	// GitCommit is the commit hash, set via -ldflags at build time.
	GitCommit = "unknown"
	// BuildTime is the build timestamp, set via -ldflags at build time.
	BuildTime = "unknown"
)

// Info returns a one-line human-readable version string.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
