// Package buildinfo stamps the fpmasctl binary with a version string,
// overridable at link time via -ldflags.
package buildinfo

var (
	// Version is set at build time via -ldflags "-X .../buildinfo.Version=...".
	Version = "dev"
	// Commit is the source commit the binary was built from.
	Commit = "unknown"
)
