// Package version exposes the binary's build identity.
package version

// Version is the semantic version of the mimic binary, injected at link
// time via -ldflags.
var Version = "dev"

// GitCommit is the Git hash of the source the binary was built from.
var GitCommit = "<unknown>"
