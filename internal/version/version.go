// Package version reports build identity for the objectplan binary.
package version

import "runtime"

// appVersion is the semantic version of the core algorithms (differ, dagbuild,
// selector, toposort, navigator). Bump on any change to the output plan shape.
const appVersion = "0.1.0"

// planFormat is the wire-format version stamped on every serialized Plan
// (internal/plan, internal/planio). apply checks this against its own
// supported version before consuming a plan generated by a different build.
const planFormat = "1"

// Build-time variables set via ldflags
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App returns the current version of objectplan.
func App() string {
	return appVersion
}

// PlanFormat returns the plan wire-format version.
func PlanFormat() string {
	return planFormat
}

// GetGitCommit returns the git commit hash.
func GetGitCommit() string {
	return GitCommit
}

// GetBuildDate returns the build date.
func GetBuildDate() string {
	return BuildDate
}

// Platform returns the OS/architecture combination.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
