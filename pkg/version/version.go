// Package version exposes build metadata for the CLI version flag and
// the User-Agent strings sent to external APIs.
package version

import "runtime/debug"

// AppName is the application name used in version strings and user agents.
const AppName = "nightwatch"

// commit is settable at build time for environments without VCS stamping:
//
//	go build -ldflags "-X github.com/nightwatchhq/nightwatch/pkg/version.commit=<sha>"
var commit string

// GitCommit is the short commit hash, or "dev" when nothing is stamped
// (e.g. `go test`, non-git builds).
var GitCommit = resolveCommit()

func resolveCommit() string {
	if commit != "" {
		return shorten(commit)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// Full returns "nightwatch/<commit>" for --version output and User-Agent
// headers.
func Full() string {
	return AppName + "/" + GitCommit
}
