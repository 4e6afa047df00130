// Package buildinfo exposes version metadata set with -ldflags "-X".
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the build metadata. Commit and BuiltAt fall back to the VCS
// stamp the go tool embeds when they were not set at link time.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out["go"] = bi.GoVersion
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && out["commit"] == "":
				out["commit"] = s.Value
			case s.Key == "vcs.time" && out["builtAt"] == "":
				out["builtAt"] = s.Value
			}
		}
	}
	return out
}
