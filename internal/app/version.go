package app

import "runtime"

// Build-time variables set via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/large-farva/orbitwatch/internal/app.Version=v0.3.0"
var (
	Version = "dev"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// VersionInfo is the body of GET /api/version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuiltAt   string `json:"built_at"`
	GoVersion string `json:"go_version"`
}

func versionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuiltAt:   BuiltAt,
		GoVersion: runtime.Version(),
	}
}
