package ctl

import (
	"fmt"
	"runtime"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// VersionInfo prints the CLI and daemon versions.
func VersionInfo(baseURL string, jsonOutput bool) error {
	var daemon struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		GoVersion string `json:"go_version"`
		BuiltAt   string `json:"built_at"`
	}
	daemonErr := getJSON(baseURL, "/api/version", &daemon)

	if jsonOutput {
		resp := map[string]any{
			"cli": map[string]any{
				"version":    Version,
				"go_version": runtime.Version(),
			},
		}
		if daemonErr == nil {
			resp["daemon"] = daemon
		} else {
			resp["daemon_error"] = daemonErr.Error()
		}
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("ORBITWATCH VERSION"))
	field("CLI", Version+" ("+runtime.Version()+")")
	if daemonErr != nil {
		field("Daemon", colorize(red, "unreachable: "+daemonErr.Error()))
	} else {
		field("Daemon", fmt.Sprintf("%s (%s, %s)", daemon.Version, daemon.Commit, daemon.GoVersion))
		field("Built", daemon.BuiltAt)
	}
	fmt.Fprintln(stdout)
	return nil
}
