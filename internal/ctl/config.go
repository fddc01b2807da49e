package ctl

import (
	"fmt"
	"slices"
)

// configSections is the display order of the daemon's config sections.
var configSections = []string{"data", "logging", "server", "station", "sources", "predict", "tracing"}

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	var resp struct {
		Path   string                    `json:"path"`
		Config map[string]map[string]any `json:"config"`
	}
	if err := getJSON(baseURL, "/api/config", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("DAEMON CONFIGURATION"))
	if resp.Path != "" {
		fmt.Fprintf(stdout, "  %s\n", colorize(dim, resp.Path))
	}

	for _, name := range configSections {
		section, ok := resp.Config[name]
		if !ok {
			continue
		}
		fmt.Fprintf(stdout, "\n  %s\n", colorize(bold, "["+name+"]"))
		keys := make([]string, 0, len(section))
		for k := range section {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "    %-20s %v\n", k+":", section[k])
		}
	}
	fmt.Fprintln(stdout)
	return nil
}
