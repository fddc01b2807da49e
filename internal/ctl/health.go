package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

type healthResponse struct {
	Healthy bool `json:"healthy"`
	Checks  map[string]struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Path  string `json:"path"`
		AgeS  int    `json:"age_s"`
		Count int    `json:"count"`
	} `json:"checks"`
}

// Health asks /healthz for component checks. It returns an error when the
// daemon is unreachable; an unhealthy daemon is reported, not returned.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	status, body, err := getRaw(baseURL, "/healthz", "application/json")
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}

	var h healthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		return fmt.Errorf("HTTP %d: unexpected health response", status)
	}
	if jsonOutput {
		return printJSON(h)
	}

	fmt.Fprintln(stdout)
	if h.Healthy && status == http.StatusOK {
		fmt.Fprintf(stdout, "  %s  orbitwatchd at %s\n", colorize(green, "HEALTHY"), baseURL)
	} else {
		fmt.Fprintf(stdout, "  %s  orbitwatchd at %s\n", colorize(red, "UNHEALTHY"), baseURL)
	}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := h.Checks[name]
		mark, detail := colorize(green, "ok  "), c.Path
		if !c.OK {
			mark, detail = colorize(red, "FAIL"), c.Error
		}
		if c.Count > 0 {
			detail = fmt.Sprintf("%d satellites", c.Count)
		}
		fmt.Fprintf(stdout, "    %s  %-10s %s\n", mark, name, detail)
	}
	fmt.Fprintln(stdout)
	return nil
}
