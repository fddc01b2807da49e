package ctl

import (
	"errors"
	"fmt"
)

type commandResult struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Error   string         `json:"error"`
	Cycle   map[string]any `json:"cycle,omitempty"`
	Prune   *struct {
		Mode          string `json:"mode"`
		NoTLE         int    `json:"no_tle"`
		NotOrbiting   int    `json:"not_orbiting"`
		Unpredictable int    `json:"unpredictable"`
		Removed       []int  `json:"removed"`
		Active        int    `json:"active"`
	} `json:"prune,omitempty"`
}

// Pause pauses periodic TLE refreshes.
func Pause(baseURL string, jsonOutput bool) error {
	return schedulerControl(baseURL, "/api/pause", "PAUSED", jsonOutput)
}

// Resume resumes periodic TLE refreshes.
func Resume(baseURL string, jsonOutput bool) error {
	return schedulerControl(baseURL, "/api/resume", "RESUMED", jsonOutput)
}

// TLERefresh forces a refresh cycle.
func TLERefresh(baseURL string, jsonOutput bool) error {
	return schedulerControl(baseURL, "/api/tle-refresh", "REFRESHED", jsonOutput)
}

// Prune runs a prune now.
func Prune(baseURL string, jsonOutput bool) error {
	return schedulerControl(baseURL, "/api/prune", "PRUNED", jsonOutput)
}

func schedulerControl(baseURL, path, label string, jsonOutput bool) error {
	var result commandResult
	err := postJSON(slowClient, baseURL, path, nil, &result)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status >= 500 {
		// A failed command still carries a result body.
		result = commandResult{Error: ae.Message}
		err = nil
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if !result.OK {
		fmt.Fprintf(stdout, "\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
		return nil
	}
	fmt.Fprintf(stdout, "\n  %s  %s\n", colorize(green, label), result.Message)
	if p := result.Prune; p != nil {
		fmt.Fprintf(stdout, "  %s\n", colorize(dim, fmt.Sprintf(
			"no TLE %d, not orbiting %d, unpredictable %d, active %d",
			p.NoTLE, p.NotOrbiting, p.Unpredictable, p.Active)))
	}
	fmt.Fprintln(stdout)
	return nil
}
