package ctl

import (
	"fmt"
	"time"
)

// TLEInfo shows the TLE file the daemon loads from.
func TLEInfo(baseURL string, jsonOutput bool) error {
	var resp struct {
		File struct {
			Path        string    `json:"path"`
			Exists      bool      `json:"exists"`
			Size        int64     `json:"size_bytes"`
			ModTime     time.Time `json:"modified"`
			Records     int       `json:"records"`
			Rejected    int       `json:"rejected"`
			OldestEpoch time.Time `json:"oldest_epoch"`
			NewestEpoch time.Time `json:"newest_epoch"`
		} `json:"file"`
		Source       string    `json:"source"`
		Mode         string    `json:"mode"`
		LastLoad     time.Time `json:"last_load"`
		RefreshHours int       `json:"refresh_hours"`
	}
	if err := getJSON(baseURL, "/api/tle-info", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	f := resp.File
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("TLE DATA"))
	field("File", f.Path)
	field("Source", resp.Source+" ("+resp.Mode+")")
	if !f.Exists {
		field("Status", colorize(red, "NOT FOUND"))
		fmt.Fprintln(stdout)
		return nil
	}

	age := time.Since(f.ModTime)
	status := colorize(green, "FRESH")
	if resp.RefreshHours > 0 && age > time.Duration(resp.RefreshHours)*time.Hour {
		status = colorize(yellow, "STALE")
	}
	field("Status", status)
	field("Age", formatDuration(age))
	field("Size", formatBytes(f.Size))
	field("Records", fmt.Sprintf("%d (%d rejected by parser)", f.Records, f.Rejected))
	if f.Records > 0 {
		field("Epochs", formatTime(f.OldestEpoch)+" to "+formatTime(f.NewestEpoch))
	}
	field("Last load", formatTime(resp.LastLoad))
	fmt.Fprintln(stdout)
	return nil
}
