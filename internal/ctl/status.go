package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the parts of GET /api/status that owctl renders.
type StatusResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Paused        bool   `json:"paused"`
	Offline       bool   `json:"offline"`
	DataRoot      string `json:"data_root"`
	Station       struct {
		Observer struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Altitude  float64 `json:"altitude_km"`
		} `json:"observer"`
		Source string `json:"source"`
	} `json:"station"`
	Registry struct {
		Mode       string    `json:"mode"`
		Satellites int       `json:"satellites"`
		Active     int       `json:"active"`
		Removed    int       `json:"removed"`
		Source     string    `json:"source"`
		LastLoad   time.Time `json:"last_load"`
		LastPrune  *struct {
			At      time.Time `json:"at"`
			Removed []int     `json:"removed"`
		} `json:"last_prune"`
	} `json:"registry"`
	LastError string `json:"last_error"`
	WSClients int    `json:"ws_clients"`
	Disk      *struct {
		TotalBytes     int64 `json:"total_bytes"`
		AvailableBytes int64 `json:"available_bytes"`
	} `json:"disk"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	var s StatusResponse
	if jsonOutput {
		var raw map[string]any
		if err := getJSON(baseURL, "/api/status", &raw); err != nil {
			return err
		}
		return printJSON(raw)
	}
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	state := s.State
	if s.Paused && state != "PAUSED" {
		state += " (paused)"
	}
	obs := s.Station.Observer
	reg := s.Registry

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("ORBITWATCH STATUS"))
	field("Daemon", s.Name+" "+s.Version)
	field("State", colorize(stateColor(s.State), state))
	field("Uptime", formatDuration(time.Duration(s.UptimeSeconds)*time.Second))
	field("Mode", mode(reg.Mode, s.Offline))
	field("Station", fmt.Sprintf("%.4f, %.4f, %.0f m (%s)", obs.Latitude, obs.Longitude, obs.Altitude*1000, s.Station.Source))
	field("Satellites", fmt.Sprintf("%d tracked, %d active, %d removed", reg.Satellites, reg.Active, reg.Removed))
	field("TLE source", reg.Source)
	field("Last load", formatTime(reg.LastLoad))
	if reg.LastPrune != nil {
		field("Last prune", fmt.Sprintf("%s, %d removed", formatTime(reg.LastPrune.At), len(reg.LastPrune.Removed)))
	}
	field("Subscribers", s.WSClients)
	field("Data", s.DataRoot)
	if s.Disk != nil {
		field("Disk free", formatBytes(s.Disk.AvailableBytes)+" of "+formatBytes(s.Disk.TotalBytes))
	}
	if s.LastError != "" {
		field("Last error", colorize(red, s.LastError))
	}
	field("Host", strings.TrimRight(baseURL, "/"))
	fmt.Fprintln(stdout)
	return nil
}

func mode(m string, offline bool) string {
	if offline {
		return m + " (offline)"
	}
	return m
}
