// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between orbitwatchd and its clients.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat  EventType = "heartbeat"
	EventState      EventType = "state"
	EventLog        EventType = "log"
	EventRefresh    EventType = "tle_refresh"
	EventPrune      EventType = "prune"
	EventPrediction EventType = "prediction"
	EventPasses     EventType = "passes"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component,omitempty"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// New stamps an envelope of type t for component.
func New(t EventType, component string) Event {
	return Event{Type: t, TS: NowTS(), Component: component}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Satellites    int    `json:"satellites"`
}

// StateTransition is emitted whenever the daemon moves between operating
// states (e.g. IDLE -> REFRESHING).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Refresh reports the outcome of a TLE fetch-and-merge.
type Refresh struct {
	Event
	Records      int  `json:"records"`
	Missing      int  `json:"missing"`
	SatNOGSAdded int  `json:"satnogs_added"`
	Cached       bool `json:"cached"`
}

// Prune reports one pruning run.
type Prune struct {
	Event
	Mode          string `json:"mode"`
	NoTLE         int    `json:"no_tle"`
	NotOrbiting   int    `json:"not_orbiting"`
	Unpredictable int    `json:"unpredictable"`
	Removed       int    `json:"removed"`
	Active        int    `json:"active"`
}

// Prediction carries the look angles and Doppler factor of one prediction.
type Prediction struct {
	Event
	CatalogID       int     `json:"norad_cat_id"`
	Name            string  `json:"name"`
	Elevation       float64 `json:"elevation"`
	Azimuth         float64 `json:"azimuth"`
	RangeRate       float64 `json:"range_rate"`
	DopplerFraction float64 `json:"doppler_fraction"`
}

// Passes reports a completed pass search.
type Passes struct {
	Event
	CatalogID int    `json:"norad_cat_id"`
	Found     int    `json:"found"`
	NextRise  string `json:"next_rise,omitempty"`
}
