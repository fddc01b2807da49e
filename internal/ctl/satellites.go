package ctl

import (
	"fmt"
	"strconv"
	"time"
)

type frequency struct {
	Base            float64 `json:"base_hz"`
	DopplerFraction float64 `json:"doppler_fraction"`
}

type transmitter struct {
	UUID        string    `json:"uuid"`
	Description string    `json:"description"`
	Uplink      frequency `json:"uplink"`
	Downlink    frequency `json:"downlink"`
	Mode        string    `json:"mode"`
	Baud        float64   `json:"baud"`
	Alive       bool      `json:"alive"`
	Selected    bool      `json:"selected"`
}

type satellite struct {
	CatalogID    int           `json:"norad_cat_id"`
	Name         string        `json:"name"`
	State        string        `json:"state"`
	TLE          []string      `json:"tle"`
	Epoch        *time.Time    `json:"tle_epoch"`
	Passes       []pass        `json:"passes"`
	Transmitters []transmitter `json:"transmitters"`
}

// Satellites lists every satellite the daemon tracks.
func Satellites(baseURL string, jsonOutput bool) error {
	var resp struct {
		Satellites []satellite `json:"satellites"`
	}
	if err := getJSON(baseURL, "/api/satellites", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header(fmt.Sprintf("TRACKED SATELLITES (%d)", len(resp.Satellites))))
	t := newTable("  ", "NORAD", "Name", "State", "TLE epoch", "Tx")
	for _, s := range resp.Satellites {
		epoch := "-"
		if s.Epoch != nil {
			epoch = s.Epoch.UTC().Format("2006-01-02")
		}
		t.row(strconv.Itoa(s.CatalogID), s.Name, s.State, epoch, strconv.Itoa(len(s.Transmitters)))
	}
	t.flush()
	fmt.Fprintln(stdout)
	return nil
}

// Satellite shows one satellite with its element set and transmitters. The
// argument may be a NORAD id or a name.
func Satellite(baseURL, arg string, jsonOutput bool) error {
	id, err := ResolveID(baseURL, arg)
	if err != nil {
		return err
	}
	var s satellite
	if err := getJSON(baseURL, fmt.Sprintf("/api/satellites/%d", id), &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header(fmt.Sprintf("%s (NORAD %d)", s.Name, s.CatalogID)))
	field("State", s.State)
	if s.Epoch != nil {
		field("TLE epoch", formatTime(*s.Epoch)+" ("+formatDuration(time.Since(*s.Epoch))+" old)")
	}
	for _, line := range s.TLE {
		fmt.Fprintln(stdout, "    "+colorize(dim, line))
	}
	if len(s.Transmitters) > 0 {
		fmt.Fprintln(stdout)
		t := newTable("  ", "", "UUID", "Description", "Uplink", "Downlink", "Mode")
		for _, tx := range s.Transmitters {
			sel := " "
			if tx.Selected {
				sel = "*"
			}
			t.row(sel, tx.UUID, tx.Description, formatHz(tx.Uplink.Base), formatHz(tx.Downlink.Base), tx.Mode)
		}
		t.flush()
	}
	fmt.Fprintln(stdout)
	return nil
}

// SelectTransmitter marks one of a satellite's transmitters as selected.
func SelectTransmitter(baseURL, arg, uuid string, jsonOutput bool) error {
	id, err := ResolveID(baseURL, arg)
	if err != nil {
		return err
	}
	var resp struct {
		OK          bool        `json:"ok"`
		Transmitter transmitter `json:"transmitter"`
	}
	path := fmt.Sprintf("/api/satellites/%d/transmitters/%s/select", id, uuid)
	if err := postJSON(httpClient, baseURL, path, nil, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}
	fmt.Fprintf(stdout, "\n  %s  %s on NORAD %d\n\n", colorize(green, "SELECTED"), resp.Transmitter.Description, id)
	return nil
}
