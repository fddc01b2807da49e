package ctl

import (
	"fmt"
	"time"
)

// PredictOptions configures the predict command. Nil coordinates use the
// daemon's station.
type PredictOptions struct {
	Satellite string
	Lat, Lon  *float64
	JSON      bool
}

type prediction struct {
	CatalogID int     `json:"catalog_id"`
	Name      string  `json:"name"`
	Time      string  `json:"time"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude_km"`

	Elevation       float64 `json:"elevation"`
	Azimuth         float64 `json:"azimuth"`
	Range           float64 `json:"range_km"`
	RangeRate       float64 `json:"range_rate"`
	DopplerFraction float64 `json:"doppler_fraction"`

	RiseTime         *time.Time `json:"rise_time"`
	SetTime          *time.Time `json:"set_time"`
	MaximumElevation *float64   `json:"maximum_elevation"`

	Transmitters []struct {
		UUID            string  `json:"uuid"`
		Description     string  `json:"description"`
		Selected        bool    `json:"selected"`
		UplinkHz        float64 `json:"uplink_hz"`
		UplinkShifted   float64 `json:"uplink_shifted_hz"`
		DownlinkHz      float64 `json:"downlink_hz"`
		DownlinkShifted float64 `json:"downlink_shifted_hz"`
	} `json:"transmitters"`
}

// Predict shows where a satellite is now and its Doppler-corrected
// transmitter frequencies.
func Predict(baseURL string, opts PredictOptions) error {
	id, err := ResolveID(baseURL, opts.Satellite)
	if err != nil {
		return err
	}
	body := map[string]any{"catalog_id": id}
	if opts.Lat != nil {
		body["observer_latitude"] = *opts.Lat
	}
	if opts.Lon != nil {
		body["observer_longitude"] = *opts.Lon
	}

	var p prediction
	if err := postJSON(slowClient, baseURL, "/api/predict-now", body, &p); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(p)
	}

	visible := colorize(dim, "below horizon")
	if p.Elevation > 0 {
		visible = colorize(green, "visible")
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header(fmt.Sprintf("%s (NORAD %d)", p.Name, p.CatalogID)))
	field("Time", p.Time)
	field("Sub-point", fmt.Sprintf("%.4f, %.4f at %.1f km", p.Latitude, p.Longitude, p.Altitude))
	field("Look", fmt.Sprintf("az %.1f°  el %.1f°  %s", p.Azimuth, p.Elevation, visible))
	field("Range", fmt.Sprintf("%.1f km  %+.3f km/s", p.Range, p.RangeRate))
	field("Doppler", fmt.Sprintf("%+.3e", p.DopplerFraction))
	if p.RiseTime != nil && p.SetTime != nil && p.MaximumElevation != nil {
		field("Next pass", fmt.Sprintf("%s to %s, max %.1f°",
			formatTime(*p.RiseTime), p.SetTime.Local().Format("15:04:05"), *p.MaximumElevation))
	} else {
		field("Next pass", "none in lookahead window")
	}

	if len(p.Transmitters) > 0 {
		fmt.Fprintln(stdout)
		t := newTable("  ", "", "Description", "Downlink", "Tune to", "Uplink", "Transmit on")
		for _, tx := range p.Transmitters {
			sel := " "
			if tx.Selected {
				sel = "*"
			}
			t.row(sel, tx.Description,
				formatHz(tx.DownlinkHz), formatHz(tx.DownlinkShifted),
				formatHz(tx.UplinkHz), formatHz(tx.UplinkShifted))
		}
		t.flush()
	}
	fmt.Fprintln(stdout)
	return nil
}
