package ctl

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type culmination struct {
	Time      time.Time `json:"time"`
	Elevation float64   `json:"elevation"`
	Azimuth   float64   `json:"azimuth"`
}

type pass struct {
	RiseTime         time.Time     `json:"rise_time"`
	SetTime          time.Time     `json:"set_time"`
	Culminations     []culmination `json:"culminations"`
	MaximumElevation float64       `json:"maximum_elevation"`
}

// PassesOptions controls the passes command.
type PassesOptions struct {
	Satellite    string
	Lat, Lon     *float64
	MinElevation *float64
	Hours        float64
	Count        int
	JSON         bool
}

// Passes lists upcoming passes of one satellite.
func Passes(baseURL string, opts PassesOptions) error {
	id, err := ResolveID(baseURL, opts.Satellite)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("catalog_id", strconv.Itoa(id))
	observerQuery(params, opts.Lat, opts.Lon)
	if opts.MinElevation != nil {
		params.Set("min_elevation", strconv.FormatFloat(*opts.MinElevation, 'f', -1, 64))
	}
	if opts.Hours > 0 {
		params.Set("hours", strconv.FormatFloat(opts.Hours, 'f', -1, 64))
	}

	var resp struct {
		CatalogID    int       `json:"catalog_id"`
		MinElevation float64   `json:"min_elevation"`
		Start        time.Time `json:"start"`
		End          time.Time `json:"end"`
		Result       struct {
			Passes    []pass `json:"passes"`
			Discarded int    `json:"discarded"`
			Orphaned  int    `json:"orphaned"`
			Empty     int    `json:"empty"`
			Dangling  bool   `json:"dangling"`
		} `json:"result"`
	}
	if err := getWith(slowClient, baseURL, "/api/passes?"+params.Encode(), &resp); err != nil {
		return err
	}
	if opts.Count > 0 && opts.Count < len(resp.Result.Passes) {
		resp.Result.Passes = resp.Result.Passes[:opts.Count]
	}
	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header(fmt.Sprintf("PASSES FOR NORAD %d ABOVE %.0f°", id, resp.MinElevation)))
	fmt.Fprintf(stdout, "  %s\n\n", colorize(dim, formatTime(resp.Start)+" to "+formatTime(resp.End)))
	if len(resp.Result.Passes) == 0 {
		fmt.Fprintln(stdout, "  No complete passes in the window.")
		fmt.Fprintln(stdout)
		return nil
	}

	t := newTable("  ", "Rise", "Set", "Duration", "Max el", "Peak az")
	for _, p := range resp.Result.Passes {
		az := "-"
		if c, ok := peak(p); ok {
			az = fmt.Sprintf("%.0f°", c.Azimuth)
		}
		t.row(formatTime(p.RiseTime), p.SetTime.Local().Format("15:04:05"),
			formatDuration(p.SetTime.Sub(p.RiseTime)),
			fmt.Sprintf("%.1f°", p.MaximumElevation), az)
	}
	t.flush()
	if resp.Result.Dangling {
		fmt.Fprintln(stdout, colorize(dim, "  (a pass is still open at the end of the window)"))
	}
	fmt.Fprintln(stdout)
	return nil
}

// peak returns the highest culmination of p.
func peak(p pass) (culmination, bool) {
	if len(p.Culminations) == 0 {
		return culmination{}, false
	}
	best := p.Culminations[0]
	for _, c := range p.Culminations[1:] {
		if c.Elevation > best.Elevation {
			best = c
		}
	}
	return best, true
}
