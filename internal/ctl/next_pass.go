package ctl

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// NextPassOptions configures the next-pass command.
type NextPassOptions struct {
	Satellite string
	Lat, Lon  *float64
	JSON      bool
}

// NextPass shows the next pass of one satellite.
func NextPass(baseURL string, opts NextPassOptions) error {
	id, err := ResolveID(baseURL, opts.Satellite)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("catalog_id", strconv.Itoa(id))
	observerQuery(params, opts.Lat, opts.Lon)

	var resp struct {
		CatalogID  int   `json:"catalog_id"`
		Pass       *pass `json:"pass"`
		DurationS  int   `json:"duration_s"`
		CountdownS int   `json:"countdown_s"`
	}
	if err := getWith(slowClient, baseURL, "/api/next-pass?"+params.Encode(), &resp); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header(fmt.Sprintf("NEXT PASS FOR NORAD %d", id)))
	if resp.Pass == nil {
		fmt.Fprintln(stdout, "  No upcoming passes found.")
		fmt.Fprintln(stdout)
		return nil
	}

	p := resp.Pass
	field("Rise", formatTime(p.RiseTime))
	field("Set", formatTime(p.SetTime))
	field("Max elev", fmt.Sprintf("%.1f°", p.MaximumElevation))
	field("Duration", formatDuration(time.Duration(resp.DurationS)*time.Second))
	if resp.CountdownS > 0 {
		field("Countdown", formatDuration(time.Duration(resp.CountdownS)*time.Second))
	} else {
		field("Status", colorize(green, "NOW"))
	}
	fmt.Fprintln(stdout)
	return nil
}
