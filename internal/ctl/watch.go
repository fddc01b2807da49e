package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // output raw JSON per event
}

// wsURL maps the daemon's http(s) base URL to its /ws endpoint.
func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Watch streams daemon events to the terminal until interrupted or the
// daemon closes the connection.
func Watch(baseURL string, opts WatchOptions) error {
	target, err := wsURL(baseURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "  %s %s\n", colorize(green, "connected"), colorize(dim, target))
		if len(opts.Filter) > 0 {
			fmt.Fprintf(stdout, "  %s\n", colorize(dim, "filter: "+strings.Join(opts.Filter, ", ")))
		}
		fmt.Fprintln(stdout, colorize(dim, "  "+strings.Repeat("─", 50)))
		fmt.Fprintln(stdout)
	}

	filter := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filter[f] = true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if len(filter) > 0 && !filter[eventType(msg)] {
				continue
			}
			if opts.JSON {
				fmt.Fprintln(stdout, string(msg))
			} else {
				renderEvent(msg)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

func eventType(raw []byte) string {
	var ev struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &ev)
	return ev.Type
}

// renderEvent prints one event on a line or two. Unknown event types are
// dumped as indented JSON so nothing is lost.
func renderEvent(raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(stdout, "  %s\n", raw)
		return
	}

	ts := colorize(dim, formatEventTime(ev))
	str := func(k string) string { s, _ := ev[k].(string); return s }
	num := func(k string) float64 { f, _ := ev[k].(float64); return f }

	switch str("type") {
	case "heartbeat":
		fmt.Fprintf(stdout, "  %s %s  %s  up %s  %d satellites\n",
			ts, colorize(dim, "heartbeat"),
			colorize(stateColor(str("state")), str("state")),
			formatDuration(time.Duration(num("uptime_seconds"))*time.Second),
			int(num("satellites")))

	case "state":
		fmt.Fprintf(stdout, "  %s %s  %s %s %s\n",
			ts, colorize(bold, "STATE"),
			colorize(stateColor(str("from")), str("from")),
			colorize(dim, "->"),
			colorize(stateColor(str("to")), str("to")))

	case "log":
		src := ""
		if c := str("component"); c != "" {
			src = colorize(dim, "["+c+"] ")
		}
		fmt.Fprintf(stdout, "  %s %s  %s%s\n", ts, formatLogLevel(str("level")), src, str("message"))

	case "tle_refresh":
		cached := ""
		if b, _ := ev["cached"].(bool); b {
			cached = colorize(yellow, " (cached)")
		}
		fmt.Fprintf(stdout, "  %s %s  %d records, %d missing, %d from SatNOGS%s\n",
			ts, colorize(cyan, "REFRESH"),
			int(num("records")), int(num("missing")), int(num("satnogs_added")), cached)

	case "prune":
		fmt.Fprintf(stdout, "  %s %s  %s: removed %d (no TLE %d, not orbiting %d), %d active, %d unpredictable\n",
			ts, colorize(blue, "PRUNE"), str("mode"),
			int(num("removed")), int(num("no_tle")), int(num("not_orbiting")),
			int(num("active")), int(num("unpredictable")))

	case "prediction":
		fmt.Fprintf(stdout, "  %s %s  %s (%d)  az %.1f° el %.1f°  %+.3f km/s\n",
			ts, colorize(green, "PREDICT"), str("name"), int(num("norad_cat_id")),
			num("azimuth"), num("elevation"), num("range_rate"))

	case "passes":
		next := ""
		if r := str("next_rise"); r != "" {
			next = ", next rise " + r
		}
		fmt.Fprintf(stdout, "  %s %s  NORAD %d: %d found%s\n",
			ts, colorize(cyan, "PASSES"), int(num("norad_cat_id")), int(num("found")), next)

	default:
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Fprintf(stdout, "  %s\n", raw)
			return
		}
		fmt.Fprintf(stdout, "  %s\n", pretty)
	}
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return tsRaw
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return fmt.Sprintf("%-5s", strings.ToUpper(level))
	}
}
