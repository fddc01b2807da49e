// Owctl is the command-line client for a running orbitwatchd. It queries
// satellites, predictions and passes over HTTP, drives the scheduler and
// streams live events over WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/large-farva/orbitwatch/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8001", "orbitwatchd base URL")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter state,prune)")
	)

	// Stop parsing global flags at the command name so command flags such
	// as --lat are left for the command's own flag set.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "tle-info":
		err = ctl.TLEInfo(*host, *jsonOut)

	case "satellites":
		err = ctl.Satellites(*host, *jsonOut)

	case "satellite":
		var sat string
		if sat, err = satelliteArg(subArgs); err == nil {
			err = ctl.Satellite(*host, sat, *jsonOut)
		}

	case "select":
		if len(subArgs) != 2 {
			err = fmt.Errorf("usage: owctl select <satellite> <transmitter-uuid>")
			break
		}
		err = ctl.SelectTransmitter(*host, subArgs[0], subArgs[1], *jsonOut)

	case "predict":
		opts := ctl.PredictOptions{JSON: *jsonOut}
		fs := pflag.NewFlagSet("predict", pflag.ContinueOnError)
		lat, lon := observerFlags(fs)
		if err = fs.Parse(subArgs); err != nil {
			break
		}
		if opts.Satellite, err = satelliteArg(fs.Args()); err != nil {
			break
		}
		opts.Lat, opts.Lon = optional(fs, "lat", lat), optional(fs, "lon", lon)
		err = ctl.Predict(*host, opts)

	case "passes":
		opts := ctl.PassesOptions{JSON: *jsonOut}
		fs := pflag.NewFlagSet("passes", pflag.ContinueOnError)
		lat, lon := observerFlags(fs)
		minEl := fs.Float64("min-elevation", 0, "Minimum elevation in degrees (default: station config)")
		fs.Float64Var(&opts.Hours, "hours", 0, "Search window in hours (default: lookahead_hours)")
		fs.IntVar(&opts.Count, "count", 0, "Limit number of passes shown")
		if err = fs.Parse(subArgs); err != nil {
			break
		}
		if opts.Satellite, err = satelliteArg(fs.Args()); err != nil {
			break
		}
		opts.Lat, opts.Lon = optional(fs, "lat", lat), optional(fs, "lon", lon)
		opts.MinElevation = optional(fs, "min-elevation", minEl)
		err = ctl.Passes(*host, opts)

	case "next-pass":
		opts := ctl.NextPassOptions{JSON: *jsonOut}
		fs := pflag.NewFlagSet("next-pass", pflag.ContinueOnError)
		lat, lon := observerFlags(fs)
		if err = fs.Parse(subArgs); err != nil {
			break
		}
		if opts.Satellite, err = satelliteArg(fs.Args()); err != nil {
			break
		}
		opts.Lat, opts.Lon = optional(fs, "lat", lat), optional(fs, "lon", lon)
		err = ctl.NextPass(*host, opts)

	// ── Control commands ──────────────────────────────────────────
	case "tle-refresh":
		err = ctl.TLERefresh(*host, *jsonOut)

	case "prune":
		err = ctl.Prune(*host, *jsonOut)

	case "pause":
		err = ctl.Pause(*host, *jsonOut)

	case "resume":
		err = ctl.Resume(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func observerFlags(fs *pflag.FlagSet) (lat, lon *float64) {
	lat = fs.Float64("lat", 0, "Observer latitude in degrees (default: station)")
	lon = fs.Float64("lon", 0, "Observer longitude in degrees (default: station)")
	return lat, lon
}

// optional returns v only when the flag was given on the command line.
func optional(fs *pflag.FlagSet, name string, v *float64) *float64 {
	if fs.Changed(name) {
		return v
	}
	return nil
}

func satelliteArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one satellite (NORAD id or name)")
	}
	return args[0], nil
}

func usage() {
	fmt.Print(`
  owctl: orbitwatch control CLI

  USAGE
    owctl [flags] <command> [command-flags] [satellite]

  COMMANDS (query)
    status          Show daemon state, registry size and last prune
    health          Run the daemon's component health checks
    version         Show CLI and daemon version information
    config          Show the daemon's running configuration
    tle-info        Show the TLE file the daemon loads from
    satellites      List tracked satellites
    satellite SAT   Show one satellite with its transmitters
    predict SAT     Current position, look angles and Doppler
    passes SAT      Upcoming passes over the observer
    next-pass SAT   The next pass over the observer

  COMMANDS (control)
    select SAT UUID Mark a transmitter as selected
    tle-refresh     Fetch fresh TLEs, reload and prune now
    prune           Prune unpredictable satellites now
    pause           Pause periodic refreshes
    resume          Resume periodic refreshes

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  SAT is a NORAD catalog id or a satellite name ("ISS (ZARYA)").

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8001)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    predict, passes, next-pass:
        --lat DEG           Observer latitude (default: station)
        --lon DEG           Observer longitude (default: station)

    passes:
        --min-elevation DEG Minimum elevation (default: station config)
        --hours H           Search window (default: lookahead_hours)
        --count N           Limit number of passes shown

  EXAMPLES
    owctl status
    owctl --json satellites
    owctl predict 25544
    owctl predict "ISS (ZARYA)" --lat 51.48 --lon -0.01
    owctl passes 25544 --hours 48 --min-elevation 20
    owctl next-pass FOX-1A
    owctl select 25544 <uuid>
    owctl tle-refresh
    owctl --host http://192.168.8.1:8001 watch --filter state,prune,tle_refresh

`)
}
