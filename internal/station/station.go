// Package station resolves the ground station position used as the default
// observer, either from a running gpsd or from the config file.
package station

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/large-farva/orbitwatch/internal/config"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/orbit"
)

// Source says where a resolved position came from.
type Source string

const (
	FromConfig Source = "config"
	FromGPSD   Source = "gpsd"
)

// Location is a resolved station position.
type Location struct {
	Observer orbit.Observer `json:"observer"`
	Source   Source         `json:"source"`
}

// tpvReport is the subset of a gpsd TPV JSON object we need.
type tpvReport struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"altMSL"`
}

// FromGPSDAddr connects to gpsd at addr, sends a WATCH command, and reads
// TPV reports until a 2D or 3D fix arrives or ctx ends.
func FromGPSDAddr(ctx context.Context, addr string) (orbit.Observer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return orbit.Observer{}, fmt.Errorf("gpsd connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return orbit.Observer{}, fmt.Errorf("gpsd set deadline: %w", err)
		}
	}

	if _, err := fmt.Fprint(conn, `?WATCH={"enable":true,"json":true};`); err != nil {
		return orbit.Observer{}, fmt.Errorf("gpsd watch: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var report tpvReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" || report.Mode < 2 {
			continue
		}
		obs := orbit.Observer{Latitude: report.Lat, Longitude: report.Lon}
		if report.Mode >= 3 {
			obs.Altitude = report.Alt / 1000
		}
		return obs, nil
	}

	if err := scanner.Err(); err != nil {
		return orbit.Observer{}, fmt.Errorf("gpsd read: %w", err)
	}
	return orbit.Observer{}, fmt.Errorf("gpsd: connection closed before a fix")
}

// Observer returns the configured station position. Config altitude is in
// metres.
func Observer(cfg config.StationConfig) orbit.Observer {
	return orbit.Observer{
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		Altitude:  cfg.Altitude / 1000,
	}
}

// Resolve determines the station position. With use_gpsd set it tries gpsd
// for up to timeout and falls back to the config values.
func Resolve(ctx context.Context, cfg config.StationConfig, timeout time.Duration, log *slog.Logger) (Location, error) {
	log = logging.Component(log, "station")
	if cfg.UseGPSD {
		gctx, cancel := context.WithTimeout(ctx, timeout)
		obs, err := FromGPSDAddr(gctx, cfg.GPSDHost)
		cancel()
		if err == nil {
			if err = obs.Validate(); err == nil {
				log.Info("location from gpsd",
					slog.Float64("lat", obs.Latitude),
					slog.Float64("lon", obs.Longitude),
					slog.Float64("alt_km", obs.Altitude))
				return Location{Observer: obs, Source: FromGPSD}, nil
			}
		}
		log.Warn("gpsd failed, falling back to config", slog.Any("err", err))
	}

	obs := Observer(cfg)
	if err := obs.Validate(); err != nil {
		return Location{}, fmt.Errorf("station config: %w", err)
	}
	return Location{Observer: obs, Source: FromConfig}, nil
}
