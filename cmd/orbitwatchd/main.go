// Orbitwatchd is the orbitwatch daemon. It keeps a registry of amateur
// radio satellites with fresh element sets, prunes the ones that cannot be
// predicted and serves positions, passes and Doppler-corrected frequencies
// over HTTP. Shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/large-farva/orbitwatch/internal/app"
	"github.com/large-farva/orbitwatch/internal/cleanup"
	"github.com/large-farva/orbitwatch/internal/config"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/metrics"
	"github.com/large-farva/orbitwatch/internal/orbit"
	"github.com/large-farva/orbitwatch/internal/registry"
	"github.com/large-farva/orbitwatch/internal/scheduler"
	"github.com/large-farva/orbitwatch/internal/sources"
	"github.com/large-farva/orbitwatch/internal/station"
	"github.com/large-farva/orbitwatch/internal/tracing"
	"github.com/large-farva/orbitwatch/internal/ws"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/orbitwatch/orbitwatch.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		offline    = pflag.Bool("offline", false, "Replay cached data instead of fetching (overrides sources.offline)")
		version    = pflag.BoolP("version", "v", false, "Print version and exit")
	)
	pflag.Parse()

	if *version {
		fmt.Printf("orbitwatchd %s (%s, built %s)\n", app.Version, app.Commit, app.BuiltAt)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if pflag.CommandLine.Changed("offline") {
		cfg.Sources.Offline = *offline
	}

	log, closer, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, *bind, log); err != nil {
		log.Error("orbitwatchd failed", slog.Any("err", err))
		stop()
		closer.Close()
		os.Exit(1)
	}
	log.Info("orbitwatchd stopped")
}

func run(ctx context.Context, cfg config.Config, configPath, bind string, log *slog.Logger) error {
	if err := os.MkdirAll(cfg.Data.Root, 0o755); err != nil {
		return fmt.Errorf("data root: %w", err)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background(), shutdownTracing, log)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	col, err := metrics.New(promReg)
	if err != nil {
		return err
	}

	loc, err := station.Resolve(ctx, cfg.Station, 5*time.Second, log)
	if err != nil {
		return err
	}

	prop, err := orbit.NewSGP4(orbit.SGP4Options{
		MaxEpochAge: time.Duration(cfg.Predict.MaxEpochAgeDays * float64(24*time.Hour)),
		CacheSize:   cfg.Predict.ModelCacheSize,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: time.Duration(cfg.Sources.TimeoutSeconds) * time.Second}
	var (
		source    sources.TLESource
		refresher scheduler.Refresher
		mode      = registry.Live
		tlePath   = filepath.Join(cfg.Data.Root, sources.MergedFile)
	)
	if cfg.Sources.Offline {
		fs := sources.NewFileSource(cfg.Data.Root, sources.CacheFile)
		source, mode, tlePath = fs, registry.Replay, fs.Path()
	} else {
		live := sources.NewLive(cfg.Data.Root, sources.LiveOptions{
			CelesTrakURL:   cfg.Sources.CelesTrakURL,
			CelesTrakFiles: cfg.Sources.CelesTrakFiles,
			SatNOGSURL:     cfg.Sources.SatNOGSURL,
			Concurrency:    cfg.Sources.Concurrency,
		}, client, log)
		source, refresher = live, live
	}
	cat := sources.NewSatNOGSCatalog(cfg.Sources.SatNOGSURL, cfg.Data.Root,
		time.Duration(cfg.Sources.CatalogTTLHours)*time.Hour, cfg.Sources.Offline, client, log)

	// The hub greets each subscriber with a heartbeat from the app, which
	// exists before the hub starts running.
	var a *app.App
	hub := ws.NewHub(ws.Options{
		Hello: func() any { return a.Heartbeat() },
		Log:   log,
	})

	reg, err := registry.New(registry.Options{
		Propagator:  prop,
		Source:      source,
		Mode:        mode,
		Cleanup:     cleanup.NewStore(cfg.Data.Root),
		DataRoot:    cfg.Data.Root,
		Step:        time.Duration(cfg.Predict.StepSeconds) * time.Second,
		Lookahead:   time.Duration(cfg.Predict.LookaheadHours) * time.Hour,
		MaxParallel: cfg.Predict.MaxParallel,
		Metrics:     col,
		Events:      hub,
		Log:         log,
	})
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Registry:  reg,
		Catalog:   cat,
		Refresher: refresher,
		Cfg:       cfg,
		Metrics:   col,
		Events:    hub,
		Log:       log,
	})

	a = app.New(app.Options{
		Cfg:        cfg,
		ConfigPath: configPath,
		Bind:       bind,
		Registry:   reg,
		Scheduler:  sched,
		Hub:        hub,
		Metrics:    col,
		Station:    loc,
		TLEPath:    tlePath,
		Log:        log,
	})

	log.Info("orbitwatchd starting",
		slog.String("version", app.Version),
		slog.String("mode", mode.String()),
		slog.String("data_root", cfg.Data.Root),
		slog.String("station", string(loc.Source)),
	)
	return a.Run(ctx)
}
