// Package app wires the HTTP API, the WebSocket hub and the scheduler into
// the orbitwatch daemon. It owns the process lifecycle and is the single
// source of truth for the daemon's operating state.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/large-farva/orbitwatch/internal/config"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/metrics"
	"github.com/large-farva/orbitwatch/internal/registry"
	"github.com/large-farva/orbitwatch/internal/scheduler"
	"github.com/large-farva/orbitwatch/internal/station"
	"github.com/large-farva/orbitwatch/internal/telemetry"
	"github.com/large-farva/orbitwatch/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Cfg        config.Config
	ConfigPath string
	// Bind overrides cfg.Server.Bind.
	Bind string

	Registry  *registry.Registry
	Scheduler *scheduler.Runner
	Hub       *ws.Hub
	Metrics   *metrics.Collector
	// Station is the default observer for requests that name none.
	Station station.Location
	// TLEPath is the file tle-info inspects.
	TLEPath string

	Log *slog.Logger
}

// App is the daemon process.
type App struct {
	opts   Options
	cfg    config.Config
	log    *slog.Logger
	reg    *registry.Registry
	sched  *scheduler.Runner
	hub    *ws.Hub
	server *http.Server

	startedAt time.Time
	state     atomic.Value // string
}

// New creates an App in the BOOTING state. Call Run to start serving.
func New(opts Options) *App {
	a := &App{
		opts:      opts,
		cfg:       opts.Cfg,
		log:       logging.Component(opts.Log, "app"),
		reg:       opts.Registry,
		sched:     opts.Scheduler,
		hub:       opts.Hub,
		startedAt: time.Now(),
	}
	a.state.Store(scheduler.StateBooting)
	return a
}

// State returns the current operating state.
func (a *App) State() string { return a.state.Load().(string) }

// Run starts the HTTP server, the hub, the heartbeat ticker and the
// scheduler. It blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	bind := a.opts.Bind
	if bind == "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8001"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	a.log.Info("listening", slog.String("url", "http://"+ln.Addr().String()))

	if a.hub != nil {
		go a.hub.Run(ctx)
	}
	go a.heartbeatLoop(ctx)
	if a.sched != nil {
		go a.sched.Run(ctx, a.transition)
	}

	go func() {
		<-ctx.Done()
		a.log.Info("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(sctx)
	}()

	if err := a.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// transition updates the daemon state and broadcasts the change.
func (a *App) transition(newState string) {
	old := a.State()
	if old == newState {
		return
	}
	a.state.Store(newState)
	a.log.Debug("state change", slog.String("from", old), slog.String("to", newState))
	a.broadcast(telemetry.StateTransition{
		Event: telemetry.New(telemetry.EventState, "orbitwatchd"),
		From:  old,
		To:    newState,
	})
}

// Heartbeat builds the periodic liveness event. The hub also sends one to
// every new subscriber.
func (a *App) Heartbeat() telemetry.Heartbeat {
	hb := telemetry.Heartbeat{
		Event:         telemetry.New(telemetry.EventHeartbeat, "orbitwatchd"),
		State:         a.State(),
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
	}
	if a.reg != nil {
		hb.Satellites = a.reg.Len()
	}
	return hb
}

func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.broadcast(a.Heartbeat())
		}
	}
}

func (a *App) broadcast(v any) {
	if a.hub != nil {
		a.hub.BroadcastJSON(v)
	}
}
