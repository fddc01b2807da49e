// Package scheduler owns the refresh loop that drives the orbitwatch daemon.
// It is the only goroutine that mutates the registry: on start it ingests
// the catalog, loads element sets and prunes, then repeats the refresh every
// tle_refresh_hours. HTTP handlers reach it through the Commands channel.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/large-farva/orbitwatch/internal/config"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/metrics"
	"github.com/large-farva/orbitwatch/internal/registry"
	"github.com/large-farva/orbitwatch/internal/sources"
	"github.com/large-farva/orbitwatch/internal/telemetry"
)

// Daemon states reported through setState.
const (
	StateBooting    = "BOOTING"
	StateIdle       = "IDLE"
	StateRefreshing = "REFRESHING"
	StatePruning    = "PRUNING"
	StatePaused     = "PAUSED"
)

// Command types.
const (
	CmdRefresh = "tle_refresh"
	CmdPrune   = "prune"
	CmdPause   = "pause"
	CmdResume  = "resume"
)

// Command represents an external command sent to the scheduler via its
// Commands channel. The Reply channel receives exactly one result.
type Command struct {
	Type    string
	Payload json.RawMessage
	Reply   chan<- CommandResult
}

// CommandResult is the response sent back through a Command's Reply channel.
type CommandResult struct {
	OK      bool                  `json:"ok"`
	Message string                `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
	Cycle   *CycleReport          `json:"cycle,omitempty"`
	Prune   *registry.PruneReport `json:"prune,omitempty"`
}

// CycleReport summarizes one refresh cycle.
type CycleReport struct {
	Ingest  *registry.IngestReport `json:"ingest,omitempty"`
	Refresh *sources.RefreshReport `json:"refresh,omitempty"`
	Load    registry.LoadReport    `json:"load"`
	Prune   *registry.PruneReport  `json:"prune,omitempty"`
}

// Refresher fetches fresh TLEs for the given ids. sources.Live satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, ids []int) (sources.RefreshReport, error)
}

// Broadcaster receives operator-facing events.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Options wires a Runner.
type Options struct {
	Registry *registry.Registry
	// Catalog is re-read each cycle; nil skips ingestion.
	Catalog sources.CatalogSource
	// Refresher is nil in offline mode.
	Refresher Refresher
	Cfg       config.Config
	Metrics   *metrics.Collector
	Events    Broadcaster
	Log       *slog.Logger
}

// Runner owns the refresh loop.
type Runner struct {
	opts Options
	log  *slog.Logger

	// Commands receives external commands from HTTP handlers.
	// The scheduler checks this channel during wait periods.
	Commands chan Command

	paused   atomic.Bool
	lastRun  atomic.Pointer[CycleReport]
	lastErr  atomic.Pointer[string]
	setState func(string)
}

// New creates a scheduler.
func New(opts Options) *Runner {
	return &Runner{
		opts:     opts,
		log:      logging.Component(opts.Log, "scheduler"),
		Commands: make(chan Command, 4),
		setState: func(string) {},
	}
}

// IsPaused reports whether periodic refreshes are paused.
func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

// LastCycle returns the most recent completed cycle, if any.
func (r *Runner) LastCycle() *CycleReport {
	return r.lastRun.Load()
}

// Run bootstraps the registry and then refreshes it periodically until ctx
// is cancelled.
//
// Lifecycle:
//  1. Ingest the catalog, load element sets, prune (BOOTING -> REFRESHING)
//  2. Sleep for tle_refresh_hours, handling commands as they arrive (IDLE)
//  3. Refresh, load and prune again, loop back to step 2
func (r *Runner) Run(ctx context.Context, setState func(string)) {
	if setState != nil {
		r.setState = setState
	}
	r.logEvent(slog.LevelInfo, "scheduler started")

	if _, err := r.cycle(ctx, true); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logEvent(slog.LevelError, "initial refresh failed: "+err.Error())
	}

	interval := time.Duration(r.opts.Cfg.Predict.TLERefreshHours) * time.Hour
	for {
		if ctx.Err() != nil {
			return
		}

		if r.paused.Load() {
			r.setState(StatePaused)
			// Sleep for a very long time; a resume command will interrupt.
			if r.sleepOrCommand(ctx, 24*365*time.Hour) == sleepCancelled {
				return
			}
			continue
		}

		r.setState(StateIdle)
		switch r.sleepOrCommand(ctx, interval) {
		case sleepCancelled:
			return
		case sleepInterrupted:
			continue
		}

		if _, err := r.cycle(ctx, false); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logEvent(slog.LevelError, "refresh failed: "+err.Error())
		}
	}
}

// cycle runs ingest, TLE refresh, element load and, when configured or on
// the first run, a prune.
func (r *Runner) cycle(ctx context.Context, first bool) (*CycleReport, error) {
	r.setState(StateRefreshing)
	rep := &CycleReport{}
	reg := r.opts.Registry

	if r.opts.Catalog != nil {
		c, err := r.opts.Catalog.Catalog(ctx)
		switch {
		case err == nil:
			ing := reg.Ingest(c.Satellites, c.Transmitters)
			rep.Ingest = &ing
			if c.Malformed > 0 {
				r.log.Warn("undecodable catalog records skipped", slog.Int("count", c.Malformed))
			}
		case first:
			r.recordErr(err)
			return rep, fmt.Errorf("catalog: %w", err)
		default:
			// Keep the satellites we already have.
			r.log.Warn("catalog refresh failed", slog.Any("err", err))
		}
	}

	if r.opts.Refresher != nil {
		fetched, err := r.opts.Refresher.Refresh(ctx, reg.IDs())
		r.opts.Metrics.ObserveRefresh(fetched.Records, err)
		if err != nil {
			r.recordErr(err)
			return rep, fmt.Errorf("TLE refresh: %w", err)
		}
		rep.Refresh = &fetched
		r.emit(telemetry.Refresh{
			Event:        telemetry.New(telemetry.EventRefresh, "scheduler"),
			Records:      fetched.Records,
			Missing:      fetched.Missing,
			SatNOGSAdded: fetched.SatNOGSAdded,
			Cached:       fetched.CelesTrakCached || fetched.SatNOGSCached,
		})
	}

	load, err := reg.LoadElements(ctx)
	if err != nil {
		r.recordErr(err)
		return rep, err
	}
	rep.Load = load

	if first || r.opts.Cfg.Predict.PruneOnRefresh {
		pr, err := r.prune(ctx)
		if err != nil {
			r.recordErr(err)
			return rep, err
		}
		rep.Prune = &pr
	}

	r.lastRun.Store(rep)
	r.lastErr.Store(nil)
	r.logEvent(slog.LevelInfo, fmt.Sprintf("refresh complete, %d satellites tracked", reg.Len()))
	return rep, nil
}

func (r *Runner) prune(ctx context.Context) (registry.PruneReport, error) {
	r.setState(StatePruning)
	timeout := time.Duration(r.opts.Cfg.Predict.TimeoutSeconds) * time.Second
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.opts.Registry.Prune(pctx)
}

// LastError returns the error of the last failed cycle, or "".
func (r *Runner) LastError() string {
	if p := r.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

func (r *Runner) recordErr(err error) {
	msg := err.Error()
	r.lastErr.Store(&msg)
}

// sleepResult indicates what ended a sleep period.
type sleepResult int

const (
	sleepCompleted   sleepResult = iota // timer expired normally
	sleepCancelled                      // context was cancelled
	sleepInterrupted                    // a command was received and handled
)

// sleepOrCommand blocks for duration d, until ctx is cancelled, or until a
// command arrives on r.Commands. Commands are handled inline. Returns what
// ended the sleep.
func (r *Runner) sleepOrCommand(ctx context.Context, d time.Duration) sleepResult {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return sleepCancelled
	case <-t.C:
		return sleepCompleted
	case cmd := <-r.Commands:
		r.handleCommand(ctx, cmd)
		return sleepInterrupted
	}
}

// handleCommand dispatches an incoming command to the appropriate handler.
func (r *Runner) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case CmdRefresh:
		r.handleRefreshCommand(ctx, cmd)
	case CmdPrune:
		r.handlePruneCommand(ctx, cmd)
	case CmdPause:
		r.handlePauseCommand(cmd)
	case CmdResume:
		r.handleResumeCommand(cmd)
	default:
		cmd.Reply <- CommandResult{OK: false, Error: "unknown command: " + cmd.Type}
	}
}

// handleRefreshCommand forces an immediate refresh cycle.
func (r *Runner) handleRefreshCommand(ctx context.Context, cmd Command) {
	rep, err := r.cycle(ctx, false)
	if err != nil {
		cmd.Reply <- CommandResult{OK: false, Error: "TLE refresh failed: " + err.Error(), Cycle: rep}
		return
	}
	cmd.Reply <- CommandResult{
		OK:      true,
		Message: fmt.Sprintf("TLE data refreshed, %d element sets resolved", rep.Load.Resolved),
		Cycle:   rep,
	}
}

func (r *Runner) handlePruneCommand(ctx context.Context, cmd Command) {
	rep, err := r.prune(ctx)
	if err != nil {
		msg := "prune failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "prune timed out: " + err.Error()
		}
		cmd.Reply <- CommandResult{OK: false, Error: msg}
		return
	}
	cmd.Reply <- CommandResult{
		OK:      true,
		Message: fmt.Sprintf("%s prune removed %d satellites, %d active", rep.Mode, len(rep.Removed), rep.Active),
		Prune:   &rep,
	}
}

func (r *Runner) handlePauseCommand(cmd Command) {
	if r.paused.Load() {
		cmd.Reply <- CommandResult{OK: true, Message: "scheduler already paused"}
		return
	}
	r.paused.Store(true)
	r.logEvent(slog.LevelInfo, "scheduler paused by user")
	cmd.Reply <- CommandResult{OK: true, Message: "scheduler paused"}
}

func (r *Runner) handleResumeCommand(cmd Command) {
	if !r.paused.Load() {
		cmd.Reply <- CommandResult{OK: true, Message: "scheduler already running"}
		return
	}
	r.paused.Store(false)
	r.logEvent(slog.LevelInfo, "scheduler resumed by user")
	cmd.Reply <- CommandResult{OK: true, Message: "scheduler resumed"}
}

// logEvent logs msg and mirrors it to WebSocket clients.
func (r *Runner) logEvent(level slog.Level, msg string) {
	r.log.Log(context.Background(), level, msg)
	r.emit(telemetry.LogLine{
		Event:   telemetry.New(telemetry.EventLog, "scheduler"),
		Level:   levelName(level),
		Message: msg,
	})
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

func (r *Runner) emit(v any) {
	if r.opts.Events != nil {
		r.opts.Events.BroadcastJSON(v)
	}
}
