package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/large-farva/orbitwatch/internal/catalog"
	"github.com/large-farva/orbitwatch/internal/orbit"
	"github.com/large-farva/orbitwatch/internal/passes"
	"github.com/large-farva/orbitwatch/internal/registry"
	"github.com/large-farva/orbitwatch/internal/scheduler"
	"github.com/large-farva/orbitwatch/internal/sources"
)

// errBadRequest marks malformed query parameters and bodies.
var errBadRequest = errors.New("bad request")

// Handler builds the daemon's routes. Every API route is instrumented.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, a.opts.Metrics.Middleware(pattern, h))
	}

	route("GET /healthz", a.handleHealthz)
	route("GET /api/status", a.handleStatus)
	route("GET /api/version", a.handleVersion)
	route("GET /api/config", a.handleConfig)
	route("GET /api/tle-info", a.handleTLEInfo)

	route("GET /api/satellites", a.handleSatellites)
	route("GET /api/satellites/by-name", a.handleByName)
	route("GET /api/satellites/by-id", a.handleByID)
	route("GET /api/satellites/{id}", a.handleSatellite)
	route("POST /api/satellites/{id}/transmitters/{uuid}/select", a.handleSelectTransmitter)

	route("POST /api/predict-now", a.handlePredictNow)
	route("POST /api/predict-batch", a.handlePredictBatch)
	route("GET /api/passes", a.handlePasses)
	route("GET /api/next-pass", a.handleNextPass)

	route("POST /api/tle-refresh", a.commandHandler(scheduler.CmdRefresh))
	route("POST /api/prune", a.commandHandler(scheduler.CmdPrune))
	route("POST /api/pause", a.commandHandler(scheduler.CmdPause))
	route("POST /api/resume", a.commandHandler(scheduler.CmdResume))

	if a.opts.Metrics != nil {
		mux.Handle("GET /metrics", a.opts.Metrics.Handler())
	}
	if a.hub != nil {
		mux.Handle("GET /ws", a.opts.Metrics.Middleware("GET /ws", a.hub.Handler()))
	}
	return mux
}

// ---------------------------------------------------------------------------
// Daemon
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// diskFullPercent marks the data volume unhealthy; the TLE merge and
// snapshots need headroom to write their temp files.
const diskFullPercent = 98

type healthCheck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Path  string `json:"path,omitempty"`
	AgeS  int    `json:"age_s,omitempty"`
	Count int    `json:"count,omitempty"`
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]healthCheck{}
	allOK := true

	tmp := filepath.Join(a.cfg.Data.Root, ".healthcheck")
	if err := os.WriteFile(tmp, []byte("ok"), 0o644); err != nil {
		checks["data_dir"] = healthCheck{Error: err.Error()}
		allOK = false
	} else {
		_ = os.Remove(tmp)
		checks["data_dir"] = healthCheck{OK: true, Path: a.cfg.Data.Root}
	}

	if info, err := os.Stat(a.opts.TLEPath); err != nil {
		checks["tle_file"] = healthCheck{Error: "TLE file not found", Path: a.opts.TLEPath}
		allOK = false
	} else {
		age := time.Since(info.ModTime())
		// Replay never refreshes, so its file is allowed to age.
		fresh := a.cfg.Sources.Offline || age < 2*time.Duration(a.cfg.Predict.TLERefreshHours)*time.Hour
		allOK = allOK && fresh
		checks["tle_file"] = healthCheck{OK: fresh, Path: a.opts.TLEPath, AgeS: int(age.Seconds())}
	}

	if d := diskUsage(a.cfg.Data.Root); d == nil {
		checks["disk"] = healthCheck{Error: "disk usage unavailable", Path: a.cfg.Data.Root}
	} else {
		c := healthCheck{OK: d.UsedPercent < diskFullPercent, Path: a.cfg.Data.Root}
		if !c.OK {
			c.Error = fmt.Sprintf("data volume %.0f%% full", d.UsedPercent)
		}
		allOK = allOK && c.OK
		checks["disk"] = c
	}

	n := a.reg.Len()
	checks["registry"] = healthCheck{OK: n > 0, Count: n}
	allOK = allOK && n > 0

	if msg := a.sched.LastError(); msg != "" {
		checks["scheduler"] = healthCheck{Error: msg}
		allOK = false
	} else {
		checks["scheduler"] = healthCheck{OK: true}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"healthy": allOK, "checks": checks})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Name          string                 `json:"name"`
	Version       string                 `json:"version"`
	State         string                 `json:"state"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Paused        bool                   `json:"paused"`
	Offline       bool                   `json:"offline"`
	DataRoot      string                 `json:"data_root"`
	Station       any                    `json:"station"`
	Registry      registry.Status        `json:"registry"`
	LastCycle     *scheduler.CycleReport `json:"last_cycle,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	WSClients     int                    `json:"ws_clients"`
	Disk          *diskStats             `json:"disk,omitempty"`
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Name:          "orbitwatchd",
		Version:       Version,
		State:         a.State(),
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
		Paused:        a.sched.IsPaused(),
		Offline:       a.cfg.Sources.Offline,
		DataRoot:      a.cfg.Data.Root,
		Station:       a.opts.Station,
		Registry:      a.reg.Status(),
		LastCycle:     a.sched.LastCycle(),
		LastError:     a.sched.LastError(),
		Disk:          diskUsage(a.cfg.Data.Root),
	}
	if a.hub != nil {
		resp.WSClients = a.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versionInfo())
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   a.opts.ConfigPath,
		"config": a.cfg,
	})
}

func (a *App) handleTLEInfo(w http.ResponseWriter, _ *http.Request) {
	info, err := sources.Inspect(a.opts.TLEPath)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	st := a.reg.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"file":          info,
		"source":        st.Source,
		"mode":          st.Mode,
		"last_load":     st.LastLoad,
		"refresh_hours": a.cfg.Predict.TLERefreshHours,
	})
}

// ---------------------------------------------------------------------------
// Satellites
// ---------------------------------------------------------------------------

func (a *App) handleSatellites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"satellites": a.reg.Satellites()})
}

func (a *App) handleByName(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.reg.ByName())
}

func (a *App) handleByID(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.reg.ByID())
}

func (a *App) handleSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		jsonError(w, "catalog id must be an integer", http.StatusBadRequest)
		return
	}
	sat, err := a.reg.Lookup(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sat.Snapshot())
}

func (a *App) handleSelectTransmitter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		jsonError(w, "catalog id must be an integer", http.StatusBadRequest)
		return
	}
	tx, err := a.reg.SelectTransmitter(id, r.PathValue("uuid"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "transmitter": tx})
}

// ---------------------------------------------------------------------------
// Prediction
// ---------------------------------------------------------------------------

// PredictRequest is the body of POST /api/predict-now. Omitted observer
// coordinates fall back to the station.
type PredictRequest struct {
	CatalogID         int      `json:"catalog_id"`
	ObserverLatitude  *float64 `json:"observer_latitude"`
	ObserverLongitude *float64 `json:"observer_longitude"`
	// ObserverAltitude is metres, like the station config.
	ObserverAltitude *float64 `json:"observer_altitude"`
}

// PredictResponse is the body of POST /api/predict-now.
type PredictResponse struct {
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

	// Next pass within the lookahead window, when there is one.
	RiseTime         *time.Time `json:"rise_time"`
	SetTime          *time.Time `json:"set_time"`
	MaximumElevation *float64   `json:"maximum_elevation"`

	Transmitters []TransmitterFrequencies `json:"transmitters"`
}

// TransmitterFrequencies pairs a transmitter's base and shifted frequencies.
type TransmitterFrequencies struct {
	UUID            string  `json:"uuid"`
	Description     string  `json:"description"`
	Selected        bool    `json:"selected"`
	UplinkHz        float64 `json:"uplink_hz"`
	UplinkShifted   float64 `json:"uplink_shifted_hz"`
	DownlinkHz      float64 `json:"downlink_hz"`
	DownlinkShifted float64 `json:"downlink_shifted_hz"`
}

func frequencies(txs []catalog.Transmitter) []TransmitterFrequencies {
	out := make([]TransmitterFrequencies, 0, len(txs))
	for _, tx := range txs {
		out = append(out, TransmitterFrequencies{
			UUID:            tx.ID,
			Description:     tx.Description,
			Selected:        tx.Selected,
			UplinkHz:        tx.Uplink.Base,
			UplinkShifted:   tx.Uplink.Shifted(),
			DownlinkHz:      tx.Downlink.Base,
			DownlinkShifted: tx.Downlink.Shifted(),
		})
	}
	return out
}

func (a *App) handlePredictNow(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	obs := a.observer(req.ObserverLatitude, req.ObserverLongitude, req.ObserverAltitude)

	ctx, cancel := a.predictContext(r.Context())
	defer cancel()

	p, err := a.reg.PredictNow(ctx, req.CatalogID, obs)
	if err != nil {
		writeErr(w, err)
		return
	}
	pass, ok, err := a.reg.NextPass(ctx, req.CatalogID, obs, a.cfg.Station.MinElevation, 0)
	if err != nil {
		writeErr(w, err)
		return
	}

	geo, top := p.Prediction.Geocentric, p.Prediction.Topocentric
	resp := PredictResponse{
		CatalogID:       p.CatalogID,
		Name:            p.Name,
		Time:            p.Prediction.Time.UTC().Format(time.RFC3339),
		Latitude:        geo.SubPoint.Latitude,
		Longitude:       geo.SubPoint.Longitude,
		Altitude:        geo.SubPoint.Altitude,
		Elevation:       top.Elevation,
		Azimuth:         top.Azimuth,
		Range:           top.Range,
		RangeRate:       top.RangeRate,
		DopplerFraction: catalog.DopplerFraction(top.RangeRate),
		Transmitters:    frequencies(p.Transmitters),
	}
	if ok {
		resp.RiseTime, resp.SetTime = &pass.RiseTime, &pass.SetTime
		resp.MaximumElevation = &pass.MaximumElevation
	}
	writeJSON(w, http.StatusOK, resp)
}

// BatchRequest is the body of POST /api/predict-batch.
type BatchRequest struct {
	CatalogIDs        []int    `json:"catalog_ids"`
	ObserverLatitude  *float64 `json:"observer_latitude"`
	ObserverLongitude *float64 `json:"observer_longitude"`
	ObserverAltitude  *float64 `json:"observer_altitude"`
}

func (a *App) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.CatalogIDs) == 0 {
		req.CatalogIDs = a.reg.IDs()
	}
	obs := a.observer(req.ObserverLatitude, req.ObserverLongitude, req.ObserverAltitude)

	ctx, cancel := a.predictContext(r.Context())
	defer cancel()

	out, err := a.reg.PredictMany(ctx, req.CatalogIDs, obs, a.reg.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"observer":    obs,
		"predictions": out,
		"failed":      failed,
	})
}

func (a *App) handlePasses(w http.ResponseWriter, r *http.Request) {
	q, err := a.passQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	hours := float64(a.cfg.Predict.LookaheadHours)
	if v := r.URL.Query().Get("hours"); v != "" {
		if hours, err = strconv.ParseFloat(v, 64); err != nil || hours <= 0 || hours > 24*14 {
			jsonError(w, "hours must be in (0, 336]", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := a.predictContext(r.Context())
	defer cancel()

	start := a.reg.Now().UTC()
	end := start.Add(time.Duration(hours * float64(time.Hour)))
	res, err := a.reg.FindPasses(ctx, q.id, q.obs, q.minElevation, start, end)
	if err != nil {
		writeErr(w, err)
		return
	}
	if res.Passes == nil {
		res.Passes = []passes.Pass{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"catalog_id":    q.id,
		"observer":      q.obs,
		"min_elevation": q.minElevation,
		"start":         start,
		"end":           end,
		"result":        res,
	})
}

func (a *App) handleNextPass(w http.ResponseWriter, r *http.Request) {
	q, err := a.passQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := a.predictContext(r.Context())
	defer cancel()

	pass, ok, err := a.reg.NextPass(ctx, q.id, q.obs, q.minElevation, 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := map[string]any{"catalog_id": q.id, "observer": q.obs, "pass": nil}
	if ok {
		resp["pass"] = pass
		resp["duration_s"] = int(pass.Duration().Seconds())
		resp["countdown_s"] = max(0, int(time.Until(pass.RiseTime).Seconds()))
	}
	writeJSON(w, http.StatusOK, resp)
}

type passQuery struct {
	id           int
	obs          orbit.Observer
	minElevation float64
}

// passQuery reads catalog_id, lat, lon and min_elevation.
func (a *App) passQuery(r *http.Request) (passQuery, error) {
	v := r.URL.Query()
	id, err := strconv.Atoi(v.Get("catalog_id"))
	if err != nil {
		return passQuery{}, fmt.Errorf("%w: catalog_id must be an integer", errBadRequest)
	}
	lat, err := optFloat(v.Get("lat"))
	if err != nil {
		return passQuery{}, fmt.Errorf("%w: lat: %w", errBadRequest, err)
	}
	lon, err := optFloat(v.Get("lon"))
	if err != nil {
		return passQuery{}, fmt.Errorf("%w: lon: %w", errBadRequest, err)
	}
	q := passQuery{
		id:           id,
		obs:          a.observer(lat, lon, nil),
		minElevation: a.cfg.Station.MinElevation,
	}
	if s := v.Get("min_elevation"); s != "" {
		if q.minElevation, err = strconv.ParseFloat(s, 64); err != nil || q.minElevation < 0 || q.minElevation >= 90 {
			return passQuery{}, fmt.Errorf("%w: min_elevation must be in [0, 90)", errBadRequest)
		}
	}
	return q, nil
}

func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// observer fills missing coordinates from the station. Altitude is metres.
func (a *App) observer(lat, lon, altM *float64) orbit.Observer {
	obs := a.opts.Station.Observer
	if lat != nil {
		obs.Latitude = *lat
	}
	if lon != nil {
		obs.Longitude = *lon
	}
	if altM != nil {
		obs.Altitude = *altM / 1000
	}
	return obs
}

func (a *App) predictContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(a.cfg.Predict.TimeoutSeconds)*time.Second)
}

// ---------------------------------------------------------------------------
// Scheduler commands
// ---------------------------------------------------------------------------

func (a *App) commandHandler(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := a.sendSchedulerCommand(r.Context(), cmdType, nil)
		if err != nil {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeCommandResult(w, result)
	}
}

// sendSchedulerCommand sends a command to the scheduler and waits for the
// reply, giving up when ctx ends.
func (a *App) sendSchedulerCommand(ctx context.Context, cmdType string, payload json.RawMessage) (scheduler.CommandResult, error) {
	reply := make(chan scheduler.CommandResult, 1)
	cmd := scheduler.Command{Type: cmdType, Payload: payload, Reply: reply}
	select {
	case a.sched.Commands <- cmd:
	case <-ctx.Done():
		return scheduler.CommandResult{}, fmt.Errorf("scheduler busy: %w", ctx.Err())
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return scheduler.CommandResult{}, fmt.Errorf("no reply from scheduler: %w", ctx.Err())
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, orbit.ErrInvalidObserver), errors.Is(err, passes.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, catalog.ErrTransmitterNotFound):
		return http.StatusNotFound
	case errors.Is(err, orbit.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, orbit.ErrPropagation), errors.Is(err, registry.ErrNoElements):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	jsonError(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

// writeCommandResult writes a scheduler.CommandResult as JSON.
func writeCommandResult(w http.ResponseWriter, result scheduler.CommandResult) {
	code := http.StatusOK
	if !result.OK {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, result)
}
