// Package metrics bundles the daemon's Prometheus collectors and the HTTP
// middleware that records request counts and latency.
package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric orbitwatchd exports.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	SatellitesActive  prometheus.Gauge
	SatellitesRemoved *prometheus.CounterVec
	Predictions       *prometheus.CounterVec
	PredictDuration   prometheus.Histogram
	PassSearches      *prometheus.CounterVec
	PassesFound       prometheus.Counter
	Refreshes         *prometheus.CounterVec
	TLERecords        prometheus.Gauge
}

// New registers the collectors against reg, defaulting to the global
// registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitwatch_http_requests_total",
		Help: "HTTP requests handled, labeled by route, method and status code.",
	}, []string{"route", "method", "code"})); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbitwatch_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 20},
	}, []string{"route"})); err != nil {
		return nil, err
	}
	if c.SatellitesActive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_satellites_active",
		Help: "Satellites currently in the registry.",
	})); err != nil {
		return nil, err
	}
	if c.SatellitesRemoved, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitwatch_satellites_removed_total",
		Help: "Satellites removed by pruning, labeled by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if c.Predictions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitwatch_predictions_total",
		Help: "Single-instant predictions, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.PredictDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitwatch_predict_duration_seconds",
		Help:    "Time to propagate and observe one satellite.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
	})); err != nil {
		return nil, err
	}
	if c.PassSearches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitwatch_pass_searches_total",
		Help: "Pass searches, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.PassesFound, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitwatch_passes_found_total",
		Help: "Well-formed passes returned by pass searches.",
	})); err != nil {
		return nil, err
	}
	if c.Refreshes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitwatch_tle_refreshes_total",
		Help: "TLE refresh cycles, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.TLERecords, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitwatch_tle_records",
		Help: "Element sets in the merged TLE text.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SetActive records the registry size.
func (c *Collector) SetActive(n int) {
	if c == nil {
		return
	}
	c.SatellitesActive.Set(float64(n))
}

// ObserveRemoved counts pruned satellites by reason.
func (c *Collector) ObserveRemoved(reason string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.SatellitesRemoved.WithLabelValues(reason).Add(float64(n))
}

// ObservePrediction records one prediction's outcome and latency.
func (c *Collector) ObservePrediction(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.Predictions.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.PredictDuration.Observe(d.Seconds())
	}
}

// ObservePassSearch records one pass search.
func (c *Collector) ObservePassSearch(found int, err error) {
	if c == nil {
		return
	}
	c.PassSearches.WithLabelValues(result(err)).Inc()
	c.PassesFound.Add(float64(found))
}

// ObserveRefresh records a TLE refresh cycle.
func (c *Collector) ObserveRefresh(records int, err error) {
	if c == nil {
		return
	}
	c.Refreshes.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.TLERecords.Set(float64(records))
	}
}

// Middleware wraps next, labeling samples with route.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if c == nil {
			return
		}
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes through so WebSocket upgrades work behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// register adds col to reg, reusing an identical collector that is already
// registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
