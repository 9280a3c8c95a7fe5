package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the companion engine.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	clipsStartedTotal    prometheus.Counter
	clipErrorsTotal      prometheus.Counter
	playbackStopsTotal   prometheus.Counter
	unitsMemorizedTotal  prometheus.Counter
	reviewsRecordedTotal prometheus.Counter
	syncPushesTotal      prometheus.Counter
	syncFailuresTotal    prometheus.Counter
	activePlayback       prometheus.Gauge
	dueUnits             prometheus.Gauge
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		clipsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_clips_started_total",
			Help: "Total number of audio clips successfully started",
		}),
		clipErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_clip_errors_total",
			Help: "Total number of clip load or playback failures",
		}),
		playbackStopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_playback_stops_total",
			Help: "Total number of playback session teardowns",
		}),
		unitsMemorizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_units_memorized_total",
			Help: "Total number of units marked memorized",
		}),
		reviewsRecordedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_reviews_recorded_total",
			Help: "Total number of review outcomes recorded",
		}),
		syncPushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_sync_pushes_total",
			Help: "Total number of successful remote state pushes",
		}),
		syncFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qc_sync_failures_total",
			Help: "Total number of failed remote sync attempts",
		}),
		activePlayback: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qc_active_playback",
			Help: "1 while a playback session is active, 0 otherwise",
		}),
		dueUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qc_due_units",
			Help: "Number of units currently due for spaced review",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.clipsStartedTotal,
		m.clipErrorsTotal,
		m.playbackStopsTotal,
		m.unitsMemorizedTotal,
		m.reviewsRecordedTotal,
		m.syncPushesTotal,
		m.syncFailuresTotal,
		m.activePlayback,
		m.dueUnits,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the HTTP errors counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// IncClipsStarted increments the clips started counter.
func (m *Metrics) IncClipsStarted() { m.clipsStartedTotal.Inc() }

// IncClipErrors increments the clip failure counter.
func (m *Metrics) IncClipErrors() { m.clipErrorsTotal.Inc() }

// IncPlaybackStops increments the playback teardown counter.
func (m *Metrics) IncPlaybackStops() { m.playbackStopsTotal.Inc() }

// IncUnitsMemorized increments the memorized units counter.
func (m *Metrics) IncUnitsMemorized() { m.unitsMemorizedTotal.Inc() }

// IncReviewsRecorded increments the recorded reviews counter.
func (m *Metrics) IncReviewsRecorded() { m.reviewsRecordedTotal.Inc() }

// IncSyncPushes increments the successful sync push counter.
func (m *Metrics) IncSyncPushes() { m.syncPushesTotal.Inc() }

// IncSyncFailures increments the failed sync counter.
func (m *Metrics) IncSyncFailures() { m.syncFailuresTotal.Inc() }

// SetActivePlayback sets the active playback gauge.
func (m *Metrics) SetActivePlayback(active bool) {
	if active {
		m.activePlayback.Set(1)
	} else {
		m.activePlayback.Set(0)
	}
}

// SetDueUnits sets the due units gauge.
func (m *Metrics) SetDueUnits(n int) { m.dueUnits.Set(float64(n)) }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
