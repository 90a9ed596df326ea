// internal/app/system/telemetry/metrics.go
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// rosterWrites counts roster write attempts by action and outcome.
	rosterWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosterhub_roster_writes_total",
		Help: "Roster write attempts by action and outcome",
	}, []string{"action", "outcome"})

	// rosterRetries counts unconditional writes re-planned after losing a commit race.
	rosterRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosterhub_roster_retries_total",
		Help: "Unconditional roster writes re-planned after a concurrent commit",
	}, []string{"action"})

	// commitDuration tracks grouped commit latency.
	commitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rosterhub_roster_commit_duration_seconds",
		Help:    "Roster commit duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"action"})

	// pollDuration tracks delta poll latency.
	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rosterhub_sync_poll_duration_seconds",
		Help:    "Delta poll duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// activeStreams is the number of open push streams.
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rosterhub_sync_streams_active",
		Help: "Open push streams",
	})

	// streamEvents counts emitted push lines by kind ("change" or "heartbeat").
	streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosterhub_sync_stream_events_total",
		Help: "Push stream lines written by type",
	}, []string{"type"})

	// scanErrors counts swallowed push scan failures.
	scanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rosterhub_sync_scan_errors_total",
		Help: "Push stream scans that failed and were retried on the next tick",
	})

	// rateLimited counts rejected stream opens.
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rosterhub_sync_stream_rate_limited_total",
		Help: "Push stream opens rejected by the rate limiter",
	})
)

// Write outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNoop     = "noop"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

func RosterWrite(action, outcome string) { rosterWrites.WithLabelValues(action, outcome).Inc() }

func RosterRetry(action string) { rosterRetries.WithLabelValues(action).Inc() }

func CommitDuration(action string, d time.Duration) {
	commitDuration.WithLabelValues(action).Observe(d.Seconds())
}

func PollDuration(d time.Duration) { pollDuration.Observe(d.Seconds()) }

// StreamOpened increments the open-stream gauge and returns the matching
// decrement for a defer.
func StreamOpened() func() {
	activeStreams.Inc()
	return activeStreams.Dec
}

func StreamEvent(kind string) { streamEvents.WithLabelValues(kind).Inc() }

func ScanError() { scanErrors.Inc() }

func RateLimited() { rateLimited.Inc() }

// Handler serves the default registry for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
