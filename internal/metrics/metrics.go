// Package metrics exposes Prometheus collectors for the alert service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal           prometheus.Counter
	cycleDurationSeconds  prometheus.Histogram
	snapshotsTotal        *prometheus.CounterVec
	productsObserved      *prometheus.GaugeVec
	changesDetectedTotal  *prometheus.CounterVec
	alertsSentTotal       *prometheus.CounterVec
	sendFailuresTotal     prometheus.Counter
	pendingQueuedTotal    prometheus.Counter
	cacheEvictionsTotal   prometheus.Counter
	sessionRestartsTotal  prometheus.Counter
	digestDispatchesTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "alertbot_cycles_total",
			Help: "Total number of completed scrape cycles.",
		})

		cycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertbot_cycle_duration_seconds",
			Help:    "Histogram of full scrape-cycle latencies.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		})

		snapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertbot_snapshots_total",
				Help: "Total snapshots fetched, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		productsObserved = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alertbot_products_observed",
				Help: "Products seen in the latest snapshot, labeled by pincode and state.",
			},
			[]string{"pincode", "state"},
		)

		changesDetectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertbot_changes_detected_total",
				Help: "Snapshots that produced a user-visible change, labeled by pincode.",
			},
			[]string{"pincode"},
		)

		alertsSentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertbot_alerts_sent_total",
				Help: "Messages delivered to the sink, labeled by kind (instant, hourly, daily).",
			},
			[]string{"kind"},
		)

		sendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "alertbot_send_failures_total",
			Help: "Sink deliveries that failed after all attempts.",
		})

		pendingQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "alertbot_pending_alerts_queued_total",
			Help: "Alerts deferred into the pending queue.",
		})

		cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "alertbot_cache_evictions_total",
			Help: "Status-cache rows removed by age-based eviction.",
		})

		sessionRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "alertbot_session_restarts_total",
			Help: "Browser sessions replaced after a session-fatal failure.",
		})

		digestDispatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertbot_digest_dispatches_total",
				Help: "Digest deliveries, labeled by cadence and outcome.",
			},
			[]string{"cadence", "outcome"},
		)
	})
}

// ObserveCycle records one completed cycle and its duration.
func ObserveCycle(d time.Duration) {
	if cyclesTotal == nil {
		return
	}
	cyclesTotal.Inc()
	cycleDurationSeconds.Observe(d.Seconds())
}

// ObserveSnapshot counts a snapshot fetch by outcome (ok, mismatch, restart, error).
func ObserveSnapshot(outcome string) {
	if snapshotsTotal == nil {
		return
	}
	snapshotsTotal.WithLabelValues(outcome).Inc()
}

// SetProductsObserved records grid composition for a pincode.
func SetProductsObserved(pincode, state string, n int) {
	if productsObserved == nil {
		return
	}
	productsObserved.WithLabelValues(pincode, state).Set(float64(n))
}

// ObserveChange counts a change-producing snapshot for a pincode.
func ObserveChange(pincode string) {
	if changesDetectedTotal == nil {
		return
	}
	changesDetectedTotal.WithLabelValues(pincode).Inc()
}

// ObserveAlertSent counts a delivered message.
func ObserveAlertSent(kind string) {
	if alertsSentTotal == nil {
		return
	}
	alertsSentTotal.WithLabelValues(kind).Inc()
}

// ObserveSendFailure counts a delivery that failed after all attempts.
func ObserveSendFailure() {
	if sendFailuresTotal == nil {
		return
	}
	sendFailuresTotal.Inc()
}

// ObservePendingQueued counts alerts deferred into the pending queue.
func ObservePendingQueued(n int) {
	if pendingQueuedTotal == nil {
		return
	}
	pendingQueuedTotal.Add(float64(n))
}

// ObserveEvictions counts evicted status-cache rows.
func ObserveEvictions(n int64) {
	if cacheEvictionsTotal == nil || n <= 0 {
		return
	}
	cacheEvictionsTotal.Add(float64(n))
}

// ObserveSessionRestart counts a browser session replacement.
func ObserveSessionRestart() {
	if sessionRestartsTotal == nil {
		return
	}
	sessionRestartsTotal.Inc()
}

// ObserveDigest counts a digest dispatch by cadence and outcome.
func ObserveDigest(cadence, outcome string) {
	if digestDispatchesTotal == nil {
		return
	}
	digestDispatchesTotal.WithLabelValues(cadence, outcome).Inc()
}
