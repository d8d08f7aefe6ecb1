// Package metrics exposes Prometheus collectors for the analysis pipeline.
// Counters accumulate across runs; the run_* gauges always reflect the most
// recent run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed analysis runs.
	OutcomeSuccess = "success"
	// OutcomeError labels runs that failed before producing results.
	OutcomeError = "error"
)

var (
	recordsReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "authwatch",
			Name:      "records_read_total",
			Help:      "Raw log records read from input files.",
		},
	)

	recordsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "authwatch",
			Name:      "records_dropped_total",
			Help:      "Input records dropped as unparseable.",
		},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authwatch",
			Name:      "events_total",
			Help:      "Canonical events produced, partitioned by event type.",
		},
		[]string{"type"},
	)

	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authwatch",
			Name:      "analyses_total",
			Help:      "Analysis runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "authwatch",
			Name:      "analysis_seconds",
			Help:      "End-to-end analysis latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	runAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "authwatch",
			Name:      "run_alerts",
			Help:      "Brute-force alerts raised by the latest run, partitioned by axis.",
		},
		[]string{"axis"},
	)

	runAnomalousSources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "authwatch",
			Name:      "run_anomalous_sources",
			Help:      "Source addresses flagged anomalous by the latest run.",
		},
	)
)

// Register attaches the collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		recordsReadTotal,
		recordsDroppedTotal,
		eventsTotal,
		analysesTotal,
		analysisSeconds,
		runAlerts,
		runAnomalousSources,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func AddRecordsRead(n int) {
	if n > 0 {
		recordsReadTotal.Add(float64(n))
	}
}

func AddRecordsDropped(n int) {
	if n > 0 {
		recordsDroppedTotal.Add(float64(n))
	}
}

func CountEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveAnalysis records one run's duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisSeconds.Observe(duration.Seconds())
}

// SetRunResults updates the latest-run gauges.
func SetRunResults(ipAlerts, userAlerts, anomalous int) {
	runAlerts.WithLabelValues("ip").Set(float64(ipAlerts))
	runAlerts.WithLabelValues("username").Set(float64(userAlerts))
	runAnomalousSources.Set(float64(anomalous))
}
