// Package report renders one run's results as CSV and JSONL artifacts. CSV
// files are the human-facing exports with presentation rounding; the JSONL
// files carry the full-precision records for downstream tooling.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"authwatch/internal/model"
)

const (
	eventsFile         = "events.csv"
	alertsFile         = "bruteforce_alerts.csv"
	anomaliesFile      = "anomalies.csv"
	sourcesFile        = "sources.csv"
	alertsJSONLFile    = "bruteforce_alerts.jsonl"
	anomaliesJSONLFile = "anomalies.jsonl"
)

type Writer struct {
	dir      string
	annotate bool
	logger   *slog.Logger
}

// NewWriter targets dir, creating it on the first WriteAll. annotate enables
// the mock geolocation columns and the per-source geolocation export.
func NewWriter(dir string, annotate bool, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, annotate: annotate, logger: logger}
}

func (w *Writer) path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteAll renders every artifact for one run. Every file is written even
// when its section is empty.
func (w *Writer) WriteAll(res model.RunResult) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	header := alertsHeader
	if w.annotate {
		header = alertsGeoHeader
	}
	if err := writeCSV(w.path(eventsFile), eventsHeader, eventRows(res.Events)); err != nil {
		return err
	}
	if err := writeCSV(w.path(alertsFile), header, alertRows(res.Alerts, w.annotate)); err != nil {
		return err
	}
	if err := writeCSV(w.path(anomaliesFile), anomaliesHeader, anomalyRows(res.Anomalies)); err != nil {
		return err
	}
	if w.annotate {
		if err := writeCSV(w.path(sourcesFile), sourcesHeader, sourceRows(res.Events)); err != nil {
			return err
		}
	}
	if err := writeJSONLines(w.path(alertsJSONLFile), res.Alerts); err != nil {
		return err
	}
	if err := writeJSONLines(w.path(anomaliesJSONLFile), res.Anomalies); err != nil {
		return err
	}
	if w.logger != nil {
		w.logger.Info("reports written", "dir", w.dir, "alerts", len(res.Alerts), "anomalies", len(res.Anomalies))
	}
	return nil
}
