package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"authwatch/internal/geo"
	"authwatch/internal/model"
)

var (
	eventsHeader    = []string{"timestamp", "event_code", "event_type", "username", "source_addr", "status", "raw"}
	alertsHeader    = []string{"axis", "key", "window_start", "window_end", "count", "related_sources", "related_accounts"}
	alertsGeoHeader = append(append([]string{}, alertsHeader...), "country", "city", "latitude", "longitude")
	anomaliesHeader = []string{"source_addr", "total_failures", "distinct_accounts", "failures_per_min", "anomaly_score", "anomalous"}
	sourcesHeader   = []string{"source_addr", "failures", "country", "region", "city", "latitude", "longitude"}
)

// writeCSV writes the header row unconditionally so empty runs still produce
// files with a parseable schema.
func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func eventRows(events []model.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			formatTime(ev.Timestamp),
			strconv.Itoa(ev.EventCode),
			string(ev.EventType),
			ev.Username,
			ev.SourceAddr,
			ev.Status,
			ev.Raw,
		})
	}
	return rows
}

func alertRows(alerts []model.Alert, annotate bool) [][]string {
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		row := []string{
			string(a.Axis),
			a.Key,
			formatTime(a.WindowStart),
			formatTime(a.WindowEnd),
			strconv.Itoa(a.Count),
			strings.Join(a.RelatedSources, ";"),
			strings.Join(a.RelatedAccounts, ";"),
		}
		if annotate {
			loc := geo.Unknown
			if a.Axis == model.AxisIP {
				loc = geo.Lookup(a.Key)
			}
			row = append(row, loc.Country, loc.City, formatCoord(loc.Latitude), formatCoord(loc.Longitude))
		}
		rows = append(rows, row)
	}
	return rows
}

func anomalyRows(anomalies []model.AnomalyResult) [][]string {
	rows := make([][]string, 0, len(anomalies))
	for _, a := range anomalies {
		rows = append(rows, []string{
			a.SourceAddr,
			strconv.Itoa(a.TotalFailures),
			strconv.Itoa(a.DistinctAccounts),
			strconv.FormatFloat(a.FailuresPerMin, 'f', 2, 64),
			strconv.FormatFloat(a.AnomalyScore, 'f', 4, 64),
			strconv.FormatBool(a.Anomalous),
		})
	}
	return rows
}

// sourceRows aggregates failing source addresses joined with their mock
// geolocation, one row per address.
func sourceRows(events []model.Event) [][]string {
	counts := make(map[string]int)
	for _, ev := range events {
		if ev.EventType != model.EventFailedLogin || ev.SourceAddr == "" {
			continue
		}
		counts[ev.SourceAddr]++
	}
	addrs := make([]string, 0, len(counts))
	for addr := range counts {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	rows := make([][]string, 0, len(addrs))
	for _, addr := range addrs {
		loc := geo.Lookup(addr)
		rows = append(rows, []string{
			addr,
			strconv.Itoa(counts[addr]),
			loc.Country,
			loc.Region,
			loc.City,
			formatCoord(loc.Latitude),
			formatCoord(loc.Longitude),
		})
	}
	return rows
}
