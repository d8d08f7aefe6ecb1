package anomaly

import (
	"sort"
	"time"

	"authwatch/internal/model"
)

type sourceAgg struct {
	total    int
	accounts map[string]struct{}
	first    time.Time
	last     time.Time
}

// FeatureRows aggregates per-source failure behavior over a trailing horizon
// anchored at the latest failure timestamp. Events without a source address
// or a usable timestamp are ignored. Rows come back sorted by source
// address.
func FeatureRows(events []model.Event, horizon time.Duration) []model.FeatureRow {
	failures := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.EventType != model.EventFailedLogin || ev.Timestamp.IsZero() {
			continue
		}
		failures = append(failures, ev)
	}
	if len(failures) == 0 {
		return []model.FeatureRow{}
	}

	latest := failures[0].Timestamp
	for _, ev := range failures[1:] {
		if ev.Timestamp.After(latest) {
			latest = ev.Timestamp
		}
	}
	cutoff := latest.Add(-horizon)

	groups := make(map[string]*sourceAgg)
	for _, ev := range failures {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		if ev.SourceAddr == "" {
			continue
		}
		g, ok := groups[ev.SourceAddr]
		if !ok {
			g = &sourceAgg{accounts: make(map[string]struct{}), first: ev.Timestamp, last: ev.Timestamp}
			groups[ev.SourceAddr] = g
		}
		g.total++
		g.accounts[ev.Username] = struct{}{}
		if ev.Timestamp.Before(g.first) {
			g.first = ev.Timestamp
		}
		if ev.Timestamp.After(g.last) {
			g.last = ev.Timestamp
		}
	}

	addrs := make([]string, 0, len(groups))
	for addr := range groups {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	rows := make([]model.FeatureRow, 0, len(addrs))
	for _, addr := range addrs {
		g := groups[addr]
		// Floor the span at one minute so single-instant bursts do not blow
		// up the rate.
		span := g.last.Sub(g.first).Minutes()
		if span < 1 {
			span = 1
		}
		rows = append(rows, model.FeatureRow{
			SourceAddr:       addr,
			TotalFailures:    g.total,
			DistinctAccounts: len(g.accounts),
			FailuresPerMin:   float64(g.total) / span,
		})
	}
	return rows
}

// SortedResults flattens a result map into a slice ordered by source
// address, the shape reports and storage consume.
func SortedResults(results map[string]model.AnomalyResult) []model.AnomalyResult {
	addrs := make([]string, 0, len(results))
	for addr := range results {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	out := make([]model.AnomalyResult, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, results[addr])
	}
	return out
}
