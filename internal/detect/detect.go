package detect

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"authwatch/internal/model"
)

// Params carries the per-axis thresholds and window durations.
type Params struct {
	IPThreshold   int
	IPWindow      time.Duration
	UserThreshold int
	UserWindow    time.Duration
}

// Detector finds brute-force bursts in a batch of canonicalized events. It
// scans two independent axes: failures grouped by source address and
// failures grouped by username.
type Detector struct {
	params Params
	logger *slog.Logger
}

// New validates the parameters up front; non-positive thresholds or windows
// are caller errors and fail fast.
func New(params Params, logger *slog.Logger) (*Detector, error) {
	if params.IPThreshold <= 0 || params.UserThreshold <= 0 {
		return nil, errors.New("detect: thresholds must be positive")
	}
	if params.IPWindow <= 0 || params.UserWindow <= 0 {
		return nil, errors.New("detect: windows must be positive durations")
	}
	return &Detector{params: params, logger: logger}, nil
}

// Detect runs both axes over the same failure set and concatenates the
// results, ip axis first. The output is deterministic for a given input set
// regardless of input order, and re-running yields identical alerts.
func (d *Detector) Detect(events []model.Event) []model.Alert {
	failures := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.EventType != model.EventFailedLogin {
			continue
		}
		if ev.Timestamp.IsZero() {
			// Unordered events cannot participate in window comparisons.
			continue
		}
		failures = append(failures, ev)
	}

	alerts := make([]model.Alert, 0)
	alerts = append(alerts, d.scanAxis(failures, model.AxisIP, d.params.IPThreshold, d.params.IPWindow)...)
	alerts = append(alerts, d.scanAxis(failures, model.AxisUsername, d.params.UserThreshold, d.params.UserWindow)...)
	return alerts
}

func (d *Detector) scanAxis(failures []model.Event, axis model.Axis, threshold int, window time.Duration) []model.Alert {
	groups := make(map[string][]model.Event)
	for _, ev := range failures {
		key := groupKey(ev, axis)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], ev)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	alerts := make([]model.Alert, 0)
	for _, key := range keys {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		start := 0
		for i := range group {
			for start < i && group[i].Timestamp.Sub(group[start].Timestamp) > window {
				start++
			}
			count := i - start + 1
			if count < threshold {
				continue
			}
			alert := buildAlert(axis, key, group, start, i, count)
			alerts = append(alerts, alert)
			if d.logger != nil {
				d.logger.Warn("brute-force window detected",
					"axis", alert.Axis,
					"key", alert.Key,
					"count", alert.Count,
					"window_start", alert.WindowStart,
					"window_end", alert.WindowEnd,
				)
			}
			// Consume the triggering run so one burst emits one alert.
			start = i + 1
		}
	}
	return alerts
}

func buildAlert(axis model.Axis, key string, group []model.Event, start, end, count int) model.Alert {
	alert := model.Alert{
		Axis:        axis,
		Key:         key,
		WindowStart: group[start].Timestamp,
		WindowEnd:   group[end].Timestamp,
		Count:       count,
	}
	related := relatedValues(group, alert.WindowStart, alert.WindowEnd, axis)
	switch axis {
	case model.AxisIP:
		alert.RelatedSources = []string{key}
		alert.RelatedAccounts = related
	default:
		alert.RelatedAccounts = []string{key}
		alert.RelatedSources = related
	}
	return alert
}

// relatedValues collects the counterpart axis values for group events whose
// timestamp falls inside [first, last] inclusive, distinct and in first
// appearance order.
func relatedValues(group []model.Event, first, last time.Time, axis model.Axis) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	for _, ev := range group {
		if ev.Timestamp.Before(first) || ev.Timestamp.After(last) {
			continue
		}
		var v string
		if axis == model.AxisIP {
			v = ev.Username
		} else {
			v = ev.SourceAddr
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func groupKey(ev model.Event, axis model.Axis) string {
	if axis == model.AxisIP {
		return ev.SourceAddr
	}
	return ev.Username
}
