package model

import "time"

type EventType string

const (
	EventFailedLogin     EventType = "failed_login"
	EventSuccessfulLogin EventType = "successful_login"
	EventOther           EventType = "other"
)

type Axis string

const (
	AxisIP       Axis = "ip"
	AxisUsername Axis = "username"
)

// Event is one canonicalized authentication attempt. A zero Timestamp means
// the source record carried no parseable time. String fields are never
// "null", only possibly empty.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventCode  int       `json:"event_code"`
	EventType  EventType `json:"event_type"`
	Username   string    `json:"username,omitempty"`
	SourceAddr string    `json:"source_addr,omitempty"`
	Status     string    `json:"status,omitempty"`
	Raw        string    `json:"raw,omitempty"`
}

// Alert is one detected brute-force window on a single axis. WindowStart and
// WindowEnd are inclusive.
type Alert struct {
	Axis            Axis      `json:"axis"`
	Key             string    `json:"key"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	Count           int       `json:"count"`
	RelatedSources  []string  `json:"related_sources"`
	RelatedAccounts []string  `json:"related_accounts"`
}

// FeatureRow aggregates one source address's failure behavior over the
// scoring horizon.
type FeatureRow struct {
	SourceAddr       string  `json:"source_addr"`
	TotalFailures    int     `json:"total_failures"`
	DistinctAccounts int     `json:"distinct_accounts"`
	FailuresPerMin   float64 `json:"failures_per_min"`
}

// AnomalyResult joins a FeatureRow with its outlier verdict. Higher score
// means more inlier-like.
type AnomalyResult struct {
	FeatureRow
	AnomalyScore float64 `json:"anomaly_score"`
	Anomalous    bool    `json:"anomalous"`
}

type Summary struct {
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	TotalEvents      int       `json:"total_events"`
	FailedLogins     int       `json:"failed_logins"`
	SuccessfulLogins int       `json:"successful_logins"`
	UniqueSources    int       `json:"unique_sources"`
	UniqueAccounts   int       `json:"unique_accounts"`
	AlertCount       int       `json:"alert_count"`
	AnomalousCount   int       `json:"anomalous_count"`
}

// RunResult is the complete output of one analysis pass. Alerts carries the
// ip axis first, then the username axis; Anomalies is sorted by source
// address.
type RunResult struct {
	Events    []Event         `json:"events"`
	Alerts    []Alert         `json:"alerts"`
	Anomalies []AnomalyResult `json:"anomalies"`
	Summary   Summary         `json:"summary"`
}
