package report

import "authwatch/internal/model"

// Summarize computes the headline counters shown on reports and the status
// endpoint. Empty usernames and blank source addresses do not count toward
// the unique tallies.
func Summarize(events []model.Event, alerts []model.Alert, anomalies []model.AnomalyResult) model.Summary {
	sources := make(map[string]struct{})
	accounts := make(map[string]struct{})

	var s model.Summary
	s.TotalEvents = len(events)
	for _, ev := range events {
		switch ev.EventType {
		case model.EventFailedLogin:
			s.FailedLogins++
		case model.EventSuccessfulLogin:
			s.SuccessfulLogins++
		}
		if ev.SourceAddr != "" {
			sources[ev.SourceAddr] = struct{}{}
		}
		if ev.Username != "" {
			accounts[ev.Username] = struct{}{}
		}
	}
	s.UniqueSources = len(sources)
	s.UniqueAccounts = len(accounts)
	s.AlertCount = len(alerts)
	for _, a := range anomalies {
		if a.Anomalous {
			s.AnomalousCount++
		}
	}
	return s
}
