// Package pipeline runs the full analysis pass: canonicalize raw records,
// detect brute-force windows, and score per-source anomaly features.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"authwatch/internal/anomaly"
	"authwatch/internal/canon"
	"authwatch/internal/config"
	"authwatch/internal/detect"
	"authwatch/internal/metrics"
	"authwatch/internal/model"
	"authwatch/internal/report"
	"authwatch/internal/winlog"
)

type Pipeline struct {
	canon    *canon.Canonicalizer
	detector *detect.Detector
	scorer   *anomaly.Scorer
	logger   *slog.Logger
}

// New builds a pipeline from config. Detection and anomaly parameters are
// validated here so a bad config fails before any input is read.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	detector, err := detect.New(detect.Params{
		IPThreshold:   cfg.Detection.IPThreshold,
		IPWindow:      cfg.Detection.IPWindow,
		UserThreshold: cfg.Detection.UserThreshold,
		UserWindow:    cfg.Detection.UserWindow,
	}, logger)
	if err != nil {
		return nil, err
	}
	scorer, err := anomaly.NewScorer(anomaly.Params{
		Horizon:       cfg.Anomaly.Horizon,
		Contamination: cfg.Anomaly.Contamination,
		Trees:         cfg.Anomaly.Trees,
		SampleSize:    cfg.Anomaly.SampleSize,
		Seed:          cfg.Anomaly.Seed,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		canon:    canon.New(logger),
		detector: detector,
		scorer:   scorer,
		logger:   logger,
	}, nil
}

// Run analyzes one batch of records. Detection and scoring run concurrently
// over the same immutable event slice; neither mutates it.
func (p *Pipeline) Run(ctx context.Context, records []winlog.Record) (model.RunResult, error) {
	started := time.Now().UTC()
	events := p.canon.Canonicalize(records)
	for _, ev := range events {
		metrics.CountEvent(string(ev.EventType))
	}

	var (
		alerts    []model.Alert
		anomalies map[string]model.AnomalyResult
		wg        sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		alerts = p.detector.Detect(events)
	}()
	go func() {
		defer wg.Done()
		anomalies = p.scorer.Score(events)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		metrics.ObserveAnalysis(time.Since(started), metrics.OutcomeError)
		return model.RunResult{}, err
	}

	res := model.RunResult{
		Events:    events,
		Alerts:    alerts,
		Anomalies: anomaly.SortedResults(anomalies),
	}
	res.Summary = report.Summarize(res.Events, res.Alerts, res.Anomalies)
	res.Summary.StartedAt = started
	res.Summary.CompletedAt = time.Now().UTC()

	ipAlerts := 0
	for _, a := range res.Alerts {
		if a.Axis == model.AxisIP {
			ipAlerts++
		}
	}
	metrics.SetRunResults(ipAlerts, len(res.Alerts)-ipAlerts, res.Summary.AnomalousCount)
	metrics.ObserveAnalysis(res.Summary.CompletedAt.Sub(started), metrics.OutcomeSuccess)

	if p.logger != nil {
		p.logger.Info("analysis complete",
			"events", res.Summary.TotalEvents,
			"failed_logins", res.Summary.FailedLogins,
			"alerts", res.Summary.AlertCount,
			"anomalous_sources", res.Summary.AnomalousCount,
			"elapsed", res.Summary.CompletedAt.Sub(started).String(),
		)
	}
	return res, nil
}

// RunPath reads records from path in the given format and analyzes them.
func (p *Pipeline) RunPath(ctx context.Context, path, format string) (model.RunResult, error) {
	started := time.Now().UTC()
	records, err := winlog.ReadPath(path, format, p.logger)
	if err != nil {
		metrics.ObserveAnalysis(time.Since(started), metrics.OutcomeError)
		return model.RunResult{}, fmt.Errorf("read input: %w", err)
	}
	metrics.AddRecordsRead(len(records))
	return p.Run(ctx, records)
}
