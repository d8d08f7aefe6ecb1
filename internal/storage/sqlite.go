package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"authwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:authwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			total_events INTEGER NOT NULL,
			failed_logins INTEGER NOT NULL,
			successful_logins INTEGER NOT NULL,
			unique_sources INTEGER NOT NULL,
			unique_accounts INTEGER NOT NULL,
			alert_count INTEGER NOT NULL,
			anomalous_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			ts TEXT,
			event_code INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			username TEXT NOT NULL,
			source_addr TEXT NOT NULL,
			status TEXT NOT NULL,
			raw TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			axis TEXT NOT NULL,
			axis_key TEXT NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			event_count INTEGER NOT NULL,
			related_sources_json TEXT NOT NULL,
			related_accounts_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_run ON alerts(run_id)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			source_addr TEXT NOT NULL,
			total_failures INTEGER NOT NULL,
			distinct_accounts INTEGER NOT NULL,
			failures_per_min REAL NOT NULL,
			anomaly_score REAL NOT NULL,
			anomalous INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_run ON anomalies(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveRun(ctx context.Context, res model.RunResult) error {
	if s.db == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	sum := res.Summary
	ins, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started_at, completed_at, total_events, failed_logins, successful_logins, unique_sources, unique_accounts, alert_count, anomalous_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.StartedAt.UTC(),
		sum.CompletedAt.UTC(),
		sum.TotalEvents,
		sum.FailedLogins,
		sum.SuccessfulLogins,
		sum.UniqueSources,
		sum.UniqueAccounts,
		sum.AlertCount,
		sum.AnomalousCount,
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	runID, err := ins.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	evStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, ts, event_code, event_type, username, source_addr, status, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer evStmt.Close()
	for _, ev := range res.Events {
		if _, err := evStmt.ExecContext(ctx,
			runID,
			nullableTime(ev.Timestamp),
			ev.EventCode,
			string(ev.EventType),
			ev.Username,
			ev.SourceAddr,
			ev.Status,
			ev.Raw,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	alStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO alerts (run_id, axis, axis_key, window_start, window_end, event_count, related_sources_json, related_accounts_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer alStmt.Close()
	for _, a := range res.Alerts {
		if _, err := alStmt.ExecContext(ctx,
			runID,
			string(a.Axis),
			a.Key,
			a.WindowStart.UTC(),
			a.WindowEnd.UTC(),
			a.Count,
			encodeJSON(a.RelatedSources),
			encodeJSON(a.RelatedAccounts),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	anStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO anomalies (run_id, source_addr, total_failures, distinct_accounts, failures_per_min, anomaly_score, anomalous)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer anStmt.Close()
	for _, an := range res.Anomalies {
		if _, err := anStmt.ExecContext(ctx,
			runID,
			an.SourceAddr,
			an.TotalFailures,
			an.DistinctAccounts,
			an.FailuresPerMin,
			an.AnomalyScore,
			an.Anomalous,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
