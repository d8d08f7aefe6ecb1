package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"authwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/authwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id BIGSERIAL PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			total_events INTEGER NOT NULL,
			failed_logins INTEGER NOT NULL,
			successful_logins INTEGER NOT NULL,
			unique_sources INTEGER NOT NULL,
			unique_accounts INTEGER NOT NULL,
			alert_count INTEGER NOT NULL,
			anomalous_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT NOT NULL REFERENCES runs(id),
			ts TIMESTAMPTZ,
			event_code INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			username TEXT NOT NULL,
			source_addr TEXT NOT NULL,
			status TEXT NOT NULL,
			raw TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT NOT NULL REFERENCES runs(id),
			axis TEXT NOT NULL,
			axis_key TEXT NOT NULL,
			window_start TIMESTAMPTZ NOT NULL,
			window_end TIMESTAMPTZ NOT NULL,
			event_count INTEGER NOT NULL,
			related_sources_json JSONB NOT NULL,
			related_accounts_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_run ON alerts(run_id)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT NOT NULL REFERENCES runs(id),
			source_addr TEXT NOT NULL,
			total_failures INTEGER NOT NULL,
			distinct_accounts INTEGER NOT NULL,
			failures_per_min DOUBLE PRECISION NOT NULL,
			anomaly_score DOUBLE PRECISION NOT NULL,
			anomalous BOOLEAN NOT NULL
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

func (s *postgresStore) SaveRun(ctx context.Context, res model.RunResult) error {
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
	var runID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO runs (started_at, completed_at, total_events, failed_logins, successful_logins, unique_sources, unique_accounts, alert_count, anomalous_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		sum.StartedAt.UTC(),
		sum.CompletedAt.UTC(),
		sum.TotalEvents,
		sum.FailedLogins,
		sum.SuccessfulLogins,
		sum.UniqueSources,
		sum.UniqueAccounts,
		sum.AlertCount,
		sum.AnomalousCount,
	).Scan(&runID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	evStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, ts, event_code, event_type, username, source_addr, status, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
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
