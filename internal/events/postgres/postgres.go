// Package postgres stores segment decisions in a PostgreSQL table.
//
// Usage:
//
//	sink, err := postgres.New(ctx, dsn)
//	rec := events.NewAsync(sink)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voicetrigger/internal/events"
)

var _ events.Sink = (*Sink)(nil)

const ddlDecisions = `
CREATE TABLE IF NOT EXISTS trigger_decisions (
    id            BIGSERIAL    PRIMARY KEY,
    trigger_name  TEXT         NOT NULL,
    reason        TEXT         NOT NULL,
    outcome       TEXT         NOT NULL,
    transcript    TEXT         NOT NULL DEFAULT '',
    matched       BOOLEAN      NOT NULL,
    recognize_ok  BOOLEAN      NOT NULL,
    chunks        INTEGER      NOT NULL,
    bytes         INTEGER      NOT NULL,
    forwarded     INTEGER      NOT NULL,
    latency_ms    BIGINT       NOT NULL,
    decided_at    TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trigger_decisions_trigger_time
    ON trigger_decisions (trigger_name, decided_at);
`

const insertDecision = `
INSERT INTO trigger_decisions
    (trigger_name, reason, outcome, transcript, matched, recognize_ok,
     chunks, bytes, forwarded, latency_ms, decided_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Sink writes decisions to PostgreSQL. It is safe for concurrent use.
type Sink struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and runs [Migrate].
func New(ctx context.Context, dsn string) (*Sink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres events: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres events: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres events: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres events: migrate: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// Migrate creates the decisions table and its index if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlDecisions); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Write inserts one decision.
func (s *Sink) Write(ctx context.Context, d events.Decision) error {
	at := d.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx, insertDecision,
		d.Trigger, string(d.Reason), string(d.Outcome), d.Text, d.Matched, d.RecognizeOK,
		d.Chunks, d.Bytes, d.Forwarded, d.Latency.Milliseconds(), at,
	)
	if err != nil {
		return fmt.Errorf("postgres events: insert: %w", err)
	}
	return nil
}

// Recent returns the latest decisions of trigger, newest first.
func (s *Sink) Recent(ctx context.Context, trigger string, limit int) ([]events.Decision, error) {
	rows, err := s.pool.Query(ctx, `
SELECT trigger_name, reason, outcome, transcript, matched, recognize_ok,
       chunks, bytes, forwarded, latency_ms, decided_at
FROM trigger_decisions
WHERE trigger_name = $1
ORDER BY decided_at DESC, id DESC
LIMIT $2`, trigger, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres events: query: %w", err)
	}
	defer rows.Close()

	var out []events.Decision
	for rows.Next() {
		var (
			d               events.Decision
			reason, outcome string
			latencyMs       int64
		)
		if err := rows.Scan(&d.Trigger, &reason, &outcome, &d.Text, &d.Matched, &d.RecognizeOK,
			&d.Chunks, &d.Bytes, &d.Forwarded, &latencyMs, &d.At); err != nil {
			return nil, fmt.Errorf("postgres events: scan: %w", err)
		}
		d.Reason = events.Reason(reason)
		d.Outcome = events.Outcome(outcome)
		d.Latency = time.Duration(latencyMs) * time.Millisecond
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres events: rows: %w", err)
	}
	return out, nil
}

// Ping reports whether the database is reachable. Used by the readiness check.
func (s *Sink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}
