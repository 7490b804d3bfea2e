package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS forward_outcomes (
  id              BIGSERIAL PRIMARY KEY,
  record_id       TEXT NOT NULL,
  stage           TEXT NOT NULL,
  outcome         TEXT NOT NULL,
  batch_reference TEXT,
  http_status     INT,
  detail          TEXT,
  event_type      TEXT,
  at_epoch        BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS forward_outcomes_batch_idx ON forward_outcomes (batch_reference);`

const insertOutcome = `
INSERT INTO forward_outcomes (record_id, stage, outcome, batch_reference, http_status, detail, event_type, at_epoch)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, 0), NULLIF($6, ''), NULLIF($7, ''), $8)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresWriter records outcomes in an audit table.
type PostgresWriter struct {
	db   execer
	pool *pgxpool.Pool
}

func ConnectPostgres(ctx context.Context, dsn string) (*PostgresWriter, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	w := &PostgresWriter{db: pool, pool: pool}
	if err := w.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriterWith is only for tests to inject a fake connection.
func NewPostgresWriterWith(db execer) *PostgresWriter {
	return &PostgresWriter{db: db}
}

func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (w *PostgresWriter) Report(ctx context.Context, o Outcome) error {
	_, err := w.db.Exec(ctx, insertOutcome,
		o.RecordID, string(o.Stage), o.Label(), o.BatchReference, o.HTTPStatus, o.Detail, o.EventType, o.At)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

func (w *PostgresWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}
