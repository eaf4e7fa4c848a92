package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxConn is the subset of *pgxpool.Pool used by PostgresCallLog.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const callLogSchema = `CREATE TABLE IF NOT EXISTS call_logs (
	call_id          TEXT PRIMARY KEY,
	customer_name    TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL,
	direction        TEXT NOT NULL,
	call_type        TEXT NOT NULL DEFAULT '',
	start_time       TIMESTAMPTZ NOT NULL,
	end_time         TIMESTAMPTZ NOT NULL,
	duration_seconds BIGINT NOT NULL,
	handled_by       TEXT NOT NULL,
	takeover_reason  TEXT NOT NULL DEFAULT '',
	outcome          TEXT NOT NULL DEFAULT '',
	transcript_file  TEXT NOT NULL,
	sentiment_score  DOUBLE PRECISION NOT NULL,
	ai_confidence    DOUBLE PRECISION NOT NULL,
	intent           TEXT NOT NULL DEFAULT '',
	model_discussed  TEXT NOT NULL DEFAULT '',
	functions_called TEXT[] NOT NULL DEFAULT '{}'
)`

const callLogColumns = `call_id, customer_name, phone, direction, call_type, start_time, end_time,
	duration_seconds, handled_by, takeover_reason, outcome, transcript_file,
	sentiment_score, ai_confidence, intent, model_discussed, functions_called`

// PostgresCallLog stores call-log rows in a call_logs table.
type PostgresCallLog struct {
	db   PgxConn
	pool *pgxpool.Pool
}

// NewPostgresCallLog connects to dsn and ensures the table exists.
func NewPostgresCallLog(ctx context.Context, dsn string) (*PostgresCallLog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	p := &PostgresCallLog{db: pool, pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresCallLogWithConn wraps an existing connection without migrating.
func NewPostgresCallLogWithConn(db PgxConn) *PostgresCallLog {
	return &PostgresCallLog{db: db}
}

// Migrate creates the call_logs table if it does not exist.
func (p *PostgresCallLog) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, callLogSchema); err != nil {
		return fmt.Errorf("creating call_logs table: %w", err)
	}
	return nil
}

// Close releases the pool when this store owns it.
func (p *PostgresCallLog) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// AppendCallLog inserts one row.
func (p *PostgresCallLog) AppendCallLog(ctx context.Context, row CallLogRow) error {
	fns := row.FunctionsCalled
	if fns == nil {
		fns = []string{}
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO call_logs (`+callLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		row.CallID, row.CustomerName, row.Phone, row.Direction, row.Type,
		row.StartTime, row.EndTime, row.DurationSeconds, row.HandledBy,
		row.TakeoverReason, row.Outcome, row.TranscriptFile,
		row.SentimentScore, row.AIConfidence, row.Intent, row.ModelDiscussed, fns,
	)
	if err != nil {
		return fmt.Errorf("inserting call log %s: %w", row.CallID, err)
	}
	return nil
}

// ListCallLogs returns rows newest first.
func (p *PostgresCallLog) ListCallLogs(ctx context.Context, limit int) ([]CallLogRow, error) {
	q := `SELECT ` + callLogColumns + ` FROM call_logs ORDER BY end_time DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying call logs: %w", err)
	}
	defer rows.Close()

	var out []CallLogRow
	for rows.Next() {
		row, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call logs: %w", err)
	}
	return out, nil
}

// GetCallLog returns the row for callID.
func (p *PostgresCallLog) GetCallLog(ctx context.Context, callID string) (*CallLogRow, error) {
	row, err := scanCallLog(p.db.QueryRow(ctx,
		`SELECT `+callLogColumns+` FROM call_logs WHERE call_id = $1`, callID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func scanCallLog(r pgx.Row) (CallLogRow, error) {
	var row CallLogRow
	err := r.Scan(
		&row.CallID, &row.CustomerName, &row.Phone, &row.Direction, &row.Type,
		&row.StartTime, &row.EndTime, &row.DurationSeconds, &row.HandledBy,
		&row.TakeoverReason, &row.Outcome, &row.TranscriptFile,
		&row.SentimentScore, &row.AIConfidence, &row.Intent, &row.ModelDiscussed, &row.FunctionsCalled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return row, err
	}
	if err != nil {
		return row, fmt.Errorf("scanning call log: %w", err)
	}
	return row, nil
}
