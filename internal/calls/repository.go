package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"academy-caller/internal/callstate"
)

// Repository is the durable call log. The in-memory store is authoritative
// for live state; the repository is the append-behind history that survives
// restarts and feeds reporting.
type Repository interface {
	// Save upserts the record keyed by call id. Later saves for the same
	// call overwrite earlier ones.
	Save(ctx context.Context, rec callstate.Record) error

	Get(ctx context.Context, id string) (callstate.Record, error)

	// List returns records created within [from, to).
	List(ctx context.Context, from, to time.Time) ([]callstate.Record, error)
}

// NOTE: PostgresRepo assumes the following table exists:
//
// CREATE TABLE call_log (
//   id               TEXT PRIMARY KEY,
//   counterparty     TEXT NOT NULL,
//   display_name     TEXT NOT NULL DEFAULT '',
//   direction        TEXT NOT NULL,
//   state            TEXT NOT NULL,
//   answered_at      TIMESTAMPTZ,
//   duration_seconds INT NOT NULL DEFAULT 0,
//   recording_url    TEXT NOT NULL DEFAULT '',
//   created_at       TIMESTAMPTZ NOT NULL,
//   updated_at       TIMESTAMPTZ NOT NULL
// );

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Save(ctx context.Context, rec callstate.Record) error {
	const q = `
INSERT INTO call_log (
  id, counterparty, display_name, direction, state, answered_at,
  duration_seconds, recording_url, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id)
DO UPDATE SET state            = EXCLUDED.state,
              answered_at      = EXCLUDED.answered_at,
              duration_seconds = EXCLUDED.duration_seconds,
              recording_url    = EXCLUDED.recording_url,
              updated_at       = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.Counterparty,
		rec.DisplayName,
		string(rec.Direction),
		string(rec.State),
		rec.AnsweredAt,
		rec.DurationSeconds,
		rec.RecordingURL,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (callstate.Record, error) {
	const q = `
SELECT id, counterparty, display_name, direction, state, answered_at,
       duration_seconds, recording_url, created_at, updated_at
FROM call_log
WHERE id = $1
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return callstate.Record{}, callstate.ErrNotFound
		}
		return callstate.Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) List(ctx context.Context, from, to time.Time) ([]callstate.Record, error) {
	const q = `
SELECT id, counterparty, display_name, direction, state, answered_at,
       duration_seconds, recording_url, created_at, updated_at
FROM call_log
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]callstate.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (callstate.Record, error) {
	var (
		rec       callstate.Record
		direction string
		state     string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Counterparty,
		&rec.DisplayName,
		&direction,
		&state,
		&rec.AnsweredAt,
		&rec.DurationSeconds,
		&rec.RecordingURL,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return callstate.Record{}, err
	}
	rec.Direction = callstate.Direction(direction)
	rec.State = callstate.State(state)
	return rec, nil
}
