package messaging

import (
	"context"
	"database/sql"
	"time"
)

// Repository stores the SMS history.
type Repository interface {
	Save(ctx context.Context, m Message) error
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error

	// ListByCounterparty returns messages exchanged with one number, oldest
	// first, capped at limit (0 means no cap).
	ListByCounterparty(ctx context.Context, counterparty string, limit int) ([]Message, error)

	// ListLatest returns the newest message per counterparty, most recent
	// conversation first.
	ListLatest(ctx context.Context) ([]Message, error)
}

// NOTE: PostgresRepo assumes the following table exists:
//
// CREATE TABLE sms_log (
//   id           TEXT PRIMARY KEY,
//   counterparty TEXT NOT NULL,
//   direction    TEXT NOT NULL,
//   body         TEXT NOT NULL,
//   status       TEXT NOT NULL,
//   created_at   TIMESTAMPTZ NOT NULL,
//   updated_at   TIMESTAMPTZ NOT NULL
// );
// CREATE INDEX sms_log_counterparty_idx ON sms_log (counterparty, created_at);

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Save(ctx context.Context, m Message) error {
	const q = `
INSERT INTO sms_log (id, counterparty, direction, body, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q,
		m.ID,
		m.Counterparty,
		string(m.Direction),
		m.Body,
		string(m.Status),
		m.CreatedAt,
		m.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	const q = `
UPDATE sms_log SET status = $2, updated_at = $3 WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, string(status), at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByCounterparty(ctx context.Context, counterparty string, limit int) ([]Message, error) {
	q := `
SELECT id, counterparty, direction, body, status, created_at, updated_at
FROM sms_log
WHERE counterparty = $1
ORDER BY created_at ASC
`
	args := []any{counterparty}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *PostgresRepo) ListLatest(ctx context.Context) ([]Message, error) {
	const q = `
SELECT id, counterparty, direction, body, status, created_at, updated_at
FROM (
  SELECT DISTINCT ON (counterparty)
         id, counterparty, direction, body, status, created_at, updated_at
  FROM sms_log
  ORDER BY counterparty, created_at DESC
) latest
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	out := make([]Message, 0)
	for rows.Next() {
		var (
			m         Message
			direction string
			status    string
		)
		if err := rows.Scan(&m.ID, &m.Counterparty, &direction, &m.Body, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Direction = Direction(direction)
		m.Status = Status(status)
		out = append(out, m)
	}
	return out, rows.Err()
}
