package students

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository stores the student roster.
type Repository interface {
	Insert(ctx context.Context, s Student) error
	Get(ctx context.Context, id string) (Student, error)
	GetByPhone(ctx context.Context, phone string) (Student, error)
	List(ctx context.Context) ([]Student, error)
	Update(ctx context.Context, s Student) error
	Delete(ctx context.Context, id string) error
}

// NOTE: PostgresRepo assumes the following table exists:
//
// CREATE TABLE students (
//   id         UUID PRIMARY KEY,
//   name       TEXT NOT NULL,
//   phone      TEXT NOT NULL UNIQUE,
//   notes      TEXT NOT NULL DEFAULT '',
//   created_at TIMESTAMPTZ NOT NULL,
//   updated_at TIMESTAMPTZ NOT NULL
// );

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, s Student) error {
	const q = `
INSERT INTO students (id, name, phone, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.Name, s.Phone, s.Notes, s.CreatedAt, s.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicatePhone
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Student, error) {
	const q = `
SELECT id, name, phone, notes, created_at, updated_at
FROM students
WHERE id = $1
`
	return scanStudent(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByPhone(ctx context.Context, phone string) (Student, error) {
	const q = `
SELECT id, name, phone, notes, created_at, updated_at
FROM students
WHERE phone = $1
`
	return scanStudent(r.db.QueryRowContext(ctx, q, phone))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Student, error) {
	const q = `
SELECT id, name, phone, notes, created_at, updated_at
FROM students
ORDER BY name ASC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Student, 0)
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Phone, &s.Notes, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, s Student) error {
	const q = `
UPDATE students SET name = $2, phone = $3, notes = $4, updated_at = $5 WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, s.ID, s.Name, s.Phone, s.Notes, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
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

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM students WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
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

func scanStudent(row *sql.Row) (Student, error) {
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.Notes, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
