package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLite stores records in the `records` table created by the migrations.
type SQLite struct{ db *sql.DB }

func NewSQLiteStore(db *sql.DB) *SQLite { return &SQLite{db: db} }

func (s *SQLite) Get(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE name=?`, name,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return payload, err
}

func (s *SQLite) Put(ctx context.Context, name string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO records(name, payload, updated_at) VALUES(?,?,?)
        ON CONFLICT(name) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		name, payload, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
