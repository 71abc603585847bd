package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"sentinel/internal/ports"
)

// Slot returns the named document slot backed by history_slots.
func (db *DB) Slot(name string) ports.Slot { return &slot{db: db, name: name} }

type slot struct {
	db   *DB
	name string
}

func (s *slot) Read(ctx context.Context) ([]byte, bool, error) {
	var payload string
	err := s.db.Pool.QueryRow(ctx, `SELECT payload FROM history_slots WHERE name = $1`, s.name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(payload), true, nil
}

// Write overwrites the slot. Concurrent writers are not coordinated; the last
// one wins.
func (s *slot) Write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.db.Pool.Exec(ctx, `
        INSERT INTO history_slots (name, payload, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
    `, s.name, string(data))
	return err
}
