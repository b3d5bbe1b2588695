package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS policy_pins (
	name       TEXT PRIMARY KEY,
	policy_id  TEXT NOT NULL,
	owner_id   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store provides Postgres persistence for policy pins.
type Store struct {
	pool *pgxpool.Pool
}

// Pin is a persisted policy id.
type Pin struct {
	Name      string
	PolicyID  string
	OwnerID   string
	UpdatedAt time.Time
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the policy_pins table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadPin returns the pinned policy for name.
func (s *Store) LoadPin(ctx context.Context, name string) (Pin, bool, error) {
	if name == "" {
		return Pin{}, false, fmt.Errorf("pin name required")
	}
	pin := Pin{Name: name}
	row := s.pool.QueryRow(ctx, `SELECT policy_id, owner_id, updated_at FROM policy_pins WHERE name=$1`, name)
	if err := row.Scan(&pin.PolicyID, &pin.OwnerID, &pin.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pin{}, false, nil
		}
		return Pin{}, false, err
	}
	return pin, true, nil
}

// SavePin upserts the pinned policy for name.
func (s *Store) SavePin(ctx context.Context, pin Pin) error {
	if pin.Name == "" || pin.PolicyID == "" {
		return fmt.Errorf("pin name and policy id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO policy_pins (name, policy_id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (name) DO UPDATE
		SET policy_id = EXCLUDED.policy_id, owner_id = EXCLUDED.owner_id, updated_at = now()
	`, pin.Name, pin.PolicyID, pin.OwnerID)
	return err
}
