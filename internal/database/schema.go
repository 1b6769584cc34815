package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The mappings table is the single persistent entity. The unique constraint
// on short_code is the authoritative collision signal under concurrent
// creation; application-level existence checks are advisory only.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS mappings (
		id              BIGSERIAL PRIMARY KEY,
		original_url    TEXT NOT NULL,
		short_code      VARCHAR(10) UNIQUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		expiration_time TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mappings_original_url ON mappings (original_url)`,
	`CREATE INDEX IF NOT EXISTS idx_mappings_expiration_time ON mappings (expiration_time) WHERE expiration_time IS NOT NULL`,
}

// EnsureSchema creates the mappings table and its indexes if they do not
// exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
