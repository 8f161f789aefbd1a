package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements are idempotent; they run on every startup.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS patients (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		seq           BIGSERIAL NOT NULL,
		patient_name  TEXT NOT NULL CHECK (btrim(patient_name) <> ''),
		age           INTEGER NOT NULL CHECK (age >= 0),
		location      TEXT NOT NULL CHECK (btrim(location) <> ''),
		type          TEXT NOT NULL CHECK (type IN ('Mother', 'Child')),
		health_status TEXT NOT NULL DEFAULT 'Healthy'
		              CHECK (health_status IN ('Healthy', 'Under Treatment', 'Critical')),
		last_checkup  TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patients_created_at ON patients (created_at DESC, seq DESC)`,
}

// EnsureSchema creates the patients table and its index if missing
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	base := NewBaseRepository(db, nil)
	return base.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
