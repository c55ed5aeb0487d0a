// internal/db/migrate.go
package db

import (
	"database/sql"
	"fmt"
)

// Schema statements, applied in order. Each is idempotent so Migrate can run
// on every startup.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT,
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL,
		role_id BIGINT NOT NULL REFERENCES roles(id),
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS asset_categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id BIGSERIAL PRIMARY KEY,
		asset_tag TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		category_id BIGINT REFERENCES asset_categories(id),
		status TEXT NOT NULL DEFAULT 'available',
		purchase_date DATE,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS asset_loans (
		id BIGSERIAL PRIMARY KEY,
		asset_id BIGINT NOT NULL REFERENCES assets(id),
		user_id BIGINT NOT NULL REFERENCES users(id),
		assigned_by_id BIGINT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL,
		approved_at TIMESTAMPTZ,
		due_at TIMESTAMPTZ NOT NULL,
		returned_at TIMESTAMPTZ,
		damage_note TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// One active loan per asset, enforced by the database as the backstop to
	// the row-lock check in the engine.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_asset_loans_active
		ON asset_loans (asset_id)
		WHERE status IN ('pending_approval', 'loaned', 'overdue')`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id BIGINT NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		sent_at TIMESTAMPTZ,
		retry_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_unsent
		ON outbox_events (created_at)
		WHERE sent_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		related_loan_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Redelivered events must not duplicate inbox rows.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_notifications_loan_event
		ON notifications (user_id, related_loan_id, type)
		WHERE related_loan_id IS NOT NULL`,
	`INSERT INTO roles (name, description) VALUES
		('EMPLOYEE', 'Can borrow assets'),
		('MANAGER', 'Can approve and reject loans'),
		('ADMIN', 'Full access')
		ON CONFLICT (name) DO NOTHING`,
}

// Migrate applies the schema.
func Migrate(conn *sql.DB) error {
	for i, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return nil
}
