package store

import (
	"context"
	"fmt"
)

// migration is one numbered schema step. Steps are applied in order and
// recorded in schema_migrations so a database can be upgraded in place.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "core tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS identities (
				id            BIGSERIAL PRIMARY KEY,
				display_name  TEXT NOT NULL,
				external_id   TEXT NOT NULL,
				affiliation   TEXT NOT NULL,
				category      TEXT NOT NULL CHECK (category IN ('Student','Teacher','Guest')),
				token_path    TEXT NOT NULL DEFAULT '',
				registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS visits (
				id                   BIGSERIAL PRIMARY KEY,
				identity_id          BIGINT REFERENCES identities(id),
				name_snapshot        TEXT NOT NULL,
				affiliation_snapshot TEXT NOT NULL,
				arrived_at           TIMESTAMPTZ NOT NULL,
				departed_at          TIMESTAMPTZ,
				duration             TEXT,
				visit_date           DATE NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS admin_accounts (
				id       BIGSERIAL PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				password TEXT NOT NULL
			)`,
		},
	},
	{
		// Contact arrived after the first release; kept as its own step so
		// databases created before it upgrade the same way new ones build.
		version: 2,
		name:    "identity contact",
		stmts: []string{
			`ALTER TABLE identities ADD COLUMN IF NOT EXISTS contact TEXT NOT NULL DEFAULT ''`,
		},
	},
	{
		version: 3,
		name:    "uniqueness constraints",
		stmts: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_external_id
				ON identities (external_id) WHERE category <> 'Guest'`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_visits_one_open
				ON visits (identity_id) WHERE departed_at IS NULL`,
			`CREATE INDEX IF NOT EXISTS idx_visits_date ON visits (visit_date)`,
		},
	},
}

// Migrate applies all pending schema steps.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err := d.Client.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}
		err = d.WithinTx(ctx, func(ctx context.Context) error {
			conn := d.Conn(ctx)
			for _, stmt := range m.stmts {
				if _, err := conn.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("apply %q: %w", m.name, err)
				}
			}
			_, err := conn.ExecContext(ctx,
				`INSERT INTO schema_migrations (version) VALUES ($1)`, m.version)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
