package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"logbook/internal/store"
)

// ErrDuplicateExternalID reports a non-guest registration reusing an
// external id already held by another identity.
var ErrDuplicateExternalID = errors.New("external id already registered")

// Repository persists identities in Postgres.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new identity and returns its assigned id. A unique-index
// violation on external_id surfaces as ErrDuplicateExternalID so the
// check-then-insert race loses cleanly.
func (r *Repository) Insert(ctx context.Context, id Identity) (int64, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
		INSERT INTO identities (display_name, external_id, affiliation, contact, category, token_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, registered_at
	`, id.DisplayName, id.ExternalID, id.Affiliation, id.Contact, id.Category, id.TokenPath)
	if err := row.Scan(&id.ID, &id.RegisteredAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateExternalID
		}
		return 0, err
	}
	return id.ID, nil
}

// FindByToken resolves the decoded (display_name, external_id) pair to a
// stored identity. Returns nil when nothing matches. The stored category and
// affiliation are authoritative; whatever the token claimed is discarded.
func (r *Repository) FindByToken(ctx context.Context, displayName, externalID string) (*Identity, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
		SELECT id, display_name, external_id, affiliation, contact, category, token_path, registered_at
		FROM identities
		WHERE display_name = $1 AND external_id = $2
	`, displayName, externalID)
	var id Identity
	err := row.Scan(&id.ID, &id.DisplayName, &id.ExternalID, &id.Affiliation,
		&id.Contact, &id.Category, &id.TokenPath, &id.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Get returns a single identity by id, nil when absent.
func (r *Repository) Get(ctx context.Context, id int64) (*Identity, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
		SELECT id, display_name, external_id, affiliation, contact, category, token_path, registered_at
		FROM identities WHERE id = $1
	`, id)
	var out Identity
	err := row.Scan(&out.ID, &out.DisplayName, &out.ExternalID, &out.Affiliation,
		&out.Contact, &out.Category, &out.TokenPath, &out.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExistsExternalID reports whether a non-guest identity already holds the
// given external id.
func (r *Repository) ExistsExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.Conn(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM identities WHERE external_id = $1 AND category <> $2
		)
	`, externalID, CategoryGuest).Scan(&exists)
	return exists, err
}

// DeleteCascade removes the identity and every visit referencing it.
// Returns false when the identity does not exist.
func (r *Repository) DeleteCascade(ctx context.Context, id int64) (bool, error) {
	conn := r.db.Conn(ctx)
	if _, err := conn.ExecContext(ctx, `DELETE FROM visits WHERE identity_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete visits: %w", err)
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// sequences maps the tables the maintenance reset may touch to their
// id columns. Anything else is rejected.
var sequences = map[string]string{
	"identities":     "id",
	"visits":         "id",
	"admin_accounts": "id",
}

// ResetSequence rewrites a table's id sequence to continue from the highest
// surviving id, or restarts it at 1 when the table is empty.
func (r *Repository) ResetSequence(ctx context.Context, table string) error {
	col, ok := sequences[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	// COALESCE keeps setval happy on an empty table; is_called=false there
	// makes the next insert start back at 1.
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', '%s'), COALESCE(MAX(%s), 1), MAX(%s) IS NOT NULL) FROM %s`,
		table, col, col, col, table,
	)
	_, err := r.db.Conn(ctx).ExecContext(ctx, query)
	return err
}
