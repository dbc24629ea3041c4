package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"logbook/internal/store"
)

// ErrVisitNotFound reports a close against a visit id that does not exist.
var ErrVisitNotFound = errors.New("visit not found")

// Repository persists visits in Postgres.
type Repository struct {
	db     *store.DB
	logger *zap.Logger
}

// NewRepository creates a repo.
func NewRepository(db *store.DB, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger}
}

// FindOpen returns the identity's open visit, or nil when there is none.
// The partial unique index allows at most one, but if the invariant were
// ever violated the newest row (highest id) wins deterministically and the
// anomaly is logged rather than papered over.
func (r *Repository) FindOpen(ctx context.Context, identityID int64) (*Visit, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
		SELECT id, identity_id, name_snapshot, affiliation_snapshot, arrived_at, departed_at, duration, visit_date
		FROM visits
		WHERE identity_id = $1 AND departed_at IS NULL
		ORDER BY id DESC
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var open []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.IdentityID, &v.NameSnapshot, &v.AffiliationSnapshot,
			&v.ArrivedAt, &v.DepartedAt, &v.Duration, &v.VisitDate); err != nil {
			return nil, err
		}
		open = append(open, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	if len(open) > 1 {
		r.logger.Warn("multiple open visits for identity",
			zap.Int64("identity_id", identityID),
			zap.Int("count", len(open)),
			zap.Int64("winner", open[0].ID))
	}
	return &open[0], nil
}

// Open records an arrival and returns the new visit id. Snapshots are
// captured here so history survives identity deletion.
func (r *Repository) Open(ctx context.Context, identityID int64, nameSnapshot, affiliationSnapshot string, arrivedAt time.Time) (int64, error) {
	var id int64
	err := r.db.Conn(ctx).QueryRowContext(ctx, `
		INSERT INTO visits (identity_id, name_snapshot, affiliation_snapshot, arrived_at, visit_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, identityID, nameSnapshot, affiliationSnapshot, arrivedAt, arrivedAt.Format("2006-01-02")).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Close records the departure and computes duration from the full arrival
// and departure timestamps, so a stay crossing midnight still yields the
// true elapsed time. Fails with ErrVisitNotFound when the row is gone.
func (r *Repository) Close(ctx context.Context, visitID int64, departedAt time.Time) (Visit, error) {
	conn := r.db.Conn(ctx)

	var arrivedAt time.Time
	err := conn.QueryRowContext(ctx,
		`SELECT arrived_at FROM visits WHERE id = $1`, visitID,
	).Scan(&arrivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Visit{}, ErrVisitNotFound
	}
	if err != nil {
		return Visit{}, err
	}

	duration := FormatDuration(departedAt.Sub(arrivedAt))
	res, err := conn.ExecContext(ctx, `
		UPDATE visits SET departed_at = $2, duration = $3 WHERE id = $1
	`, visitID, departedAt, duration)
	if err != nil {
		return Visit{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Visit{}, err
	} else if n == 0 {
		return Visit{}, ErrVisitNotFound
	}

	return Visit{
		ID:         visitID,
		ArrivedAt:  arrivedAt,
		DepartedAt: &departedAt,
		Duration:   &duration,
		VisitDate:  arrivedAt,
	}, nil
}

const recordColumns = `
	v.id, v.identity_id, v.name_snapshot, v.affiliation_snapshot,
	v.arrived_at, v.departed_at, v.duration, v.visit_date,
	COALESCE(i.category, ''), COALESCE(i.external_id, '')`

// ListForDate returns the visits whose arrival fell on the given calendar
// date, most recent first.
func (r *Repository) ListForDate(ctx context.Context, date string) ([]Record, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM visits v
		LEFT JOIN identities i ON i.id = v.identity_id
		WHERE v.visit_date = $1
		ORDER BY v.id DESC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Search filters the ledger joined with the registry. Every criterion is
// optional and they combine as a conjunction; results come back most recent
// first.
func (r *Repository) Search(ctx context.Context, f Filter) ([]Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM visits v
		LEFT JOIN identities i ON i.id = v.identity_id`
	var clauses []string
	var args []any

	if f.Term != "" {
		switch f.Field {
		case FieldExternalID:
			clauses = append(clauses, fmt.Sprintf("i.external_id LIKE $%d", len(args)+1))
		case FieldAffiliation:
			clauses = append(clauses, fmt.Sprintf("v.affiliation_snapshot LIKE $%d", len(args)+1))
		default: // FieldName
			clauses = append(clauses, fmt.Sprintf("v.name_snapshot LIKE $%d", len(args)+1))
		}
		args = append(args, "%"+f.Term+"%")
	}
	if f.DateFrom != "" {
		clauses = append(clauses, fmt.Sprintf("v.visit_date >= $%d", len(args)+1))
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, fmt.Sprintf("v.visit_date <= $%d", len(args)+1))
		args = append(args, f.DateTo)
	}
	if f.Category != "" && f.Category != CategoryAll {
		clauses = append(clauses, fmt.Sprintf("i.category = $%d", len(args)+1))
		args = append(args, f.Category)
	}

	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY v.id DESC"

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Detail returns one visit joined with its identity, nil when absent.
func (r *Repository) Detail(ctx context.Context, visitID int64) (*Record, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM visits v
		LEFT JOIN identities i ON i.id = v.identity_id
		WHERE v.id = $1
	`, visitID)
	var rec Record
	err := row.Scan(&rec.ID, &rec.IdentityID, &rec.NameSnapshot, &rec.AffiliationSnapshot,
		&rec.ArrivedAt, &rec.DepartedAt, &rec.Duration, &rec.VisitDate,
		&rec.Category, &rec.ExternalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.NameSnapshot, &rec.AffiliationSnapshot,
			&rec.ArrivedAt, &rec.DepartedAt, &rec.Duration, &rec.VisitDate,
			&rec.Category, &rec.ExternalID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
