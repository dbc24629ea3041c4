package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"logbook/internal/store"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Repository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewRepository(&store.DB{Client: db}, zap.NewNop())
	return db, mock, repo
}

var visitColumns = []string{
	"id", "identity_id", "name_snapshot", "affiliation_snapshot",
	"arrived_at", "departed_at", "duration", "visit_date",
}

func TestFindOpen_None(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, identity_id, name_snapshot").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(visitColumns))

	visit, err := repo.FindOpen(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, visit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpen_Single(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	arrived := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	identityID := int64(7)
	rows := sqlmock.NewRows(visitColumns).
		AddRow(int64(42), identityID, "Maria Santos", "Computer Science", arrived, nil, nil, arrived)

	mock.ExpectQuery("SELECT id, identity_id, name_snapshot").
		WithArgs(identityID).
		WillReturnRows(rows)

	visit, err := repo.FindOpen(context.Background(), identityID)
	require.NoError(t, err)
	require.NotNil(t, visit)
	assert.Equal(t, int64(42), visit.ID)
	assert.True(t, visit.Open())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpen_MultipleNewestWins(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	arrived := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	identityID := int64(7)
	// Ordered DESC by the query: the highest id comes first and must win.
	rows := sqlmock.NewRows(visitColumns).
		AddRow(int64(43), identityID, "Maria Santos", "Computer Science", arrived, nil, nil, arrived).
		AddRow(int64(42), identityID, "Maria Santos", "Computer Science", arrived, nil, nil, arrived)

	mock.ExpectQuery("SELECT id, identity_id, name_snapshot").
		WithArgs(identityID).
		WillReturnRows(rows)

	visit, err := repo.FindOpen(context.Background(), identityID)
	require.NoError(t, err)
	require.NotNil(t, visit)
	assert.Equal(t, int64(43), visit.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	arrived := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO visits").
		WithArgs(int64(7), "Maria Santos", "Computer Science", arrived, "2024-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.Open(context.Background(), 7, "Maria Santos", "Computer Science", arrived)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_ComputesDuration(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	arrived := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	departed := arrived.Add(90 * time.Second)

	mock.ExpectQuery("SELECT arrived_at FROM visits").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"arrived_at"}).AddRow(arrived))
	mock.ExpectExec("UPDATE visits SET departed_at").
		WithArgs(int64(42), departed, "00:01:30").
		WillReturnResult(sqlmock.NewResult(0, 1))

	visit, err := repo.Close(context.Background(), 42, departed)
	require.NoError(t, err)
	require.NotNil(t, visit.Duration)
	assert.Equal(t, "00:01:30", *visit.Duration)
	assert.False(t, visit.Open())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_CrossesMidnight(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	arrived := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	departed := time.Date(2024, 3, 2, 0, 15, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT arrived_at FROM visits").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"arrived_at"}).AddRow(arrived))
	mock.ExpectExec("UPDATE visits SET departed_at").
		WithArgs(int64(42), departed, "00:45:00").
		WillReturnResult(sqlmock.NewResult(0, 1))

	visit, err := repo.Close(context.Background(), 42, departed)
	require.NoError(t, err)
	assert.Equal(t, "00:45:00", *visit.Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT arrived_at FROM visits").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"arrived_at"}))

	_, err := repo.Close(context.Background(), 99, time.Now())
	assert.ErrorIs(t, err, ErrVisitNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearch_ConjunctionOfFilters(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	recordColumns := append(append([]string{}, visitColumns...), "category", "external_id")
	arrived := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(recordColumns).
		AddRow(int64(5), int64(7), "Maria Santos", "Computer Science",
			arrived, nil, nil, arrived, "Student", "2021-00123")

	mock.ExpectQuery("LEFT JOIN identities").
		WithArgs("%Maria%", "2024-01-01", "2024-01-31", "Student").
		WillReturnRows(rows)

	recs, err := repo.Search(context.Background(), Filter{
		Term:     "Maria",
		Field:    FieldName,
		DateFrom: "2024-01-01",
		DateTo:   "2024-01-31",
		Category: "Student",
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Student", recs[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearch_CategoryAllDisablesFilter(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	recordColumns := append(append([]string{}, visitColumns...), "category", "external_id")
	mock.ExpectQuery("LEFT JOIN identities").
		WithArgs("2024-01-01").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := repo.Search(context.Background(), Filter{
		DateFrom: "2024-01-01",
		Category: CategoryAll,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForDate(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	recordColumns := append(append([]string{}, visitColumns...), "category", "external_id")
	arrived := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(recordColumns).
		AddRow(int64(6), nil, "Walk In", "Guest", arrived, nil, nil, arrived, "", "").
		AddRow(int64(5), int64(7), "Maria Santos", "Computer Science", arrived, nil, nil, arrived, "Student", "2021-00123")

	mock.ExpectQuery("WHERE v.visit_date").
		WithArgs("2024-03-01").
		WillReturnRows(rows)

	recs, err := repo.ListForDate(context.Background(), "2024-03-01")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].IdentityID) // identity deleted; snapshots survive
	assert.Equal(t, "Walk In", recs[0].NameSnapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}
