package admin

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"logbook/internal/store"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Accounts) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewAccounts(&store.DB{Client: db}, zap.NewNop())
}

func passwordRows(stored string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"password"}).AddRow(stored)
}

func TestVerify_BcryptHash(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT password FROM admin_accounts").
		WithArgs("admin").
		WillReturnRows(passwordRows(string(hash)))

	ok, err := accounts.Verify(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_BcryptHash_WrongPassword(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT password FROM admin_accounts").
		WithArgs("admin").
		WillReturnRows(passwordRows(string(hash)))

	ok, err := accounts.Verify(context.Background(), "admin", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_LegacyPlainText(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT password FROM admin_accounts").
		WithArgs("admin").
		WillReturnRows(passwordRows("admin123"))

	ok, err := accounts.Verify(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_UnknownUsername(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT password FROM admin_accounts").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"password"}))

	ok, err := accounts.Verify(context.Background(), "ghost", "whatever")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreate_Validation(t *testing.T) {
	db, _, accounts := setupMockDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := accounts.Create(ctx, "ab", "secret1", "secret1", "admin", "admin123")
	assert.ErrorIs(t, err, ErrUsernameTooShort)

	_, err = accounts.Create(ctx, "clerk", "five5", "five5", "admin", "admin123")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = accounts.Create(ctx, "clerk", "secret1", "secret2", "admin", "admin123")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestCreate_VerifierRejected(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT password FROM admin_accounts").
		WithArgs("admin").
		WillReturnRows(passwordRows("admin123"))

	_, err := accounts.Create(context.Background(), "clerk", "secret1", "secret1", "admin", "wrong")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestCreate(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT password FROM admin_accounts").
		WithArgs("admin").
		WillReturnRows(passwordRows("admin123"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("clerk").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO admin_accounts").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectCommit()

	// Six characters is the shortest accepted password.
	account, err := accounts.Create(context.Background(), "clerk", "secret", "secret", "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, int64(2), account.ID)
	assert.Equal(t, "clerk", account.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UsernameTaken(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT password FROM admin_accounts").
		WithArgs("admin").
		WillReturnRows(passwordRows("admin123"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("clerk").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := accounts.Create(context.Background(), "clerk", "secret1", "secret1", "admin", "admin123")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDefault_SkipsWhenPopulated(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM admin_accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, accounts.EnsureDefault(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDefault_Seeds(t *testing.T) {
	db, mock, accounts := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM admin_accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO admin_accounts").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, accounts.EnsureDefault(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
