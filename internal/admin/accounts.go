package admin

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"logbook/internal/store"
)

// Seeded first-run credentials; operators are expected to add real
// accounts and retire these.
const (
	DefaultUsername = "admin"
	DefaultPassword = "admin123"
)

var (
	// ErrAccessDenied: credential pair did not verify.
	ErrAccessDenied = errors.New("invalid admin credentials")

	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrUsernameTaken    = errors.New("username already exists")
)

// Account is one dashboard operator. The stored password never leaves the
// package.
type Account struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Accounts manages dashboard operator credentials. New passwords are stored
// bcrypt-hashed; rows seeded as plain text by earlier releases still verify
// by exact comparison, preserving the original contract.
type Accounts struct {
	db     *store.DB
	logger *zap.Logger
}

// NewAccounts creates the account gate.
func NewAccounts(db *store.DB, logger *zap.Logger) *Accounts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accounts{db: db, logger: logger}
}

// EnsureDefault seeds the default operator on an empty table.
func (a *Accounts) EnsureDefault(ctx context.Context) error {
	var count int
	if err := a.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM admin_accounts`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = a.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO admin_accounts (username, password) VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
	`, DefaultUsername, string(hash))
	if err == nil {
		a.logger.Info("seeded default admin account", zap.String("username", DefaultUsername))
	}
	return err
}

// Verify reports whether the credential pair matches a stored account.
func (a *Accounts) Verify(ctx context.Context, username, password string) (bool, error) {
	var stored string
	err := a.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT password FROM admin_accounts WHERE username = $1`, username,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, nil
	}
	// Legacy plain-text row.
	return stored == password, nil
}

// Create adds an operator account. The verifier pair must belong to an
// already-existing admin; this is the human approval step, not a
// cryptographic authorization check.
func (a *Accounts) Create(ctx context.Context, username, password, confirm, verifierUser, verifierPass string) (Account, error) {
	if len(username) < 3 {
		return Account{}, ErrUsernameTooShort
	}
	if len(password) < 6 {
		return Account{}, ErrPasswordTooShort
	}
	if password != confirm {
		return Account{}, ErrPasswordMismatch
	}

	ok, err := a.Verify(ctx, verifierUser, verifierPass)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ErrAccessDenied
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	var account Account
	err = a.db.WithinTx(ctx, func(ctx context.Context) error {
		var exists bool
		if err := a.db.Conn(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM admin_accounts WHERE username = $1)`, username,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrUsernameTaken
		}
		row := a.db.Conn(ctx).QueryRowContext(ctx, `
			INSERT INTO admin_accounts (username, password) VALUES ($1, $2) RETURNING id
		`, username, string(hash))
		if err := row.Scan(&account.ID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrUsernameTaken
			}
			return err
		}
		account.Username = username
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
