package store

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// withTx stores a SQL transaction in context for downstream repository usage.
func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// txFrom extracts a SQL transaction from context if present.
func txFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}
