// Package tx lets a SQL transaction ride along in a context so every store
// touched by one ledger transaction writes through the same *sql.Tx.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// Querier is the part of *sql.DB and *sql.Tx the stores use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}

// Or returns the transaction carried by ctx, falling back to db.
func Or(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
