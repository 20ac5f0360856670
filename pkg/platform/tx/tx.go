// Package tx carries a database transaction on the context so stores can
// join the caller's unit of work without changing their signatures.
package tx

import (
	"context"
	"database/sql"
	"errors"
)

type ctxKey struct{}

// WithTx returns ctx carrying tx; a nil tx leaves ctx unchanged.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From returns the transaction on ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}

// Run begins a transaction, runs fn with it on the context, and commits
// when fn succeeds. Any error rolls back.
func Run(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// Savepoint runs fn under a savepoint of the transaction on ctx, so an
// error from fn undoes only fn's writes and the transaction stays usable.
// Without a transaction fn runs directly. name must be a constant
// identifier.
func Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	tx, ok := From(ctx)
	if !ok {
		return fn(ctx)
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}
