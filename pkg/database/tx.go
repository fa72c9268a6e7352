package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Querier is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
// Repositories run every statement through Q(ctx) so the same code works
// inside and outside a transaction.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Transaction runs fn inside a transaction carried by the context passed
// to fn. A call made while a transaction is already open joins it, so the
// outermost caller owns commit and rollback. Postgres errors that reach
// the outermost caller are mapped with MapPQError, so a deadlock victim
// sees a CONFLICT it can retry.
//
//	err := db.Transaction(ctx, func(ctx context.Context) error {
//	    order, err := orders.GetForUpdate(ctx, id)
//	    ...
//	})
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		if appErr := MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if appErr := MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Q returns the transaction open on ctx, or the pool when there is none.
func (db *DB) Q(ctx context.Context) Querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
