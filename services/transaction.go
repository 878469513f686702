package services

import (
	"context"
	"fmt"

	"github.com/upb/freelance-marketplace/backend/repositories"
)

// RunInTransaction runs fn inside a transaction begun on txMgr and returns its
// result. The transaction commits when fn returns nil and rolls back otherwise,
// including when fn panics. fn receives the transaction's context so
// repositories reached through it join the same transaction.
func RunInTransaction[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	var result T

	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txCtx := tx.Context()
	if txCtx == nil {
		txCtx = ctx
	}

	result, err = fn(txCtx, tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return result, fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
