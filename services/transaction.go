package services

import (
	"context"

	"github.com/upb/signalops/repositories"
)

// WithTransaction executes fn within a database transaction owned by txMgr.
// The context passed to fn carries the transaction, so repositories called
// with it join the same unit of work. Commits on success, rolls back on error.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return txMgr.InTransaction(ctx, fn)
}

// WithTransactionResult executes fn within a database transaction and returns its result.
// On error the zero value of T is returned.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	var result T

	err := txMgr.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		var fnErr error
		result, fnErr = fn(ctx, tx)
		return fnErr
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
