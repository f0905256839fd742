package postgres

import (
	"context"
	"database/sql"

	"rapidride/internal/repository"
)

// TxRunner implements repository.TxRunner on a *sql.DB.
type TxRunner struct {
	db *sql.DB
}

// NewTxRunner creates a new TxRunner.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

var _ repository.TxRunner = (*TxRunner)(nil)

// WithinTx runs fn with transaction-scoped repositories.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, rides repository.RideRepository, accounts repository.AccountRepository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, NewRideRepositoryWithTx(tx), NewAccountRepositoryWithTx(tx)); err != nil {
		return err
	}

	return tx.Commit()
}
