package localstore

import (
	"context"
	"database/sql"
)

// RunTx executes fn with the queries bound to a transaction.
// If fn returns an error the tx rolls back, else it commits.
func RunTx(ctx context.Context, db *sql.DB, q *Queries, fn func(q *Queries) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(q.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
