package main

import (
	"context"
	"database/sql"
	"time"

	documentservice "actarchive/internal/document/service"
	documentstore "actarchive/internal/document/store"
	dErrors "actarchive/pkg/domain-errors"
)

// workflowPostgresTx runs each document transition in one database
// transaction. The row lock taken by FindByIDForUpdate holds until commit.
type workflowPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newWorkflowPostgresTx(db *sql.DB, timeout time.Duration) *workflowPostgresTx {
	if timeout <= 0 {
		timeout = documentservice.DefaultTxTimeout
	}
	return &workflowPostgresTx{db: db, timeout: timeout}
}

func (t *workflowPostgresTx) RunInTx(ctx context.Context, fn func(store documentservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "begin workflow transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(documentstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "commit workflow transaction")
	}
	return nil
}
