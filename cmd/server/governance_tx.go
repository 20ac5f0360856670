package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	governanceservice "instahelp/internal/governance/service"
	governancestore "instahelp/internal/governance/store"
	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	txcontext "instahelp/pkg/platform/tx"
)

const defaultGovernanceTxTimeout = 5 * time.Second

// governancePostgresTx runs a vote inside one database transaction. The
// store locks the change row with FOR UPDATE, and the patient write made on
// finalization joins the same transaction through the context.
type governancePostgresTx struct {
	db      *sql.DB
	store   *governancestore.Postgres
	timeout time.Duration
}

func newGovernancePostgresTx(db *sql.DB, timeout time.Duration) *governancePostgresTx {
	return &governancePostgresTx{db: db, store: governancestore.NewPostgres(db), timeout: timeout}
}

func (t *governancePostgresTx) RunInTx(ctx context.Context, _ id.ChangeID, fn func(ctx context.Context, store governanceservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultGovernanceTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := txcontext.Run(ctx, t.db, func(ctx context.Context) error {
		return fn(ctx, t.store)
	})
	var coded *dErrors.Error
	if err != nil && !errors.As(err, &coded) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "governance transaction failed")
	}
	return err
}
