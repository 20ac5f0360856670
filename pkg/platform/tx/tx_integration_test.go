//go:build integration

package tx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	txcontext "instahelp/pkg/platform/tx"
	"instahelp/pkg/testutil/containers"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	db := containers.GetManager().GetPostgres(t).DB
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tx_run (v TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `TRUNCATE tx_run`)
	require.NoError(t, err)

	insert := func(ctx context.Context, v string) error {
		tx, ok := txcontext.From(ctx)
		require.True(t, ok)
		_, err := tx.ExecContext(ctx, `INSERT INTO tx_run (v) VALUES ($1)`, v)
		return err
	}
	count := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM tx_run`).Scan(&n))
		return n
	}

	require.NoError(t, txcontext.Run(ctx, db, func(ctx context.Context) error {
		return insert(ctx, "committed")
	}))
	require.Equal(t, 1, count())

	boom := errors.New("boom")
	err = txcontext.Run(ctx, db, func(ctx context.Context) error {
		require.NoError(t, insert(ctx, "rolled back"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, count())
}

func TestSavepoint(t *testing.T) {
	ctx := context.Background()
	db := containers.GetManager().GetPostgres(t).DB
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tx_savepoint (v TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `TRUNCATE tx_savepoint`)
	require.NoError(t, err)

	insert := func(ctx context.Context, v string) error {
		tx, _ := txcontext.From(ctx)
		_, err := tx.ExecContext(ctx, `INSERT INTO tx_savepoint (v) VALUES ($1)`, v)
		return err
	}

	err = txcontext.Run(ctx, db, func(ctx context.Context) error {
		if err := insert(ctx, "vote"); err != nil {
			return err
		}
		spErr := txcontext.Savepoint(ctx, "apply_step", func(ctx context.Context) error {
			require.NoError(t, insert(ctx, "applied"))
			// Duplicate key aborts the statement; only the savepoint is lost.
			return insert(ctx, "vote")
		})
		require.Error(t, spErr)
		return insert(ctx, "after")
	})
	require.NoError(t, err)

	var got []string
	rows, err := db.QueryContext(ctx, `SELECT v FROM tx_savepoint ORDER BY v`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		got = append(got, v)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"after", "vote"}, got)
}
