package tx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txcontext "instahelp/pkg/platform/tx"
)

func TestSavepointWithoutTransactionRunsDirectly(t *testing.T) {
	calls := 0
	err := txcontext.Savepoint(context.Background(), "noop", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	err = txcontext.Savepoint(context.Background(), "noop", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestFromEmptyContext(t *testing.T) {
	tx, ok := txcontext.From(context.Background())
	assert.False(t, ok)
	assert.Nil(t, tx)
}
