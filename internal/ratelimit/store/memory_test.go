package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	res, err := s.AllowN(ctx, "k", 1, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	now = now.Add(20 * time.Second)
	res, err = s.AllowN(ctx, "k", 1, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = s.AllowN(ctx, "k", 1, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40, res.RetryAfter, "first request leaves the window 40s from now")

	t.Run("other keys are independent", func(t *testing.T) {
		res, err := s.AllowN(ctx, "other", 1, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	now = now.Add(41 * time.Second)
	res, err = s.AllowN(ctx, "k", 1, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "oldest request slid out of the window")
	assert.Equal(t, 0, res.Remaining)
}

func TestInMemory_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	_, err := s.AllowN(ctx, "k", 1, 1, time.Hour)
	require.NoError(t, err)
	res, err := s.AllowN(ctx, "k", 1, 1, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	s.Reset("k")
	res, err = s.AllowN(ctx, "k", 1, 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
