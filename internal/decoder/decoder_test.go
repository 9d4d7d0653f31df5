package decoder

import (
	"context"
	"testing"
	"time"

	"sc2companion/internal/domain"

	"github.com/stretchr/testify/require"
)

type stubExtractor struct{ id int }

func (s *stubExtractor) Extract(context.Context, string) (*domain.ReplayMetadata, error) {
	return nil, nil
}

func TestPoolHandsOutDistinctInstances(t *testing.T) {
	built := 0
	pool, err := NewPool(func() (Extractor, error) {
		built++
		return &stubExtractor{id: built}, nil
	}, 3)
	require.NoError(t, err)
	require.Equal(t, 3, built)

	ctx := context.Background()
	a, err := pool.Acquire(ctx)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.NotSame(t, a, b)

	pool.Release(a)
	pool.Release(b)
}

func TestPoolAcquireBlocksUntilRelease(t *testing.T) {
	pool, err := NewPool(func() (Extractor, error) { return &stubExtractor{}, nil }, 1)
	require.NoError(t, err)

	ctx := context.Background()
	ex, err := pool.Acquire(ctx)
	require.NoError(t, err)

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(blockedCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(ex)
	again, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, ex, again)
}

func TestPoolMinimumSize(t *testing.T) {
	pool, err := NewPool(func() (Extractor, error) { return &stubExtractor{}, nil }, 0)
	require.NoError(t, err)

	ex, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ex)
}
