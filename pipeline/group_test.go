package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectKeepsIndexOrder(t *testing.T) {
	got, err := Collect(context.Background(), 4, func(_ context.Context, i int) (int, error) {
		time.Sleep(time.Duration(4-i) * time.Millisecond)
		return i * i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4, 9}, got)
}

func TestCollectReturnsFirstErrorAndCancels(t *testing.T) {
	boom := errors.New("boom")
	got, err := Collect(context.Background(), 3, func(ctx context.Context, i int) (string, error) {
		if i == 1 {
			return "", boom
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestCollectZero(t *testing.T) {
	got, err := Collect(context.Background(), 0, func(context.Context, int) (int, error) {
		return 0, errors.New("never called")
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}
