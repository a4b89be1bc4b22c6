package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOrderedPreservesInputOrder(t *testing.T) {
	inputs := make([]int, 50)
	for i := range inputs {
		inputs[i] = i
	}

	// Later inputs finish earlier, so completion order is reversed from
	// submission order.
	fn := func(ctx context.Context, i int) (int, error) {
		time.Sleep(time.Duration(50-i) % 7 * time.Millisecond)
		return i * 2, nil
	}

	var got []int
	for v, err := range runOrdered(context.Background(), 8, 16, inputs, fn) {
		require.NoError(t, err)
		got = append(got, v)
	}

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i*2, v)
	}
}

func TestRunOrderedStopsAtFirstError(t *testing.T) {
	inputs := []int{0, 1, 2, 3, 4, 5}

	fn := func(ctx context.Context, i int) (int, error) {
		if i == 3 {
			return 0, fmt.Errorf("boom at %d", i)
		}
		return i, nil
	}

	var got []int
	var gotErr error
	for v, err := range runOrdered(context.Background(), 4, 8, inputs, fn) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, v)
	}

	require.Error(t, gotErr)
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestRunOrderedEarlyBreak(t *testing.T) {
	inputs := make([]int, 100)
	for i := range inputs {
		inputs[i] = i
	}

	fn := func(ctx context.Context, i int) (int, error) { return i, nil }

	var got []int
	for v, err := range runOrdered(context.Background(), 4, 8, inputs, fn) {
		require.NoError(t, err)
		got = append(got, v)
		if len(got) == 5 {
			break
		}
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestRunOrderedCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fn := func(ctx context.Context, i int) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return i, nil
	}

	count := 0
	for _, err := range runOrdered(ctx, 2, 4, []int{1, 2, 3}, fn) {
		if err != nil {
			break
		}
		count++
	}

	// A canceled context must not hang the iterator; partial output is fine.
	assert.LessOrEqual(t, count, 3)
}
