package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachRespectsLimit(t *testing.T) {
	var inFlight, peak, total atomic.Int32
	items := make([]int, 50)
	err := ForEach(context.Background(), items, 4, func(context.Context, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		total.Add(1)
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 50, total.Load())
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestForEachReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEach(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, i int) error {
		if i == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestForEachAllJoinsErrors(t *testing.T) {
	var seen atomic.Int32
	err := ForEachAll(context.Background(), []int{1, 2, 3, 4}, 2, func(_ context.Context, i int) error {
		seen.Add(1)
		if i%2 == 0 {
			return errors.New("even")
		}
		return nil
	})
	require.Error(t, err)
	assert.EqualValues(t, 4, seen.Load())
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 2)
}
