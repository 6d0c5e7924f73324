package eventually

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParallel_RespectsWidth verifies that no more than width calls are ever
// in flight and results come back in index order.
func TestParallel_RespectsWidth(t *testing.T) {
	e, _ := newTestEngine(t)

	var inFlight, peak atomic.Int32
	results, err := Parallel(context.Background(), e, 10, 2, time.Second, func(_ context.Context, i int) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return fmt.Sprintf("row-%d", i), nil
	})

	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("row-%d", i), r)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load(), "both slots should be used")
}

func TestParallel_FirstFailureIsReturned(t *testing.T) {
	e, _ := newTestEngine(t)
	boom := errors.New("row 3 missing")

	var started atomic.Int32
	_, err := Parallel(context.Background(), e, 20, 1, time.Second, func(_ context.Context, i int) (int, error) {
		started.Add(1)
		if i == 3 {
			return 0, boom
		}
		return i, nil
	})

	var ue *UnexpectedError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, started.Load(), int32(20), "admissions stop after a failure")
}

func TestParallel_CallTimeout(t *testing.T) {
	e, _ := newTestEngine(t)
	release := make(chan struct{})
	defer close(release)

	_, err := Parallel(context.Background(), e, 4, 4, 20*time.Millisecond, func(_ context.Context, i int) (int, error) {
		if i == 2 {
			<-release
		}
		return i, nil
	})

	var ht *HardTimeoutError
	require.ErrorAs(t, err, &ht)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
}

func TestParallel_Interrupted(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := Parallel(ctx, e, 3, 1, 5*time.Second, func(ctx context.Context, i int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	var ie *InterruptedError
	require.ErrorAs(t, err, &ie)
}

func TestParallel_Arguments(t *testing.T) {
	e, _ := newTestEngine(t)
	op := func(_ context.Context, i int) (int, error) { return i, nil }

	_, err := Parallel(context.Background(), e, 3, 0, time.Second, op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "width must be positive")

	results, err := Parallel(context.Background(), e, 0, 2, time.Second, op)
	require.NoError(t, err)
	assert.Empty(t, results)

	// width larger than the batch is fine
	results, err = Parallel(context.Background(), e, 2, 8, time.Second, op)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, results)
}

// TestParallel_ImmediateBudget verifies that a batch whose budget rounds down
// to nothing tries every call once instead of failing.
func TestParallel_ImmediateBudget(t *testing.T) {
	tests := []struct {
		name    string
		scale   float64
		perCall time.Duration
	}{
		{name: "zero per-call timeout", scale: 1, perCall: 0},
		{name: "zero time scale", scale: 0, perCall: time.Second},
		{name: "NaN time scale", scale: math.NaN(), perCall: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := newTestEngine(t)
			s.SetTimeScale(tt.scale)

			for batch := 0; batch < 20; batch++ {
				var calls atomic.Int32
				results, err := Parallel(context.Background(), e, 10, 2, tt.perCall, func(_ context.Context, i int) (int, error) {
					calls.Add(1)
					return i, nil
				})

				require.NoError(t, err, "batch %d", batch)
				assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, results)
				assert.Equal(t, int32(10), calls.Load())
			}
		})
	}
}

func TestParallel_ImmediateBudgetFailure(t *testing.T) {
	e, s := newTestEngine(t)
	s.SetTimeScale(0)
	boom := errors.New("boom")

	_, err := Parallel(context.Background(), e, 4, 1, time.Second, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})

	assert.ErrorIs(t, err, boom)
	var ht *HardTimeoutError
	assert.False(t, errors.As(err, &ht))
}

func TestBatchSucceeded(t *testing.T) {
	finished := make(chan struct{})
	close(finished)
	running := make(chan struct{})

	tests := []struct {
		name        string
		done        chan struct{}
		allAdmitted bool
		failed      bool
		want        bool
	}{
		{name: "finished cleanly", done: finished, allAdmitted: true, want: true},
		{name: "call failed", done: finished, allAdmitted: true, failed: true},
		{name: "admissions stopped early", done: finished},
		{name: "still running", done: running, allAdmitted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batchSucceeded(tt.done, tt.allAdmitted, tt.failed))
		})
	}
}
