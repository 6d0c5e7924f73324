package eventually

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/eventually/internal/workpool"
)

func TestCallWithTimeout_ReturnsValue(t *testing.T) {
	e, _ := newTestEngine(t)

	v, err := CallWithTimeout(context.Background(), e, time.Second, func(context.Context) (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

// TestCallWithTimeout_AbandonsSlowOperation verifies the caller is released
// at the budget while the operation keeps running to completion.
func TestCallWithTimeout_AbandonsSlowOperation(t *testing.T) {
	e, _ := newTestEngine(t)
	finished := make(chan struct{})

	start := time.Now()
	_, err := CallWithTimeout(context.Background(), e, 50*time.Millisecond, func(context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		close(finished)
		return 1, nil
	})
	elapsed := time.Since(start)

	var ht *HardTimeoutError
	require.ErrorAs(t, err, &ht)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.NotEmpty(t, ht.CorrelationID)
	assert.Equal(t, 50*time.Millisecond, ht.Timeout.Duration())
	assert.Less(t, elapsed, 150*time.Millisecond, "caller must not wait for the operation")

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned operation never completed")
	}
}

func TestCallWithTimeout_Classification(t *testing.T) {
	pollErr := &PollTimeoutError{Op: "inner", Attempts: 2}
	plain := errors.New("connection reset")

	tests := []struct {
		name      string
		err       error
		wantSame  bool
		wantStale bool
	}{
		{name: "stale sentinel passes through", err: ErrStale, wantSame: true, wantStale: true},
		{name: "wrapped stale passes through", err: Stale(plain), wantSame: true, wantStale: true},
		{name: "poll timeout passes through", err: pollErr, wantSame: true},
		{name: "hard timeout passes through", err: &HardTimeoutError{Op: "inner"}, wantSame: true},
		{name: "unexpected passes through", err: &UnexpectedError{Op: "inner", Err: plain}, wantSame: true},
		{name: "plain error is wrapped", err: plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)

			_, err := CallWithTimeout(context.Background(), e, time.Second, func(context.Context) (int, error) {
				return 0, tt.err
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantStale, errors.Is(err, ErrStale))

			if tt.wantSame {
				assert.Same(t, tt.err, err)
				return
			}
			var ue *UnexpectedError
			require.ErrorAs(t, err, &ue)
			assert.Contains(t, ue.Op, "timeout_test.go")
		})
	}
}

func TestCallWithTimeout_PanicIsUnexpected(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := CallWithTimeout(context.Background(), e, time.Second, func(context.Context) (int, error) {
		panic("kaboom")
	})

	var ue *UnexpectedError
	require.ErrorAs(t, err, &ue)
	var pe *workpool.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestCallWithTimeout_ImmediateRunsInline(t *testing.T) {
	e, s := newTestEngine(t)
	s.SetTimeScale(0)

	v, err := CallWithTimeout(context.Background(), e, time.Second, func(context.Context) (int, error) {
		time.Sleep(30 * time.Millisecond)
		return 9, nil
	})
	require.NoError(t, err, "an immediate budget never abandons the operation")
	assert.Equal(t, 9, v)
}

func TestCallWithTimeout_DebugWaitsForever(t *testing.T) {
	e, s := newTestEngine(t)
	s.SetDebug(true)

	v, err := CallWithTimeout(context.Background(), e, 10*time.Millisecond, func(context.Context) (int, error) {
		time.Sleep(100 * time.Millisecond)
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestCallWithTimeout_Interrupted(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	var seen error
	done := make(chan struct{})
	_, err := CallWithTimeout(ctx, e, 5*time.Second, func(ctx context.Context) (int, error) {
		defer close(done)
		<-ctx.Done()
		seen = ctx.Err()
		return 0, ctx.Err()
	})

	var ie *InterruptedError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, context.Canceled)

	<-done
	assert.ErrorIs(t, seen, context.Canceled, "the operation sees the caller's cancellation")
}

func TestCallWithTimeout_NilEngineUsesDefault(t *testing.T) {
	v, err := CallWithTimeout(context.Background(), nil, time.Second, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
