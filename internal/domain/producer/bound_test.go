package producer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
)

func steps(delays ...time.Duration) Func[int] {
	return func(ctx context.Context, emit func(int) error) (int, error) {
		for i, d := range delays {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			if err := emit(i + 1); err != nil {
				return 0, err
			}
		}
		return len(delays) * 10, nil
	}
}

func TestDeliversAllValuesBeforeTimeout(t *testing.T) {
	d := 10 * time.Millisecond
	values, final, err := Collect(context.Background(), 10*time.Second, steps(d, d, d, d, d), Options{})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, values)
	assert.Equal(t, 50, final)
}

func TestTimeoutDiscardsInFlightValue(t *testing.T) {
	s := Bound(context.Background(), 100*time.Millisecond, steps(time.Millisecond, 300*time.Millisecond), Options{Name: "slow"})
	defer s.Close()

	require.True(t, s.Next())
	assert.Equal(t, 1, s.Value())

	start := time.Now()
	assert.False(t, s.Next())
	assert.Less(t, time.Since(start), 250*time.Millisecond, "timeout must fire before the slow step finishes")

	_, err := s.Result()
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
	assert.Equal(t, faults.TimeoutExceeded, faults.KindOf(err))

	state := s.State()
	assert.True(t, state.TimedOut)
	assert.Equal(t, 1, state.LastValue)
	assert.Equal(t, 1, state.Yielded)
	assert.Equal(t, TimedOut, state.Outcome)

	assert.False(t, s.Next(), "a timed out stream stays finished")
}

func TestProducerErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("upstream timeout while reading")
	fn := func(ctx context.Context, emit func(string) error) (string, error) {
		if err := emit("partial"); err != nil {
			return "", err
		}
		return "", boom
	}

	values, _, err := Collect(context.Background(), time.Second, fn, Options{})
	assert.Equal(t, []string{"partial"}, values)
	assert.Same(t, boom, err)
	assert.False(t, IsTimeoutError(err), "message text must not make a timeout")
}

func TestIsTimeoutError(t *testing.T) {
	te := &TimeoutError{Timeout: time.Second, Elapsed: time.Second}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("timeout"), false},
		{"deadline", context.DeadlineExceeded, false},
		{"timeout error", te, true},
		{"wrapped", fmt.Errorf("tool: %w", te), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTimeoutError(tt.err))
		})
	}
}

func TestLazyStart(t *testing.T) {
	started := make(chan struct{}, 1)
	fn := func(ctx context.Context, emit func(int) error) (int, error) {
		started <- struct{}{}
		return 7, nil
	}

	clk := clock.NewManual(time.Unix(0, 0))
	s := Bound(context.Background(), time.Second, fn, Options{Clock: clk})

	select {
	case <-started:
		t.Fatal("producer ran before the first Next")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 0, clk.Pending(), "timer must not be armed before start")

	assert.False(t, s.Next())
	final, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, 7, final)
	assert.Equal(t, 0, clk.Pending(), "timer is cancelled on settle")
}

func TestVirtualTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fn := func(ctx context.Context, emit func(int) error) (int, error) {
		if err := emit(1); err != nil {
			return 0, err
		}
		select {
		case <-release:
			return 2, emit(2)
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	clk := clock.NewManual(time.Unix(0, 0))
	s := Bound(context.Background(), 100*time.Millisecond, fn, Options{Clock: clk})

	require.True(t, s.Next())
	clk.Advance(100 * time.Millisecond)
	assert.False(t, s.Next())

	err := s.Err()
	require.True(t, IsTimeoutError(err))
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 100*time.Millisecond, te.Timeout)
	assert.Equal(t, 100*time.Millisecond, te.Elapsed)
}

func TestEachInvocationHasItsOwnTimer(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fn := func(ctx context.Context, emit func(int) error) (int, error) { return 1, nil }

	for i := 0; i < 3; i++ {
		_, final, err := Collect(context.Background(), time.Second, fn, Options{Clock: clk})
		require.NoError(t, err)
		assert.Equal(t, 1, final)
	}
	assert.Equal(t, 0, clk.Pending())
}

func TestZeroTimeoutArmsNoTimer(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	release := make(chan struct{})
	fn := func(ctx context.Context, emit func(int) error) (int, error) {
		if err := emit(1); err != nil {
			return 0, err
		}
		<-release
		return 7, nil
	}

	s := Bound(context.Background(), 0, fn, Options{Clock: clk})
	defer s.Close()

	require.True(t, s.Next())
	assert.Equal(t, 1, s.Value())
	assert.Equal(t, 0, clk.Pending())

	clk.Advance(time.Hour)
	close(release)

	values, final, err := s.Drain()
	require.NoError(t, err)
	assert.NotNil(t, values)
	assert.Empty(t, values)
	assert.Equal(t, 7, final)
}

func TestPanicBecomesError(t *testing.T) {
	fn := func(ctx context.Context, emit func(int) error) (int, error) {
		panic("kaboom")
	}

	_, _, err := Collect(context.Background(), time.Second, fn, Options{})
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.False(t, IsTimeoutError(err))
}

func TestCloseCancelsProducer(t *testing.T) {
	stopped := make(chan error, 1)
	fn := func(ctx context.Context, emit func(int) error) (int, error) {
		err := emit(1)
		if err == nil {
			err = emit(2)
		}
		stopped <- err
		return 0, err
	}

	s := Bound(context.Background(), time.Minute, fn, Options{})
	require.True(t, s.Next())
	s.Close()

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("producer was not cancelled")
	}
	assert.ErrorIs(t, s.Err(), ErrClosed)
	assert.Equal(t, Cancelled, s.State().Outcome)
	assert.False(t, s.Next())
}

func TestCloseBeforeStart(t *testing.T) {
	called := false
	s := Bound(context.Background(), time.Second, func(ctx context.Context, emit func(int) error) (int, error) {
		called = true
		return 0, nil
	}, Options{})

	s.Close()
	assert.False(t, s.Next())
	assert.False(t, called)
	assert.ErrorIs(t, s.Err(), ErrClosed)
}

func TestParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Bound(ctx, time.Minute, steps(time.Millisecond, time.Hour), Options{})
	require.True(t, s.Next())

	cancel()
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.False(t, IsTimeoutError(s.Err()))
	assert.Equal(t, faults.Aborted, faults.KindOf(s.Err()))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "timeout", TimedOut.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
