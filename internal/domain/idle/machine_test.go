package idle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/lifecycle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
)

type recorder struct {
	mu     sync.Mutex
	events []lifecycle.Event
}

func (r *recorder) listener(e lifecycle.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []lifecycle.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]lifecycle.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) last() lifecycle.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func setup(t *testing.T) (*clock.Manual, *Machine, *recorder, func()) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	bus := lifecycle.New(nil)
	rec := &recorder{}
	_, err := bus.SubscribeIdle(rec.listener, rec.listener)
	require.NoError(t, err)

	m := New(bus, clk, DefaultConfig(), nil)
	stop, err := m.Start()
	require.NoError(t, err)
	return clk, m, rec, stop
}

func TestIdleAfterThreshold(t *testing.T) {
	clk, m, rec, stop := setup(t)
	defer stop()

	clk.Advance(29*time.Second + 999*time.Millisecond)
	assert.Empty(t, rec.kinds())
	assert.Equal(t, Active, m.Snapshot().State)

	clk.Advance(time.Millisecond)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())
	assert.Equal(t, ReasonInactivity, rec.last().Reason)

	// silence continues: no duplicate broadcast
	clk.Advance(5 * time.Minute)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())
}

func TestActivityEndsIdleExactlyOnce(t *testing.T) {
	clk, m, rec, stop := setup(t)
	defer stop()

	clk.Advance(35 * time.Second)
	require.Equal(t, Idle, m.Snapshot().State)

	m.RecordActivity()
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart, lifecycle.IdleEnd}, rec.kinds())
	assert.Equal(t, ReasonActivity, rec.last().Reason)
	assert.Equal(t, 5*time.Second, rec.last().Idle)

	// a burst while already active must not re-broadcast idle-end
	for i := 0; i < 20; i++ {
		clk.Advance(7 * time.Millisecond)
		m.RecordActivity()
	}
	clk.Advance(time.Second)
	for i := 0; i < 5; i++ {
		m.RecordActivity()
		clk.Advance(150 * time.Millisecond)
	}
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart, lifecycle.IdleEnd}, rec.kinds())
}

func TestSpacedActivityKeepsSessionActive(t *testing.T) {
	clk, m, rec, stop := setup(t)
	defer stop()

	for i := 0; i < 400; i++ { // a minute of input every 150ms
		m.RecordActivity()
		clk.Advance(150 * time.Millisecond)
	}
	assert.Empty(t, rec.kinds())

	last := m.Snapshot().LastActivityAt
	clk.Advance(30*time.Second - clk.Now().Sub(last) - time.Millisecond)
	assert.Empty(t, rec.kinds())

	clk.Advance(time.Millisecond)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())

	m.RecordActivity()
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart, lifecycle.IdleEnd}, rec.kinds())
}

func TestTrailingActivityPushesThreshold(t *testing.T) {
	clk, m, rec, stop := setup(t)
	defer stop()

	m.RecordActivity()
	clk.Advance(90 * time.Millisecond)
	m.RecordActivity() // coalesced into the trailing flush at +100ms
	clk.Advance(10 * time.Millisecond)

	// threshold counts from the last input (+90ms), not the first
	clk.Advance(30*time.Second - 11*time.Millisecond)
	assert.Empty(t, rec.kinds())
	clk.Advance(time.Millisecond)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())
}

func TestHiddenPastGraceGoesIdleOnce(t *testing.T) {
	clk, m, rec, stop := setup(t)
	defer stop()

	m.SetVisibility(Hidden)
	m.SetVisibility(Hidden)
	clk.Advance(6 * time.Second)

	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())
	assert.Equal(t, ReasonHidden, rec.last().Reason)
	assert.True(t, m.Snapshot().Hidden)

	// the inactivity threshold passing while hidden adds nothing
	clk.Advance(30 * time.Second)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())

	m.SetVisibility(Visible)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart, lifecycle.IdleEnd}, rec.kinds())
	assert.Equal(t, ReasonVisible, rec.last().Reason)
}

func TestQuickTabSwitchDoesNotFlap(t *testing.T) {
	clk, m, rec, stop := setup(t)
	defer stop()

	m.SetVisibility(Hidden)
	clk.Advance(3 * time.Second)
	m.SetVisibility(Visible)
	clk.Advance(4 * time.Second)

	assert.Empty(t, rec.kinds())
	assert.Equal(t, Active, m.Snapshot().State)
}

func TestVisibleCountsAsActivity(t *testing.T) {
	clk, m, rec, stop := setup(t)
	defer stop()

	clk.Advance(20 * time.Second)
	m.SetVisibility(Hidden)
	clk.Advance(2 * time.Second)
	m.SetVisibility(Visible)

	// the visible transition restarted the threshold
	clk.Advance(29 * time.Second)
	assert.Empty(t, rec.kinds())
	clk.Advance(time.Second)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())
}

func TestIdleDurationTicker(t *testing.T) {
	clk, m, _, stop := setup(t)
	defer stop()

	clk.Advance(30 * time.Second)
	snap := m.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.NotNil(t, snap.IdleSince)
	assert.Equal(t, time.Duration(0), snap.IdleDuration)

	clk.Advance(3*time.Second + 500*time.Millisecond)
	assert.Equal(t, 3*time.Second, m.Snapshot().IdleDuration)

	m.RecordActivity()
	snap = m.Snapshot()
	assert.Equal(t, Active, snap.State)
	assert.Nil(t, snap.IdleSince)
	assert.Equal(t, time.Duration(0), snap.IdleDuration)

	// ticker stopped: only the new idle timer is pending
	assert.Equal(t, 1, clk.Pending())
}

func TestStartReturnsDisposer(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	bus := lifecycle.New(nil)
	rec := &recorder{}
	_, _ = bus.SubscribeIdle(rec.listener, rec.listener)

	m := New(bus, clk, DefaultConfig(), nil)
	stop, err := m.Start()
	require.NoError(t, err)

	_, err = m.Start()
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	stop()
	stop()
	assert.Equal(t, 0, clk.Pending())

	clk.Advance(time.Hour)
	m.RecordActivity()
	m.SetVisibility(Hidden)
	clk.Advance(time.Hour)
	assert.Empty(t, rec.kinds())
	assert.False(t, m.Snapshot().Started)
}

func TestRestartResetsToActive(t *testing.T) {
	clk, m, rec, stop := setup(t)

	clk.Advance(31 * time.Second)
	require.Equal(t, Idle, m.Snapshot().State)
	stop()

	stop2, err := m.Start()
	require.NoError(t, err)
	defer stop2()

	snap := m.Snapshot()
	assert.Equal(t, Active, snap.State)
	assert.Nil(t, snap.IdleSince)

	// exactly one timer chain survives the restart
	clk.Advance(30 * time.Second)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart, lifecycle.IdleStart}, rec.kinds())
}

func TestCustomThresholds(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	bus := lifecycle.New(nil)
	rec := &recorder{}
	_, _ = bus.SubscribeIdle(rec.listener, rec.listener)

	m := New(bus, clk, Config{Threshold: 2 * time.Second, VisibilityGrace: 500 * time.Millisecond}, nil)
	assert.Equal(t, time.Second, m.Config().TickInterval)

	stop, err := m.Start()
	require.NoError(t, err)
	defer stop()

	clk.Advance(2 * time.Second)
	assert.Equal(t, []lifecycle.Kind{lifecycle.IdleStart}, rec.kinds())
}

func TestRealClockIdleCycle(t *testing.T) {
	bus := lifecycle.New(nil)
	started := make(chan struct{}, 1)
	ended := make(chan struct{}, 1)
	_, _ = bus.SubscribeIdle(
		func(lifecycle.Event) {
			select {
			case started <- struct{}{}:
			default:
			}
		},
		func(lifecycle.Event) {
			select {
			case ended <- struct{}{}:
			default:
			}
		},
	)

	m := New(bus, clock.New(), Config{Threshold: 30 * time.Millisecond, TickInterval: 5 * time.Millisecond}, nil)
	stop, err := m.Start()
	require.NoError(t, err)
	defer stop()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("idle-start not observed")
	}

	m.RecordActivity()
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("idle-end not observed")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "unknown", State(9).String())
	assert.Equal(t, Hidden, ParseVisibility(true))
	assert.Equal(t, Visible, ParseVisibility(false))
}
