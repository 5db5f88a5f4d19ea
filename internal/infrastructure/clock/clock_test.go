package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualFiresInDueOrder(t *testing.T) {
	clk := NewManual(time.Unix(0, 0))

	var fired []string
	clk.AfterFunc(30*time.Millisecond, func() { fired = append(fired, "c") })
	clk.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "a") })
	clk.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "b") })

	clk.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, clk.Pending())
}

func TestManualNowDuringCallback(t *testing.T) {
	start := time.Unix(100, 0)
	clk := NewManual(start)

	var seen time.Time
	clk.AfterFunc(time.Second, func() { seen = clk.Now() })
	clk.Advance(5 * time.Second)

	assert.Equal(t, start.Add(time.Second), seen)
	assert.Equal(t, start.Add(5*time.Second), clk.Now())
}

func TestManualChainedCallbacks(t *testing.T) {
	clk := NewManual(time.Unix(0, 0))

	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		clk.AfterFunc(time.Second, tick)
	}
	clk.AfterFunc(time.Second, tick)

	clk.Advance(5 * time.Second)
	assert.Equal(t, 5, ticks)
}

func TestManualStop(t *testing.T) {
	clk := NewManual(time.Unix(0, 0))

	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clk.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestRealClockAfterFunc(t *testing.T) {
	clk := New()
	done := make(chan struct{})
	clk.AfterFunc(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real clock callback did not fire")
	}
}
