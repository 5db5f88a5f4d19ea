package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
)

func newTestClock() (*clock.Manual, *Clock, *[]Record) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	var flushes []Record
	ac := NewClock(clk, 100*time.Millisecond, func(r Record) { flushes = append(flushes, r) })
	return clk, ac, &flushes
}

func TestFirstInputFlushesImmediately(t *testing.T) {
	clk, ac, flushes := newTestClock()

	ac.Record()
	require.Len(t, *flushes, 1)
	assert.Equal(t, clk.Now(), (*flushes)[0].LastActivityAt)
	assert.Equal(t, clk.Now(), ac.Last().LastActivityAt)
}

func TestBurstCollapsesToLastInput(t *testing.T) {
	clk, ac, flushes := newTestClock()
	start := clk.Now()

	ac.Record() // leading flush
	for i := 0; i < 9; i++ {
		clk.Advance(10 * time.Millisecond)
		ac.Record()
	}
	last := clk.Now()
	require.Len(t, *flushes, 1, "burst inside the window must not flush")

	clk.Advance(10 * time.Millisecond) // window ends at start+100ms
	require.Len(t, *flushes, 2)
	assert.Equal(t, start, (*flushes)[0].LastActivityAt)
	assert.Equal(t, last, (*flushes)[1].LastActivityAt)
}

func TestAtMostOneFlushPerWindow(t *testing.T) {
	clk, ac, flushes := newTestClock()

	// continuous pointer movement every 5ms for one second
	for i := 0; i < 200; i++ {
		ac.Record()
		clk.Advance(5 * time.Millisecond)
	}
	clk.Advance(time.Second)

	assert.LessOrEqual(t, len(*flushes), 11)
	for i := 1; i < len(*flushes); i++ {
		gap := (*flushes)[i].LastActivityAt.Sub((*flushes)[i-1].LastActivityAt)
		assert.Greater(t, gap, time.Duration(0))
	}
}

func TestSpacedInputsEachFlush(t *testing.T) {
	clk, ac, flushes := newTestClock()

	for i := 0; i < 5; i++ {
		ac.Record()
		clk.Advance(150 * time.Millisecond)
	}
	assert.Len(t, *flushes, 5)
}

func TestStopCancelsTrailingFlush(t *testing.T) {
	clk, ac, flushes := newTestClock()

	ac.Record()
	clk.Advance(10 * time.Millisecond)
	ac.Record()
	ac.Stop()
	clk.Advance(time.Second)

	assert.Len(t, *flushes, 1)
	assert.Equal(t, 0, clk.Pending())
}

func TestReset(t *testing.T) {
	clk, ac, flushes := newTestClock()
	ac.Record()
	clk.Advance(10 * time.Millisecond)
	ac.Record()

	at := clk.Now().Add(time.Hour)
	ac.Reset(at)
	clk.Advance(time.Second)

	assert.Len(t, *flushes, 1)
	assert.Equal(t, at, ac.Last().LastActivityAt)
}

func TestParseInput(t *testing.T) {
	for _, name := range []string{"pointer", "key", "click", "scroll", "touch", "wheel"} {
		in, err := ParseInput(name)
		require.NoError(t, err)
		assert.Equal(t, Input(name), in)
	}
	_, err := ParseInput("resize")
	assert.Error(t, err)
}
